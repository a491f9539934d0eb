package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) newMuxCommand() *cobra.Command {
	var j Job
	cmd := &cobra.Command{
		Use:   "mux -i INPUT -o OUTPUT --width W --height H",
		Short: "Mux one Annex-B stream into an MP4 file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j.FPS = a.v.GetInt("mux.fps")
			j.Format = a.v.GetString("mux.format")
			j.Fragment = a.v.GetDuration("mux.fragment")
			res, err := runJob(j, a.log.WithField("input", j.Input))
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&j.Input, "input", "i", "", "Annex-B H.264 or H.265 elementary stream")
	f.StringVarP(&j.Output, "output", "o", "", "output file")
	f.IntVar(&j.Width, "width", 0, "video width")
	f.IntVar(&j.Height, "height", 0, "video height")
	f.BoolVar(&j.HEVC, "hevc", false, "input is H.265")
	f.StringVar(&j.Name, "name", "", "video track name")
	f.StringArrayVar(&j.Comments, "comment", nil, "text comment, may be repeated")
	f.Int("fps", 60, "frame rate")
	f.String("format", "mp4", "container: mp4 or fmp4")
	f.Duration("fragment", 200*time.Millisecond, "longest fragment for fmp4")
	a.v.BindPFlag("mux.fps", f.Lookup("fps"))
	a.v.BindPFlag("mux.format", f.Lookup("format"))
	a.v.BindPFlag("mux.fragment", f.Lookup("fragment"))
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")
	return cmd
}

func printResult(cmd *cobra.Command, res Result) {
	codecs := strings.Join(res.Codecs, ",")
	if codecs == "" {
		codecs = "-"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d units, %d resyncs, %d bytes, codecs %s\n",
		res.Job.Output, res.Report.VideoSamples, res.Report.Resyncs, res.Bytes, codecs)
}
