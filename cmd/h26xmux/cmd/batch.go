package cmd

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// jobFile is the layout of a batch file. Defaults apply to every job that
// leaves the field empty.
type jobFile struct {
	Defaults Job   `yaml:"defaults"`
	Jobs     []Job `yaml:"jobs"`
}

func loadJobs(path string, fps int, format string, fragment time.Duration) ([]Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read jobs")
	}
	var jf jobFile
	if err := yaml.Unmarshal(b, &jf); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if len(jf.Jobs) == 0 {
		return nil, errors.Errorf("%s: no jobs", path)
	}
	if jf.Defaults.FPS == 0 {
		jf.Defaults.FPS = fps
	}
	if jf.Defaults.Format == "" {
		jf.Defaults.Format = format
	}
	if jf.Defaults.Fragment == 0 {
		jf.Defaults.Fragment = fragment
	}
	for i := range jf.Jobs {
		j := &jf.Jobs[i]
		if j.FPS == 0 {
			j.FPS = jf.Defaults.FPS
		}
		if j.Format == "" {
			j.Format = jf.Defaults.Format
		}
		if j.Fragment == 0 {
			j.Fragment = jf.Defaults.Fragment
		}
		if j.Width == 0 && j.Height == 0 {
			j.Width, j.Height = jf.Defaults.Width, jf.Defaults.Height
		}
		if !j.HEVC {
			j.HEVC = jf.Defaults.HEVC
		}
		if len(j.Comments) == 0 {
			j.Comments = jf.Defaults.Comments
		}
		if err := j.validate(); err != nil {
			return nil, errors.Wrapf(err, "job %d (%s)", i, j.Input)
		}
	}
	return jf.Jobs, nil
}

func (a *app) newBatchCommand() *cobra.Command {
	var jobsPath string
	cmd := &cobra.Command{
		Use:   "batch --jobs FILE",
		Short: "Run a YAML list of mux jobs concurrently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := loadJobs(jobsPath,
				a.v.GetInt("mux.fps"),
				a.v.GetString("mux.format"),
				a.v.GetDuration("mux.fragment"))
			if err != nil {
				return err
			}
			stats := newBatchStats()
			results, err := a.runBatch(jobs, a.v.GetInt("batch.parallel"), stats)
			for _, res := range results {
				printResult(cmd, res)
			}
			if path := a.v.GetString("batch.metrics_file"); path != "" {
				if merr := stats.writeTextfile(path); merr != nil && err == nil {
					err = merr
				}
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&jobsPath, "jobs", "", "YAML file with a jobs list")
	f.Int("parallel", 4, "jobs run at the same time")
	f.String("metrics-file", "", "write Prometheus metrics to this file when done")
	a.v.BindPFlag("batch.parallel", f.Lookup("parallel"))
	a.v.BindPFlag("batch.metrics_file", f.Lookup("metrics-file"))
	cmd.MarkFlagRequired("jobs")
	return cmd
}

// runBatch runs every job even when some fail. It returns the results of the
// jobs that succeeded, in job order, and the first error.
func (a *app) runBatch(jobs []Job, parallel int, stats *batchStats) ([]Result, error) {
	if parallel <= 0 {
		parallel = 1
	}
	results := make([]*Result, len(jobs))
	var eg errgroup.Group
	eg.SetLimit(parallel)
	for i, j := range jobs {
		eg.Go(func() error {
			log := a.log.WithField("job", uuid.NewString()).WithField("input", j.Input)
			start := time.Now()
			res, err := runJob(j, log)
			stats.observe(res, time.Since(start), err)
			if err != nil {
				log.WithError(err).Error("job failed")
				return errors.Wrapf(err, "job %d (%s)", i, j.Input)
			}
			results[i] = &res
			return nil
		})
	}
	err := eg.Wait()
	var out []Result
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, err
}
