package cmd

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cleoag/h26xmux"
	"github.com/cleoag/h26xmux/container"
	"github.com/cleoag/h26xmux/container/fmp4"
	"github.com/cleoag/h26xmux/container/mp4"
)

// Job muxes one Annex-B file into one MP4 file.
type Job struct {
	Input    string   `yaml:"input"`
	Output   string   `yaml:"output"`
	Width    int      `yaml:"width"`
	Height   int      `yaml:"height"`
	HEVC     bool     `yaml:"hevc"`
	FPS      int      `yaml:"fps"`
	Format   string   `yaml:"format"`
	Name     string   `yaml:"name"`
	Comments []string `yaml:"comments"`
	// Fragment is the longest fragment for the fmp4 format
	Fragment time.Duration `yaml:"fragment"`
}

func (j *Job) validate() error {
	switch {
	case j.Input == "":
		return errors.New("missing input")
	case j.Output == "":
		return errors.New("missing output")
	case j.Width <= 0 || j.Height <= 0:
		return errors.Errorf("invalid size %dx%d", j.Width, j.Height)
	case j.FPS <= 0:
		return errors.Errorf("invalid fps %d", j.FPS)
	}
	_, err := opener(j.Format, j.Fragment)
	return err
}

// Result is the outcome of a finished job.
type Result struct {
	Job    Job
	Report h26xmux.Report
	Codecs []string
	Bytes  int64
}

func opener(format string, fragment time.Duration) (container.Opener, error) {
	switch format {
	case "", "mp4":
		return mp4.Open, nil
	case "fmp4":
		return func(write container.WriteFunc) (container.Writer, error) {
			w := fmp4.New(write)
			if fragment > 0 {
				w.Interval = fragment
			}
			return w, nil
		}, nil
	}
	return nil, errors.Errorf("unknown format %q", format)
}

func runJob(j Job, log logrus.FieldLogger) (res Result, err error) {
	res.Job = j
	if err := j.validate(); err != nil {
		return res, err
	}
	open, _ := opener(j.Format, j.Fragment)
	data, err := os.ReadFile(j.Input)
	if err != nil {
		return res, errors.Wrap(err, "read input")
	}
	f, err := os.Create(j.Output)
	if err != nil {
		return res, errors.Wrap(err, "create output")
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "close output")
		}
	}()

	m := h26xmux.New(f, h26xmux.WithContainer(open), h26xmux.WithLogger(log))
	if err := m.InitVideo(j.Width, j.Height, j.HEVC, j.Name); err != nil {
		return res, err
	}
	for _, c := range j.Comments {
		if err := m.WriteComment(c); err != nil {
			return res, err
		}
	}
	if res.Report, err = m.WriteVideoWithFPS(data, j.FPS); err != nil {
		return res, err
	}
	res.Codecs = m.Codecs()
	if _, err := m.Close(); err != nil {
		return res, err
	}
	if res.Bytes, err = f.Seek(0, io.SeekEnd); err != nil {
		return res, errors.Wrap(err, "size output")
	}
	log.WithFields(logrus.Fields{
		"units":   res.Report.VideoSamples,
		"resyncs": res.Report.Resyncs,
		"bytes":   res.Bytes,
	}).Info("muxed")
	return res, nil
}
