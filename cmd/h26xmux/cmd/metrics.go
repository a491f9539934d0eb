package cmd

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// batchStats collects per-job counters for the node_exporter textfile
// collector.
type batchStats struct {
	reg      *prometheus.Registry
	jobs     *prometheus.CounterVec
	units    prometheus.Counter
	resyncs  prometheus.Counter
	bytes    prometheus.Counter
	duration prometheus.Histogram
}

func newBatchStats() *batchStats {
	s := &batchStats{
		reg: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "h26xmux_jobs_total",
			Help: "Mux jobs by outcome.",
		}, []string{"status"}),
		units: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "h26xmux_video_units_total",
			Help: "Access units written.",
		}),
		resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "h26xmux_resync_bytes_total",
			Help: "Bytes skipped between access units.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "h26xmux_output_bytes_total",
			Help: "Bytes of MP4 output.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "h26xmux_job_duration_seconds",
			Help:    "Wall time per job.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
	s.reg.MustRegister(s.jobs, s.units, s.resyncs, s.bytes, s.duration)
	return s
}

func (s *batchStats) observe(res Result, took time.Duration, err error) {
	s.duration.Observe(took.Seconds())
	if err != nil {
		s.jobs.WithLabelValues("failed").Inc()
		return
	}
	s.jobs.WithLabelValues("ok").Inc()
	s.units.Add(float64(res.Report.VideoSamples))
	s.resyncs.Add(float64(res.Report.Resyncs))
	s.bytes.Add(float64(res.Bytes))
}

func (s *batchStats) writeTextfile(path string) error {
	return errors.Wrap(prometheus.WriteToTextfile(path, s.reg), "write metrics")
}
