package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var annexB = []byte{
	0, 0, 0, 1, 0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02, 0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04, 0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9, 0x20,
	0, 0, 0, 1, 0x68, 0xce, 0x38, 0x80,
	0, 0, 0, 1, 0x65, 0x88, 0x84, 0x00, 0x10,
	0, 0, 0, 1, 0x41, 0x9a, 0x24, 0x8c, 0x09,
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadJobs(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "jobs.yaml", []byte(`
defaults:
  width: 1280
  height: 720
  comments: [batch]
jobs:
  - input: a.h264
    output: a.mp4
  - input: b.h265
    output: b.mp4
    hevc: true
    format: fmp4
    fps: 25
    fragment: 1s
    width: 640
    height: 360
`))
	jobs, err := loadJobs(path, 30, "mp4", 200*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, Job{
		Input: "a.h264", Output: "a.mp4", Width: 1280, Height: 720,
		FPS: 30, Format: "mp4", Fragment: 200 * time.Millisecond,
		Comments: []string{"batch"},
	}, jobs[0])
	assert.True(t, jobs[1].HEVC)
	assert.Equal(t, "fmp4", jobs[1].Format)
	assert.Equal(t, 25, jobs[1].FPS)
	assert.Equal(t, time.Second, jobs[1].Fragment)
	assert.Equal(t, 640, jobs[1].Width)
}

func TestLoadJobsInvalid(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"empty.yaml":   "jobs: []\n",
		"size.yaml":    "jobs:\n  - {input: a, output: b}\n",
		"format.yaml":  "jobs:\n  - {input: a, output: b, width: 1, height: 1, format: avi}\n",
		"output.yaml":  "jobs:\n  - {input: a, width: 1, height: 1}\n",
		"garbage.yaml": "jobs: {\n",
	} {
		_, err := loadJobs(writeFile(t, dir, name, []byte(body)), 30, "mp4", 0)
		assert.Error(t, err, name)
	}
	_, err := loadJobs(filepath.Join(dir, "missing.yaml"), 30, "mp4", 0)
	assert.Error(t, err)
}

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.h264", annexB)
	jobs := []Job{
		{Input: in, Output: filepath.Join(dir, "a.mp4"), Width: 640, Height: 480, FPS: 30, Format: "mp4"},
		{Input: in, Output: filepath.Join(dir, "b.mp4"), Width: 640, Height: 480, FPS: 30, Format: "fmp4", Comments: []string{"x"}},
		{Input: filepath.Join(dir, "nope.h264"), Output: filepath.Join(dir, "c.mp4"), Width: 640, Height: 480, FPS: 30},
	}
	log, _ := test.NewNullLogger()
	a := &app{v: newConfig(), log: log}
	stats := newBatchStats()
	results, err := a.runBatch(jobs, 2, stats)
	assert.ErrorContains(t, err, "job 2")
	require.Len(t, results, 2)
	assert.Equal(t, jobs[0].Output, results[0].Job.Output)
	assert.Equal(t, []string{"avc1.42c028"}, results[1].Codecs)
	assert.Equal(t, 4, results[0].Report.VideoSamples)
	assert.Positive(t, results[0].Bytes)

	assert.Equal(t, 2.0, testutil.ToFloat64(stats.jobs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(stats.jobs.WithLabelValues("failed")))
	assert.Equal(t, 8.0, testutil.ToFloat64(stats.units))

	metrics := filepath.Join(dir, "h26xmux.prom")
	require.NoError(t, stats.writeTextfile(metrics))
	b, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(b), `h26xmux_jobs_total{status="ok"} 2`)
}

func TestMuxCommand(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.h264", annexB)
	out := filepath.Join(dir, "out.mp4")

	root := NewRootCommand()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetArgs([]string{"mux", "-i", in, "-o", out, "--width", "640", "--height", "480",
		"--format", "fmp4", "--fps", "25", "--log-level", "error", "--comment", "hi"})
	require.NoError(t, root.Execute())
	assert.Contains(t, stdout.String(), "4 units, 0 resyncs")
	assert.Contains(t, stdout.String(), "codecs avc1.42c028")

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(b, []byte("moof")))
}

func TestMuxCommandEnv(t *testing.T) {
	t.Setenv("H26XMUX_MUX_FORMAT", "avi")
	root := NewRootCommand()
	root.SetArgs([]string{"mux", "-i", "in", "-o", "out", "--width", "640", "--height", "480"})
	root.SetOut(&bytes.Buffer{})
	err := root.Execute()
	assert.ErrorContains(t, err, `unknown format "avi"`)
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "in.h264", annexB)
	jobs := writeFile(t, dir, "jobs.yaml", []byte("defaults: {width: 320, height: 240}\njobs:\n"+
		"  - {input: "+in+", output: "+filepath.Join(dir, "1.mp4")+"}\n"+
		"  - {input: "+in+", output: "+filepath.Join(dir, "2.mp4")+", format: fmp4}\n"))
	metrics := filepath.Join(dir, "out.prom")

	root := NewRootCommand()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetArgs([]string{"batch", "--jobs", jobs, "--parallel", "2", "--metrics-file", metrics, "--log-level", "error"})
	require.NoError(t, root.Execute())
	assert.Contains(t, stdout.String(), "1.mp4: 4 units")
	assert.Contains(t, stdout.String(), "2.mp4: 4 units")
	assert.FileExists(t, metrics)
}
