// Package interleave paces video access units and encoded audio frames onto a
// shared 90 kHz clock so that samples reach the container in time order.
package interleave

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cleoag/h26xmux/aacenc"
	"github.com/cleoag/h26xmux/internal/nalframe"
	"github.com/cleoag/h26xmux/internal/timescale"
	"github.com/cleoag/h26xmux/internal/track"
)

// ErrAudioEncode is wrapped by Report.AudioErr when the encoder fails a frame.
var ErrAudioEncode = errors.New("audio encode failed")

// Sink receives samples in presentation order. Payloads are only valid for
// the duration of the call.
type Sink interface {
	PutVideo(unit []byte, duration uint32) error
	PutAudio(frame []byte, duration uint32) error
}

// Clock holds the running totals of one call, in 90 kHz ticks.
type Clock struct {
	VideoTicks uint64
	AudioTicks uint64
	// AudioSamples counts samples per channel, 1024 per encoded frame
	AudioSamples uint64
}

func (c *Clock) advanceVideo(ticks uint32) {
	c.VideoTicks += uint64(ticks)
}

func (c *Clock) advanceAudio(sampleRate int) {
	c.AudioSamples += aacenc.SamplesPerFrame
	c.AudioTicks = timescale.SamplesToTicks(c.AudioSamples, sampleRate)
}

// Report is the outcome of one call.
type Report struct {
	VideoSamples int
	AudioSamples int
	// Resyncs counts bytes skipped while looking for a start code
	Resyncs int
	Clock   Clock
	// AudioErr is set when encoding stopped early. Video was still written.
	AudioErr error
	// AudioExhausted is set when the PCM input ran out before the video did.
	AudioExhausted bool
}

// Engine multiplexes one video buffer, and optionally one PCM buffer, per Run.
type Engine struct {
	Video track.Video
	// Audio is nil for video-only calls
	Audio   *track.Audio
	Encoder aacenc.Encoder
	Sink    Sink
	Log     logrus.FieldLogger
}

// Run frames video into access units and writes each one followed by as many
// audio frames as needed to bring the audio clock level with the video clock.
// Only sink failures are returned as errors.
func (e *Engine) Run(video, pcm []byte) (Report, error) {
	var rep Report
	if e.Video.FrameTicks == 0 {
		return rep, errors.Errorf("invalid frame rate %d", e.Video.FPS)
	}
	log := e.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := e.newDrain(pcm, log)
	sc := nalframe.NewScanner(video)
	for sc.Next() {
		u := sc.Unit()
		if err := e.Sink.PutVideo(u.Data, e.Video.FrameTicks); err != nil {
			rep.Resyncs = sc.Skipped()
			return rep, errors.Wrapf(err, "write video sample at offset %d", u.Offset)
		}
		rep.VideoSamples++
		rep.Clock.advanceVideo(e.Video.FrameTicks)
		if d != nil {
			if err := d.run(&rep); err != nil {
				rep.Resyncs = sc.Skipped()
				return rep, err
			}
		}
	}
	rep.Resyncs = sc.Skipped()
	if rep.Resyncs > 0 {
		log.WithField("resyncs", rep.Resyncs).Debug("skipped bytes between access units")
	}
	log.WithFields(logrus.Fields{
		"fps":   e.Video.FPS,
		"units": rep.VideoSamples,
		"audio": rep.AudioSamples,
	}).Debug("multiplexed buffer")
	return rep, nil
}

type drain struct {
	audio   track.Audio
	enc     aacenc.Encoder
	sink    Sink
	log     logrus.FieldLogger
	cur     pcmCursor
	in      []int16
	out     []byte
	stopped bool
}

func (e *Engine) newDrain(pcm []byte, log logrus.FieldLogger) *drain {
	if e.Audio == nil || e.Encoder == nil {
		return nil
	}
	return &drain{
		audio: *e.Audio,
		enc:   e.Encoder,
		sink:  e.Sink,
		log:   log,
		cur:   newPCMCursor(pcm),
		in:    make([]int16, e.Audio.FrameLength),
		out:   make([]byte, aacenc.MaxFrameBytes(e.Audio.ChannelCount)),
	}
}

func (d *drain) run(rep *Report) error {
	for !d.stopped && rep.Clock.AudioTicks < rep.Clock.VideoTicks {
		if d.cur.remaining() == 0 {
			d.exhausted(rep)
			return nil
		}
		d.cur.read(d.in)
		n, err := d.enc.Encode(d.in, d.out)
		if err == nil && (n < 0 || n > len(d.out)) {
			err = errors.Errorf("encoder returned %d bytes for a %d byte buffer", n, len(d.out))
		}
		if err != nil {
			d.stopped = true
			rep.AudioErr = errors.Wrapf(ErrAudioEncode, "frame %d: %v", rep.AudioSamples, err)
			d.log.WithError(err).WithField("frame", rep.AudioSamples).Warn("audio encoding stopped")
			return nil
		}
		frame := aacenc.StripADTS(d.out[:n])
		if err := d.sink.PutAudio(frame, d.audio.FrameTicks()); err != nil {
			return errors.Wrapf(err, "write audio sample %d", rep.AudioSamples)
		}
		rep.AudioSamples++
		rep.Clock.advanceAudio(d.audio.SampleRate)
		if d.cur.remaining() == 0 {
			d.exhausted(rep)
		}
	}
	return nil
}

func (d *drain) exhausted(rep *Report) {
	d.stopped = true
	rep.AudioExhausted = true
	d.log.WithField("offset", d.cur.pos).Debug("pcm input exhausted")
}
