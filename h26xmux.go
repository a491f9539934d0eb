// Package h26xmux multiplexes raw H.264/H.265 Annex-B streams, optionally with
// 16-bit PCM audio encoded to AAC, into an MP4 container written to an
// io.WriteSeeker.
package h26xmux

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cleoag/h26xmux/aacenc"
	"github.com/cleoag/h26xmux/container"
	"github.com/cleoag/h26xmux/container/mp4"
	"github.com/cleoag/h26xmux/internal/interleave"
	"github.com/cleoag/h26xmux/internal/timescale"
	"github.com/cleoag/h26xmux/internal/track"
)

var (
	ErrVideoNotInitialized = errors.New("video track not initialized")
	ErrAudioNotInitialized = errors.New("audio not initialized")
	ErrVideoInitialized    = errors.New("video track already initialized")
	ErrAudioTrackWritten   = errors.New("audio track already written")
	ErrNoEncoder           = errors.New("no AAC encoder configured")
	ErrClosed              = errors.New("muxer closed")

	// ErrAudioEncode is wrapped by Report.AudioErr.
	ErrAudioEncode = interleave.ErrAudioEncode
)

// Report describes what one write call produced.
type Report = interleave.Report

// Option configures a Muxer.
type Option func(*Muxer)

// WithContainer selects the container format. The default is progressive MP4.
func WithContainer(open container.Opener) Option {
	return func(m *Muxer) {
		m.open = open
	}
}

// WithEncoder sets the AAC encoder used by WriteVideoWithAudio.
func WithEncoder(f aacenc.Factory) Option {
	return func(m *Muxer) {
		m.newEncoder = f
	}
}

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Muxer) {
		m.log = log
	}
}

// Muxer writes one MP4 file. It is not safe for concurrent use; independent
// streams need independent muxers.
type Muxer struct {
	sink       io.WriteSeeker
	open       container.Opener
	newEncoder aacenc.Factory
	log        logrus.FieldLogger

	mux        container.Writer
	video      *track.Video
	videoID    int
	audio      *track.Audio
	audioID    int
	audioReady bool // audio track has its decoder config
	closed     bool
}

// New returns a muxer writing to sink. Nothing is written until the first
// sample.
func New(sink io.WriteSeeker, opts ...Option) *Muxer {
	m := &Muxer{
		sink:    sink,
		open:    mp4.Open,
		log:     logrus.StandardLogger(),
		audioID: -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitVideo adds the video track. It must be called once before any write.
func (m *Muxer) InitVideo(width, height int, hevc bool, trackName string) error {
	if m.closed {
		return ErrClosed
	}
	if m.video != nil {
		return ErrVideoInitialized
	}
	v, err := track.NewVideo(width, height, hevc, trackName)
	if err != nil {
		return err
	}
	mux, err := m.container()
	if err != nil {
		return err
	}
	id, err := mux.AddTrack(container.TrackDescriptor{
		Kind:      container.Video,
		Codec:     v.Codec(),
		Name:      trackName,
		Language:  "und",
		TimeScale: timescale.Video,
		Width:     width,
		Height:    height,
	})
	if err != nil {
		return errors.Wrap(err, "add video track")
	}
	m.video = &v
	m.videoID = id
	m.log.WithFields(logrus.Fields{
		"track": id,
		"codec": v.Codec(),
		"size":  [2]int{width, height},
	}).Debug("video track added")
	return nil
}

// InitAudio sets the PCM format and AAC bit rate for WriteVideoWithAudio. The
// audio track is added by the first such call.
func (m *Muxer) InitAudio(bitRate, sampleRate, channelCount int) error {
	if m.closed {
		return ErrClosed
	}
	if m.audioID >= 0 {
		return ErrAudioTrackWritten
	}
	a, err := track.NewAudio(bitRate, sampleRate, channelCount)
	if err != nil {
		return err
	}
	m.audio = &a
	return nil
}

// WriteVideo writes an Annex-B buffer at 60 frames per second.
func (m *Muxer) WriteVideo(data []byte) (Report, error) {
	return m.WriteVideoWithFPS(data, track.DefaultFPS)
}

// WriteVideoWithFPS writes an Annex-B buffer, one access unit per frame.
func (m *Muxer) WriteVideoWithFPS(data []byte, fps int) (Report, error) {
	v, err := m.videoAt(fps)
	if err != nil {
		return Report{}, err
	}
	e := &interleave.Engine{
		Video: v,
		Sink:  &trackSink{mux: m.mux, video: m.videoID},
		Log:   m.log,
	}
	return e.Run(data, nil)
}

// WriteVideoWithAudio writes an Annex-B buffer and interleaves AAC frames
// encoded from pcm, interleaved signed 16-bit little-endian samples. Encoding
// failures stop the audio for the rest of the call and are reported in
// Report.AudioErr.
//
// The audio track is added by the first call. Both shipped containers write
// their header once every track is configured, so audio has to start with the
// first write of the file; after a WriteVideo has delivered the parameter sets
// this call fails with container.ErrTracksSealed.
func (m *Muxer) WriteVideoWithAudio(data []byte, fps int, pcm []byte) (Report, error) {
	if m.closed {
		return Report{}, ErrClosed
	}
	if m.audio == nil {
		return Report{}, ErrAudioNotInitialized
	}
	v, err := m.videoAt(fps)
	if err != nil {
		return Report{}, err
	}
	if m.newEncoder == nil {
		return Report{}, ErrNoEncoder
	}
	params := m.audio.Params()
	enc, err := m.newEncoder(params)
	if err != nil {
		return Report{}, errors.Wrap(err, "create AAC encoder")
	}
	defer func() {
		if err := enc.Close(); err != nil {
			m.log.WithError(err).Warn("closing AAC encoder")
		}
	}()
	info, err := enc.Info()
	if err != nil {
		return Report{}, errors.Wrap(err, "query AAC encoder")
	}
	if err := m.addAudio(info, params); err != nil {
		return Report{}, err
	}
	a := *m.audio
	e := &interleave.Engine{
		Video:   v,
		Audio:   &a,
		Encoder: enc,
		Sink:    &trackSink{mux: m.mux, video: m.videoID, audio: m.audioID},
		Log:     m.log,
	}
	rep, err := e.Run(data, pcm)
	if err == nil && rep.AudioErr != nil {
		m.log.WithError(rep.AudioErr).Warn("audio dropped for the rest of the buffer")
	}
	return rep, err
}

// WriteComment attaches a text comment to the file.
func (m *Muxer) WriteComment(text string) error {
	if m.closed {
		return ErrClosed
	}
	mux, err := m.container()
	if err != nil {
		return err
	}
	return mux.SetTextComment(text)
}

// Codecs returns RFC 6381 codec strings for the configured tracks, if the
// container can describe them.
func (m *Muxer) Codecs() []string {
	if r, ok := m.mux.(container.CodecReporter); ok {
		return r.Codecs()
	}
	return nil
}

// Close finishes the file and returns the sink.
func (m *Muxer) Close() (io.WriteSeeker, error) {
	if m.closed {
		return m.sink, ErrClosed
	}
	m.closed = true
	if m.mux == nil {
		return m.sink, nil
	}
	if err := m.mux.Close(); err != nil {
		return m.sink, errors.Wrap(err, "close container")
	}
	return m.sink, nil
}

func (m *Muxer) container() (container.Writer, error) {
	if m.mux != nil {
		return m.mux, nil
	}
	mux, err := m.open(m.writeData)
	if err != nil {
		return nil, errors.Wrap(err, "open container")
	}
	m.mux = mux
	return mux, nil
}

func (m *Muxer) videoAt(fps int) (track.Video, error) {
	if m.closed {
		return track.Video{}, ErrClosed
	}
	if m.video == nil {
		return track.Video{}, ErrVideoNotInitialized
	}
	return m.video.WithFPS(fps)
}

func (m *Muxer) addAudio(info aacenc.Info, params aacenc.Params) error {
	if m.audioReady {
		return nil
	}
	config := info.Config
	if len(config) == 0 {
		var err error
		if config, err = aacenc.LCConfig(params); err != nil {
			return err
		}
	}
	if m.audioID < 0 {
		id, err := m.mux.AddTrack(container.TrackDescriptor{
			Kind:         container.Audio,
			Codec:        container.CodecAAC,
			Language:     "und",
			TimeScale:    timescale.Video,
			SampleRate:   params.SampleRate,
			ChannelCount: params.ChannelCount,
		})
		if err != nil {
			return errors.Wrap(err, "add audio track")
		}
		m.audioID = id
	}
	// a failed config is retried by the next call on the same track
	if err := m.mux.SetTrackConfig(m.audioID, config); err != nil {
		return errors.Wrap(err, "set audio config")
	}
	m.audioReady = true
	m.log.WithFields(logrus.Fields{
		"track":    m.audioID,
		"rate":     params.SampleRate,
		"channels": params.ChannelCount,
	}).Debug("audio track added")
	return nil
}

// writeData is the container's output path: every write lands at an absolute
// offset of the sink.
func (m *Muxer) writeData(offset int64, p []byte) error {
	if _, err := m.sink.Seek(offset, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seek to %d", offset)
	}
	n, err := m.sink.Write(p)
	if err != nil {
		return err
	}
	if n < len(p) {
		return io.ErrShortWrite
	}
	return nil
}

type trackSink struct {
	mux   container.Writer
	video int
	audio int
}

func (s *trackSink) PutVideo(unit []byte, duration uint32) error {
	return s.mux.PutSample(s.video, unit, duration, 0)
}

func (s *trackSink) PutAudio(frame []byte, duration uint32) error {
	return s.mux.PutSample(s.audio, frame, duration, container.RandomAccess)
}
