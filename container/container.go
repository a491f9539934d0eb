// Package container is the boundary between the muxer and a container writer
// library. Writers receive framed samples and report their output through a
// positional write callback.
package container

import (
	"io"

	"github.com/pkg/errors"
)

var (
	ErrUnknownTrack     = errors.New("unknown track")
	ErrTracksSealed     = errors.New("tracks cannot be added after the header is written")
	ErrCodecUnsupported = errors.New("codec not supported by this container")
	ErrNotConfigured    = errors.New("track configuration incomplete")
	ErrClosed           = errors.New("container closed")
)

// MediaKind distinguishes video and audio tracks.
type MediaKind int

const (
	Video MediaKind = iota
	Audio
)

func (k MediaKind) String() string {
	if k == Audio {
		return "audio"
	}
	return "video"
}

// Codec identifies the elementary stream format of a track.
type Codec int

const (
	CodecH264 Codec = iota
	CodecH265
	CodecAAC
)

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	case CodecAAC:
		return "aac"
	}
	return "unknown"
}

// TrackDescriptor describes a track when it is added.
type TrackDescriptor struct {
	Kind  MediaKind
	Codec Codec
	Name  string
	// ISO 639-2 language code, "und" if empty
	Language string
	// ticks per second of durations passed to PutSample
	TimeScale uint32

	Width, Height int

	SampleRate   int
	ChannelCount int
}

// SampleFlags qualify a sample passed to PutSample.
type SampleFlags uint32

const (
	// RandomAccess marks a sample that decodes independently of others
	RandomAccess SampleFlags = 1 << iota
)

// WriteFunc stores p at the given absolute offset of the output.
type WriteFunc func(offset int64, p []byte) error

// Opener starts a new container whose output goes through write.
type Opener func(write WriteFunc) (Writer, error)

// Writer is a container writer.
//
// Video payloads are Annex-B units. Parameter sets among them become track
// configuration instead of samples. Audio payloads are raw AAC frames.
type Writer interface {
	// AddTrack registers a track and returns its id
	AddTrack(desc TrackDescriptor) (int, error)
	// SetTrackConfig sets decoder configuration: Annex-B parameter sets for
	// video, an AudioSpecificConfig for audio
	SetTrackConfig(track int, config []byte) error
	PutSample(track int, payload []byte, duration uint32, flags SampleFlags) error
	SetTextComment(text string) error
	// Close flushes buffered samples and finishes the file
	Close() error
}

// CodecReporter is implemented by writers that can describe their configured
// tracks as RFC 6381 codec strings.
type CodecReporter interface {
	Codecs() []string
}

// NewWriteSeeker adapts a write callback to io.WriteSeeker for libraries that
// want to seek within their own output.
func NewWriteSeeker(write WriteFunc) io.WriteSeeker {
	return &callbackWriter{write: write}
}

type callbackWriter struct {
	write WriteFunc
	pos   int64
	size  int64
}

func (w *callbackWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := w.write(w.pos, p); err != nil {
		return 0, err
	}
	w.pos += int64(len(p))
	if w.pos > w.size {
		w.size = w.pos
	}
	return len(p), nil
}

func (w *callbackWriter) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = w.pos + offset
	case io.SeekEnd:
		pos = w.size + offset
	default:
		return w.pos, errors.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return w.pos, errors.New("negative position")
	}
	w.pos = pos
	return pos, nil
}
