// Package mp4 writes progressive MP4 files through the joy4 muxer. Samples are
// stored in a single mdat and the moov index is written when the file is
// closed.
package mp4

import (
	"time"

	"github.com/nareix/joy4/av"
	joymp4 "github.com/nareix/joy4/format/mp4"
	"github.com/pkg/errors"

	"github.com/cleoag/h26xmux/container"
	"github.com/cleoag/h26xmux/internal/codectag"
	"github.com/cleoag/h26xmux/internal/timescale"
)

type Writer struct {
	tracks   container.Tracks
	mux      *joymp4.Muxer
	pending  []container.Sample
	next     []time.Duration // packet time of the next sample per track
	comments []string
	closed   bool
}

var _ container.Writer = (*Writer)(nil)

// Open starts a progressive MP4 file. It satisfies container.Opener.
func Open(write container.WriteFunc) (container.Writer, error) {
	return New(write), nil
}

func New(write container.WriteFunc) *Writer {
	return &Writer{mux: joymp4.NewMuxer(container.NewWriteSeeker(write))}
}

func (w *Writer) AddTrack(desc container.TrackDescriptor) (int, error) {
	if w.closed {
		return 0, container.ErrClosed
	}
	if desc.Codec == container.CodecH265 {
		return 0, errors.Wrap(container.ErrCodecUnsupported, "mp4: h265")
	}
	return w.tracks.Add(desc)
}

func (w *Writer) SetTrackConfig(track int, config []byte) error {
	if w.closed {
		return container.ErrClosed
	}
	return w.tracks.Configure(track, config)
}

func (w *Writer) PutSample(track int, payload []byte, duration uint32, flags container.SampleFlags) error {
	if w.closed {
		return container.ErrClosed
	}
	s, ok, err := w.tracks.Prepare(track, payload, duration, flags)
	if err != nil || !ok {
		return err
	}
	if w.tracks.Sealed() {
		return w.writeSample(s)
	}
	w.pending = append(w.pending, s)
	if !w.tracks.Ready() {
		return nil
	}
	return w.seal()
}

// SetTextComment records text. The joy4 muxer has no user data box so the
// comment is not stored in the file.
func (w *Writer) SetTextComment(text string) error {
	if w.closed {
		return container.ErrClosed
	}
	w.comments = append(w.comments, text)
	return nil
}

// Comments returns the recorded comments.
func (w *Writer) Comments() []string {
	return w.comments
}

// Codecs implements container.CodecReporter.
func (w *Writer) Codecs() []string {
	return codectag.Tags(w.tracks.All())
}

func (w *Writer) Close() error {
	if w.closed {
		return container.ErrClosed
	}
	w.closed = true
	if !w.tracks.Sealed() {
		if err := w.tracks.Unconfigured(); err != nil {
			return err
		}
		if err := w.seal(); err != nil {
			return err
		}
	}
	return errors.Wrap(w.mux.WriteTrailer(), "mp4: write trailer")
}

func (w *Writer) seal() error {
	var streams []av.CodecData
	for _, t := range w.tracks.All() {
		cd, err := codectag.CodecData(t)
		if err != nil {
			return err
		}
		streams = append(streams, cd)
	}
	w.tracks.Seal()
	if err := w.mux.WriteHeader(streams); err != nil {
		return errors.Wrap(err, "mp4: write header")
	}
	pending := w.pending
	w.pending = nil
	for _, s := range pending {
		if err := w.writeSample(s); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeSample(s container.Sample) error {
	t, err := w.tracks.Get(s.Track)
	if err != nil {
		return err
	}
	for len(w.next) <= s.Track {
		w.next = append(w.next, 0)
	}
	// joy4 derives each stored duration from the gap to the next packet,
	// rounding down, so gaps are built from rounded-up durations.
	pkt := av.Packet{
		Idx:        int8(s.Track),
		IsKeyFrame: s.Key,
		Time:       w.next[s.Track],
		Data:       s.Data,
	}
	w.next[s.Track] += timescale.FromScale(uint64(s.Duration), t.Desc.TimeScale)
	return errors.Wrap(w.mux.WritePacket(pkt), "mp4: write packet")
}
