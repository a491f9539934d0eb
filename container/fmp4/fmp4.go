// Package fmp4 writes fragmented MP4 files: an init segment followed by one
// moof+mdat pair per fragment. It is the only backend that accepts H.265.
package fmp4

import (
	"io"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/pkg/errors"

	"github.com/cleoag/h26xmux/container"
	"github.com/cleoag/h26xmux/internal/codectag"
	"github.com/cleoag/h26xmux/internal/timescale"
)

// DefaultInterval is the longest span of samples put in one fragment.
const DefaultInterval = 200 * time.Millisecond

type Writer struct {
	// Interval caps the duration of a fragment. A new fragment also starts at
	// every video random-access sample.
	Interval time.Duration

	w        io.Writer
	tracks   container.Tracks
	pending  []container.Sample
	frag     []container.Sample
	start    time.Duration
	seqNum   uint32
	comments []string
	closed   bool
}

var _ container.Writer = (*Writer)(nil)

// Open starts a fragmented MP4 file. It satisfies container.Opener.
func Open(write container.WriteFunc) (container.Writer, error) {
	return New(write), nil
}

func New(write container.WriteFunc) *Writer {
	return &Writer{
		Interval: DefaultInterval,
		w:        container.NewWriteSeeker(write),
	}
}

func (w *Writer) AddTrack(desc container.TrackDescriptor) (int, error) {
	if w.closed {
		return 0, container.ErrClosed
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
		return w.add(s)
	}
	w.pending = append(w.pending, s)
	if !w.tracks.Ready() {
		return nil
	}
	return w.seal()
}

// SetTextComment records text. Comments are not written to the file.
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

// Close writes the last fragment.
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
	return w.flush()
}

func (w *Writer) seal() error {
	init := &fmp4.Init{}
	for _, t := range w.tracks.All() {
		codec, err := initCodec(t)
		if err != nil {
			return err
		}
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        t.ID + 1,
			TimeScale: t.Desc.TimeScale,
			Codec:     codec,
		})
	}
	w.tracks.Seal()
	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return errors.Wrap(err, "fmp4: marshal init")
	}
	if _, err := w.w.Write(buf.Bytes()); err != nil {
		return err
	}
	pending := w.pending
	w.pending = nil
	for _, s := range pending {
		if err := w.add(s); err != nil {
			return err
		}
	}
	return nil
}

func initCodec(t *container.Track) (mp4.Codec, error) {
	switch t.Desc.Codec {
	case container.CodecH264:
		return &mp4.CodecH264{SPS: t.Params.SPS, PPS: t.Params.PPS}, nil
	case container.CodecH265:
		return &mp4.CodecH265{VPS: t.Params.VPS, SPS: t.Params.SPS, PPS: t.Params.PPS}, nil
	case container.CodecAAC:
		var conf mpeg4audio.AudioSpecificConfig
		if err := conf.Unmarshal(t.Config); err != nil {
			return nil, errors.Wrapf(err, "fmp4: track %d audio config", t.ID)
		}
		return &mp4.CodecMPEG4Audio{Config: conf}, nil
	}
	return nil, errors.Wrapf(container.ErrCodecUnsupported, "fmp4: %s", t.Desc.Codec)
}

// add appends s to the current fragment, cutting the fragment first when s
// starts a new GOP or the fragment is long enough.
func (w *Writer) add(s container.Sample) error {
	t, err := w.tracks.Get(s.Track)
	if err != nil {
		return err
	}
	ts := timescale.FromScale(s.DTS, t.Desc.TimeScale)
	if len(w.frag) != 0 {
		cut := t.Desc.Kind == container.Video && s.Key
		if cut || ts-w.start >= w.Interval {
			if err := w.flush(); err != nil {
				return err
			}
		}
	}
	if len(w.frag) == 0 {
		w.start = ts
	}
	w.frag = append(w.frag, s)
	return nil
}

func (w *Writer) flush() error {
	if len(w.frag) == 0 {
		return nil
	}
	w.seqNum++
	part := &fmp4.Part{SequenceNumber: w.seqNum}
	for _, t := range w.tracks.All() {
		var pt *fmp4.PartTrack
		for _, s := range w.frag {
			if s.Track != t.ID {
				continue
			}
			if pt == nil {
				pt = &fmp4.PartTrack{ID: t.ID + 1, BaseTime: s.DTS}
			}
			pt.Samples = append(pt.Samples, &fmp4.Sample{
				Duration:        s.Duration,
				IsNonSyncSample: !s.Key,
				Payload:         s.Data,
			})
		}
		if pt != nil {
			part.Tracks = append(part.Tracks, pt)
		}
	}
	w.frag = w.frag[:0]
	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return errors.Wrap(err, "fmp4: marshal fragment")
	}
	_, err := w.w.Write(buf.Bytes())
	return err
}
