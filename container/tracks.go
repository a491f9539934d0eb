package container

import (
	"github.com/pkg/errors"

	"github.com/cleoag/h26xmux/internal/timescale"
)

// Sample is a payload converted to the layout stored in MP4 files.
type Sample struct {
	Track int
	// decode time in the track timescale
	DTS      uint64
	Duration uint32
	Key      bool
	// AVCC for video, raw AAC for audio. Owned by the sample.
	Data []byte
}

// Track is the state a writer keeps for one added track.
type Track struct {
	ID     int
	Desc   TrackDescriptor
	Params ParamSets
	// AudioSpecificConfig of an audio track
	Config []byte

	dts uint64
}

// Configured reports whether the track has everything needed for a header.
func (t *Track) Configured() bool {
	if t.Desc.Kind == Audio {
		return len(t.Config) != 0
	}
	return t.Params.Complete()
}

// DTS returns the decode time of the next sample.
func (t *Track) DTS() uint64 {
	return t.dts
}

// Tracks is the track table shared by the writers in this module. Tracks are
// identified by their index.
type Tracks struct {
	list   []*Track
	sealed bool
}

// Add validates desc, fills in defaults and appends a new track.
func (ts *Tracks) Add(desc TrackDescriptor) (int, error) {
	if ts.sealed {
		return 0, ErrTracksSealed
	}
	switch {
	case desc.Kind == Video && desc.Codec != CodecH264 && desc.Codec != CodecH265:
		return 0, errors.Wrapf(ErrCodecUnsupported, "video track with codec %s", desc.Codec)
	case desc.Kind == Audio && desc.Codec != CodecAAC:
		return 0, errors.Wrapf(ErrCodecUnsupported, "audio track with codec %s", desc.Codec)
	case desc.Kind == Video && (desc.Width <= 0 || desc.Height <= 0):
		return 0, errors.Errorf("invalid video size %dx%d", desc.Width, desc.Height)
	case desc.Kind == Audio && (desc.SampleRate <= 0 || desc.ChannelCount <= 0):
		return 0, errors.Errorf("invalid audio format %d Hz %d channels", desc.SampleRate, desc.ChannelCount)
	}
	if desc.Language == "" {
		desc.Language = "und"
	}
	if desc.TimeScale == 0 {
		desc.TimeScale = timescale.Video
	}
	t := &Track{
		ID:     len(ts.list),
		Desc:   desc,
		Params: ParamSets{Codec: desc.Codec},
	}
	ts.list = append(ts.list, t)
	return t.ID, nil
}

// Get returns the track with the given id.
func (ts *Tracks) Get(id int) (*Track, error) {
	if id < 0 || id >= len(ts.list) {
		return nil, errors.Wrapf(ErrUnknownTrack, "track %d", id)
	}
	return ts.list[id], nil
}

// All returns the tracks in id order.
func (ts *Tracks) All() []*Track {
	return ts.list
}

// Configure applies decoder configuration to a track.
func (ts *Tracks) Configure(id int, config []byte) error {
	t, err := ts.Get(id)
	if err != nil {
		return err
	}
	if t.Desc.Kind == Audio {
		if len(config) == 0 {
			return errors.New("empty audio config")
		}
		if ts.sealed && t.Config != nil {
			return ErrTracksSealed
		}
		t.Config = append([]byte(nil), config...)
		return nil
	}
	var found bool
	for _, nalu := range SplitAnnexB(config) {
		if t.Params.Observe(nalu) {
			found = true
		}
	}
	if !found {
		return errors.New("no parameter sets in video config")
	}
	return nil
}

// Ready reports whether the header can be written.
func (ts *Tracks) Ready() bool {
	if len(ts.list) == 0 {
		return false
	}
	for _, t := range ts.list {
		if !t.Configured() {
			return false
		}
	}
	return true
}

// Seal prevents further tracks from being added.
func (ts *Tracks) Seal() {
	ts.sealed = true
}

// Sealed reports whether the header was written.
func (ts *Tracks) Sealed() bool {
	return ts.sealed
}

// Unconfigured returns an error naming the first track that is not ready.
func (ts *Tracks) Unconfigured() error {
	if len(ts.list) == 0 {
		return errors.Wrap(ErrNotConfigured, "no tracks")
	}
	for _, t := range ts.list {
		if !t.Configured() {
			return errors.Wrapf(ErrNotConfigured, "%s track %d", t.Desc.Kind, t.ID)
		}
	}
	return nil
}

// Prepare turns a PutSample payload into a Sample and advances the track's
// decode time. It returns false when the payload only carried parameter sets.
func (ts *Tracks) Prepare(id int, payload []byte, duration uint32, flags SampleFlags) (Sample, bool, error) {
	t, err := ts.Get(id)
	if err != nil {
		return Sample{}, false, err
	}
	s := Sample{
		Track:    id,
		DTS:      t.dts,
		Duration: duration,
		Key:      flags&RandomAccess != 0,
	}
	if t.Desc.Kind == Audio {
		if len(payload) == 0 {
			return Sample{}, false, nil
		}
		s.Data = append([]byte(nil), payload...)
	} else {
		var frames [][]byte
		for _, nalu := range SplitAnnexB(payload) {
			if len(nalu) == 0 || t.Params.Observe(nalu) {
				continue
			}
			if IsRandomAccess(t.Desc.Codec, nalu) {
				s.Key = true
			}
			frames = append(frames, nalu)
		}
		if len(frames) == 0 {
			return Sample{}, false, nil
		}
		if s.Data, err = AppendAVCC(nil, frames, 4); err != nil {
			return Sample{}, false, err
		}
	}
	t.dts += uint64(duration)
	return s, true, nil
}
