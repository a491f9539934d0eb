// Package track holds the per-stream parameters fixed when a track is
// initialized.
package track

import (
	"github.com/pkg/errors"

	"github.com/cleoag/h26xmux/aacenc"
	"github.com/cleoag/h26xmux/container"
	"github.com/cleoag/h26xmux/internal/timescale"
)

// DefaultFPS is the frame rate of writes that do not name one.
const DefaultFPS = 60

// Video describes the video stream. FPS and FrameTicks are set per write.
type Video struct {
	Width, Height int
	HEVC          bool
	Name          string

	FPS        int
	FrameTicks uint32
}

func NewVideo(width, height int, hevc bool, name string) (Video, error) {
	if width <= 0 || height <= 0 {
		return Video{}, errors.Errorf("invalid video size %dx%d", width, height)
	}
	return Video{Width: width, Height: height, HEVC: hevc, Name: name}, nil
}

// WithFPS returns a copy of v timed at fps frames per second.
func (v Video) WithFPS(fps int) (Video, error) {
	if fps <= 0 || timescale.Video/fps == 0 {
		return Video{}, errors.Errorf("invalid frame rate %d", fps)
	}
	v.FPS = fps
	v.FrameTicks = uint32(timescale.Video / fps)
	return v, nil
}

func (v Video) Codec() container.Codec {
	if v.HEVC {
		return container.CodecH265
	}
	return container.CodecH264
}

// Audio describes the PCM input and the encoder settings for it.
type Audio struct {
	SampleRate   int
	ChannelCount int
	BitRate      int
	// interleaved samples per encoder call
	FrameLength int
}

func NewAudio(bitRate, sampleRate, channelCount int) (Audio, error) {
	p := aacenc.Params{
		BitRate:      aacenc.BitRate{Mode: aacenc.CBR, Value: bitRate},
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
	}
	if err := p.Validate(); err != nil {
		return Audio{}, err
	}
	return Audio{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		BitRate:      bitRate,
		FrameLength:  aacenc.FrameLength(channelCount),
	}, nil
}

// Params returns the encoder parameters of the track.
func (a Audio) Params() aacenc.Params {
	return aacenc.Params{
		BitRate:      aacenc.BitRate{Mode: aacenc.CBR, Value: a.BitRate},
		SampleRate:   a.SampleRate,
		ChannelCount: a.ChannelCount,
	}
}

// FrameTicks is the 90 kHz duration of one AAC frame.
func (a Audio) FrameTicks() uint32 {
	return uint32(aacenc.SamplesPerFrame * timescale.Video / a.SampleRate)
}
