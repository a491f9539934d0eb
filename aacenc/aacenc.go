// Package aacenc defines the contract between the muxer and an external AAC
// encoder, plus the framing helpers the muxer applies to encoder output.
package aacenc

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/pkg/errors"
)

// SamplesPerFrame is the number of samples per channel in one AAC-LC frame.
const SamplesPerFrame = 1024

// BitRateMode selects constant or variable bit rate encoding.
type BitRateMode int

const (
	CBR BitRateMode = iota
	VBR
)

func (m BitRateMode) String() string {
	if m == VBR {
		return "vbr"
	}
	return "cbr"
}

// BitRate is a bit rate in bits per second for CBR, or a quality level for VBR.
type BitRate struct {
	Mode  BitRateMode
	Value int
}

// Params configures a new encoder.
type Params struct {
	BitRate      BitRate
	SampleRate   int
	ChannelCount int
}

// Validate reports parameters no encoder can accept.
func (p Params) Validate() error {
	switch {
	case p.SampleRate <= 0:
		return errors.Errorf("invalid sample rate %d", p.SampleRate)
	case p.ChannelCount <= 0:
		return errors.Errorf("invalid channel count %d", p.ChannelCount)
	case p.BitRate.Value < 0:
		return errors.Errorf("invalid bit rate %d", p.BitRate.Value)
	}
	return nil
}

// Info describes a configured encoder.
type Info struct {
	// Config is the AudioSpecificConfig placed in the track's decoder config
	Config []byte
}

// Encoder turns one frame of interleaved 16-bit PCM into one compressed frame.
type Encoder interface {
	Info() (Info, error)
	// Encode writes the compressed frame into out and returns its size. The
	// frame may carry an ADTS header.
	Encode(in []int16, out []byte) (int, error)
	Close() error
}

// Factory constructs an encoder.
type Factory func(Params) (Encoder, error)

// FrameLength is the number of interleaved samples handed to the encoder per
// call: 1024 for mono and 2048 otherwise.
func FrameLength(channels int) int {
	if channels == 1 {
		return SamplesPerFrame
	}
	return 2 * SamplesPerFrame
}

// MaxFrameBytes sizes the output buffer for one compressed frame. AAC caps a
// raw frame at 6144 bits per channel.
func MaxFrameBytes(channels int) int {
	n := 6144 / 8 * channels
	if l := FrameLength(channels); l > n {
		n = l
	}
	return n
}

// StripADTS returns the raw access unit of a frame that starts with an ADTS
// header. Anything else is returned unchanged.
func StripADTS(frame []byte) []byte {
	if len(frame) < 7 || frame[0] != 0xff || frame[1]&0xf0 != 0xf0 {
		return frame
	}
	var pkts mpeg4audio.ADTSPackets
	if err := pkts.Unmarshal(frame); err != nil || len(pkts) != 1 {
		return frame
	}
	return pkts[0].AU
}

// LCConfig builds the AudioSpecificConfig of an AAC-LC stream with the given
// parameters, for encoders that do not report one.
func LCConfig(p Params) ([]byte, error) {
	conf := mpeg4audio.AudioSpecificConfig{
		Type:         mpeg4audio.ObjectTypeAACLC,
		SampleRate:   p.SampleRate,
		ChannelCount: p.ChannelCount,
	}
	b, err := conf.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal audio specific config")
	}
	return b, nil
}
