package timescale

import (
	"math/bits"
	"time"
)

// Video is the 90 kHz clock shared by both tracks of a multiplexing call.
const Video = 90000

// ToScale converts a duration to ticks of the given timescale, rounding down.
func ToScale(t time.Duration, scale uint32) uint64 {
	if t <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(t), uint64(scale))
	ticks, _ := bits.Div64(hi, lo, uint64(time.Second))
	return ticks
}

// FromScale converts ticks back to a duration. It rounds up so that
// ToScale(FromScale(x, s), s) == x for any s up to 1 GHz.
func FromScale(ticks uint64, scale uint32) time.Duration {
	hi, lo := bits.Mul64(ticks, uint64(time.Second))
	var carry uint64
	lo, carry = bits.Add64(lo, uint64(scale)-1, 0)
	hi += carry
	d, _ := bits.Div64(hi, lo, uint64(scale))
	return time.Duration(d)
}

// SamplesToTicks expresses a sample count at the given rate in 90 kHz ticks,
// rounding down.
func SamplesToTicks(samples uint64, rate int) uint64 {
	return samples * Video / uint64(rate)
}
