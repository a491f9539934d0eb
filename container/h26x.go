package container

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/nareix/joy4/utils/bits/pio"
	"github.com/pkg/errors"

	"github.com/cleoag/h26xmux/internal/nalframe"
)

// first IRAP type (BLA_W_LP); IRAP types run through CRA_NUT
const h265IRAPFirst h265.NALUType = 16

// SplitAnnexB returns the NAL units of an Annex-B payload with their start
// codes removed. A payload without a leading start code is one raw NAL unit.
func SplitAnnexB(payload []byte) [][]byte {
	n := nalframe.StartCodeLen(payload)
	if n == 0 {
		return [][]byte{payload}
	}
	var au h264.AnnexB
	if err := au.Unmarshal(payload); err == nil {
		return au
	}
	return [][]byte{payload[n:]}
}

// AppendAVCC appends nalus to dst, each prefixed by its big-endian length in
// lengthSize bytes.
func AppendAVCC(dst []byte, nalus [][]byte, lengthSize int) ([]byte, error) {
	for _, nalu := range nalus {
		j := len(nalu)
		if lengthSize > 0 && lengthSize < 4 && j>>(8*uint(lengthSize)) != 0 {
			return nil, errors.New("NALU too big for AVCC record")
		}
		switch lengthSize {
		case 4:
			var hdr [4]byte
			pio.PutU32BE(hdr[:], uint32(j))
			dst = append(dst, hdr[:]...)
		case 3:
			dst = append(dst, byte(j>>16), byte(j>>8), byte(j))
		case 2:
			dst = append(dst, byte(j>>8), byte(j))
		case 1:
			dst = append(dst, byte(j))
		default:
			return nil, errors.Errorf("invalid AVCC length size %d", lengthSize)
		}
		dst = append(dst, nalu...)
	}
	return dst, nil
}

// ParamSets collects the parameter sets of an H.264 or H.265 track. The first
// occurrence of each kind wins.
type ParamSets struct {
	Codec Codec
	VPS   []byte
	SPS   []byte
	PPS   []byte
}

// Observe stores nalu if it is a parameter set and reports whether it was one.
func (p *ParamSets) Observe(nalu []byte) bool {
	if len(nalu) == 0 {
		return false
	}
	var dst *[]byte
	if p.Codec == CodecH265 {
		switch h265.NALUType((nalu[0] >> 1) & 0x3f) {
		case h265.NALUType_VPS_NUT:
			dst = &p.VPS
		case h265.NALUType_SPS_NUT:
			dst = &p.SPS
		case h265.NALUType_PPS_NUT:
			dst = &p.PPS
		}
	} else {
		switch h264.NALUType(nalu[0] & 0x1f) {
		case h264.NALUTypeSPS:
			dst = &p.SPS
		case h264.NALUTypePPS:
			dst = &p.PPS
		}
	}
	if dst == nil {
		return false
	}
	if *dst == nil {
		*dst = append([]byte(nil), nalu...)
	}
	return true
}

// Complete reports whether every parameter set the codec needs was seen.
func (p *ParamSets) Complete() bool {
	if p.SPS == nil || p.PPS == nil {
		return false
	}
	return p.Codec != CodecH265 || p.VPS != nil
}

// IsRandomAccess reports whether nalu starts an independently decodable picture.
func IsRandomAccess(codec Codec, nalu []byte) bool {
	if len(nalu) == 0 {
		return false
	}
	if codec == CodecH265 {
		typ := h265.NALUType((nalu[0] >> 1) & 0x3f)
		return typ >= h265IRAPFirst && typ <= h265.NALUType_CRA_NUT
	}
	return h264.NALUType(nalu[0]&0x1f) == h264.NALUTypeIDR
}
