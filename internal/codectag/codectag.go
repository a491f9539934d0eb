package codectag

import (
	"fmt"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/codec/aacparser"
	"github.com/nareix/joy4/codec/h264parser"
	"github.com/pkg/errors"

	"github.com/cleoag/h26xmux/container"
)

// CodecData builds the joy4 codec description of a configured track.
func CodecData(t *container.Track) (av.CodecData, error) {
	if !t.Configured() {
		return nil, errors.Wrapf(container.ErrNotConfigured, "track %d", t.ID)
	}
	switch t.Desc.Codec {
	case container.CodecH264:
		cd, err := h264parser.NewCodecDataFromSPSAndPPS(t.Params.SPS, t.Params.PPS)
		if err != nil {
			return nil, errors.Wrapf(err, "track %d: parse parameter sets", t.ID)
		}
		return cd, nil
	case container.CodecAAC:
		cd, err := aacparser.NewCodecDataFromMPEG4AudioConfigBytes(t.Config)
		if err != nil {
			return nil, errors.Wrapf(err, "track %d: parse audio config", t.ID)
		}
		return cd, nil
	}
	return nil, errors.Wrapf(container.ErrCodecUnsupported, "track %d: %s", t.ID, t.Desc.Codec)
}

// Tag returns the RFC 6381 codec string of a configured track.
func Tag(t *container.Track) (string, error) {
	if t.Desc.Codec == container.CodecH265 {
		if !t.Configured() {
			return "", errors.Wrapf(container.ErrNotConfigured, "track %d", t.ID)
		}
		return "hvc1", nil
	}
	cd, err := CodecData(t)
	if err != nil {
		return "", err
	}
	switch cd := cd.(type) {
	case h264parser.CodecData:
		return fmt.Sprintf("avc1.%02x%02x%02x",
			cd.RecordInfo.AVCProfileIndication,
			cd.RecordInfo.ProfileCompatibility,
			cd.RecordInfo.AVCLevelIndication), nil
	case aacparser.CodecData:
		return fmt.Sprintf("mp4a.40.%d", cd.Config.ObjectType), nil
	}
	return "", errors.Errorf("codec type=%v is not supported", cd.Type())
}

// Tags returns the codec strings of every configured track in id order.
func Tags(tracks []*container.Track) []string {
	var tags []string
	for _, t := range tracks {
		if tag, err := Tag(t); err == nil {
			tags = append(tags, tag)
		}
	}
	return tags
}
