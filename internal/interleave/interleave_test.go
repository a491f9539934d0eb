package interleave

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleoag/h26xmux/aacenc"
	"github.com/cleoag/h26xmux/internal/track"
)

type event struct {
	audio    bool
	data     []byte
	duration uint32
}

type recorder struct {
	events []event
	fail   error
}

func (r *recorder) PutVideo(unit []byte, duration uint32) error {
	if r.fail != nil {
		return r.fail
	}
	r.events = append(r.events, event{data: append([]byte(nil), unit...), duration: duration})
	return nil
}

func (r *recorder) PutAudio(frame []byte, duration uint32) error {
	if r.fail != nil {
		return r.fail
	}
	r.events = append(r.events, event{audio: true, data: append([]byte(nil), frame...), duration: duration})
	return nil
}

func (r *recorder) count(audio bool) int {
	var n int
	for _, e := range r.events {
		if e.audio == audio {
			n++
		}
	}
	return n
}

type fakeEncoder struct {
	calls  int
	failOn int
	inputs [][]int16
}

func (f *fakeEncoder) Info() (aacenc.Info, error) {
	return aacenc.Info{Config: []byte{0x12, 0x10}}, nil
}

func (f *fakeEncoder) Encode(in []int16, out []byte) (int, error) {
	f.calls++
	if f.calls == f.failOn {
		return 0, errors.New("encoder broke")
	}
	f.inputs = append(f.inputs, append([]int16(nil), in...))
	return copy(out, []byte{0x21, 0x10, 0x04, byte(f.calls)}), nil
}

func (f *fakeEncoder) Close() error { return nil }

// three units of 10, 12 and 8 bytes
func threeUnits() []byte {
	var b []byte
	b = append(b, 0, 0, 0, 1, 0x65, 1, 2, 3, 4, 5)
	b = append(b, 0, 0, 0, 1, 0x41, 1, 2, 3, 4, 5, 6, 7)
	b = append(b, 0, 0, 1, 0x41, 1, 2, 3, 4)
	return b
}

func videoTrack(t *testing.T, fps int) track.Video {
	v, err := track.NewVideo(640, 480, false, "")
	require.NoError(t, err)
	v, err = v.WithFPS(fps)
	require.NoError(t, err)
	return v
}

func audioTrack(t *testing.T, rate, ch int) *track.Audio {
	a, err := track.NewAudio(128000, rate, ch)
	require.NoError(t, err)
	return &a
}

func quietLogger() *logrus.Logger {
	l, _ := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return l
}

func TestVideoOnly(t *testing.T) {
	var sink recorder
	e := &Engine{Video: videoTrack(t, 60), Sink: &sink, Log: quietLogger()}
	rep, err := e.Run(threeUnits(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.VideoSamples)
	assert.Equal(t, 0, rep.Resyncs)
	assert.EqualValues(t, 4500, rep.Clock.VideoTicks)
	require.Len(t, sink.events, 3)
	for i, size := range []int{10, 12, 8} {
		assert.Len(t, sink.events[i].data, size)
		assert.EqualValues(t, 1500, sink.events[i].duration)
	}
}

func TestStrayLeadingZeros(t *testing.T) {
	var sink recorder
	e := &Engine{Video: videoTrack(t, 60), Sink: &sink, Log: quietLogger()}
	rep, err := e.Run(append([]byte{0, 0}, threeUnits()...), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Resyncs)
	assert.Equal(t, 3, rep.VideoSamples)
	assert.EqualValues(t, 4500, rep.Clock.VideoTicks)
}

func TestVideoTicksMonotonic(t *testing.T) {
	unit := []byte{0, 0, 0, 1, 0x41, 9, 9, 9}
	for _, fps := range []int{1, 7, 24, 25, 30, 60, 120, 1000} {
		for _, k := range []int{0, 1, 5, 17} {
			var buf []byte
			for i := 0; i < k; i++ {
				buf = append(buf, unit...)
			}
			var sink recorder
			e := &Engine{Video: videoTrack(t, fps), Sink: &sink, Log: quietLogger()}
			rep, err := e.Run(buf, nil)
			require.NoError(t, err)
			assert.Equal(t, uint64(k)*uint64(90000/fps), rep.Clock.VideoTicks, "fps %d k %d", fps, k)
			assert.Equal(t, k, rep.VideoSamples)
		}
	}
}

func TestAudioDrain(t *testing.T) {
	var sink recorder
	enc := &fakeEncoder{}
	pcm := make([]byte, 3*2048*2)
	e := &Engine{
		Video:   videoTrack(t, 30),
		Audio:   audioTrack(t, 44100, 2),
		Encoder: enc,
		Sink:    &sink,
		Log:     quietLogger(),
	}
	rep, err := e.Run([]byte{0, 0, 0, 1, 0x65, 1, 2, 3}, pcm)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.AudioSamples)
	assert.EqualValues(t, 3000, rep.Clock.VideoTicks)
	assert.EqualValues(t, 2048, rep.Clock.AudioSamples)
	assert.EqualValues(t, 4179, rep.Clock.AudioTicks)
	assert.False(t, rep.AudioExhausted)
	assert.NoError(t, rep.AudioErr)

	require.Len(t, sink.events, 3)
	assert.False(t, sink.events[0].audio)
	for _, ev := range sink.events[1:] {
		assert.True(t, ev.audio)
		assert.EqualValues(t, 2089, ev.duration)
	}
	for _, in := range enc.inputs {
		assert.Len(t, in, 2048)
	}
}

func TestAudioDrainBound(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		fps := []int{24, 25, 30, 50, 60}[rng.Intn(5)]
		rate := []int{8000, 22050, 44100, 48000}[rng.Intn(4)]
		ch := 1 + rng.Intn(2)
		units := 1 + rng.Intn(30)

		var video []byte
		for j := 0; j < units; j++ {
			video = append(video, 0, 0, 0, 1, 0x41, byte(j), 7, 7)
		}
		a := audioTrack(t, rate, ch)
		var sink recorder
		e := &Engine{Video: videoTrack(t, fps), Audio: a, Encoder: &fakeEncoder{}, Sink: &sink, Log: quietLogger()}

		// enough PCM for two seconds more than the video needs
		pcm := make([]byte, (units/fps+2)*rate*ch*2+a.FrameLength*2)
		rep, err := e.Run(video, pcm)
		require.NoError(t, err)
		require.False(t, rep.AudioExhausted)
		var frames, videoTicks uint64
		for _, ev := range sink.events {
			if ev.audio {
				frames++
				continue
			}
			// audio caught up with every earlier video sample
			assert.GreaterOrEqual(t, frames*1024*90000/uint64(rate), videoTicks)
			videoTicks += uint64(ev.duration)
		}
		assert.Equal(t, rep.Clock.VideoTicks, videoTicks)
		assert.GreaterOrEqual(t, rep.Clock.AudioTicks, rep.Clock.VideoTicks)
		assert.Equal(t, uint64(rep.AudioSamples)*1024, rep.Clock.AudioSamples)
	}
}

func TestEncodeFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	var sink recorder
	enc := &fakeEncoder{failOn: 2}
	e := &Engine{
		Video:   videoTrack(t, 30),
		Audio:   audioTrack(t, 44100, 2),
		Encoder: enc,
		Sink:    &sink,
		Log:     logger,
	}
	video := append([]byte{0, 0, 0, 1, 0x65, 1, 2, 3}, 0, 0, 0, 1, 0x41, 4, 5, 6)
	rep, err := e.Run(video, make([]byte, 10*2048*2))
	require.NoError(t, err)

	assert.Equal(t, 1, rep.AudioSamples)
	assert.Equal(t, 2, rep.VideoSamples)
	assert.True(t, errors.Is(rep.AudioErr, ErrAudioEncode))
	assert.Equal(t, 2, enc.calls)
	assert.Equal(t, 1, sink.count(true))
	assert.Equal(t, 2, sink.count(false))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestPCMExhaustion(t *testing.T) {
	var sink recorder
	enc := &fakeEncoder{}
	// one and a half stereo frames
	pcm := make([]byte, 3072*2)
	for i := range pcm {
		pcm[i] = 0x11
	}
	e := &Engine{
		Video:   videoTrack(t, 10),
		Audio:   audioTrack(t, 44100, 2),
		Encoder: enc,
		Sink:    &sink,
		Log:     quietLogger(),
	}
	video := append([]byte{0, 0, 0, 1, 0x65, 1, 2, 3}, 0, 0, 0, 1, 0x41, 4, 5, 6)
	rep, err := e.Run(video, pcm)
	require.NoError(t, err)

	assert.True(t, rep.AudioExhausted)
	assert.NoError(t, rep.AudioErr)
	assert.Equal(t, 2, rep.AudioSamples)
	assert.Equal(t, 2, rep.VideoSamples)
	require.Len(t, enc.inputs, 2)
	// the partial frame is padded with silence
	assert.Equal(t, int16(0x1111), enc.inputs[1][1023])
	assert.Equal(t, int16(0), enc.inputs[1][1024])
	assert.Equal(t, int16(0), enc.inputs[1][2047])
}

func TestStripsADTS(t *testing.T) {
	var sink recorder
	au := []byte{0x21, 0x10, 0x04, 0x60}
	enc := &adtsEncoder{frame: append([]byte{0xff, 0xf1, 0x50, 0x80, 0x01, 0x7f, 0xfc}, au...)}
	e := &Engine{
		Video:   videoTrack(t, 60),
		Audio:   audioTrack(t, 44100, 2),
		Encoder: enc,
		Sink:    &sink,
		Log:     quietLogger(),
	}
	_, err := e.Run([]byte{0, 0, 0, 1, 0x65, 1, 2, 3}, make([]byte, 4096*2))
	require.NoError(t, err)
	require.Len(t, sink.events, 2)
	assert.Equal(t, au, sink.events[1].data)
}

type adtsEncoder struct {
	fakeEncoder
	frame []byte
}

func (a *adtsEncoder) Encode(in []int16, out []byte) (int, error) {
	return copy(out, a.frame), nil
}

func TestSinkFailure(t *testing.T) {
	boom := errors.New("short write")
	sink := &recorder{fail: boom}
	e := &Engine{Video: videoTrack(t, 60), Sink: sink, Log: quietLogger()}
	rep, err := e.Run(threeUnits(), nil)
	assert.Equal(t, boom, errors.Cause(err))
	assert.Equal(t, 0, rep.VideoSamples)
}

func TestInvalidFrameRate(t *testing.T) {
	e := &Engine{Sink: &recorder{}}
	_, err := e.Run(threeUnits(), nil)
	assert.Error(t, err)
}
