package effects

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio"
	"github.com/Resonate-Protocol/resonate-playout/pkg/audio/decode"
)

func frames(pairs ...audio.Sample) []byte {
	b := make([]byte, len(pairs)*audio.SampleBytes)
	for i, s := range pairs {
		audio.PutSample(b[i*audio.SampleBytes:], s)
	}
	return b
}

func samples(b []byte) []audio.Sample {
	out := make([]audio.Sample, len(b)/audio.SampleBytes)
	for i := range out {
		out[i] = audio.ReadSample(b[i*audio.SampleBytes:])
	}
	return out
}

func TestMixWithNothingQueued(t *testing.T) {
	m := New(Config{})
	out := frames(1, 2, 3, 4)
	m.Mix(out, len(out))
	assert.Equal(t, []audio.Sample{1, 2, 3, 4}, samples(out))
}

func TestMixAddsQueuedFrames(t *testing.T) {
	m := New(Config{})
	require.NoError(t, m.Play(frames(10, -10)))
	assert.Equal(t, 8, m.Pending())

	out := frames(1, 2, 3, 4)
	m.Mix(out, len(out))
	assert.Equal(t, []audio.Sample{11, -8, 3, 4}, samples(out))
	assert.Equal(t, 0, m.Pending())
}

func TestMixSaturates(t *testing.T) {
	m := New(Config{})
	require.NoError(t, m.Play(frames(math.MaxInt32, math.MinInt32)))

	out := frames(100, -100)
	m.Mix(out, len(out))
	assert.Equal(t, []audio.Sample{math.MaxInt32, math.MinInt32}, samples(out))
}

func TestMixAppliesGain(t *testing.T) {
	m := New(Config{Gain: audio.FixedOne / 2})
	require.NoError(t, m.Play(frames(1000, -1000)))

	out := make([]byte, 8)
	m.Mix(out, len(out))
	assert.Equal(t, []audio.Sample{500, -500}, samples(out))

	m.SetGain(audio.FixedZero)
	assert.Equal(t, audio.FixedZero, m.Gain())
}

func TestMixHonoursLength(t *testing.T) {
	m := New(Config{})
	require.NoError(t, m.Play(frames(1, 1, 2, 2)))

	out := make([]byte, 16)
	m.Mix(out, 8)
	assert.Equal(t, []audio.Sample{1, 1, 0, 0}, samples(out))
	assert.Equal(t, 8, m.Pending(), "rest stays queued for the next period")
}

func TestMixInChunks(t *testing.T) {
	m := New(Config{ChunkBytes: 8})
	sound := frames(1, 2, 3, 4, 5, 6)
	require.NoError(t, m.Play(sound))

	out := make([]byte, len(sound))
	m.Mix(out, len(out))
	assert.Equal(t, []audio.Sample{1, 2, 3, 4, 5, 6}, samples(out))
}

func TestMixDoesNotAllocate(t *testing.T) {
	m := New(Config{})
	sound := make([]byte, 512)
	out := make([]byte, 512)

	allocs := testing.AllocsPerRun(50, func() {
		_ = m.Play(sound)
		m.Mix(out, len(out))
	})
	assert.Zero(t, allocs)
}

func TestPlayDropsWhatDoesNotFit(t *testing.T) {
	m := New(Config{QueueBytes: 16})
	require.NoError(t, m.Play(make([]byte, 12)), "trimmed to one frame")
	assert.Equal(t, 8, m.Pending())

	err := m.Play(make([]byte, 16))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.True(t, errors.IsCategory(err, errors.CategoryBuffer))
	assert.Equal(t, uint64(1), m.Dropped())
	assert.Equal(t, 8, m.Pending(), "nothing partially queued")

	m.Clear()
	assert.Equal(t, 0, m.Pending())
}

func TestLoadDuplicatesMono(t *testing.T) {
	tone := decode.NewTone(decode.ToneConfig{SampleRate: 8000, Channels: 1, Duration: 10 * time.Millisecond})
	b, err := Load(tone)
	require.NoError(t, err)
	require.Len(t, b, 80*audio.FrameBytes)

	s := samples(b)
	for i := 0; i < len(s); i += 2 {
		assert.Equal(t, s[i], s[i+1])
	}
}

func TestPlaySourceQueuesEverything(t *testing.T) {
	m := New(Config{})
	tone := decode.NewTone(decode.ToneConfig{SampleRate: 8000, Duration: 25 * time.Millisecond})
	require.NoError(t, m.PlaySource(tone))
	assert.Equal(t, 200*audio.FrameBytes, m.Pending())
}

func TestPlayFileMissing(t *testing.T) {
	m := New(Config{})
	err := m.PlayFile("/nonexistent/chime.wav")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
}
