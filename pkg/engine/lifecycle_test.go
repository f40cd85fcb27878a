package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
)

func TestReopenHappensOnceAfterFinished(t *testing.T) {
	e, sink, first := startedEngine(t, Config{BufferBytes: 4096})
	require.Equal(t, []int{44100}, sink.rates())

	for i := 0; i < 3; i++ {
		e.SetDesiredRate(48000)
	}
	assert.Equal(t, 0, e.ProcessRequests(), "nothing posted until the session ends")

	first.finish()
	first.finish() // second report finds the channel occupied
	assert.Equal(t, uint64(1), e.Stats().DroppedRequests)

	assert.Equal(t, 1, e.ProcessRequests())
	assert.Equal(t, []int{44100, 48000}, sink.rates())
	assert.True(t, first.isClosed())
	assert.Equal(t, 48000, e.StreamRate())
	assert.Equal(t, 0, e.State().DesiredRate())

	// a late report from the replaced session is ignored
	first.finish()
	assert.Equal(t, 0, e.ProcessRequests())

	// the new session ending with nothing pending does not reopen
	sink.last().finish()
	assert.Equal(t, 0, e.ProcessRequests())
	assert.Equal(t, 2, sink.opens())
	assert.Equal(t, uint64(2), e.Stats().Reopens)
}

func TestStopThenStartUsesDefaultRate(t *testing.T) {
	e, sink, stream := startedEngine(t, Config{BufferBytes: 4096})

	e.SetDesiredRate(48000)
	stream.finish()
	require.Equal(t, 1, e.ProcessRequests())
	require.Equal(t, 48000, e.StreamRate())

	e.EnqueueSamples(makeFrames(64, 1))
	require.NoError(t, e.Stop())
	assert.Equal(t, 0, e.BufferedBytes())
	assert.False(t, e.Status().Has(StatusRunning))
	assert.Equal(t, 44100, e.StreamRate())

	require.NoError(t, e.Start())
	assert.Equal(t, []int{44100, 48000, 44100, 44100}, sink.rates())
	assert.Equal(t, 44100, e.StreamRate())

	// the first period after start runs at the default rate
	e.RequestSilence(10)
	sink.last().render(441)
	assert.Equal(t, 0, e.State().PendingSilence())
}

func TestDesiredRateIsClamped(t *testing.T) {
	e, sink, stream := startedEngine(t, Config{BufferBytes: 4096})

	e.SetDesiredRate(96000)
	assert.Equal(t, 48000, e.State().DesiredRate())

	e.MarkStartPoint(192000)
	e.EnqueueSamples(makeFrames(8, 1))
	stream.render(8)
	assert.Equal(t, 48000, e.State().TrackRate())

	e.ProcessRequests()
	assert.Equal(t, []int{44100, 48000}, sink.rates())
}

func TestOpenFailureKeepsRatePending(t *testing.T) {
	e, sink := newTestEngine(t, Config{BufferBytes: 4096})
	sink.failOpen = 1

	err := e.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, errFakeOpen)
	assert.True(t, errors.IsCategory(err, errors.CategoryAudio))
	assert.Equal(t, 0, e.StreamRate())
	assert.Equal(t, 44100, e.State().DesiredRate())
	assert.Equal(t, uint64(1), e.Stats().OpenFailures)
	assert.False(t, e.manager.hasStream())

	// render without a session is harmless
	out := make([]byte, 64)
	e.renderer.Render(out, 8)

	require.NoError(t, e.Start())
	assert.Equal(t, []int{44100}, sink.rates())
	assert.Equal(t, 44100, e.StreamRate())
}

func TestOpenFailurePreservesNewerRate(t *testing.T) {
	e, sink, stream := startedEngine(t, Config{BufferBytes: 4096})

	e.SetDesiredRate(48000)
	stream.finish()
	sink.failOpen = 1
	require.Equal(t, 1, e.ProcessRequests())

	assert.Equal(t, 48000, e.State().DesiredRate(), "failed rate retried later")
	assert.Equal(t, 0, e.StreamRate())

	require.NoError(t, e.Start())
	assert.Equal(t, 48000, e.StreamRate())
}

func TestStartFailureClosesSession(t *testing.T) {
	e, sink := newTestEngine(t, Config{BufferBytes: 4096})
	sink.failStart = true

	err := e.Start()
	require.ErrorIs(t, err, errFakeOpen)
	require.Equal(t, 1, sink.opens())
	assert.True(t, sink.last().isClosed())
	assert.Equal(t, 0, e.StreamRate())
}

func TestFinishedWithoutPendingRateOnlyLogs(t *testing.T) {
	e, sink, stream := startedEngine(t, Config{BufferBytes: 4096})

	stream.finish()
	assert.Equal(t, 0, e.requests.Pending())
	assert.Equal(t, 1, sink.opens())
}

func TestCloseInvalidatesSession(t *testing.T) {
	e, sink, stream := startedEngine(t, Config{BufferBytes: 4096})

	require.NoError(t, e.Close())
	assert.True(t, stream.isClosed())
	assert.Equal(t, 0, e.StreamRate())

	e.SetDesiredRate(48000)
	stream.finish()
	assert.Equal(t, 0, e.ProcessRequests())
	assert.Equal(t, 1, sink.opens())
}

func TestRunServicesRequests(t *testing.T) {
	e, sink, stream := startedEngine(t, Config{BufferBytes: 4096})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	e.SetDesiredRate(48000)
	stream.finish()

	require.Eventually(t, func() bool {
		return e.StreamRate() == 48000
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{44100, 48000}, sink.rates())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
