package inproc_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fulfillment/internal/adapters/out/inproc"
	"fulfillment/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHub() *inproc.Hub {
	return inproc.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHub_ResolveWakesAwait(t *testing.T) {
	ctx := t.Context()
	hub := newHub()

	handle, err := hub.Park(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", handle)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = hub.Resolve(ctx, handle, ports.Outcome{Actor: "chef"})
	}()

	outcome, err := hub.Await(ctx, handle)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "chef", outcome.Actor)
	assert.Zero(t, hub.Parked())
}

func TestHub_FailCarriesKind(t *testing.T) {
	ctx := t.Context()
	hub := newHub()

	handle, err := hub.Park(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	require.NoError(t, hub.Fail(ctx, handle, ports.FailureTokenExpired, "deadline passed"))

	outcome, err := hub.Await(ctx, handle)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, ports.FailureTokenExpired, outcome.FailureKind)
}

func TestHub_ResolvesAtMostOnce(t *testing.T) {
	ctx := t.Context()
	hub := newHub()
	handle, _ := hub.Park(ctx, "tok-1")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if hub.Resolve(ctx, handle, ports.Outcome{}) == nil {
				wins.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			if hub.Fail(ctx, handle, ports.FailureTokenExpired, "") == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.ErrorIs(t, hub.Heartbeat(ctx, handle), ports.ErrContinuationGone)
}

func TestHub_UnknownHandleIsGone(t *testing.T) {
	ctx := t.Context()
	hub := newHub()

	assert.ErrorIs(t, hub.Resolve(ctx, "nope", ports.Outcome{}), ports.ErrContinuationGone)
	assert.ErrorIs(t, hub.Heartbeat(ctx, "nope"), ports.ErrContinuationGone)
	_, err := hub.Await(ctx, "nope")
	assert.ErrorIs(t, err, ports.ErrContinuationGone)
}

func TestHub_AbandonedAwaitForgetsHandle(t *testing.T) {
	hub := newHub()
	handle, _ := hub.Park(t.Context(), "tok-1")

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, err := hub.Await(ctx, handle)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.ErrorIs(t, hub.Resolve(t.Context(), handle, ports.Outcome{}), ports.ErrContinuationGone)
}

func TestHub_HeartbeatCounts(t *testing.T) {
	ctx := t.Context()
	hub := newHub()
	handle, _ := hub.Park(ctx, "tok-1")

	require.NoError(t, hub.Heartbeat(ctx, handle))
	require.NoError(t, hub.Heartbeat(ctx, handle))
	assert.Equal(t, 2, hub.Heartbeats(handle))

	_, err := hub.Park(ctx, "tok-1")
	assert.Error(t, err)
}
