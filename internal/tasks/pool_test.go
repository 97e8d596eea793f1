package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facewatch/internal/apperr"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := NewPool(3, 10)

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit("count", func(ctx context.Context) {
			count.Add(1)
		}))
	}

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(10), count.Load())
}

func TestPool_QueueFull(t *testing.T) {
	p := NewPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit("block", func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	require.NoError(t, p.Submit("queued", func(ctx context.Context) {}))

	err := p.Submit("overflow", func(ctx context.Context) {})
	assert.ErrorIs(t, err, apperr.ErrQueueUnavailable)

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	p := NewPool(1, 1)
	require.NoError(t, p.Shutdown(context.Background()))

	err := p.Submit("late", func(ctx context.Context) {})
	assert.ErrorIs(t, err, apperr.ErrQueueUnavailable)

	// second shutdown is a no-op
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_RecoversPanics(t *testing.T) {
	p := NewPool(1, 4)

	var ran atomic.Bool
	require.NoError(t, p.Submit("boom", func(ctx context.Context) {
		panic("boom")
	}))
	require.NoError(t, p.Submit("after", func(ctx context.Context) {
		ran.Store(true)
	}))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, ran.Load())
}

func TestPool_ShutdownDeadline(t *testing.T) {
	p := NewPool(1, 1)
	started := make(chan struct{})
	cancelled := make(chan struct{})

	require.NoError(t, p.Submit("slow", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("running task was not cancelled")
	}
}
