package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnqueueRunsHandler(t *testing.T) {
	q := New(2, 8, discard())
	defer q.Shutdown(context.Background())

	done := make(chan []byte, 1)
	q.Register("proposal.generate", func(_ context.Context, payload []byte) error {
		done <- payload
		return nil
	})

	require.NoError(t, q.Enqueue("proposal.generate", []byte(`{"job":"1"}`)))
	select {
	case got := <-done:
		assert.Equal(t, `{"job":"1"}`, string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not run")
	}
}

func TestEnqueueReturnsBeforeExecution(t *testing.T) {
	q := New(1, 8, discard())
	defer q.Shutdown(context.Background())

	release := make(chan struct{})
	q.Register("slow", func(_ context.Context, _ []byte) error {
		<-release
		return nil
	})

	start := time.Now()
	require.NoError(t, q.Enqueue("slow", nil))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	close(release)
}

func TestHandlerErrorDoesNotStopWorker(t *testing.T) {
	q := New(1, 8, discard())
	defer q.Shutdown(context.Background())

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{})
	q.Register("step", func(_ context.Context, payload []byte) error {
		mu.Lock()
		seen = append(seen, string(payload))
		last := len(seen)
		mu.Unlock()
		if last == 2 {
			close(done)
		}
		if string(payload) == "bad" {
			return errors.New("boom")
		}
		return nil
	})

	require.NoError(t, q.Enqueue("step", []byte("bad")))
	require.NoError(t, q.Enqueue("step", []byte("good")))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second task did not run")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"bad", "good"}, seen)
}

func TestEnqueueAfterShutdown(t *testing.T) {
	q := New(1, 1, discard())
	require.NoError(t, q.Shutdown(context.Background()))
	assert.ErrorIs(t, q.Enqueue("x", nil), ErrClosed)
}

func TestShutdownDrainsBufferedTasks(t *testing.T) {
	q := New(1, 8, discard())

	var mu sync.Mutex
	var count int
	q.Register("n", func(_ context.Context, _ []byte) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue("n", nil))
	}

	require.NoError(t, q.Shutdown(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, count)
}

func TestShutdownDeadlineCancelsHandlers(t *testing.T) {
	q := New(1, 1, discard())

	started := make(chan struct{})
	q.Register("stuck", func(ctx context.Context, _ []byte) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, q.Enqueue("stuck", nil))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnqueueRacingShutdownDoesNotPanic(t *testing.T) {
	for i := 0; i < 50; i++ {
		q := New(2, 4, discard())
		q.Register("n", func(_ context.Context, _ []byte) error { return nil })

		var wg sync.WaitGroup
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					err := q.Enqueue("n", nil)
					if errors.Is(err, ErrClosed) {
						return
					}
				}
			}()
		}
		require.NoError(t, q.Shutdown(context.Background()))
		wg.Wait()
		assert.ErrorIs(t, q.Enqueue("n", nil), ErrClosed)
	}
}

func TestUnregisteredTaskIsDropped(t *testing.T) {
	q := New(1, 1, discard())
	require.NoError(t, q.Enqueue("unknown", nil))
	require.NoError(t, q.Shutdown(context.Background()))
}
