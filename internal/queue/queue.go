// Package queue is the in-process task queue behind job dispatch. Delivery is
// at-least-once; handlers must tolerate duplicate execution.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Handler processes one task payload. A returned error is logged; the queue
// does not retry.
type Handler func(ctx context.Context, payload []byte) error

// ErrClosed is returned by Enqueue after Shutdown has begun.
var ErrClosed = errors.New("queue closed")

type task struct {
	name    string
	payload []byte
}

// Queue runs registered handlers on a fixed pool of worker goroutines.
type Queue struct {
	log     *slog.Logger
	tasks   chan task
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	handler map[string]Handler

	// baseCtx is passed to handlers; it outlives the enqueuing request so a
	// dispatched job is not cancelled when the HTTP request returns.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New builds a queue with the given worker count and buffer size. Workers
// start immediately.
func New(workers, buffer int, log *slog.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		log:     log,
		tasks:   make(chan task, buffer),
		handler: make(map[string]Handler),
		baseCtx: ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Register binds a handler to a task name. Registering after workers have
// begun consuming is allowed; re-registering a name replaces the handler.
func (q *Queue) Register(name string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler[name] = h
}

// Enqueue submits a task and returns without waiting for execution. The
// payload is owned by the queue after this call.
func (q *Queue) Enqueue(name string, payload []byte) error {
	// The closed check and the send stay under one lock so Shutdown cannot
	// close the channel between them. The send is non-blocking, so holding the
	// mutex here never stalls on a full buffer.
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.tasks <- task{name: name, payload: payload}:
		return nil
	default:
		return fmt.Errorf("enqueue %s: buffer full", name)
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		q.mu.Lock()
		h, ok := q.handler[t.name]
		q.mu.Unlock()
		if !ok {
			q.log.Warn("no handler registered", "task", t.name)
			continue
		}
		if err := h(q.baseCtx, t.payload); err != nil {
			q.log.Error("task failed", "task", t.name, "error", err)
		}
	}
}

// Shutdown stops intake and waits for in-flight and buffered tasks to drain,
// or for ctx to expire. Handlers only see cancellation when ctx expires first.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}
