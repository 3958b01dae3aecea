package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBufferFull is returned when an event is dropped because the buffer is
// at capacity.
var ErrBufferFull = errors.New("event buffer full")

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("publisher closed")

// Async hands events to a background goroutine so request latency does not
// depend on the broker. Close drains whatever is still buffered.
type Async struct {
	next    Publisher
	buf     chan Event
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

type AsyncOption func(*Async)

func WithBuffer(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.buf = make(chan Event, n)
		}
	}
}

// WithPublishTimeout bounds each downstream publish.
func WithPublishTimeout(d time.Duration) AsyncOption {
	return func(a *Async) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) AsyncOption {
	return func(a *Async) {
		a.logger = logger
	}
}

func NewAsync(next Publisher, opts ...AsyncOption) *Async {
	a := &Async{
		next:    next,
		buf:     make(chan Event, 256),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	go a.run()
	return a
}

// Publish enqueues e without blocking.
func (a *Async) Publish(_ context.Context, e Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case a.buf <- e:
		return nil
	default:
		return ErrBufferFull
	}
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.buf {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Publish(ctx, e); err != nil && a.logger != nil {
			a.logger.Warn("graph event not delivered",
				"type", e.Type,
				"case_id", e.CaseID,
				"error", err,
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits until the buffer is drained or ctx
// ends.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.buf)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
