package queue

import (
	"context"
	"sync"
)

// Memory is a channel-backed Transport for tests and single-process use.
type Memory struct {
	requests  chan *RunRequest
	completed chan *RunCompleted

	closeOnce sync.Once
	closed    chan struct{}
}

// NewMemory creates an in-memory transport with the given buffer size.
func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = 16
	}
	return &Memory{
		requests:  make(chan *RunRequest, buffer),
		completed: make(chan *RunCompleted, buffer),
		closed:    make(chan struct{}),
	}
}

// Enqueue submits a run request for processing.
func (m *Memory) Enqueue(ctx context.Context, req *RunRequest) error {
	select {
	case <-m.closed:
		return ErrClosed
	default:
	}
	select {
	case m.requests <- req:
		return nil
	case <-m.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a run request is available or ctx is done.
func (m *Memory) Receive(ctx context.Context) (*RunRequest, error) {
	select {
	case req := <-m.requests:
		return req, nil
	case <-m.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Publish announces a completed run.
func (m *Memory) Publish(ctx context.Context, completed *RunCompleted) error {
	select {
	case <-m.closed:
		return ErrClosed
	default:
	}
	select {
	case m.completed <- completed:
		return nil
	case <-m.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Completed returns the channel of published completions.
func (m *Memory) Completed() <-chan *RunCompleted {
	return m.completed
}

// Close shuts the transport down. Pending Receive and Publish calls return
// ErrClosed.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}
