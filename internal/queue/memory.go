package queue

import (
	"context"
	"sync"

	"github.com/forgesyte/forgesyte/internal/model"
)

// Memory is a bounded FIFO over a buffered channel. Pop blocks on an empty
// queue instead of polling.
type Memory struct {
	ch chan string

	mu     sync.Mutex
	closed bool
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 256
	}
	return &Memory{ch: make(chan string, capacity)}
}

func (m *Memory) Push(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// The send must happen under the same lock as the closed check: a Close
	// between the check and the send would close the channel and the send
	// would panic. The send is non-blocking, so holding the lock is cheap.
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return model.ErrQueueFull
	}
	select {
	case m.ch <- jobID:
		return nil
	default:
		return model.ErrQueueFull
	}
}

func (m *Memory) Pop(ctx context.Context) (string, error) {
	select {
	case id, ok := <-m.ch:
		if !ok {
			return "", context.Canceled
		}
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.ch)
	}
	return nil
}
