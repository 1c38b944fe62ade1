package handoff

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/oleiade/lane/v2"
)

// ErrClosed is returned once the consumer has torn the channel down.
var ErrClosed = errors.New("hand-off channel closed")

// Channel is an unbounded single-producer/single-consumer FIFO.
// Push never waits for the consumer; the consumer can block on Recv or poll with Drain.
// Close is a one-way signal from the consumer back to the producer.
type Channel[T any] struct {
	queue     *lane.Queue[T]
	notify    chan struct{}
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

func New[T any]() *Channel[T] {
	return &Channel[T]{
		queue:  lane.NewQueue[T](),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends item to the queue. It returns ErrClosed when the consumer is gone.
func (c *Channel[T]) Push(item T) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.queue.Enqueue(item)

	select {
	case c.notify <- struct{}{}:
	default:
		// a wake-up is already pending
	}
	return nil
}

// Recv blocks until an item is available, the channel is closed or ctx is done.
func (c *Channel[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		if c.closed.Load() {
			return zero, ErrClosed
		}
		if item, ok := c.queue.Dequeue(); ok {
			return item, nil
		}

		select {
		case <-c.notify:
		case <-c.done:
			return zero, ErrClosed
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryRecv returns the oldest queued item without blocking.
func (c *Channel[T]) TryRecv() (T, bool) {
	if c.closed.Load() {
		var zero T
		return zero, false
	}
	return c.queue.Dequeue()
}

// Drain removes and returns everything currently queued, oldest first.
func (c *Channel[T]) Drain() []T {
	var items []T
	for {
		item, ok := c.TryRecv()
		if !ok {
			return items
		}
		items = append(items, item)
	}
}

func (c *Channel[T]) Len() int {
	return int(c.queue.Size())
}

// Close marks the consumer as gone. Subsequent pushes fail with ErrClosed.
func (c *Channel[T]) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
}

func (c *Channel[T]) Closed() bool {
	return c.closed.Load()
}
