// Package eventchan provides an unbounded multi-producer single-consumer queue.
//
// Producers hold reference counted *Sender handles that never block. The single consumer holds
// the *Receiver. Values from one producer are delivered in the order they were sent. Once the
// receiver is closed every Send fails with ErrCodeChannelClosed, and once every sender handle is
// closed the receiver drains the remaining values and then reports end of stream.
package eventchan

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/rxtech-lab/argo-connector/pkg/errors"
)

// compactThreshold is the number of consumed slots after which the backing slice is compacted.
const compactThreshold = 1024

type core[T any] struct {
	mu             sync.Mutex
	queue          []T
	head           int
	senders        int
	receiverClosed bool
	// notify holds at most one pending wake-up for the consumer.
	notify chan struct{}
}

// Sender is a producer handle. It is safe for concurrent use and can be cloned freely.
type Sender[T any] struct {
	core   *core[T]
	closed atomic.Bool
}

// Receiver is the single consumer handle.
type Receiver[T any] struct {
	core *core[T]
}

// New creates a channel and returns its first sender handle and the receiver.
func New[T any]() (*Sender[T], *Receiver[T]) {
	c := &core[T]{
		mu:             sync.Mutex{},
		queue:          make([]T, 0, 64),
		head:           0,
		senders:        1,
		receiverClosed: false,
		notify:         make(chan struct{}, 1),
	}

	return &Sender[T]{core: c, closed: atomic.Bool{}}, &Receiver[T]{core: c}
}

// Send enqueues v without blocking.
func (s *Sender[T]) Send(v T) error {
	if s.closed.Load() {
		return errors.New(errors.ErrCodeChannelClosed, "sender handle is closed")
	}

	c := s.core
	c.mu.Lock()
	if c.receiverClosed {
		c.mu.Unlock()

		return errors.New(errors.ErrCodeChannelClosed, "event receiver has been dropped")
	}

	c.queue = append(c.queue, v)
	c.mu.Unlock()

	c.wake()

	return nil
}

// Clone returns a new independent handle to the same channel.
// Cloning a closed handle returns a handle that is already closed.
func (s *Sender[T]) Clone() *Sender[T] {
	clone := &Sender[T]{core: s.core, closed: atomic.Bool{}}
	if s.closed.Load() {
		clone.closed.Store(true)

		return clone
	}

	s.core.mu.Lock()
	s.core.senders++
	s.core.mu.Unlock()

	return clone
}

// Close releases this handle. It is idempotent.
func (s *Sender[T]) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	c := s.core
	c.mu.Lock()
	c.senders--
	last := c.senders == 0
	c.mu.Unlock()

	if last {
		c.wake()
	}
}

// IsClosed returns true when this handle was closed or the receiver was dropped.
func (s *Sender[T]) IsClosed() bool {
	if s.closed.Load() {
		return true
	}

	s.core.mu.Lock()
	defer s.core.mu.Unlock()

	return s.core.receiverClosed
}

func (c *core[T]) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// pop removes the oldest value. done is true when no value will ever arrive again.
func (c *core[T]) pop() (value T, ok bool, done bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.receiverClosed {
		return value, false, true
	}

	if c.head < len(c.queue) {
		value = c.queue[c.head]

		var zero T
		c.queue[c.head] = zero
		c.head++

		if c.head >= compactThreshold && c.head*2 >= len(c.queue) {
			remaining := copy(c.queue, c.queue[c.head:])
			c.queue = c.queue[:remaining]
			c.head = 0
		}

		return value, true, false
	}

	return value, false, c.senders == 0
}

// Recv blocks until a value is available, every sender is closed (ErrCodeChannelClosed)
// or ctx is done.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	for {
		value, ok, done := r.core.pop()
		if ok {
			return value, nil
		}

		if done {
			return value, errors.New(errors.ErrCodeChannelClosed, "event channel is closed")
		}

		select {
		case <-r.core.notify:
		case <-ctx.Done():
			return value, ctx.Err()
		}
	}
}

// TryRecv returns the oldest value without blocking.
func (r *Receiver[T]) TryRecv() (T, bool) {
	value, ok, _ := r.core.pop()

	return value, ok
}

// Len returns the number of queued values.
func (r *Receiver[T]) Len() int {
	r.core.mu.Lock()
	defer r.core.mu.Unlock()

	return len(r.core.queue) - r.core.head
}

// All returns an iterator over received values. It stops at end of stream or when ctx is done.
func (r *Receiver[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			value, err := r.Recv(ctx)
			if err != nil {
				return
			}

			if !yield(value) {
				return
			}
		}
	}
}

// Close drops the receiver. Queued values are discarded and later sends fail.
func (r *Receiver[T]) Close() {
	c := r.core
	c.mu.Lock()
	c.receiverClosed = true
	c.queue = nil
	c.head = 0
	c.mu.Unlock()

	c.wake()
}
