package pipe

import (
	"context"
	"sync"

	"github.com/smallnest/chanx"
)

const queueCapacity = 16

// queue is an unbounded FIFO. The listener loop is its only producer; any
// goroutine may consume. Closing lets consumers drain what is buffered
// before they observe closure.
type queue[T any] struct {
	ch   *chanx.UnboundedChan[T]
	once sync.Once
}

func newQueue[T any](capacity int) *queue[T] {
	return &queue[T]{ch: chanx.NewUnboundedChan[T](context.Background(), capacity)}
}

// push must not be called after close.
func (q *queue[T]) push(v T) {
	q.ch.In <- v
}

func (q *queue[T]) close() {
	q.once.Do(func() {
		close(q.ch.In)
	})
}

func (q *queue[T]) tryPop() (T, bool) {
	select {
	case v, ok := <-q.ch.Out:
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

func (q *queue[T]) pop(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-q.ch.Out:
		if !ok {
			return zero, ErrClientClosed
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (q *queue[T]) out() <-chan T {
	return q.ch.Out
}

func (q *queue[T]) len() int {
	return q.ch.Len()
}
