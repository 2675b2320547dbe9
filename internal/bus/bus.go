package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a consumer that has been closed
var ErrClosed = errors.New("bus: closed")

// Message is one keyed record on the bus
type Message struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// Producer publishes keyed messages
type Producer interface {
	Produce(ctx context.Context, key string, value []byte) error
}

// Consumer yields messages until ctx is cancelled or it is closed
type Consumer interface {
	Consume(ctx context.Context) (Message, error)
	Close() error
}

// ProducerFunc adapts a function to Producer
type ProducerFunc func(ctx context.Context, key string, value []byte) error

func (f ProducerFunc) Produce(ctx context.Context, key string, value []byte) error {
	return f(ctx, key, value)
}

// Fanout produces every message to all producers and joins their errors
type Fanout []Producer

func (f Fanout) Produce(ctx context.Context, key string, value []byte) error {
	var errs []error
	for _, p := range f {
		if err := p.Produce(ctx, key, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Queue is an in-process consumer fed through Push
type Queue struct {
	ch        chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue buffering up to size messages
func NewQueue(size int) *Queue {
	return &Queue{
		ch:   make(chan Message, size),
		done: make(chan struct{}),
	}
}

// Push enqueues a message, blocking while the buffer is full
func (q *Queue) Push(ctx context.Context, msg Message) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.ch <- msg:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Consume(ctx context.Context) (Message, error) {
	select {
	case msg := <-q.ch:
		return msg, nil
	case <-q.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (q *Queue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
