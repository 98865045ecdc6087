// Package command carries network-originated commands (HTTP, MQTT, cron)
// to the poll loop, which is the only goroutine allowed to touch the core.
package command

import (
	"context"
	"errors"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// ErrFull is returned by TrySubmit when the queue has no room.
var ErrFull = errors.New("command queue full")

// DefaultCapacity is enough for a burst of web requests between two ticks.
const DefaultCapacity = 32

type request struct {
	cmd  logic.Command
	done chan []logic.Event
}

// Queue is a bounded FIFO of commands.
type Queue struct {
	ch chan request
}

// NewQueue creates a queue holding up to capacity pending commands.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{ch: make(chan request, capacity)}
}

// Submit enqueues cmd and waits until the loop has applied it. It returns
// the events the command produced, or the context error if ctx ends first.
func (q *Queue) Submit(ctx context.Context, cmd logic.Command) ([]logic.Event, error) {
	req := request{cmd: cmd, done: make(chan []logic.Event, 1)}
	select {
	case q.ch <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case events := <-req.done:
		return events, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TrySubmit enqueues cmd without waiting for it to be applied.
func (q *Queue) TrySubmit(cmd logic.Command) error {
	select {
	case q.ch <- request{cmd: cmd}:
		return nil
	default:
		return ErrFull
	}
}

// Drain applies every pending command in arrival order and returns all the
// events produced. It never blocks.
func (q *Queue) Drain(apply func(logic.Command) []logic.Event) []logic.Event {
	var all []logic.Event
	for {
		select {
		case req := <-q.ch:
			events := apply(req.cmd)
			all = append(all, events...)
			if req.done != nil {
				req.done <- events
			}
		default:
			return all
		}
	}
}

// Len returns the number of pending commands.
func (q *Queue) Len() int {
	return len(q.ch)
}
