// Package channel provides channel implementations used by the workflow engine.
package channel

import (
	"context"
	"sync/atomic"
)

// Unbounded is a single-consumer pipe whose sends never wait for the receiver.
// Values are buffered in a slice by a pump goroutine and delivered in send order.
type Unbounded[T any] struct {
	in  chan T
	out chan T

	sends    atomic.Int64
	receives atomic.Int64
	peak     atomic.Int64
}

// NewUnbounded starts the pump goroutine. It stops when Close has been called and
// the backlog is delivered, or when ctx is done (the backlog is then dropped).
func NewUnbounded[T any](ctx context.Context, initialCap int) *Unbounded[T] {
	if initialCap <= 0 {
		initialCap = 64
	}
	u := &Unbounded[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go u.pump(ctx, initialCap)
	return u
}

// Send enqueues v. It blocks only while the pump is appending, never on the reader.
// It returns ctx.Err() if the pipe was abandoned.
func (u *Unbounded[T]) Send(ctx context.Context, v T) error {
	select {
	case u.in <- v:
		u.sends.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Out returns the receive side. It is closed after Close once the backlog drains.
func (u *Unbounded[T]) Out() <-chan T {
	return u.out
}

// Close marks the end of input. Send must not be called afterwards.
func (u *Unbounded[T]) Close() {
	close(u.in)
}

func (u *Unbounded[T]) pump(ctx context.Context, initialCap int) {
	defer close(u.out)

	backlog := make([]T, 0, initialCap)
	in := u.in
	for in != nil || len(backlog) > 0 {
		var (
			out  chan T
			next T
		)
		if len(backlog) > 0 {
			out = u.out
			next = backlog[0]
		}

		select {
		case v, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			backlog = append(backlog, v)
			if n := int64(len(backlog)); n > u.peak.Load() {
				u.peak.Store(n)
			}
		case out <- next:
			var zero T
			backlog[0] = zero
			backlog = backlog[1:]
			u.receives.Add(1)
		case <-ctx.Done():
			return
		}
	}
}

// Stats returns pipe statistics.
func (u *Unbounded[T]) Stats() Stats {
	return Stats{
		Sends:    u.sends.Load(),
		Receives: u.receives.Load(),
		Peak:     u.peak.Load(),
	}
}

// Stats contains pipe statistics.
type Stats struct {
	Sends    int64 `json:"sends"`
	Receives int64 `json:"receives"`
	Peak     int64 `json:"peak"`
}
