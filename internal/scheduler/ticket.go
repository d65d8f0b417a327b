// SPDX-License-Identifier: MIT

package scheduler

import (
	"context"
	"sync"

	"github.com/ManuGH/querygate/internal/slot"
)

// Ticket is a requester's handle on a submitted slot.
type Ticket struct {
	queryID string
	slot    *slot.Slot
	queue   *Queue

	done    chan struct{}
	once    sync.Once
	err     error
	release sync.Once
}

func newTicket(q *Queue, queryID string, s *slot.Slot) *Ticket {
	return &Ticket{
		queryID: queryID,
		slot:    s,
		queue:   q,
		done:    make(chan struct{}),
	}
}

// Slot returns the underlying slot.
func (t *Ticket) Slot() *slot.Slot {
	return t.slot
}

// QueryID returns the requester-supplied query id.
func (t *Ticket) QueryID() string {
	return t.queryID
}

// Done is closed once the slot was allocated or abandoned.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the slot is allocated (nil), expired (ErrPendingTimeout),
// refused, or ctx ends. Cancellation releases the slot.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		t.Release()
		return ctx.Err()
	}
}

// Release returns the slot to the warehouse. It is safe to call more than
// once and from any goroutine.
func (t *Ticket) Release() {
	t.release.Do(func() {
		t.queue.release(t.slot.ID())
	})
}

// resolve records the outcome. Only the first outcome counts.
func (t *Ticket) resolve(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}
