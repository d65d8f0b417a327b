// SPDX-License-Identifier: MIT

// Package scheduler drives per-warehouse admission. Each Queue runs one
// goroutine that is the single writer of its warehouse's slot tracker;
// requesters interact with it through Submit and the returned Ticket.
package scheduler

import "errors"

var (
	// ErrQueueFull is returned by Submit when the warehouse's pending queue is at its limit.
	ErrQueueFull = errors.New("query queue is full")
	// ErrPendingTimeout is returned by Ticket.Wait when the slot expired while pending.
	ErrPendingTimeout = errors.New("pending timeout exceeded")
	// ErrAllocationFailed is returned by Ticket.Wait when an allocation listener
	// refused the slot; the slot has been released.
	ErrAllocationFailed = errors.New("slot allocation failed")
	// ErrReleased is returned by Ticket.Wait when the ticket was released
	// before its slot was allocated.
	ErrReleased = errors.New("slot released before allocation")
	// ErrQueueClosed is returned once the queue has stopped.
	ErrQueueClosed = errors.New("query queue closed")
)
