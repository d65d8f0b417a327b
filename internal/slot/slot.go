// SPDX-License-Identifier: MIT

// Package slot defines the logical slot, the unit of admission tracked per warehouse.
package slot

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrInvalidUnits is returned when a slot asks for zero or negative capacity.
var ErrInvalidUnits = errors.New("slot: numPhysicalUnits must be positive")

// State is the lifecycle phase of a slot.
type State int32

const (
	StateCreated State = iota
	StateRequiring
	StateAllocated
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRequiring:
		return "requiring"
	case StateAllocated:
		return "allocated"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Params describes a slot to be created.
type Params struct {
	// ID is generated when left zero.
	ID               ID
	WarehouseID      int64
	NumPhysicalUnits int
	StartTime        time.Time
	// PendingTimeout bounds how long the slot may stay pending before it is
	// reported as expired. Zero or negative means it expires immediately.
	PendingTimeout time.Duration

	RequestorHost string
	GroupID       int64
}

// Slot is one admission request. Identity and sizing are immutable; the
// lifecycle fields are atomics so that status readers may inspect a slot while
// the owning tracker transitions it.
type Slot struct {
	id                 ID
	warehouseID        int64
	numPhysicalUnits   int
	startTime          time.Time
	expiredPendingTime time.Time
	requestorHost      string
	groupID            int64

	state       atomic.Int32
	requiredAt  atomic.Int64 // unix nanos
	allocatedAt atomic.Int64
	releasedAt  atomic.Int64
}

// New validates p and builds a slot in StateCreated.
func New(p Params) (*Slot, error) {
	if p.NumPhysicalUnits <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidUnits, p.NumPhysicalUnits)
	}
	id := p.ID
	if id.IsZero() {
		id = NewID()
	}
	start := p.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	return &Slot{
		id:                 id,
		warehouseID:        p.WarehouseID,
		numPhysicalUnits:   p.NumPhysicalUnits,
		startTime:          start,
		expiredPendingTime: start.Add(p.PendingTimeout),
		requestorHost:      p.RequestorHost,
		groupID:            p.GroupID,
	}, nil
}

func (s *Slot) ID() ID                        { return s.id }
func (s *Slot) WarehouseID() int64            { return s.warehouseID }
func (s *Slot) NumPhysicalUnits() int         { return s.numPhysicalUnits }
func (s *Slot) StartTime() time.Time          { return s.startTime }
func (s *Slot) ExpiredPendingTime() time.Time { return s.expiredPendingTime }
func (s *Slot) RequestorHost() string         { return s.requestorHost }
func (s *Slot) GroupID() int64                { return s.groupID }

// State returns the current lifecycle phase.
func (s *Slot) State() State {
	return State(s.state.Load())
}

// IsPendingExpired reports whether the slot is still waiting for capacity and
// its pending deadline is at or before now.
func (s *Slot) IsPendingExpired(now time.Time) bool {
	if s.State() != StateRequiring {
		return false
	}
	return !s.expiredPendingTime.After(now)
}

// OnRequire records that the slot entered the pending queue.
func (s *Slot) OnRequire(now time.Time) {
	s.requiredAt.Store(now.UnixNano())
	s.state.Store(int32(StateRequiring))
}

// OnAllocate records that the slot was granted its units.
func (s *Slot) OnAllocate(now time.Time) {
	s.allocatedAt.Store(now.UnixNano())
	s.state.Store(int32(StateAllocated))
}

// OnRelease records that the slot left the tracker.
func (s *Slot) OnRelease(now time.Time) {
	s.releasedAt.Store(now.UnixNano())
	s.state.Store(int32(StateReleased))
}

// PendingDuration is the time spent queued. For a slot still pending it is
// measured up to now.
func (s *Slot) PendingDuration(now time.Time) time.Duration {
	required := s.requiredAt.Load()
	if required == 0 {
		return 0
	}
	end := s.allocatedAt.Load()
	if end == 0 {
		end = s.releasedAt.Load()
	}
	if end == 0 {
		end = now.UnixNano()
	}
	return time.Duration(end - required)
}

// AllocatedDuration is the time the slot has held (or held) its units.
func (s *Slot) AllocatedDuration(now time.Time) time.Duration {
	allocated := s.allocatedAt.Load()
	if allocated == 0 {
		return 0
	}
	end := s.releasedAt.Load()
	if end == 0 {
		end = now.UnixNano()
	}
	return time.Duration(end - allocated)
}

func (s *Slot) String() string {
	return fmt.Sprintf("slot{id=%s warehouse=%d units=%d state=%s}",
		s.id, s.warehouseID, s.numPhysicalUnits, s.State())
}

// ExpiryLess orders slots by pending deadline, then by identity so that slots
// sharing a deadline still have a stable order.
func ExpiryLess(a, b *Slot) bool {
	if !a.expiredPendingTime.Equal(b.expiredPendingTime) {
		return a.expiredPendingTime.Before(b.expiredPendingTime)
	}
	return a.id.Compare(b.id) < 0
}
