// SPDX-License-Identifier: MIT

package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/querygate/internal/log"
	"github.com/ManuGH/querygate/internal/metrics"
	"github.com/ManuGH/querygate/internal/slot"
)

var (
	// ErrDriversExhausted is returned when assigning a slot would exceed the driver pool.
	ErrDriversExhausted = errors.New("pipeline drivers exhausted")
	// ErrAlreadyAssigned is returned when a slot already holds drivers.
	ErrAlreadyAssigned = errors.New("slot already has pipeline drivers")
)

const defaultDriversPerUnit = 1

// DriverAllocator keeps the number of pipeline drivers assigned to each
// allocated slot, bounded by a process-wide pool.
type DriverAllocator struct {
	driversPerUnit int
	maxDrivers     int // 0 = unlimited
	logger         zerolog.Logger

	mu       sync.Mutex
	inUse    int
	assigned map[slot.ID]int
}

// NewDriverAllocator creates an allocator granting driversPerUnit drivers per
// physical unit. maxDrivers <= 0 disables the pool cap.
func NewDriverAllocator(driversPerUnit, maxDrivers int) *DriverAllocator {
	if driversPerUnit <= 0 {
		driversPerUnit = defaultDriversPerUnit
	}
	return &DriverAllocator{
		driversPerUnit: driversPerUnit,
		maxDrivers:     max(0, maxDrivers),
		logger:         xglog.WithComponent("pipeline"),
		assigned:       make(map[slot.ID]int),
	}
}

// Allocate reserves drivers for s.
func (a *DriverAllocator) Allocate(s *slot.Slot) error {
	want := s.NumPhysicalUnits() * a.driversPerUnit

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.assigned[s.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyAssigned, s.ID())
	}
	if a.maxDrivers > 0 && a.inUse+want > a.maxDrivers {
		metrics.IncPipelineDriverRejects()
		a.logger.Warn().
			Str(xglog.FieldEvent, "pipeline.drivers_exhausted").
			Str(xglog.FieldSlotID, s.ID().String()).
			Int("wanted", want).
			Int("in_use", a.inUse).
			Int("max", a.maxDrivers).
			Msg("not enough pipeline drivers for slot")
		return fmt.Errorf("%w: want %d, %d of %d in use", ErrDriversExhausted, want, a.inUse, a.maxDrivers)
	}

	a.assigned[s.ID()] = want
	a.inUse += want
	metrics.SetPipelineDriversInUse(a.inUse)
	return nil
}

// Release returns the drivers held by s. Releasing an unassigned slot is a no-op.
func (a *DriverAllocator) Release(s *slot.Slot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n, ok := a.assigned[s.ID()]
	if !ok {
		return
	}
	delete(a.assigned, s.ID())
	a.inUse -= n
	metrics.SetPipelineDriversInUse(a.inUse)
}

// InUse returns the number of assigned drivers.
func (a *DriverAllocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inUse
}

// Assigned returns the drivers held by the slot with the given identity.
func (a *DriverAllocator) Assigned(id slot.ID) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n, ok := a.assigned[id]
	return n, ok
}

// SlotListener wires a DriverAllocator into slot lifecycle notifications:
// drivers are assigned on allocation and torn down on release.
type SlotListener struct {
	Allocator *DriverAllocator
}

func (SlotListener) OnRequire(*slot.Slot) error { return nil }

func (l SlotListener) OnAllocate(s *slot.Slot) error {
	return l.Allocator.Allocate(s)
}

func (l SlotListener) OnRelease(s *slot.Slot) error {
	l.Allocator.Release(s)
	return nil
}
