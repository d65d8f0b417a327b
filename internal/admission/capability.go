// SPDX-License-Identifier: MIT

package admission

import (
	"time"

	"github.com/ManuGH/querygate/internal/slot"
)

// DefaultPendingTimeout applies when no QueueSettings are configured.
const DefaultPendingTimeout = 300 * time.Second

// CapacityPolicy supplies the maximum number of units a warehouse may have
// allocated at once. bounded=false means the warehouse does not enforce a cap.
//
// Implementations may be adaptive; the tracker re-queries on every decision
// and never caches the result. They must not call back into the tracker.
type CapacityPolicy interface {
	MaxUnits(warehouseID int64) (units int, bounded bool)
}

// CapacityFunc adapts a function to CapacityPolicy.
type CapacityFunc func(warehouseID int64) (int, bool)

func (f CapacityFunc) MaxUnits(warehouseID int64) (int, bool) { return f(warehouseID) }

// FixedCapacity is a static per-warehouse cap. Missing or non-positive
// entries are unbounded.
type FixedCapacity map[int64]int

func (c FixedCapacity) MaxUnits(warehouseID int64) (int, bool) {
	units, ok := c[warehouseID]
	if !ok || units <= 0 {
		return 0, false
	}
	return units, true
}

// Unbounded returns a policy that never caps any warehouse.
func Unbounded() CapacityPolicy {
	return CapacityFunc(func(int64) (int, bool) { return 0, false })
}

// QueueSettings are the externally supplied per-warehouse queue limits.
type QueueSettings interface {
	// MaxQueuedQueries returns the maximum pending count. enabled=false means
	// the queue-depth limit is switched off.
	MaxQueuedQueries(warehouseID int64) (max int, enabled bool)
	// PendingTimeout is used to compute each slot's pending deadline.
	PendingTimeout(warehouseID int64) time.Duration
}

type unlimitedQueue struct{}

func (unlimitedQueue) MaxQueuedQueries(int64) (int, bool) { return 0, false }
func (unlimitedQueue) PendingTimeout(int64) time.Duration { return DefaultPendingTimeout }

// Gauges is the side-channel sink for unit counters, updated synchronously
// inside Require, Allocate and Release.
type Gauges interface {
	AddPendingUnits(warehouse string, delta int)
	AddRunningUnits(warehouse string, delta int)
}

type nopGauges struct{}

func (nopGauges) AddPendingUnits(string, int) {}
func (nopGauges) AddRunningUnits(string, int) {}

// Directory resolves warehouse display names.
type Directory interface {
	WarehouseName(warehouseID int64) (string, error)
}

// Listener observes slot lifecycle transitions. Hooks run in registration
// order after the tracker has committed the transition, so a failing hook
// cannot leave the tracker inconsistent. Hooks must not call back into the
// tracker.
type Listener interface {
	OnRequire(s *slot.Slot) error
	OnAllocate(s *slot.Slot) error
	OnRelease(s *slot.Slot) error
}
