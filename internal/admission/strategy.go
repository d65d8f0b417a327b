// SPDX-License-Identifier: MIT

package admission

import (
	"fmt"

	"github.com/ManuGH/querygate/internal/slot"
)

// Strategy names accepted by NewStrategy.
const (
	StrategyCapacityAware = "capacity_aware"
	StrategyFIFO          = "fifo"
)

// View is the read-only tracker state handed to a SelectionStrategy. It is a
// snapshot: strategies cannot observe or cause concurrent mutation.
type View struct {
	WarehouseID int64
	// Pending holds the pending slots in requirement order.
	Pending           []*slot.Slot
	NumAllocatedUnits int
	MaxUnits          int
	// Bounded is false when the warehouse does not enforce a capacity.
	Bounded bool
}

// RemainingUnits returns max(0, MaxUnits-NumAllocatedUnits), or false when
// the warehouse is unbounded.
func (v View) RemainingUnits() (int, bool) {
	if !v.Bounded {
		return 0, false
	}
	return max(0, v.MaxUnits-v.NumAllocatedUnits), true
}

// SelectionStrategy decides which pending slots should be allocated next and
// in which order. It must not mutate the slots it is given.
type SelectionStrategy interface {
	SelectForAllocation(v View) []*slot.Slot
}

// StrategyFunc adapts a function to SelectionStrategy.
type StrategyFunc func(v View) []*slot.Slot

func (f StrategyFunc) SelectForAllocation(v View) []*slot.Slot { return f(v) }

// CapacityAwareStrategy admits pending slots in requirement order while they
// fit in the remaining capacity. A slot that does not fit is skipped so that
// smaller requests queued behind it still get admitted.
//
// A large request can starve while smaller ones keep arriving; use
// FIFOStrategy where that matters more than head-of-line blocking.
type CapacityAwareStrategy struct{}

func (CapacityAwareStrategy) SelectForAllocation(v View) []*slot.Slot {
	if len(v.Pending) == 0 {
		return nil
	}
	if !v.Bounded {
		return append([]*slot.Slot(nil), v.Pending...)
	}

	allocated := v.NumAllocatedUnits
	var selected []*slot.Slot
	for _, s := range v.Pending {
		if allocated >= v.MaxUnits {
			break
		}
		if allocated+s.NumPhysicalUnits() > v.MaxUnits {
			continue
		}
		allocated += s.NumPhysicalUnits()
		selected = append(selected, s)
	}
	return selected
}

// FIFOStrategy admits pending slots strictly in requirement order and stops at
// the first one that does not fit.
type FIFOStrategy struct{}

func (FIFOStrategy) SelectForAllocation(v View) []*slot.Slot {
	if len(v.Pending) == 0 {
		return nil
	}
	if !v.Bounded {
		return append([]*slot.Slot(nil), v.Pending...)
	}

	allocated := v.NumAllocatedUnits
	var selected []*slot.Slot
	for _, s := range v.Pending {
		if allocated+s.NumPhysicalUnits() > v.MaxUnits {
			break
		}
		allocated += s.NumPhysicalUnits()
		selected = append(selected, s)
	}
	return selected
}

// NewStrategy resolves a strategy by its configuration name. An empty name
// selects the capacity-aware strategy.
func NewStrategy(name string) (SelectionStrategy, error) {
	switch name {
	case "", StrategyCapacityAware:
		return CapacityAwareStrategy{}, nil
	case StrategyFIFO:
		return FIFOStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown selection strategy %q", name)
	}
}
