// SPDX-License-Identifier: MIT

package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/querygate/internal/slot"
)

func unitsOf(slots []*slot.Slot) []int {
	var out []int
	for _, s := range slots {
		out = append(out, s.NumPhysicalUnits())
	}
	return out
}

func pendingOf(t *testing.T, units ...int) []*slot.Slot {
	t.Helper()
	out := make([]*slot.Slot, len(units))
	for i, u := range units {
		out[i] = newSlot(t, u, time.Minute)
	}
	return out
}

func TestSelectionStrategies(t *testing.T) {
	tests := []struct {
		name      string
		pending   []int
		allocated int
		maxUnits  int
		bounded   bool
		wantAware []int
		wantFIFO  []int
	}{
		{
			name:      "oversized head does not block smaller entries",
			pending:   []int{8, 5, 2},
			maxUnits:  10,
			bounded:   true,
			wantAware: []int{8, 2},
			wantFIFO:  []int{8},
		},
		{
			name:      "head too large for remaining capacity",
			pending:   []int{6, 1, 1},
			allocated: 5,
			maxUnits:  10,
			bounded:   true,
			wantAware: []int{1, 1},
			wantFIFO:  nil,
		},
		{
			name:      "everything fits",
			pending:   []int{1, 2, 3},
			maxUnits:  10,
			bounded:   true,
			wantAware: []int{1, 2, 3},
			wantFIFO:  []int{1, 2, 3},
		},
		{
			name:      "no capacity left",
			pending:   []int{1},
			allocated: 10,
			maxUnits:  10,
			bounded:   true,
			wantAware: nil,
			wantFIFO:  nil,
		},
		{
			name:      "unbounded admits all",
			pending:   []int{100, 200},
			bounded:   false,
			wantAware: []int{100, 200},
			wantFIFO:  []int{100, 200},
		},
		{
			name:      "empty queue",
			maxUnits:  10,
			bounded:   true,
			wantAware: nil,
			wantFIFO:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := View{
				WarehouseID:       testWarehouse,
				Pending:           pendingOf(t, tt.pending...),
				NumAllocatedUnits: tt.allocated,
				MaxUnits:          tt.maxUnits,
				Bounded:           tt.bounded,
			}
			assert.Equal(t, tt.wantAware, unitsOf(CapacityAwareStrategy{}.SelectForAllocation(v)), "capacity_aware")
			assert.Equal(t, tt.wantFIFO, unitsOf(FIFOStrategy{}.SelectForAllocation(v)), "fifo")
		})
	}
}

func TestView_RemainingUnits(t *testing.T) {
	remaining, ok := View{MaxUnits: 10, NumAllocatedUnits: 12, Bounded: true}.RemainingUnits()
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)

	_, ok = View{}.RemainingUnits()
	assert.False(t, ok)
}

func TestNewStrategy(t *testing.T) {
	s, err := NewStrategy("")
	require.NoError(t, err)
	assert.IsType(t, CapacityAwareStrategy{}, s)

	s, err = NewStrategy(StrategyFIFO)
	require.NoError(t, err)
	assert.IsType(t, FIFOStrategy{}, s)

	_, err = NewStrategy("lottery")
	assert.Error(t, err)
}
