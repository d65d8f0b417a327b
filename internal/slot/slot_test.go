// SPDX-License-Identifier: MIT

package slot

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Unix(1_700_000_000, 0)

func TestNew_RejectsNonPositiveUnits(t *testing.T) {
	for _, units := range []int{0, -1} {
		_, err := New(Params{WarehouseID: 1, NumPhysicalUnits: units, StartTime: epoch})
		require.ErrorIs(t, err, ErrInvalidUnits)
	}
}

func TestNew_ComputesDeadline(t *testing.T) {
	s, err := New(Params{WarehouseID: 7, NumPhysicalUnits: 3, StartTime: epoch, PendingTimeout: 5 * time.Second})
	require.NoError(t, err)

	assert.False(t, s.ID().IsZero(), "id should be generated")
	assert.Equal(t, int64(7), s.WarehouseID())
	assert.Equal(t, 3, s.NumPhysicalUnits())
	assert.Equal(t, epoch.Add(5*time.Second), s.ExpiredPendingTime())
	assert.Equal(t, StateCreated, s.State())
}

func TestNew_KeepsExplicitID(t *testing.T) {
	id := NewID()
	s, err := New(Params{ID: id, NumPhysicalUnits: 1, StartTime: epoch})
	require.NoError(t, err)
	assert.Equal(t, id, s.ID())
}

func TestLifecycleHooks(t *testing.T) {
	s, err := New(Params{NumPhysicalUnits: 1, StartTime: epoch, PendingTimeout: time.Minute})
	require.NoError(t, err)

	s.OnRequire(epoch)
	assert.Equal(t, StateRequiring, s.State())
	assert.Equal(t, 2*time.Second, s.PendingDuration(epoch.Add(2*time.Second)))

	s.OnAllocate(epoch.Add(3 * time.Second))
	assert.Equal(t, StateAllocated, s.State())
	assert.Equal(t, 3*time.Second, s.PendingDuration(epoch.Add(time.Hour)))
	assert.Equal(t, 7*time.Second, s.AllocatedDuration(epoch.Add(10*time.Second)))

	s.OnRelease(epoch.Add(13 * time.Second))
	assert.Equal(t, StateReleased, s.State())
	assert.Equal(t, 10*time.Second, s.AllocatedDuration(epoch.Add(time.Hour)))
}

func TestIsPendingExpired(t *testing.T) {
	s, err := New(Params{NumPhysicalUnits: 1, StartTime: epoch, PendingTimeout: 10 * time.Second})
	require.NoError(t, err)

	deadline := epoch.Add(10 * time.Second)
	assert.False(t, s.IsPendingExpired(deadline), "not yet required")

	s.OnRequire(epoch)
	assert.False(t, s.IsPendingExpired(deadline.Add(-time.Millisecond)))
	assert.True(t, s.IsPendingExpired(deadline), "deadline is inclusive")

	s.OnAllocate(epoch.Add(time.Second))
	assert.False(t, s.IsPendingExpired(deadline.Add(time.Hour)), "allocated slots never expire")
}

func TestExpiryLess_TieBreaksOnID(t *testing.T) {
	a, _ := New(Params{NumPhysicalUnits: 1, StartTime: epoch, PendingTimeout: time.Second})
	b, _ := New(Params{NumPhysicalUnits: 1, StartTime: epoch, PendingTimeout: time.Second})
	c, _ := New(Params{NumPhysicalUnits: 1, StartTime: epoch})

	slots := []*Slot{a, b, c}
	sort.Slice(slots, func(i, j int) bool { return ExpiryLess(slots[i], slots[j]) })

	assert.Same(t, c, slots[0])
	assert.True(t, slots[1].ID().Compare(slots[2].ID()) < 0)
	assert.False(t, ExpiryLess(a, a))
}

func TestParseID_RoundTrip(t *testing.T) {
	id := NewID()
	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseID("not-a-uuid")
	assert.Error(t, err)
}
