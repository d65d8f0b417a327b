// SPDX-License-Identifier: MIT

package admission

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/querygate/internal/log"
	"github.com/ManuGH/querygate/internal/metrics"
	"github.com/ManuGH/querygate/internal/slot"
)

// ErrWarehouseMismatch is returned by Require for a slot that belongs to a
// different warehouse than the tracker.
var ErrWarehouseMismatch = errors.New("slot belongs to another warehouse")

const expiryTreeDegree = 16

// TrackerConfig wires a Tracker to its collaborators. Only WarehouseID is
// required; nil collaborators fall back to unbounded capacity, no queue
// limit, capacity-aware selection and no-op gauges.
type TrackerConfig struct {
	WarehouseID int64
	Settings    QueueSettings
	Capacity    CapacityPolicy
	Strategy    SelectionStrategy
	Listeners   []Listener
	Gauges      Gauges
	Directory   Directory
	Clock       Clock
	Logger      *zerolog.Logger
}

type pendingEntry struct {
	slot *slot.Slot
	seq  uint64
}

// Tracker owns every slot of one warehouse and moves them through
// pending -> allocated -> released.
//
// Mutating and decision operations (Require, Allocate, Release,
// PeekAllocatable, PeekExpired) are meant to be driven by one scheduling loop
// per warehouse. They are additionally serialized by an exclusive lock, and
// every read-only query takes the shared side of that lock, so status
// reporters may read while the loop mutates. Listeners run after the lock is
// released.
type Tracker struct {
	warehouseID int64
	label       string
	settings    QueueSettings
	capacity    CapacityPolicy
	strategy    SelectionStrategy
	gauges      Gauges
	directory   Directory
	clock       Clock
	logger      zerolog.Logger

	nameMu sync.Mutex
	name   string

	mu                sync.RWMutex
	listeners         []Listener
	slots             map[slot.ID]*slot.Slot
	byExpiry          *btree.BTreeG[*slot.Slot]
	pending           map[slot.ID]pendingEntry
	allocated         map[slot.ID]*slot.Slot
	numAllocatedUnits int
	nextSeq           uint64
}

// NewTracker creates an empty tracker.
func NewTracker(cfg TrackerConfig) *Tracker {
	t := &Tracker{
		warehouseID: cfg.WarehouseID,
		settings:    cfg.Settings,
		capacity:    cfg.Capacity,
		strategy:    cfg.Strategy,
		gauges:      cfg.Gauges,
		directory:   cfg.Directory,
		clock:       cfg.Clock,
		listeners:   append([]Listener(nil), cfg.Listeners...),
		slots:       make(map[slot.ID]*slot.Slot),
		byExpiry:    btree.NewG(expiryTreeDegree, slot.ExpiryLess),
		pending:     make(map[slot.ID]pendingEntry),
		allocated:   make(map[slot.ID]*slot.Slot),
	}
	if t.settings == nil {
		t.settings = unlimitedQueue{}
	}
	if t.capacity == nil {
		t.capacity = Unbounded()
	}
	if t.strategy == nil {
		t.strategy = CapacityAwareStrategy{}
	}
	if t.gauges == nil {
		t.gauges = nopGauges{}
	}
	if t.clock == nil {
		t.clock = RealClock{}
	}
	if cfg.Logger != nil {
		t.logger = *cfg.Logger
	} else {
		t.logger = xglog.WithComponent("admission")
	}
	t.logger = t.logger.With().Int64(xglog.FieldWarehouseID, t.warehouseID).Logger()

	// The metric label is fixed for the tracker's lifetime so that increments
	// and decrements always land on the same series.
	t.label = t.WarehouseName()
	if t.label == "" {
		t.label = strconv.FormatInt(t.warehouseID, 10)
	}
	return t
}

// AddListener registers l after the existing listeners.
func (t *Tracker) AddListener(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// WarehouseID returns the warehouse this tracker accounts for.
func (t *Tracker) WarehouseID() int64 {
	return t.warehouseID
}

// MetricLabel is the warehouse label used for gauges.
func (t *Tracker) MetricLabel() string {
	return t.label
}

// WarehouseName resolves the warehouse display name through the Directory.
// A resolved name is cached; lookup failures are logged and yield "".
func (t *Tracker) WarehouseName() string {
	t.nameMu.Lock()
	defer t.nameMu.Unlock()
	if t.name != "" || t.directory == nil {
		return t.name
	}
	name, err := t.directory.WarehouseName(t.warehouseID)
	if err != nil {
		t.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "warehouse.name_lookup_failed").
			Msg("failed to resolve warehouse name")
		return ""
	}
	t.name = name
	return name
}

// Require enqueues s as pending. It returns false, without side effects, when
// the queue-depth limit is enabled and the pending set is already at the
// limit. Requiring an identity that is already tracked returns true and
// changes nothing. A non-nil error reports listener failures; the slot is
// tracked regardless.
func (t *Tracker) Require(s *slot.Slot) (bool, error) {
	if s.WarehouseID() != t.warehouseID {
		return false, fmt.Errorf("%w: slot warehouse %d, tracker warehouse %d",
			ErrWarehouseMismatch, s.WarehouseID(), t.warehouseID)
	}

	t.mu.Lock()
	if maxQueued, enabled := t.settings.MaxQueuedQueries(t.warehouseID); enabled && len(t.pending) >= maxQueued {
		pending := len(t.pending)
		t.mu.Unlock()
		t.logger.Debug().
			Str(xglog.FieldEvent, "slot.require_rejected").
			Str(xglog.FieldSlotID, s.ID().String()).
			Int(xglog.FieldPending, pending).
			Int(xglog.FieldMaxQueued, maxQueued).
			Msg("query queue is full")
		return false, nil
	}

	if _, ok := t.slots[s.ID()]; ok {
		t.mu.Unlock()
		return true, nil
	}

	t.slots[s.ID()] = s
	t.byExpiry.ReplaceOrInsert(s)
	t.pending[s.ID()] = pendingEntry{slot: s, seq: t.nextSeq}
	t.nextSeq++
	t.gauges.AddPendingUnits(t.label, s.NumPhysicalUnits())
	listeners := t.listeners
	t.mu.Unlock()

	t.logger.Debug().
		Str(xglog.FieldEvent, "slot.required").
		Str(xglog.FieldSlotID, s.ID().String()).
		Int(xglog.FieldUnits, s.NumPhysicalUnits()).
		Msg("slot required")

	err := t.notify(listeners, "require", s, Listener.OnRequire)
	s.OnRequire(t.clock.Now())
	return true, err
}

// Allocate promotes a pending slot to allocated. It is a no-op for slots that
// are unknown or no longer pending, which covers races with Release.
func (t *Tracker) Allocate(s *slot.Slot) error {
	id := s.ID()

	t.mu.Lock()
	tracked, ok := t.slots[id]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	if _, ok := t.pending[id]; !ok {
		t.mu.Unlock()
		return nil
	}
	delete(t.pending, id)
	units := tracked.NumPhysicalUnits()
	t.gauges.AddPendingUnits(t.label, -units)

	if _, dup := t.allocated[id]; dup {
		t.mu.Unlock()
		return nil
	}
	t.allocated[id] = tracked
	t.numAllocatedUnits += units
	t.gauges.AddRunningUnits(t.label, units)
	allocatedUnits := t.numAllocatedUnits
	listeners := t.listeners
	t.mu.Unlock()

	t.logger.Debug().
		Str(xglog.FieldEvent, "slot.allocated").
		Str(xglog.FieldSlotID, id.String()).
		Int(xglog.FieldUnits, units).
		Int(xglog.FieldAllocatedUnits, allocatedUnits).
		Msg("slot allocated")

	err := t.notify(listeners, "allocate", tracked, Listener.OnAllocate)
	tracked.OnAllocate(t.clock.Now())
	return err
}

// Release removes the slot from the tracker whatever its phase. found=false
// means nothing was tracked under id. A non-nil error reports listener
// failures; the slot has been released regardless.
func (t *Tracker) Release(id slot.ID) (released *slot.Slot, found bool, err error) {
	t.mu.Lock()
	s, ok := t.slots[id]
	if !ok {
		t.mu.Unlock()
		return nil, false, nil
	}
	delete(t.slots, id)
	t.byExpiry.Delete(s)

	phase := "pending"
	if _, ok := t.allocated[id]; ok {
		delete(t.allocated, id)
		t.numAllocatedUnits -= s.NumPhysicalUnits()
		t.gauges.AddRunningUnits(t.label, -s.NumPhysicalUnits())
		phase = "allocated"
	} else if _, ok := t.pending[id]; ok {
		delete(t.pending, id)
		t.gauges.AddPendingUnits(t.label, -s.NumPhysicalUnits())
	}
	listeners := t.listeners
	t.mu.Unlock()

	t.logger.Debug().
		Str(xglog.FieldEvent, "slot.released").
		Str(xglog.FieldSlotID, id.String()).
		Str(xglog.FieldOldState, phase).
		Int(xglog.FieldUnits, s.NumPhysicalUnits()).
		Msg("slot released")

	err = t.notify(listeners, "release", s, Listener.OnRelease)
	s.OnRelease(t.clock.Now())
	return s, true, err
}

// PeekAllocatable asks the selection strategy which pending slots to allocate
// next. Nothing is mutated; the caller allocates each returned slot.
func (t *Tracker) PeekAllocatable() []*slot.Slot {
	return t.strategy.SelectForAllocation(t.View())
}

// PeekExpired returns the pending slots whose deadline is at or before now, in
// deadline order. Nothing is mutated; the caller releases each returned slot.
func (t *Tracker) PeekExpired() []*slot.Slot {
	now := t.clock.Now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	var expired []*slot.Slot
	t.byExpiry.Ascend(func(s *slot.Slot) bool {
		if s.ExpiredPendingTime().After(now) {
			return false
		}
		if _, ok := t.pending[s.ID()]; ok {
			expired = append(expired, s)
		}
		return true
	})
	return expired
}

// View snapshots the state a SelectionStrategy decides on. Capacity is
// queried fresh.
func (t *Tracker) View() View {
	maxUnits, bounded := t.capacity.MaxUnits(t.warehouseID)

	t.mu.RLock()
	defer t.mu.RUnlock()
	return View{
		WarehouseID:       t.warehouseID,
		Pending:           t.pendingInOrderLocked(),
		NumAllocatedUnits: t.numAllocatedUnits,
		MaxUnits:          maxUnits,
		Bounded:           bounded,
	}
}

func (t *Tracker) pendingInOrderLocked() []*slot.Slot {
	entries := make([]pendingEntry, 0, len(t.pending))
	for _, e := range t.pending {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]*slot.Slot, len(entries))
	for i, e := range entries {
		out[i] = e.slot
	}
	return out
}

func (t *Tracker) notify(listeners []Listener, hook string, s *slot.Slot, call func(Listener, *slot.Slot) error) error {
	var errs []error
	for _, l := range listeners {
		if err := call(l, s); err != nil {
			errs = append(errs, fmt.Errorf("%s listener %T: %w", hook, l, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	err := errors.Join(errs...)
	metrics.RecordListenerError(t.label, hook)
	t.logger.Warn().
		Err(err).
		Str(xglog.FieldEvent, "slot.listener_failed").
		Str(xglog.FieldSlotID, s.ID().String()).
		Str("hook", hook).
		Msg("slot listener failed")
	return err
}

// PendingCount returns the number of pending slots.
func (t *Tracker) PendingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pending)
}

// AllocatedCount returns the number of allocated slots.
func (t *Tracker) AllocatedCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.allocated)
}

// NumAllocatedUnits returns the units held by allocated slots.
func (t *Tracker) NumAllocatedUnits() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.numAllocatedUnits
}

// MaxRequiredUnits returns the largest pending request, false when nothing is pending.
func (t *Tracker) MaxRequiredUnits() (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.pending) == 0 {
		return 0, false
	}
	largest := 0
	for _, e := range t.pending {
		largest = max(largest, e.slot.NumPhysicalUnits())
	}
	return largest, true
}

// SumRequiredUnits returns the units requested by all pending slots, false
// when nothing is pending.
func (t *Tracker) SumRequiredUnits() (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.pending) == 0 {
		return 0, false
	}
	sum := 0
	for _, e := range t.pending {
		sum += e.slot.NumPhysicalUnits()
	}
	return sum, true
}

// MaxUnits queries the capacity policy.
func (t *Tracker) MaxUnits() (int, bool) {
	return t.capacity.MaxUnits(t.warehouseID)
}

// RemainingUnits returns max(0, capacity-allocated), false when the warehouse
// is unbounded.
func (t *Tracker) RemainingUnits() (int, bool) {
	maxUnits, bounded := t.capacity.MaxUnits(t.warehouseID)
	if !bounded {
		return 0, false
	}
	return max(0, maxUnits-t.NumAllocatedUnits()), true
}

// MinExpiredPendingTime returns the earliest pending deadline among all
// tracked slots, or the zero time when the tracker is empty.
func (t *Tracker) MinExpiredPendingTime() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byExpiry.Min()
	if !ok {
		return time.Time{}
	}
	return s.ExpiredPendingTime()
}

// EarliestWaitSeconds returns how long, in seconds, the oldest tracked slot
// (by start time) has existed. It is 0 when the tracker is empty.
func (t *Tracker) EarliestWaitSeconds() float64 {
	now := t.clock.Now()

	t.mu.RLock()
	defer t.mu.RUnlock()
	var oldest time.Time
	for _, s := range t.slots {
		if oldest.IsZero() || s.StartTime().Before(oldest) {
			oldest = s.StartTime()
		}
	}
	if oldest.IsZero() {
		return 0
	}
	return now.Sub(oldest).Seconds()
}

// Slot returns the tracked slot with the given identity.
func (t *Tracker) Slot(id slot.ID) (*slot.Slot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.slots[id]
	return s, ok
}

// Slots returns every tracked slot, pending and allocated, in no particular order.
func (t *Tracker) Slots() []*slot.Slot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*slot.Slot, 0, len(t.slots))
	for _, s := range t.slots {
		out = append(out, s)
	}
	return out
}

// MaxQueuedQueries returns the configured queue-depth limit.
func (t *Tracker) MaxQueuedQueries() (int, bool) {
	return t.settings.MaxQueuedQueries(t.warehouseID)
}

// PendingTimeout returns the configured pending timeout.
func (t *Tracker) PendingTimeout() time.Duration {
	return t.settings.PendingTimeout(t.warehouseID)
}

// Stats is a consistent point-in-time summary of a tracker.
type Stats struct {
	WarehouseID           int64     `json:"warehouse_id"`
	Warehouse             string    `json:"warehouse"`
	Pending               int       `json:"pending"`
	Allocated             int       `json:"allocated"`
	PendingUnits          int       `json:"pending_units"`
	MaxPendingUnits       int       `json:"max_pending_units"`
	AllocatedUnits        int       `json:"allocated_units"`
	MaxUnits              int       `json:"max_units"`
	Bounded               bool      `json:"bounded"`
	RemainingUnits        int       `json:"remaining_units"`
	MaxQueued             int       `json:"max_queued"`
	QueueLimited          bool      `json:"queue_limited"`
	MinExpiredPendingTime time.Time `json:"min_expired_pending_time"`
	EarliestWaitSeconds   float64   `json:"earliest_wait_seconds"`
}

// Stats gathers the derived queries under one read lock.
func (t *Tracker) Stats() Stats {
	maxUnits, bounded := t.capacity.MaxUnits(t.warehouseID)
	maxQueued, limited := t.settings.MaxQueuedQueries(t.warehouseID)
	now := t.clock.Now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	st := Stats{
		WarehouseID:    t.warehouseID,
		Warehouse:      t.label,
		Pending:        len(t.pending),
		Allocated:      len(t.allocated),
		AllocatedUnits: t.numAllocatedUnits,
		MaxUnits:       maxUnits,
		Bounded:        bounded,
		MaxQueued:      maxQueued,
		QueueLimited:   limited,
	}
	for _, e := range t.pending {
		st.PendingUnits += e.slot.NumPhysicalUnits()
		st.MaxPendingUnits = max(st.MaxPendingUnits, e.slot.NumPhysicalUnits())
	}
	if bounded {
		st.RemainingUnits = max(0, maxUnits-t.numAllocatedUnits)
	}
	if s, ok := t.byExpiry.Min(); ok {
		st.MinExpiredPendingTime = s.ExpiredPendingTime()
	}
	var oldest time.Time
	for _, s := range t.slots {
		if oldest.IsZero() || s.StartTime().Before(oldest) {
			oldest = s.StartTime()
		}
	}
	if !oldest.IsZero() {
		st.EarliestWaitSeconds = now.Sub(oldest).Seconds()
	}
	return st
}
