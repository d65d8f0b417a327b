// SPDX-License-Identifier: MIT

package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/querygate/internal/admission"
	"github.com/ManuGH/querygate/internal/config"
	xglog "github.com/ManuGH/querygate/internal/log"
	"github.com/ManuGH/querygate/internal/slot"
)

// ManagerConfig wires a Manager. Config is required. Capacity defaults to
// the static per-warehouse maxSlots served by Config.
type ManagerConfig struct {
	Config    *config.Holder
	Capacity  admission.CapacityPolicy
	Listeners []admission.Listener
	Clock     admission.Clock
}

// Manager owns one Queue per configured warehouse.
type Manager struct {
	holder    *config.Holder
	capacity  admission.CapacityPolicy
	listeners []admission.Listener
	clock     admission.Clock
	logger    zerolog.Logger

	mu     sync.RWMutex
	queues map[int64]*Queue
	group  *errgroup.Group
	runCtx context.Context
}

// NewManager builds a queue for every warehouse in the current config.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		holder:    cfg.Config,
		capacity:  cfg.Capacity,
		listeners: cfg.Listeners,
		clock:     cfg.Clock,
		logger:    xglog.WithComponent("scheduler"),
		queues:    make(map[int64]*Queue),
	}
	if m.capacity == nil {
		m.capacity = cfg.Config
	}
	for _, w := range cfg.Config.Get().Warehouses {
		m.queues[w.ID] = m.newQueue(w.ID)
	}
	return m
}

func (m *Manager) newQueue(warehouseID int64) *Queue {
	qc := m.holder.Get().QueryQueue
	return NewQueue(QueueConfig{
		WarehouseID:      warehouseID,
		Settings:         m.holder,
		Capacity:         m.capacity,
		Strategy:         m.strategy(),
		Listeners:        m.listeners,
		Directory:        m.holder,
		Clock:            m.clock,
		ScheduleInterval: qc.ScheduleInterval,
		MaxAllocateRate:  qc.MaxAllocateRate,
	})
}

// strategy resolves the configured strategy on every decision so that a
// reload switches it without restarting queues.
func (m *Manager) strategy() admission.SelectionStrategy {
	return admission.StrategyFunc(func(v admission.View) []*slot.Slot {
		s, err := admission.NewStrategy(m.holder.Get().QueryQueue.Strategy)
		if err != nil {
			s = admission.CapacityAwareStrategy{}
		}
		return s.SelectForAllocation(v)
	})
}

// Run runs every queue until ctx ends or one of them fails.
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	m.mu.Lock()
	m.group, m.runCtx = g, gctx
	// Keeps the group open so Sync can add queues while running.
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	for _, q := range m.queues {
		q := q
		g.Go(func() error { return q.Run(gctx) })
	}
	m.mu.Unlock()

	err := g.Wait()

	m.mu.Lock()
	m.group, m.runCtx = nil, nil
	m.mu.Unlock()
	return err
}

// Sync starts queues for warehouses added by a config reload. Removed
// warehouses keep their queue until restart so that in-flight slots are not
// dropped.
func (m *Manager) Sync(cfg config.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	configured := make(map[int64]struct{}, len(cfg.Warehouses))
	for _, w := range cfg.Warehouses {
		configured[w.ID] = struct{}{}
		if _, ok := m.queues[w.ID]; ok {
			continue
		}
		q := m.newQueue(w.ID)
		m.queues[w.ID] = q
		if m.group != nil && m.runCtx.Err() == nil {
			ctx := m.runCtx
			m.group.Go(func() error { return q.Run(ctx) })
		}
		m.logger.Info().
			Str(xglog.FieldEvent, "queue.added").
			Int64(xglog.FieldWarehouseID, w.ID).
			Msg("started query queue for new warehouse")
	}
	for id := range m.queues {
		if _, ok := configured[id]; !ok {
			m.logger.Warn().
				Str(xglog.FieldEvent, "queue.orphaned").
				Int64(xglog.FieldWarehouseID, id).
				Msg("warehouse removed from config; queue keeps running until restart")
		}
	}
}

// Queue returns the queue of a warehouse.
func (m *Manager) Queue(warehouseID int64) (*Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[warehouseID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", config.ErrUnknownWarehouse, warehouseID)
	}
	return q, nil
}

// Submit enqueues req on the warehouse's queue.
func (m *Manager) Submit(ctx context.Context, warehouseID int64, req Request) (*Ticket, error) {
	q, err := m.Queue(warehouseID)
	if err != nil {
		return nil, err
	}
	return q.Submit(ctx, req)
}

// Stats returns one snapshot per warehouse, ordered by warehouse id.
func (m *Manager) Stats() []admission.Stats {
	m.mu.RLock()
	queues := make([]*Queue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.RUnlock()

	stats := make([]admission.Stats, 0, len(queues))
	for _, q := range queues {
		stats = append(stats, q.Tracker().Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].WarehouseID < stats[j].WarehouseID })
	return stats
}

// Slots returns every slot currently tracked for a warehouse.
func (m *Manager) Slots(warehouseID int64) ([]*slot.Slot, error) {
	q, err := m.Queue(warehouseID)
	if err != nil {
		return nil, err
	}
	return q.Tracker().Slots(), nil
}
