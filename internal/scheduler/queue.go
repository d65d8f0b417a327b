// SPDX-License-Identifier: MIT

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/querygate/internal/admission"
	xglog "github.com/ManuGH/querygate/internal/log"
	"github.com/ManuGH/querygate/internal/metrics"
	"github.com/ManuGH/querygate/internal/slot"
)

const defaultScheduleInterval = 100 * time.Millisecond

// Request describes one admission request.
type Request struct {
	QueryID       string
	Units         int
	RequestorHost string
	GroupID       int64
}

// QueueConfig wires a Queue. Settings, Capacity, Strategy, Directory and
// Clock are passed to the tracker; nil values take the tracker defaults.
type QueueConfig struct {
	WarehouseID      int64
	Settings         admission.QueueSettings
	Capacity         admission.CapacityPolicy
	Strategy         admission.SelectionStrategy
	Listeners        []admission.Listener
	Directory        admission.Directory
	Clock            admission.Clock
	ScheduleInterval time.Duration
	// MaxAllocateRate caps promotions per second; 0 disables throttling.
	MaxAllocateRate float64
}

type submitReq struct {
	ticket *Ticket
	reply  chan error
}

// Queue owns one warehouse's tracker. Run is the only goroutine that mutates
// it; Submit and Ticket.Release hand work to Run over channels.
type Queue struct {
	tracker  *admission.Tracker
	clock    admission.Clock
	interval time.Duration
	limiter  *rate.Limiter
	logger   zerolog.Logger

	submitCh  chan submitReq
	releaseCh chan slot.ID
	stopped   chan struct{}

	// tickets is owned by Run.
	tickets map[slot.ID]*Ticket
}

// NewQueue builds a queue. Call Run to start it.
func NewQueue(cfg QueueConfig) *Queue {
	clock := cfg.Clock
	if clock == nil {
		clock = admission.RealClock{}
	}
	interval := cfg.ScheduleInterval
	if interval <= 0 {
		interval = defaultScheduleInterval
	}

	logger := xglog.WithComponent("scheduler").With().Int64(xglog.FieldWarehouseID, cfg.WarehouseID).Logger()
	tracker := admission.NewTracker(admission.TrackerConfig{
		WarehouseID: cfg.WarehouseID,
		Settings:    cfg.Settings,
		Capacity:    cfg.Capacity,
		Strategy:    cfg.Strategy,
		Listeners:   cfg.Listeners,
		Gauges:      metrics.SlotGauges{},
		Directory:   cfg.Directory,
		Clock:       clock,
	})

	q := &Queue{
		tracker:   tracker,
		clock:     clock,
		interval:  interval,
		logger:    logger.With().Str(xglog.FieldWarehouse, tracker.MetricLabel()).Logger(),
		submitCh:  make(chan submitReq),
		releaseCh: make(chan slot.ID, 64),
		stopped:   make(chan struct{}),
		tickets:   make(map[slot.ID]*Ticket),
	}
	if cfg.MaxAllocateRate > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(cfg.MaxAllocateRate), max(1, int(cfg.MaxAllocateRate)))
	}
	return q
}

// Tracker exposes the tracker for read-only status queries.
func (q *Queue) Tracker() *admission.Tracker {
	return q.tracker
}

// Submit creates a slot for req and enqueues it. It returns ErrQueueFull when
// the pending queue is at its limit.
func (q *Queue) Submit(ctx context.Context, req Request) (*Ticket, error) {
	s, err := slot.New(slot.Params{
		WarehouseID:      q.tracker.WarehouseID(),
		NumPhysicalUnits: req.Units,
		StartTime:        q.clock.Now(),
		PendingTimeout:   q.tracker.PendingTimeout(),
		RequestorHost:    req.RequestorHost,
		GroupID:          req.GroupID,
	})
	if err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}

	t := newTicket(q, req.QueryID, s)
	sr := submitReq{ticket: t, reply: make(chan error, 1)}

	select {
	case q.submitCh <- sr:
	case <-q.stopped:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Run always replies once it has accepted the request.
	if err := <-sr.reply; err != nil {
		return nil, err
	}
	return t, nil
}

func (q *Queue) release(id slot.ID) {
	select {
	case q.releaseCh <- id:
	case <-q.stopped:
	}
}

// Run drives the tracker until ctx ends, then releases every remaining slot.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.Info().
		Str(xglog.FieldEvent, "queue.started").
		Dur("interval", q.interval).
		Msg("query queue started")

	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()
	defer q.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sr := <-q.submitCh:
			sr.reply <- q.require(sr.ticket)
		case id := <-q.releaseCh:
			q.releaseTicket(id)
		case <-ticker.C:
		}
		q.schedule()
	}
}

func (q *Queue) require(t *Ticket) error {
	s := t.slot
	ok, err := q.tracker.Require(s)
	if !ok {
		if err != nil {
			return err
		}
		metrics.RecordReject(q.tracker.MetricLabel(), "queue_full")
		return ErrQueueFull
	}
	if err != nil {
		q.logger.Warn().Err(err).Str(xglog.FieldSlotID, s.ID().String()).Msg("require listener failed")
	}
	q.tickets[s.ID()] = t
	q.logger.Debug().
		Str(xglog.FieldEvent, "ticket.submitted").
		Str(xglog.FieldSlotID, s.ID().String()).
		Str(xglog.FieldQueryID, t.queryID).
		Int(xglog.FieldUnits, s.NumPhysicalUnits()).
		Msg("ticket submitted")
	return nil
}

func (q *Queue) releaseTicket(id slot.ID) {
	if _, _, err := q.tracker.Release(id); err != nil {
		q.logger.Warn().Err(err).Str(xglog.FieldSlotID, id.String()).Msg("release listener failed")
	}
	if t, ok := q.tickets[id]; ok {
		delete(q.tickets, id)
		t.resolve(ErrReleased)
	}
}

// schedule reaps expired slots, then promotes what fits.
func (q *Queue) schedule() {
	label := q.tracker.MetricLabel()

	for _, s := range q.tracker.PeekExpired() {
		if _, _, err := q.tracker.Release(s.ID()); err != nil {
			q.logger.Warn().Err(err).Str(xglog.FieldSlotID, s.ID().String()).Msg("release listener failed")
		}
		metrics.RecordExpired(label)
		q.logger.Info().
			Str(xglog.FieldEvent, "slot.expired").
			Str(xglog.FieldSlotID, s.ID().String()).
			Time("deadline", s.ExpiredPendingTime()).
			Msg("pending slot expired")
		if t, ok := q.tickets[s.ID()]; ok {
			delete(q.tickets, s.ID())
			t.resolve(ErrPendingTimeout)
		}
	}

	for _, s := range q.tracker.PeekAllocatable() {
		if q.limiter != nil && !q.limiter.Allow() {
			break
		}
		q.promote(s)
	}

	maxUnits, bounded := q.tracker.MaxUnits()
	metrics.SetCapacity(label, maxUnits, bounded)
	metrics.SetQueueLengths(label, q.tracker.PendingCount(), q.tracker.AllocatedCount())
}

func (q *Queue) promote(s *slot.Slot) {
	t := q.tickets[s.ID()]
	if err := q.tracker.Allocate(s); err != nil {
		// The tracker has committed the allocation; undo it so that the
		// requester is not handed a slot a listener could not back.
		q.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "slot.allocate_failed").
			Str(xglog.FieldSlotID, s.ID().String()).
			Msg("allocation listener failed, releasing slot")
		if _, _, relErr := q.tracker.Release(s.ID()); relErr != nil {
			err = errors.Join(err, relErr)
		}
		if t != nil {
			delete(q.tickets, s.ID())
			t.resolve(fmt.Errorf("%w: %w", ErrAllocationFailed, err))
		}
		return
	}

	metrics.ObserveWait(q.tracker.MetricLabel(), s.PendingDuration(q.clock.Now()).Seconds())
	if t != nil {
		t.resolve(nil)
	}
}

// shutdown releases every tracked slot and fails outstanding tickets.
func (q *Queue) shutdown() {
	close(q.stopped)
drain:
	for {
		select {
		case id := <-q.releaseCh:
			q.releaseTicket(id)
		default:
			break drain
		}
	}
	for _, s := range q.tracker.Slots() {
		_, _, _ = q.tracker.Release(s.ID())
		if t, ok := q.tickets[s.ID()]; ok {
			delete(q.tickets, s.ID())
			t.resolve(ErrQueueClosed)
		}
	}
	q.logger.Info().Str(xglog.FieldEvent, "queue.stopped").Msg("query queue stopped")
}
