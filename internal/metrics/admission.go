// Package metrics provides Prometheus metrics for the querygate query queue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// No slot or query identifiers in labels: warehouse cardinality only.

var (
	// Gauges

	// QueryQueueSlotPending tracks physical units held by pending slots, by warehouse.
	QueryQueueSlotPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "querygate_query_queue_slot_pending",
		Help: "Physical units requested by pending slots, by warehouse.",
	}, []string{"warehouse"})

	// QueryQueueSlotRunning tracks physical units held by allocated slots, by warehouse.
	QueryQueueSlotRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "querygate_query_queue_slot_running",
		Help: "Physical units held by allocated slots, by warehouse.",
	}, []string{"warehouse"})

	// QueryQueuePendingQueries tracks the pending queue length, by warehouse.
	QueryQueuePendingQueries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "querygate_query_queue_pending_queries",
		Help: "Number of queries waiting for a slot, by warehouse.",
	}, []string{"warehouse"})

	// QueryQueueRunningQueries tracks the number of allocated slots, by warehouse.
	QueryQueueRunningQueries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "querygate_query_queue_running_queries",
		Help: "Number of queries holding a slot, by warehouse.",
	}, []string{"warehouse"})

	// QueryQueueCapacity tracks the last observed capacity, by warehouse. -1 means unbounded.
	QueryQueueCapacity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "querygate_query_queue_capacity_units",
		Help: "Last observed maximum allocatable units, by warehouse (-1 when unbounded).",
	}, []string{"warehouse"})

	// Counters

	// QueryQueueRejectTotal counts requests refused at requirement time.
	QueryQueueRejectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygate_query_queue_reject_total",
		Help: "Total number of rejected slot requirements, by warehouse and reason.",
	}, []string{"warehouse", "reason"})

	// QueryQueueExpiredTotal counts pending slots reaped after their deadline.
	QueryQueueExpiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygate_query_queue_expired_total",
		Help: "Total number of pending slots released after exceeding the pending timeout, by warehouse.",
	}, []string{"warehouse"})

	// ListenerErrorTotal counts lifecycle listener failures.
	ListenerErrorTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygate_slot_listener_error_total",
		Help: "Total number of slot lifecycle listener failures, by warehouse and hook.",
	}, []string{"warehouse", "hook"})

	// Histograms

	// QueryQueueWaitSeconds observes how long slots stayed pending before allocation.
	QueryQueueWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "querygate_query_queue_wait_seconds",
		Help:    "Time slots spent pending before allocation, by warehouse.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"warehouse"})
)

// SlotGauges is the Prometheus sink for the tracker's unit gauges.
type SlotGauges struct{}

// AddPendingUnits adjusts the pending-unit gauge of a warehouse.
func (SlotGauges) AddPendingUnits(warehouse string, delta int) {
	QueryQueueSlotPending.WithLabelValues(warehouse).Add(float64(delta))
}

// AddRunningUnits adjusts the running-unit gauge of a warehouse.
func (SlotGauges) AddRunningUnits(warehouse string, delta int) {
	QueryQueueSlotRunning.WithLabelValues(warehouse).Add(float64(delta))
}

// RecordReject increments the rejection counter.
func RecordReject(warehouse, reason string) {
	QueryQueueRejectTotal.WithLabelValues(warehouse, reason).Inc()
}

// RecordExpired increments the expiry counter.
func RecordExpired(warehouse string) {
	QueryQueueExpiredTotal.WithLabelValues(warehouse).Inc()
}

// RecordListenerError increments the listener failure counter.
// hook: "require", "allocate" or "release"
func RecordListenerError(warehouse, hook string) {
	ListenerErrorTotal.WithLabelValues(warehouse, hook).Inc()
}

// ObserveWait records the pending duration of a newly allocated slot.
func ObserveWait(warehouse string, seconds float64) {
	QueryQueueWaitSeconds.WithLabelValues(warehouse).Observe(seconds)
}

// SetQueueLengths sets the pending and running query gauges of a warehouse.
func SetQueueLengths(warehouse string, pending, running int) {
	QueryQueuePendingQueries.WithLabelValues(warehouse).Set(float64(pending))
	QueryQueueRunningQueries.WithLabelValues(warehouse).Set(float64(running))
}

// SetCapacity records the capacity observed for a warehouse; bounded=false is exported as -1.
func SetCapacity(warehouse string, units int, bounded bool) {
	if !bounded {
		QueryQueueCapacity.WithLabelValues(warehouse).Set(-1)
		return
	}
	QueryQueueCapacity.WithLabelValues(warehouse).Set(float64(units))
}

// GetSlotPending returns the current pending-unit gauge value (for testing).
func GetSlotPending(warehouse string) float64 {
	return gaugeValue(QueryQueueSlotPending.WithLabelValues(warehouse))
}

// GetSlotRunning returns the current running-unit gauge value (for testing).
func GetSlotRunning(warehouse string) float64 {
	return gaugeValue(QueryQueueSlotRunning.WithLabelValues(warehouse))
}

func gaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
