// SPDX-License-Identifier: MIT

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSlotGauges_AddUnits(t *testing.T) {
	QueryQueueSlotPending.Reset()
	QueryQueueSlotRunning.Reset()

	var g SlotGauges
	g.AddPendingUnits("wh", 5)
	g.AddPendingUnits("wh", -2)
	g.AddRunningUnits("wh", 4)

	if got := GetSlotPending("wh"); got != 3 {
		t.Errorf("expected pending=3, got %f", got)
	}
	if got := GetSlotRunning("wh"); got != 4 {
		t.Errorf("expected running=4, got %f", got)
	}
	if got := GetSlotPending("other"); got != 0 {
		t.Errorf("expected untouched warehouse to be 0, got %f", got)
	}
}

func TestRecordReject(t *testing.T) {
	QueryQueueRejectTotal.Reset()

	RecordReject("wh", "queue_full")
	RecordReject("wh", "queue_full")

	if got := testutil.ToFloat64(QueryQueueRejectTotal.WithLabelValues("wh", "queue_full")); got != 2 {
		t.Errorf("expected 2 rejects, got %f", got)
	}
}

func TestSetCapacity_Unbounded(t *testing.T) {
	QueryQueueCapacity.Reset()

	SetCapacity("wh", 12, true)
	if got := testutil.ToFloat64(QueryQueueCapacity.WithLabelValues("wh")); got != 12 {
		t.Errorf("expected 12, got %f", got)
	}

	SetCapacity("wh", 12, false)
	if got := testutil.ToFloat64(QueryQueueCapacity.WithLabelValues("wh")); got != -1 {
		t.Errorf("expected -1 for unbounded, got %f", got)
	}
}

func TestObserveWait(t *testing.T) {
	QueryQueueWaitSeconds.Reset()

	ObserveWait("wh", 0.2)
	if count := testutil.CollectAndCount(QueryQueueWaitSeconds); count == 0 {
		t.Error("expected QueryQueueWaitSeconds to have observations, got 0")
	}
}

func TestSetQueueLengths(t *testing.T) {
	SetQueueLengths("wh", 3, 1)
	if got := testutil.ToFloat64(QueryQueuePendingQueries.WithLabelValues("wh")); got != 3 {
		t.Errorf("expected pending queries=3, got %f", got)
	}
	if got := testutil.ToFloat64(QueryQueueRunningQueries.WithLabelValues("wh")); got != 1 {
		t.Errorf("expected running queries=1, got %f", got)
	}
}
