// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/querygate/internal/admission"
	"github.com/ManuGH/querygate/internal/config"
	"github.com/ManuGH/querygate/internal/slot"
)

// trackerRegistry serves real trackers keyed by warehouse id.
type trackerRegistry struct {
	trackers map[int64]*admission.Tracker
}

func (r trackerRegistry) Stats() []admission.Stats {
	var out []admission.Stats
	for id := int64(0); id < 16; id++ {
		if t, ok := r.trackers[id]; ok {
			out = append(out, t.Stats())
		}
	}
	return out
}

func (r trackerRegistry) Slots(id int64) ([]*slot.Slot, error) {
	t, ok := r.trackers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", config.ErrUnknownWarehouse, id)
	}
	return t.Slots(), nil
}

type nameDirectory map[int64]string

func (d nameDirectory) WarehouseName(id int64) (string, error) { return d[id], nil }

func newTestRegistry(t *testing.T) (trackerRegistry, *admission.Tracker) {
	t.Helper()
	tr := admission.NewTracker(admission.TrackerConfig{
		WarehouseID: 1,
		Capacity:    admission.FixedCapacity{1: 4},
		Directory:   nameDirectory{1: "api-test"},
	})
	for _, units := range []int{3, 2} {
		s, err := slot.New(slot.Params{WarehouseID: 1, NumPhysicalUnits: units, PendingTimeout: time.Minute, RequestorHost: "fe-1"})
		require.NoError(t, err)
		ok, err := tr.Require(s)
		require.NoError(t, err)
		require.True(t, ok)
	}
	for _, s := range tr.PeekAllocatable() {
		require.NoError(t, tr.Allocate(s))
	}
	return trackerRegistry{trackers: map[int64]*admission.Tracker{1: tr}}, tr
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	reg, _ := newTestRegistry(t)
	s := New(Config{Version: "v1.2.3"}, reg)

	w := get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "v1.2.3", body.Version)
	assert.Equal(t, 1, body.Warehouses)
}

func TestWarehouses(t *testing.T) {
	reg, _ := newTestRegistry(t)
	s := New(Config{}, reg)

	w := get(t, s.Handler(), "/api/v1/warehouses")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Warehouses []admission.Stats `json:"warehouses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Warehouses, 1)
	st := body.Warehouses[0]
	assert.Equal(t, "api-test", st.Warehouse)
	assert.Equal(t, 1, st.Allocated)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 3, st.AllocatedUnits)
	assert.Equal(t, 1, st.RemainingUnits)
}

func TestWarehouse(t *testing.T) {
	reg, _ := newTestRegistry(t)
	h := New(Config{}, reg).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/warehouses/1").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/warehouses/2").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/warehouses/abc").Code)
}

func TestSlots(t *testing.T) {
	reg, _ := newTestRegistry(t)
	h := New(Config{}, reg).Handler()

	w := get(t, h, "/api/v1/warehouses/1/slots")
	require.Equal(t, http.StatusOK, w.Code)

	var body slotsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Slots, 2)

	states := map[string]int{}
	for _, v := range body.Slots {
		states[v.State] += v.Units
		assert.Equal(t, "fe-1", v.RequestorHost)
	}
	assert.Equal(t, map[string]int{"allocated": 3, "requiring": 2}, states)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/warehouses/9/slots").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/warehouses/-1/slots").Code)
}

func TestSlots_ConcurrentWithMutation(t *testing.T) {
	reg, tr := newTestRegistry(t)
	h := New(Config{RateLimitPerMinute: 1 << 20}, reg).Handler()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s, _ := slot.New(slot.Params{WarehouseID: 1, NumPhysicalUnits: 1, PendingTimeout: time.Minute})
			_, _ = tr.Require(s)
			_, _, _ = tr.Release(s.ID())
		}
	}()
	for i := 0; i < 50; i++ {
		assert.Equal(t, http.StatusOK, get(t, h, "/api/v1/warehouses/1/slots").Code)
	}
	wg.Wait()
}

func TestMetricsEndpoint(t *testing.T) {
	reg, _ := newTestRegistry(t)
	h := New(Config{}, reg).Handler()

	w := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "querygate_query_queue_slot_running"))
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	reg, _ := newTestRegistry(t)
	w := get(t, New(Config{}, reg).Handler(), "/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestServe_GracefulShutdown(t *testing.T) {
	reg, _ := newTestRegistry(t)
	s := New(Config{}, reg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
