// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/querygate/internal/admission"
	"github.com/ManuGH/querygate/internal/config"
	xglog "github.com/ManuGH/querygate/internal/log"
	"github.com/ManuGH/querygate/internal/slot"
)

type healthResponse struct {
	Status     string  `json:"status"`
	Version    string  `json:"version,omitempty"`
	Uptime     float64 `json:"uptime_seconds"`
	Warehouses int     `json:"warehouses"`
}

type slotView struct {
	ID                 string    `json:"id"`
	WarehouseID        int64     `json:"warehouse_id"`
	Units              int       `json:"units"`
	State              string    `json:"state"`
	StartTime          time.Time `json:"start_time"`
	ExpiredPendingTime time.Time `json:"expired_pending_time"`
	PendingSeconds     float64   `json:"pending_seconds"`
	AllocatedSeconds   float64   `json:"allocated_seconds"`
	RequestorHost      string    `json:"requestor_host,omitempty"`
	GroupID            int64     `json:"group_id,omitempty"`
}

type slotsResponse struct {
	WarehouseID int64      `json:"warehouse_id"`
	Slots       []slotView `json:"slots"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		Version:    s.cfg.Version,
		Uptime:     s.now().Sub(s.started).Seconds(),
		Warehouses: len(s.registry.Stats()),
	})
}

func (s *Server) handleWarehouses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]admission.Stats{"warehouses": s.registry.Stats()})
}

func (s *Server) handleWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := parseWarehouseID(w, r)
	if !ok {
		return
	}
	for _, st := range s.registry.Stats() {
		if st.WarehouseID == id {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	writeNotFound(w)
}

func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	id, ok := parseWarehouseID(w, r)
	if !ok {
		return
	}
	slots, err := s.registry.Slots(id)
	if err != nil {
		if errors.Is(err, config.ErrUnknownWarehouse) {
			writeNotFound(w)
			return
		}
		logger := xglog.WithContext(r.Context(), s.logger)
		logger.Error().Err(err).Int64(xglog.FieldWarehouseID, id).Msg("failed to list slots")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := s.now()
	views := make([]slotView, 0, len(slots))
	for _, sl := range slots {
		views = append(views, newSlotView(sl, now))
	}
	sort.Slice(views, func(i, j int) bool {
		if !views[i].StartTime.Equal(views[j].StartTime) {
			return views[i].StartTime.Before(views[j].StartTime)
		}
		return views[i].ID < views[j].ID
	})
	writeJSON(w, http.StatusOK, slotsResponse{WarehouseID: id, Slots: views})
}

func newSlotView(s *slot.Slot, now time.Time) slotView {
	return slotView{
		ID:                 s.ID().String(),
		WarehouseID:        s.WarehouseID(),
		Units:              s.NumPhysicalUnits(),
		State:              s.State().String(),
		StartTime:          s.StartTime(),
		ExpiredPendingTime: s.ExpiredPendingTime(),
		PendingSeconds:     s.PendingDuration(now).Seconds(),
		AllocatedSeconds:   s.AllocatedDuration(now).Seconds(),
		RequestorHost:      s.RequestorHost(),
		GroupID:            s.GroupID(),
	}
}

func parseWarehouseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "invalid warehouse id")
		return 0, false
	}
	return id, true
}
