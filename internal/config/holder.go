// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/querygate/internal/log"
)

const reloadDebounce = 500 * time.Millisecond

// Holder holds configuration with atomic reloading capability.
// It provides thread-safe access to configuration and supports hot reloading
// from file or manual trigger.
//
// Holder also serves the live values to the admission layer: it implements
// the queue settings, warehouse directory, capacity and adaptive-capacity
// lookups, so every read sees the latest successfully applied config.
type Holder struct {
	mu      sync.RWMutex
	current Config
	loader  *Loader
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	// Reload notifications
	reloadMu        sync.RWMutex
	reloadListeners []chan<- Config
}

// NewHolder creates a new configuration holder with initial config.
func NewHolder(initial Config, loader *Loader) *Holder {
	return &Holder{
		current: initial.clone(),
		loader:  loader,
		logger:  xglog.WithComponent("config"),
	}
}

// Get returns the current configuration (thread-safe read).
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.clone()
}

// Reload reloads configuration through the loader, which also validates it.
// If loading fails, the old configuration is kept and an error is returned.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str(xglog.FieldEvent, "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "config.reload_failed").
			Msg("failed to load new configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	h.Apply(newCfg)

	h.logger.Info().
		Str(xglog.FieldEvent, "config.reload_success").
		Msg("configuration reloaded successfully")
	return nil
}

// Apply swaps in cfg and notifies listeners. cfg must already be validated.
func (h *Holder) Apply(cfg Config) {
	cfg = cfg.clone()

	h.mu.Lock()
	oldCfg := h.current
	h.current = cfg
	h.mu.Unlock()

	h.notifyListeners(cfg)
	h.logChanges(oldCfg, cfg)
}

// StartWatcher starts watching the config file for changes.
// If the loader has no file, this is a no-op (config comes from ENV only).
func (h *Holder) StartWatcher(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Info().
			Str(xglog.FieldEvent, "config.watcher_disabled").
			Msg("config file watcher disabled (using ENV-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config file: %w", err)
	}
	h.watcher = watcher

	h.logger.Info().
		Str(xglog.FieldEvent, "config.watcher_started").
		Str(xglog.FieldPath, path).
		Msg("watching config file for changes")

	go h.watchLoop(ctx, watcher)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str(xglog.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			// Write and Create cover in-place edits and rename-over saves.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			h.logger.Debug().
				Str(xglog.FieldEvent, "config.file_changed").
				Str("op", event.Op.String()).
				Msg("config file changed")

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(reloadDebounce, func() {
				if ctx.Err() != nil {
					return
				}
				if err := h.Reload(ctx); err != nil {
					h.logger.Error().
						Err(err).
						Str(xglog.FieldEvent, "config.auto_reload_failed").
						Msg("automatic config reload failed")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().
				Err(err).
				Str(xglog.FieldEvent, "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// Stop stops the config watcher (if running).
func (h *Holder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}

// RegisterListener registers a channel to receive config reload notifications.
// The channel will receive the new config whenever a reload succeeds.
// The caller is responsible for closing the channel.
func (h *Holder) RegisterListener(ch chan<- Config) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	h.reloadListeners = append(h.reloadListeners, ch)
}

// notifyListeners sends the new config to all registered listeners (non-blocking).
func (h *Holder) notifyListeners(cfg Config) {
	h.reloadMu.RLock()
	defer h.reloadMu.RUnlock()

	for _, ch := range h.reloadListeners {
		select {
		case ch <- cfg.clone():
		default:
			h.logger.Warn().
				Str(xglog.FieldEvent, "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

func (h *Holder) logChanges(old, newCfg Config) {
	if old.LogLevel != newCfg.LogLevel {
		h.logger.Info().Str("old", old.LogLevel).Str("new", newCfg.LogLevel).Msg("config changed: logLevel")
	}
	if old.QueryQueue != newCfg.QueryQueue {
		h.logger.Info().
			Interface("old", old.QueryQueue).
			Interface("new", newCfg.QueryQueue).
			Msg("config changed: queryQueue")
	}
	oldByID := make(map[int64]WarehouseConfig, len(old.Warehouses))
	for _, w := range old.Warehouses {
		oldByID[w.ID] = w
	}
	for _, w := range newCfg.Warehouses {
		prev, ok := oldByID[w.ID]
		switch {
		case !ok:
			h.logger.Info().Int64(xglog.FieldWarehouseID, w.ID).Str(xglog.FieldWarehouse, w.Name).Msg("config changed: warehouse added")
		case prev != w:
			h.logger.Info().
				Int64(xglog.FieldWarehouseID, w.ID).
				Interface("old", prev).
				Interface("new", w).
				Msg("config changed: warehouse updated")
		}
		delete(oldByID, w.ID)
	}
	for id := range oldByID {
		h.logger.Info().Int64(xglog.FieldWarehouseID, id).Msg("config changed: warehouse removed")
	}
}

// MaxQueuedQueries returns the queue-depth limit for a warehouse. The limit
// is enabled only when queryQueue.maxQueuedQueriesEffective is set and the
// effective value (warehouse override, else global) is positive.
func (h *Holder) MaxQueuedQueries(warehouseID int64) (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.current.QueryQueue.MaxQueuedQueriesEffective {
		return 0, false
	}
	limit := h.current.QueryQueue.MaxQueuedQueries
	if w, ok := h.current.Warehouse(warehouseID); ok && w.MaxQueuedQueries > 0 {
		limit = w.MaxQueuedQueries
	}
	return limit, limit > 0
}

// PendingTimeout returns the warehouse override when positive, else the
// global pending timeout.
func (h *Holder) PendingTimeout(warehouseID int64) time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if w, ok := h.current.Warehouse(warehouseID); ok && w.PendingTimeout > 0 {
		return w.PendingTimeout
	}
	if d := h.current.QueryQueue.PendingTimeout; d > 0 {
		return d
	}
	return DefaultPendingTimeout
}

// WarehouseName resolves a configured warehouse name.
func (h *Holder) WarehouseName(warehouseID int64) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	w, ok := h.current.Warehouse(warehouseID)
	if !ok || w.Name == "" {
		return "", fmt.Errorf("%w: %d", ErrUnknownWarehouse, warehouseID)
	}
	return w.Name, nil
}

// MaxUnits returns the configured static capacity. maxSlots 0 and unknown
// warehouses are unbounded.
func (h *Holder) MaxUnits(warehouseID int64) (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	w, ok := h.current.Warehouse(warehouseID)
	if !ok || w.MaxSlots <= 0 {
		return 0, false
	}
	return w.MaxSlots, true
}

// AdaptiveCapacity reports whether CPU-adaptive capacity is enabled for a
// warehouse and its load threshold per core.
func (h *Holder) AdaptiveCapacity(warehouseID int64) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	w, ok := h.current.Warehouse(warehouseID)
	if !ok || !w.Adaptive.Enabled {
		return 0, false
	}
	return w.Adaptive.CPUThreshold, true
}
