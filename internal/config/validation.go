// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"time"

	"github.com/ManuGH/querygate/internal/validate"
)

const minScheduleInterval = 10 * time.Millisecond

var knownStrategies = []string{"capacity_aware", "fifo"}

// Validate validates a Config using the centralized validation package
func Validate(cfg Config) error {
	v := validate.New()

	v.LogLevel("logLevel", cfg.LogLevel)
	v.ListenAddr("listenAddr", cfg.ListenAddr)

	q := cfg.QueryQueue
	v.NonNegative("queryQueue.maxQueuedQueries", q.MaxQueuedQueries)
	v.MinDuration("queryQueue.pendingTimeout", q.PendingTimeout, time.Millisecond)
	v.MinDuration("queryQueue.scheduleInterval", q.ScheduleInterval, minScheduleInterval)
	v.OneOf("queryQueue.strategy", q.Strategy, knownStrategies)
	if q.MaxAllocateRate < 0 {
		v.AddError("queryQueue.maxAllocateRate", "must be non-negative", q.MaxAllocateRate)
	}
	if cfg.AdaptiveEnabled() {
		v.MinDuration("queryQueue.cpuSampleInterval", q.CPUSampleInterval, 100*time.Millisecond)
	}

	v.Positive("pipeline.driversPerUnit", cfg.Pipeline.DriversPerUnit)
	v.NonNegative("pipeline.maxDrivers", cfg.Pipeline.MaxDrivers)

	if len(cfg.Warehouses) == 0 {
		v.AddError("warehouses", "at least one warehouse must be configured", nil)
	}
	seen := make(map[int64]struct{}, len(cfg.Warehouses))
	for i, w := range cfg.Warehouses {
		field := fmt.Sprintf("warehouses[%d]", i)
		if _, dup := seen[w.ID]; dup {
			v.AddError(field+".id", fmt.Sprintf("duplicate warehouse id %d", w.ID), w.ID)
		}
		seen[w.ID] = struct{}{}
		if w.ID < 0 {
			v.AddError(field+".id", "must be non-negative", w.ID)
		}
		v.NotEmpty(field+".name", w.Name)
		v.NonNegative(field+".maxSlots", w.MaxSlots)
		v.NonNegative(field+".maxQueuedQueries", w.MaxQueuedQueries)
		if w.PendingTimeout < 0 {
			v.AddError(field+".pendingTimeout", "must be non-negative", w.PendingTimeout)
		}
		if w.Adaptive.Enabled {
			v.FloatRange(field+".adaptive.cpuThreshold", w.Adaptive.CPUThreshold, 0, 64)
		}
	}

	return v.Err()
}
