// SPDX-License-Identifier: MIT

// Package daemon wires the querygate runtime together and owns its lifecycle.
package daemon

import (
	"github.com/ManuGH/querygate/internal/admission"
	"github.com/ManuGH/querygate/internal/api"
	"github.com/ManuGH/querygate/internal/config"
	"github.com/ManuGH/querygate/internal/pipeline"
	"github.com/ManuGH/querygate/internal/scheduler"
)

// Options are the process-level inputs that do not live in the config file.
type Options struct {
	Version string
	// CPULoad overrides the load source for adaptive capacity (tests).
	CPULoad admission.CPULoadProvider
}

// Build assembles an App from the live configuration.
func Build(holder *config.Holder, opts Options) (*App, error) {
	if holder == nil {
		return nil, ErrMissingConfig
	}
	cfg := holder.Get()

	var capacity admission.CapacityPolicy = holder
	var monitor *admission.UsageMonitor
	if cfg.AdaptiveEnabled() {
		monitor = admission.NewUsageMonitor(holder, holder)
		capacity = monitor
	}

	drivers := pipeline.NewDriverAllocator(cfg.Pipeline.DriversPerUnit, cfg.Pipeline.MaxDrivers)
	sched := scheduler.NewManager(scheduler.ManagerConfig{
		Config:    holder,
		Capacity:  capacity,
		Listeners: []admission.Listener{pipeline.SlotListener{Allocator: drivers}},
	})

	srv := api.New(api.Config{
		ListenAddr: cfg.ListenAddr,
		Version:    opts.Version,
	}, sched)

	return NewApp(AppConfig{
		Holder:    holder,
		Scheduler: sched,
		API:       srv,
		Monitor:   monitor,
		CPULoad:   opts.CPULoad,
		Drivers:   drivers,
		Version:   opts.Version,
	})
}
