// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/querygate/internal/admission"
	"github.com/ManuGH/querygate/internal/api"
	"github.com/ManuGH/querygate/internal/config"
	xglog "github.com/ManuGH/querygate/internal/log"
	"github.com/ManuGH/querygate/internal/pipeline"
	"github.com/ManuGH/querygate/internal/scheduler"
)

// AppConfig lists the subsystems an App owns. API, Monitor and Drivers are
// optional.
type AppConfig struct {
	Holder    *config.Holder
	Scheduler *scheduler.Manager
	API       *api.Server
	Monitor   *admission.UsageMonitor
	CPULoad   admission.CPULoadProvider
	Drivers   *pipeline.DriverAllocator
	Version   string
}

// App owns the long-lived runtime lifecycle (watchers, reload wiring, queues,
// status server).
type App struct {
	cfg          AppConfig
	logger       zerolog.Logger
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator.
func NewApp(cfg AppConfig) (*App, error) {
	if cfg.Holder == nil {
		return nil, ErrMissingConfig
	}
	if cfg.Scheduler == nil {
		return nil, ErrMissingScheduler
	}
	return &App{
		cfg:          cfg,
		logger:       xglog.WithComponent("daemon"),
		reloadSignal: syscall.SIGHUP,
	}, nil
}

// Scheduler returns the admission scheduler.
func (a *App) Scheduler() *scheduler.Manager {
	return a.cfg.Scheduler
}

// Drivers returns the pipeline driver allocator, if any.
func (a *App) Drivers() *pipeline.DriverAllocator {
	return a.cfg.Drivers
}

// Run starts all owned background subsystems and blocks until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	holder := a.cfg.Holder

	// Config watcher is best-effort: startup should not fail if watcher cannot be started.
	if err := holder.StartWatcher(ctx); err != nil {
		a.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
	}

	// Apply reloads: log level and newly added warehouses. Capacity, limits
	// and strategy are read live from the holder.
	applyCh := make(chan config.Config, 1)
	holder.RegisterListener(applyCh)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case cfg := <-applyCh:
				xglog.Configure(xglog.Config{
					Level:   cfg.LogLevel,
					Service: cfg.LogService,
					Version: a.cfg.Version,
				})
				a.cfg.Scheduler.Sync(cfg)
			}
		}
	})

	// SIGHUP trigger for manual reload.
	if a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str(xglog.FieldEvent, "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")

					if err := holder.Reload(ctx); err != nil {
						a.logger.Warn().
							Err(err).
							Str(xglog.FieldEvent, "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	if a.cfg.Monitor != nil {
		done := admission.StartCPUSampler(ctx, a.cfg.Monitor, holder.Get().QueryQueue.CPUSampleInterval, a.cfg.CPULoad)
		g.Go(func() error {
			<-done
			return nil
		})
	}

	g.Go(func() error {
		return a.cfg.Scheduler.Run(ctx)
	})

	if a.cfg.API != nil {
		g.Go(func() error {
			return a.cfg.API.ListenAndServe(ctx)
		})
	}

	a.logger.Info().Str(xglog.FieldEvent, "daemon.started").Msg("querygate running")
	err := g.Wait()
	holder.Stop()
	return err
}
