// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/querygate/internal/config"
	"github.com/ManuGH/querygate/internal/scheduler"
)

func testHolder(t *testing.T, mutate func(*config.Config)) *config.Holder {
	t.Helper()
	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.QueryQueue.ScheduleInterval = 10 * time.Millisecond
	mutate(&cfg)
	require.NoError(t, config.Validate(cfg))
	return config.NewHolder(cfg, config.NewLoader(""))
}

func runApp(t *testing.T, app *App) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("app did not stop")
		}
	})
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewApp_RequiresCollaborators(t *testing.T) {
	_, err := NewApp(AppConfig{})
	assert.ErrorIs(t, err, ErrMissingConfig)

	_, err = NewApp(AppConfig{Holder: testHolder(t, func(*config.Config) {})})
	assert.ErrorIs(t, err, ErrMissingScheduler)

	_, err = Build(nil, Options{})
	assert.ErrorIs(t, err, ErrMissingConfig)
}

func TestApp_AdmitsAndAssignsDrivers(t *testing.T) {
	h := testHolder(t, func(c *config.Config) {
		c.Pipeline = config.PipelineConfig{DriversPerUnit: 2, MaxDrivers: 8}
		c.Warehouses = []config.WarehouseConfig{{ID: 1, Name: "daemon-wh", MaxSlots: 4}}
	})
	app, err := Build(h, Options{Version: "test"})
	require.NoError(t, err)
	runApp(t, app)

	tk, err := app.Scheduler().Submit(context.Background(), 1, scheduler.Request{QueryID: "q1", Units: 3})
	require.NoError(t, err)
	require.NoError(t, tk.Wait(waitCtx(t)))
	assert.Equal(t, 6, app.Drivers().InUse())

	tk.Release()
	assert.Eventually(t, func() bool { return app.Drivers().InUse() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestApp_ReloadAddsWarehouse(t *testing.T) {
	h := testHolder(t, func(c *config.Config) {
		c.Warehouses = []config.WarehouseConfig{{ID: 1, Name: "daemon-reload-a"}}
	})
	app, err := Build(h, Options{})
	require.NoError(t, err)
	runApp(t, app)

	cfg := h.Get()
	cfg.Warehouses = append(cfg.Warehouses, config.WarehouseConfig{ID: 2, Name: "daemon-reload-b"})
	h.Apply(cfg)

	assert.Eventually(t, func() bool {
		_, err := app.Scheduler().Queue(2)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestApp_AdaptiveCapacityUsesSampler(t *testing.T) {
	h := testHolder(t, func(c *config.Config) {
		c.QueryQueue.CPUSampleInterval = 100 * time.Millisecond
		c.Warehouses = []config.WarehouseConfig{{
			ID:       1,
			Name:     "daemon-adaptive",
			MaxSlots: 4,
			Adaptive: config.AdaptiveConfig{Enabled: true, CPUThreshold: 1},
		}}
	})
	app, err := Build(h, Options{CPULoad: func() (float64, error) { return 0.01, nil }})
	require.NoError(t, err)
	runApp(t, app)

	tk, err := app.Scheduler().Submit(context.Background(), 1, scheduler.Request{Units: 4})
	require.NoError(t, err)
	require.NoError(t, tk.Wait(waitCtx(t)), "idle host admits the full static capacity")
}
