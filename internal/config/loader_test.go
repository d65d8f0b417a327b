// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "querygate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
logLevel: debug
listenAddr: 127.0.0.1:9000
queryQueue:
  maxQueuedQueriesEffective: true
  maxQueuedQueries: 10
  pendingTimeout: 30s
  strategy: fifo
pipeline:
  maxDrivers: 64
warehouses:
  - id: 1
    name: etl
    maxSlots: 16
  - id: 2
    name: adhoc
    maxQueuedQueries: 3
    pendingTimeout: 5s
    adaptive:
      enabled: true
`)
	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, DefaultLogService, cfg.LogService)
	assert.True(t, cfg.QueryQueue.MaxQueuedQueriesEffective)
	assert.Equal(t, 10, cfg.QueryQueue.MaxQueuedQueries)
	assert.Equal(t, 30*time.Second, cfg.QueryQueue.PendingTimeout)
	assert.Equal(t, DefaultScheduleInterval, cfg.QueryQueue.ScheduleInterval, "absent key keeps default")
	assert.Equal(t, "fifo", cfg.QueryQueue.Strategy)
	assert.Equal(t, 1, cfg.Pipeline.DriversPerUnit)
	assert.Equal(t, 64, cfg.Pipeline.MaxDrivers)

	require.Len(t, cfg.Warehouses, 2)
	assert.Equal(t, WarehouseConfig{ID: 1, Name: "etl", MaxSlots: 16}, cfg.Warehouses[0])
	assert.Equal(t, DefaultCPUThreshold, cfg.Warehouses[1].Adaptive.CPUThreshold)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
queryQueue:
  maxQueuedQueries: 10
  strategy: fifo
`)
	t.Setenv(EnvMaxQueuedQueries, "4")
	t.Setenv(EnvStrategy, "capacity_aware")
	t.Setenv(EnvPendingTimeout, "2m")
	t.Setenv(EnvMaxQueuedQueriesEffective, "yes")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.QueryQueue.MaxQueuedQueries)
	assert.Equal(t, "capacity_aware", cfg.QueryQueue.Strategy)
	assert.Equal(t, 2*time.Minute, cfg.QueryQueue.PendingTimeout)
	assert.True(t, cfg.QueryQueue.MaxQueuedQueriesEffective)
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
queryQueue:
  maxQueuedQuery: 10
`)
	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoad_RejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "logLevel: info\n---\nlogLevel: debug\n")
	_, err := NewLoader(path).Load()
	assert.ErrorContains(t, err, "multiple documents")
}

func TestLoad_RejectsNonYAMLExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "querygate.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := NewLoader(path).Load()
	assert.ErrorContains(t, err, "unsupported config format")
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_InvalidConfigFailsValidation(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
warehouses:
  - id: 1
    name: a
  - id: 1
    name: b
`)
	_, err := NewLoader(path).Load()
	assert.ErrorContains(t, err, "duplicate warehouse id 1")
}
