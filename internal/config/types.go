// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Defaults.
const (
	DefaultListenAddr        = ":8080"
	DefaultLogService        = "querygate"
	DefaultPendingTimeout    = 300 * time.Second
	DefaultScheduleInterval  = 100 * time.Millisecond
	DefaultCPUSampleInterval = 5 * time.Second
	DefaultStrategy          = "capacity_aware"
	DefaultCPUThreshold      = 1.5
	DefaultWarehouseName     = "default_warehouse"
)

// Config is the complete querygate configuration.
type Config struct {
	LogLevel   string            `yaml:"logLevel"`
	LogService string            `yaml:"logService"`
	ListenAddr string            `yaml:"listenAddr"`
	QueryQueue QueryQueueConfig  `yaml:"queryQueue"`
	Pipeline   PipelineConfig    `yaml:"pipeline"`
	Warehouses []WarehouseConfig `yaml:"warehouses"`
}

// QueryQueueConfig holds the global admission settings. Per-warehouse values
// override MaxQueuedQueries and PendingTimeout when they are positive.
type QueryQueueConfig struct {
	// MaxQueuedQueriesEffective switches the queue-depth limit on.
	MaxQueuedQueriesEffective bool          `yaml:"maxQueuedQueriesEffective"`
	MaxQueuedQueries          int           `yaml:"maxQueuedQueries"`
	PendingTimeout            time.Duration `yaml:"pendingTimeout"`
	ScheduleInterval          time.Duration `yaml:"scheduleInterval"`
	Strategy                  string        `yaml:"strategy"`
	// MaxAllocateRate caps promotions per second per warehouse; 0 disables it.
	MaxAllocateRate   float64       `yaml:"maxAllocateRate"`
	CPUSampleInterval time.Duration `yaml:"cpuSampleInterval"`
}

// PipelineConfig sizes the pipeline-driver pool.
type PipelineConfig struct {
	DriversPerUnit int `yaml:"driversPerUnit"`
	MaxDrivers     int `yaml:"maxDrivers"` // 0 = unlimited
}

// WarehouseConfig describes one admission domain.
type WarehouseConfig struct {
	ID               int64          `yaml:"id"`
	Name             string         `yaml:"name"`
	MaxSlots         int            `yaml:"maxSlots"` // 0 = unbounded
	MaxQueuedQueries int            `yaml:"maxQueuedQueries"`
	PendingTimeout   time.Duration  `yaml:"pendingTimeout"`
	Adaptive         AdaptiveConfig `yaml:"adaptive"`
}

// AdaptiveConfig enables CPU-driven capacity scaling for a warehouse.
type AdaptiveConfig struct {
	Enabled      bool    `yaml:"enabled"`
	CPUThreshold float64 `yaml:"cpuThreshold"`
}

// Default returns the built-in configuration: one unbounded default warehouse.
func Default() Config {
	return Config{
		LogLevel:   "info",
		LogService: DefaultLogService,
		ListenAddr: DefaultListenAddr,
		QueryQueue: QueryQueueConfig{
			PendingTimeout:    DefaultPendingTimeout,
			ScheduleInterval:  DefaultScheduleInterval,
			Strategy:          DefaultStrategy,
			CPUSampleInterval: DefaultCPUSampleInterval,
		},
		Pipeline: PipelineConfig{
			DriversPerUnit: 1,
		},
		Warehouses: []WarehouseConfig{
			{ID: 0, Name: DefaultWarehouseName},
		},
	}
}

// Warehouse returns the configuration for id.
func (c Config) Warehouse(id int64) (WarehouseConfig, bool) {
	for _, w := range c.Warehouses {
		if w.ID == id {
			return w, true
		}
	}
	return WarehouseConfig{}, false
}

// AdaptiveEnabled reports whether any warehouse uses CPU-adaptive capacity.
func (c Config) AdaptiveEnabled() bool {
	for _, w := range c.Warehouses {
		if w.Adaptive.Enabled {
			return true
		}
	}
	return false
}

// clone deep-copies c so holders never share the warehouse slice.
func (c Config) clone() Config {
	c.Warehouses = append([]WarehouseConfig(nil), c.Warehouses...)
	return c
}
