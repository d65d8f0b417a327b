// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > file > defaults.
type Loader struct {
	configPath string
}

// NewLoader creates a new configuration loader. An empty path means the
// configuration comes from defaults and ENV only.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Path returns the config file path, which may be empty.
func (l *Loader) Path() string {
	return l.configPath
}

// Load builds and validates the effective configuration.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", l.configPath, err)
		}
		mergeFile(&cfg, fileCfg)
	}

	mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileConfig mirrors Config with pointer fields so that keys absent from the
// file can be told apart from explicit zero values.
type fileConfig struct {
	LogLevel   *string           `yaml:"logLevel"`
	LogService *string           `yaml:"logService"`
	ListenAddr *string           `yaml:"listenAddr"`
	QueryQueue *QueryQueueConfig `yaml:"queryQueue"`
	Pipeline   *PipelineConfig   `yaml:"pipeline"`
	Warehouses []WarehouseConfig `yaml:"warehouses"`
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*fileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return parseYAML(data)
}

func parseYAML(data []byte) (*fileConfig, error) {
	fc := fileConfig{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			return &fileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fc, nil
}

// mergeFile overlays the keys present in the file onto cfg. Zero-valued
// fields inside a present queryQueue/pipeline block keep their defaults.
func mergeFile(cfg *Config, fc *fileConfig) {
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.LogService != nil {
		cfg.LogService = *fc.LogService
	}
	if fc.ListenAddr != nil {
		cfg.ListenAddr = *fc.ListenAddr
	}
	if q := fc.QueryQueue; q != nil {
		cfg.QueryQueue.MaxQueuedQueriesEffective = q.MaxQueuedQueriesEffective
		cfg.QueryQueue.MaxQueuedQueries = q.MaxQueuedQueries
		cfg.QueryQueue.MaxAllocateRate = q.MaxAllocateRate
		if q.PendingTimeout != 0 {
			cfg.QueryQueue.PendingTimeout = q.PendingTimeout
		}
		if q.ScheduleInterval != 0 {
			cfg.QueryQueue.ScheduleInterval = q.ScheduleInterval
		}
		if q.Strategy != "" {
			cfg.QueryQueue.Strategy = q.Strategy
		}
		if q.CPUSampleInterval != 0 {
			cfg.QueryQueue.CPUSampleInterval = q.CPUSampleInterval
		}
	}
	if p := fc.Pipeline; p != nil {
		cfg.Pipeline.MaxDrivers = p.MaxDrivers
		if p.DriversPerUnit != 0 {
			cfg.Pipeline.DriversPerUnit = p.DriversPerUnit
		}
	}
	if fc.Warehouses != nil {
		cfg.Warehouses = fc.Warehouses
	}
	for i := range cfg.Warehouses {
		if a := &cfg.Warehouses[i].Adaptive; a.Enabled && a.CPUThreshold == 0 {
			a.CPUThreshold = DefaultCPUThreshold
		}
	}
}

func mergeEnv(cfg *Config) {
	cfg.LogLevel = ParseString(EnvLogLevel, cfg.LogLevel)
	cfg.LogService = ParseString(EnvLogService, cfg.LogService)
	cfg.ListenAddr = ParseString(EnvListenAddr, cfg.ListenAddr)

	q := &cfg.QueryQueue
	q.MaxQueuedQueriesEffective = ParseBool(EnvMaxQueuedQueriesEffective, q.MaxQueuedQueriesEffective)
	q.MaxQueuedQueries = ParseInt(EnvMaxQueuedQueries, q.MaxQueuedQueries)
	q.PendingTimeout = ParseDuration(EnvPendingTimeout, q.PendingTimeout)
	q.ScheduleInterval = ParseDuration(EnvScheduleInterval, q.ScheduleInterval)
	q.Strategy = ParseString(EnvStrategy, q.Strategy)
	q.MaxAllocateRate = ParseFloat(EnvMaxAllocateRate, q.MaxAllocateRate)
	q.CPUSampleInterval = ParseDuration(EnvCPUSampleInterval, q.CPUSampleInterval)

	cfg.Pipeline.DriversPerUnit = ParseInt(EnvDriversPerUnit, cfg.Pipeline.DriversPerUnit)
	cfg.Pipeline.MaxDrivers = ParseInt(EnvMaxDrivers, cfg.Pipeline.MaxDrivers)
}
