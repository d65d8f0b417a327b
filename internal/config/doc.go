// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads, validates and hot-reloads querygate configuration.
//
// Precedence is ENV > YAML file > defaults. The Holder exposes the live
// configuration to the admission layer as queue settings, warehouse
// directory and capacity policies, so reloads take effect without restarting
// the per-warehouse queues.
package config
