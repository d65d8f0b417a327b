// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrMissingConfig is returned when an app is created without a config holder.
	ErrMissingConfig = errors.New("config holder is required")

	// ErrMissingScheduler is returned when an app is created without a scheduler.
	ErrMissingScheduler = errors.New("scheduler is required")
)
