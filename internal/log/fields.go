// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSlotID      = "slot_id"
	FieldQueryID     = "query_id"
	FieldRequestID   = "request_id"
	FieldWarehouseID = "warehouse_id"
	FieldWarehouse   = "warehouse"
	FieldGroupID     = "group_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStrategy  = "strategy"

	// Capacity fields
	FieldUnits          = "units"
	FieldAllocatedUnits = "allocated_units"
	FieldMaxUnits       = "max_units"
	FieldPending        = "pending"
	FieldMaxQueued      = "max_queued"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath = "path"
)
