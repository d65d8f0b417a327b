// SPDX-License-Identifier: MIT

// Package pipeline assigns pipeline drivers (physical execution workers) to
// allocated slots. SlotListener plugs the assignment into the admission
// tracker's lifecycle notifications.
package pipeline
