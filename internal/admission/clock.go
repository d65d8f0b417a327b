// SPDX-License-Identifier: MIT

package admission

import "time"

// Clock interface for mocking time
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using standard time package
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
