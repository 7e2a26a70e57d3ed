// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package animation provides animation tick sources and animated image
// support.
//
// Two kinds of tick source are provided. Interval drivers tick at a fixed
// period independent of the work done on each tick, as a timer would.
// Frame drivers are re-armed only when the next tick is requested, so the
// period is measured from the end of the previous frame's work, in the way
// a display refresh callback reschedules itself.
package animation

import "time"

// Driver is a source of animation ticks.
type Driver interface {
	// Next returns a channel that will receive the next tick.
	// For frame drivers, calling Next arms the driver.
	Next() <-chan time.Time

	// Stop stops the driver. No ticks will be sent after Stop returns.
	Stop()
}

// Clock constructs Drivers.
type Clock interface {
	// Interval returns a Driver that ticks every period.
	Interval(period time.Duration) Driver

	// Frames returns a Driver that ticks period after each call
	// to its Next method.
	Frames(period time.Duration) Driver
}
