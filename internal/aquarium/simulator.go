// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aquarium

import "math/rand/v2"

// DefaultStep is the default random walk amplitude in viewport units
// per frame at unit speed.
const DefaultStep = 5

// Simulator applies a bounded random walk to slot positions.
type Simulator struct {
	Viewport Viewport
	// Step is the walk amplitude. Each coordinate
	// moves by up to ±Step*Speed/2 per frame.
	Step float64
	Rand *rand.Rand
}

// Drift returns a new state with every non-empty slot's position moved
// by an independent uniform step in each axis, scaled by the slot's
// speed. Positions leaving the viewport are snapped to the nearest bound.
func (s *Simulator) Drift(st State) State {
	next := st.clone()
	for i, slot := range next.Slots {
		if slot.Empty() {
			continue
		}
		p := slot.Position
		p.X += (s.Rand.Float64() - 0.5) * p.Speed * s.Step
		p.Y += (s.Rand.Float64() - 0.5) * p.Speed * s.Step
		next.Slots[i].Position = s.Viewport.Clamp(p)
	}
	next.Frames++
	return next
}
