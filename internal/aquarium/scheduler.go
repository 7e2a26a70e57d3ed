// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aquarium

import (
	"fmt"
	"math/rand/v2"

	"github.com/kortschak/aquarium/internal/backdrop"
)

// Fill is the policy for populating slots beyond the size of the pool.
type Fill int

const (
	// FillRepeat repeats the pool cyclically across all slots.
	FillRepeat Fill = iota
	// FillEmpty leaves slots beyond the pool size empty until
	// they are first rotated.
	FillEmpty
)

func (f Fill) String() string {
	switch f {
	case FillRepeat:
		return "repeat"
	case FillEmpty:
		return "empty"
	default:
		return fmt.Sprintf("Fill(%d)", int(f))
	}
}

// ParseFill returns the Fill policy with the given name.
func ParseFill(name string) (Fill, error) {
	switch name {
	case "", "repeat":
		return FillRepeat, nil
	case "empty":
		return FillEmpty, nil
	default:
		return 0, fmt.Errorf("invalid fill policy: %q", name)
	}
}

// Scheduler assigns images and positions to slots.
type Scheduler struct {
	Viewport Viewport
	Fill     Fill
	// Rand is the source of random image choices
	// and positions. It must not be shared with a
	// concurrently running user.
	Rand *rand.Rand
}

// position returns a random position within the viewport with a speed
// in [0.5, 1.5).
func (s *Scheduler) position() Position {
	return Position{
		X:     s.Rand.Float64() * s.Viewport.MaxX(),
		Y:     s.Rand.Float64() * s.Viewport.MaxY(),
		Speed: 0.5 + s.Rand.Float64(),
	}
}

// Init returns the initial state for a pool displayed in n slots. Slot i
// shows pool[i] for i < min(n, len(pool)), and remaining slots are filled
// according to the scheduler's Fill policy. If pool is empty or n is not
// positive the returned state has no slots.
func (s *Scheduler) Init(gen uint64, pool []*backdrop.Image, n int) State {
	st := State{Generation: gen, Pool: pool}
	if len(pool) == 0 || n <= 0 {
		return st
	}
	st.Slots = make([]Slot, n)
	for i := range st.Slots {
		var img *backdrop.Image
		switch {
		case i < len(pool):
			img = pool[i]
		case s.Fill == FillRepeat:
			img = pool[i%len(pool)]
		default:
			continue
		}
		st.Slots[i] = Slot{Image: img, Position: s.position()}
	}
	return st
}

// Rotate returns a new state with the slot at st.Next given a uniformly
// chosen pool image and a fresh random position, and the cursor advanced
// to the following slot. The chosen image may be the one already shown.
// A state with no slots is returned unchanged.
func (s *Scheduler) Rotate(st State) State {
	if len(st.Slots) == 0 || len(st.Pool) == 0 {
		return st
	}
	next := st.clone()
	i := st.Next
	next.Slots[i] = Slot{
		Image:    st.Pool[s.Rand.IntN(len(st.Pool))],
		Position: s.position(),
		Assigned: st.Slots[i].Assigned + 1,
	}
	next.Next = (i + 1) % len(next.Slots)
	next.Ticks++
	return next
}
