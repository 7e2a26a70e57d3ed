// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package aquarium implements the slot rotation and drift engines that
// animate a pool of processed images around a fixed viewport.
//
// State transitions are pure: Scheduler.Init, Scheduler.Rotate and
// Simulator.Drift each return a new State sharing no mutable data with
// their input, so a published State is never changed after publication.
// The Engine applies the transitions from a single goroutine, and the
// Session ties each Engine run to the pool and slot count it was started
// with.
package aquarium

import (
	"github.com/kortschak/aquarium/internal/backdrop"
)

// Viewport is the display area within which image boxes move.
type Viewport struct {
	Width, Height float64
	// Box is the side length of the square
	// display box of each slot.
	Box float64
}

// MaxX returns the largest valid x coordinate of a box's left edge.
func (v Viewport) MaxX() float64 { return max(0, v.Width-v.Box) }

// MaxY returns the largest valid y coordinate of a box's top edge.
func (v Viewport) MaxY() float64 { return max(0, v.Height-v.Box) }

// Clamp returns p with its coordinates snapped to the nearest valid
// position within the viewport if they lie outside it.
func (v Viewport) Clamp(p Position) Position {
	p.X = clamp(p.X, 0, v.MaxX())
	p.Y = clamp(p.Y, 0, v.MaxY())
	return p
}

// Contains returns whether p lies within the viewport's valid positions.
func (v Viewport) Contains(p Position) bool {
	return 0 <= p.X && p.X <= v.MaxX() && 0 <= p.Y && p.Y <= v.MaxY()
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

// Position is the top-left coordinate of a slot's box and the slot's
// drift speed multiplier.
type Position struct {
	X, Y  float64
	Speed float64
}

// Slot is a displayed image and its position.
type Slot struct {
	// Image is the displayed image. A nil Image
	// is an empty slot that renders nothing.
	Image *backdrop.Image
	// Position is the slot's box position. It is
	// only meaningful if Image is not nil.
	Position Position
	// Assigned is the number of times the slot has
	// been reassigned by rotation.
	Assigned uint64
}

// Empty returns whether the slot has no image.
func (s Slot) Empty() bool { return s.Image == nil }

// State is a snapshot of the aquarium.
type State struct {
	// Generation identifies the pool and slot count
	// configuration the state was derived from.
	Generation uint64
	// Pool is the complete set of images that
	// slots may display.
	Pool []*backdrop.Image
	// Slots is the set of displayed slots. It has
	// no elements when Pool is empty.
	Slots []Slot
	// Next is the index of the next slot to be
	// rotated.
	Next int
	// Ticks and Frames are the number of rotation
	// and drift transitions applied since Init.
	Ticks  uint64
	Frames uint64
}

// clone returns a copy of s that shares no slot storage with s.
func (s State) clone() State {
	s.Slots = append([]Slot(nil), s.Slots...)
	return s
}
