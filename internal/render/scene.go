// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package render

import (
	"math"
	"sync"
	"time"

	"github.com/kortschak/aquarium/internal/aquarium"
	"github.com/kortschak/aquarium/internal/backdrop"
)

const (
	// DefaultTransition is the default duration of
	// position transitions.
	DefaultTransition = 2 * time.Second
	// DefaultFade is the default duration of opacity
	// transitions.
	DefaultFade = time.Second
)

// Easing is a timing function mapping linear progress in [0, 1] to eased
// progress.
type Easing func(t float64) float64

// Linear is the identity easing function.
func Linear(t float64) float64 { return t }

// EaseInOut is the CSS ease-in-out timing function,
// cubic-bezier(0.42, 0, 0.58, 1).
func EaseInOut(t float64) float64 { return cubicBezier(0.42, 0, 0.58, 1, t) }

// cubicBezier evaluates the CSS cubic-bezier timing function with control
// points (x1, y1) and (x2, y2) at x.
func cubicBezier(x1, y1, x2, y2, x float64) float64 {
	switch {
	case x <= 0:
		return 0
	case x >= 1:
		return 1
	}
	// Bezier with P0=0 and P3=1 on each axis.
	bez := func(p1, p2, t float64) float64 {
		u := 1 - t
		return 3*u*u*t*p1 + 3*u*t*t*p2 + t*t*t
	}
	dbez := func(p1, p2, t float64) float64 {
		u := 1 - t
		return 3*u*u*p1 + 6*u*t*(p2-p1) + 3*t*t*(1-p2)
	}
	// Newton's method, falling back to bisection when
	// the slope is too flat to converge.
	t := x
	for range 8 {
		dx := bez(x1, x2, t) - x
		if math.Abs(dx) < 1e-7 {
			return bez(y1, y2, t)
		}
		d := dbez(x1, x2, t)
		if math.Abs(d) < 1e-6 {
			break
		}
		t -= dx / d
	}
	lo, hi := 0.0, 1.0
	t = x
	for range 50 {
		v := bez(x1, x2, t)
		if math.Abs(v-x) < 1e-7 {
			break
		}
		if v < x {
			lo = t
		} else {
			hi = t
		}
		t = (lo + hi) / 2
	}
	return bez(y1, y2, t)
}

// Sprite is a slot as it should be painted at a moment in time.
type Sprite struct {
	Slot    int
	Image   *backdrop.Image
	X, Y    float64
	Opacity float64
}

// tween is a value transitioning from one value to another.
type tween struct {
	from, to float64
	start    time.Time
}

// at returns the tween's value at now for the given duration and easing.
func (tw tween) at(now time.Time, d time.Duration, ease Easing) float64 {
	if d <= 0 || !now.Before(tw.start.Add(d)) {
		return tw.to
	}
	p := float64(now.Sub(tw.start)) / float64(d)
	if p < 0 {
		p = 0
	}
	return tw.from + (tw.to-tw.from)*ease(p)
}

// retarget returns a tween to v starting from the current value at now.
// A tween already targeting v is left running.
func (tw tween) retarget(v float64, now time.Time, d time.Duration, ease Easing) tween {
	if tw.to == v {
		return tw
	}
	return tween{from: tw.at(now, d, ease), to: v, start: now}
}

type track struct {
	image   *backdrop.Image
	x, y    tween
	opacity tween
}

// Scene holds the transition state of a set of slots, in the manner of
// elements with CSS transitions on their position and opacity. A change
// of target starts a new transition from the current interpolated value.
// A slot appearing for the first time is placed at its target directly.
type Scene struct {
	// Transition and Move are the duration and timing
	// function for position transitions.
	Transition time.Duration
	Move       Easing
	// Fade and FadeEasing are the duration and timing
	// function for opacity transitions.
	Fade       time.Duration
	FadeEasing Easing
	// FadeIn causes slots to fade in from transparent
	// when their image changes. Otherwise slot opacity
	// is always one.
	FadeIn bool

	mu     sync.Mutex
	gen    uint64
	tracks []*track
}

// NewScene returns a Scene with the default transitions.
func NewScene() *Scene {
	return &Scene{
		Transition: DefaultTransition,
		Move:       Linear,
		Fade:       DefaultFade,
		FadeEasing: EaseInOut,
	}
}

// Update sets the scene's targets from st at time now.
func (s *Scene) Update(st *aquarium.State, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen = st.Generation
	if len(st.Slots) < len(s.tracks) {
		s.tracks = s.tracks[:len(st.Slots)]
	}
	for len(s.tracks) < len(st.Slots) {
		s.tracks = append(s.tracks, nil)
	}
	for i, slot := range st.Slots {
		tr := s.tracks[i]
		if slot.Empty() {
			s.tracks[i] = nil
			continue
		}
		p := slot.Position
		if tr == nil {
			s.tracks[i] = &track{
				image:   slot.Image,
				x:       tween{from: p.X, to: p.X, start: now},
				y:       tween{from: p.Y, to: p.Y, start: now},
				opacity: tween{from: 1, to: 1, start: now},
			}
			continue
		}
		if tr.image != slot.Image {
			tr.image = slot.Image
			if s.FadeIn {
				tr.opacity = tween{from: 0, to: 1, start: now}
			}
		}
		tr.x = tr.x.retarget(p.X, now, s.Transition, s.move())
		tr.y = tr.y.retarget(p.Y, now, s.Transition, s.move())
	}
}

// Generation returns the generation of the last state used to update
// the scene.
func (s *Scene) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Sprites returns the sprites to paint at time now in slot order.
// Empty slots are omitted.
func (s *Scene) Sprites(now time.Time) []Sprite {
	s.mu.Lock()
	defer s.mu.Unlock()
	sprites := make([]Sprite, 0, len(s.tracks))
	for i, tr := range s.tracks {
		if tr == nil {
			continue
		}
		sprites = append(sprites, Sprite{
			Slot:    i,
			Image:   tr.image,
			X:       tr.x.at(now, s.Transition, s.move()),
			Y:       tr.y.at(now, s.Transition, s.move()),
			Opacity: tr.opacity.at(now, s.Fade, s.fade()),
		})
	}
	return sprites
}

func (s *Scene) move() Easing {
	if s.Move == nil {
		return Linear
	}
	return s.Move
}

func (s *Scene) fade() Easing {
	if s.FadeEasing == nil {
		return EaseInOut
	}
	return s.FadeEasing
}
