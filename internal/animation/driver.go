// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"sync"
	"time"
)

// System is a Clock backed by the runtime timers.
type System struct{}

// Interval returns a Driver backed by a time.Ticker.
func (System) Interval(period time.Duration) Driver {
	return interval{time.NewTicker(period)}
}

// Frames returns a Driver backed by a re-armed time.Timer.
func (System) Frames(period time.Duration) Driver {
	return &frames{period: period}
}

type interval struct {
	*time.Ticker
}

func (t interval) Next() <-chan time.Time { return t.C }

type frames struct {
	period time.Duration
	timer  *time.Timer
}

func (f *frames) Next() <-chan time.Time {
	if f.timer == nil {
		f.timer = time.NewTimer(f.period)
	} else {
		f.timer.Reset(f.period)
	}
	return f.timer.C
}

func (f *frames) Stop() {
	if f.timer != nil {
		f.timer.Stop()
	}
}

// Manual is a Clock whose ticks are sent explicitly by a caller. It is
// intended for deterministic testing of animation loops.
//
// All Interval drivers returned by a Manual share the Ticks channel
// and all Frames drivers share the Frame channel. Sends on the channels
// block until a driver's owner receives the tick.
type Manual struct {
	Ticks  chan time.Time
	Frame  chan time.Time
	mu     sync.Mutex
	armed  int
	stops  int
	period []time.Duration
}

// NewManual returns a new Manual clock.
func NewManual() *Manual {
	return &Manual{
		Ticks: make(chan time.Time),
		Frame: make(chan time.Time),
	}
}

// Interval returns a Driver receiving from m.Ticks.
func (m *Manual) Interval(period time.Duration) Driver {
	m.mu.Lock()
	m.period = append(m.period, period)
	m.mu.Unlock()
	return &manual{clock: m, c: m.Ticks}
}

// Frames returns a Driver receiving from m.Frame.
func (m *Manual) Frames(period time.Duration) Driver {
	m.mu.Lock()
	m.period = append(m.period, period)
	m.mu.Unlock()
	return &manual{clock: m, c: m.Frame, frame: true}
}

// Periods returns the periods requested of m in order of request.
func (m *Manual) Periods() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.period...)
}

// Armed returns the number of times a frame driver has been armed.
func (m *Manual) Armed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Stopped returns the number of drivers that have been stopped.
func (m *Manual) Stopped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

type manual struct {
	clock *Manual
	c     chan time.Time
	frame bool
}

func (d *manual) Next() <-chan time.Time {
	if d.frame {
		d.clock.mu.Lock()
		d.clock.armed++
		d.clock.mu.Unlock()
	}
	return d.c
}

func (d *manual) Stop() {
	d.clock.mu.Lock()
	d.clock.stops++
	d.clock.mu.Unlock()
}
