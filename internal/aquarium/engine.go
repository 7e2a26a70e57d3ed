// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aquarium

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kortschak/aquarium/internal/animation"
	"github.com/kortschak/aquarium/internal/backdrop"
)

// Sink receives each new aquarium state. Present is called from the
// engine's goroutine and must not retain st's slots for mutation. Long
// running work should be handed off.
type Sink interface {
	Present(st *State)
}

// SinkFunc is a function implementing Sink.
type SinkFunc func(*State)

func (f SinkFunc) Present(st *State) { f(st) }

const (
	// DefaultInterval is the default slot rotation period.
	DefaultInterval = 2 * time.Second
	// DefaultFrameRate is the default drift frame rate.
	DefaultFrameRate = 60
)

// Engine runs the rotation and drift transitions for a single pool
// and slot count.
type Engine struct {
	Scheduler *Scheduler
	Simulator *Simulator

	// Clock provides the rotation interval and
	// frame drivers.
	Clock animation.Clock
	// Interval is the rotation period.
	Interval time.Duration
	// FramePeriod is the delay between the end of
	// one drift frame and the start of the next.
	FramePeriod time.Duration

	Sink Sink
	Log  *slog.Logger

	current atomic.Pointer[State]
}

// State returns the most recently published state, or nil if no
// state has been published.
func (e *Engine) State() *State {
	return e.current.Load()
}

// Run initialises a state for pool in n slots and then applies rotation
// ticks and drift frames until ctx is cancelled. Rotation and drift are
// applied sequentially from the calling goroutine. Each resulting state
// is published to the engine's Sink. If the initial state has no slots,
// no ticks are started and Run waits for ctx to be cancelled. Run always
// returns a non-nil error, the cause of ctx's cancellation.
func (e *Engine) Run(ctx context.Context, gen uint64, pool []*backdrop.Image, n int) error {
	st := e.Scheduler.Init(gen, pool, n)
	e.publish(st)
	log := e.Log.With(slog.Uint64("generation", gen))
	if len(st.Slots) == 0 {
		log.LogAttrs(ctx, slog.LevelInfo, "empty aquarium", slog.Int("pool", len(pool)), slog.Int("slots", n))
		<-ctx.Done()
		return context.Cause(ctx)
	}
	log.LogAttrs(ctx, slog.LevelInfo, "start aquarium", slog.Int("pool", len(pool)), slog.Int("slots", n), slog.Duration("interval", e.Interval))

	interval := e.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	rotation := e.Clock.Interval(interval)
	defer rotation.Stop()
	period := e.FramePeriod
	if period <= 0 {
		period = time.Second / DefaultFrameRate
	}
	frames := e.Clock.Frames(period)
	defer frames.Stop()

	frame := frames.Next()
	for {
		select {
		case <-ctx.Done():
			log.LogAttrs(ctx, slog.LevelDebug, "stop aquarium", slog.Uint64("ticks", st.Ticks), slog.Uint64("frames", st.Frames))
			return context.Cause(ctx)
		case <-rotation.Next():
			st = e.Scheduler.Rotate(st)
			log.LogAttrs(ctx, slog.LevelDebug, "rotate", slog.Int("slot", (st.Next+len(st.Slots)-1)%len(st.Slots)), slog.Uint64("tick", st.Ticks))
			e.publish(st)
		case <-frame:
			st = e.Simulator.Drift(st)
			e.publish(st)
			frame = frames.Next()
		}
	}
}

func (e *Engine) publish(st State) {
	e.current.Store(&st)
	if e.Sink != nil {
		e.Sink.Present(&st)
	}
}
