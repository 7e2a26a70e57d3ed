// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kortschak/aquarium/internal/animation"
	"github.com/kortschak/aquarium/internal/aquarium"
	"github.com/kortschak/aquarium/internal/slogext"
	"github.com/kortschak/aquarium/internal/text"
)

// Recorder is a Renderer that records the aquarium as an animated GIF.
type Recorder struct {
	// Path is the destination of the recording.
	Path string

	Scene    *Scene
	Viewport aquarium.Viewport
	// Scale is the ratio of recording pixels to
	// viewport units.
	Scale float64
	// FrameRate and Duration determine the number
	// of frames recorded.
	FrameRate int
	Duration  time.Duration

	Background color.Color

	// Clock provides the frame sampling driver.
	Clock animation.Clock
	// Now is the time source for scene updates.
	// If nil, time.Now is used.
	Now func() time.Time

	Log *slog.Logger

	once     sync.Once
	ready    chan struct{}
	progress atomic.Uint64 // math.Float64bits of the last percentage
}

func (r *Recorder) init() {
	r.once.Do(func() { r.ready = make(chan struct{}) })
}

func (r *Recorder) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// Present updates the recorder's scene. Recording begins with the first
// state that has slots.
func (r *Recorder) Present(st *aquarium.State) {
	r.init()
	r.Scene.Update(st, r.now())
	if len(st.Slots) != 0 {
		select {
		case <-r.ready:
		default:
			close(r.ready)
		}
	}
}

// Progress records load progress. Frames recorded while a load is in
// progress are captioned with the percentage.
func (r *Recorder) Progress(percent float64) {
	r.progress.Store(math.Float64bits(percent))
}

// Close is a no-op. The recording is written by Run.
func (r *Recorder) Close() error { return nil }

// Run waits for the first populated state and then samples the scene at
// the recorder's frame rate until the duration has been recorded or ctx
// is cancelled. The frames recorded are then written to the recorder's
// path.
func (r *Recorder) Run(ctx context.Context) error {
	r.init()
	select {
	case <-ctx.Done():
		return nil
	case <-r.ready:
	}

	rate := r.FrameRate
	if rate <= 0 {
		rate = 10
	}
	period := time.Second / time.Duration(rate)
	n := int(r.Duration / period)
	if n <= 0 {
		n = 1
	}
	scale := r.Scale
	if scale <= 0 {
		scale = 1
	}
	bg := r.Background
	if bg == nil {
		bg = color.White
	}
	bounds := image.Rect(0, 0,
		max(1, int(math.Round(r.Viewport.Width*scale))),
		max(1, int(math.Round(r.Viewport.Height*scale))),
	)
	r.Log.LogAttrs(ctx, slog.LevelInfo, "start recording", slog.String("path", r.Path), slog.Int("frames", n), slog.Any("bounds", slogext.Rect(bounds)))

	g := animation.NewGIF(bounds, 0)
	frame := image.NewRGBA(bounds)
	drv := r.Clock.Interval(period)
	defer drv.Stop()
loop:
	for g.Len() < n {
		select {
		case <-ctx.Done():
			break loop
		case t := <-drv.Next():
			sprites := r.Scene.Sprites(t)
			Compose(frame, sprites, r.Viewport.Box, scale, bg)
			if p := math.Float64frombits(r.progress.Load()); 0 < p && p < 100 {
				text.Caption(frame, fmt.Sprintf("loading %.0f%%", p), color.Black, bg)
			} else if len(sprites) == 0 {
				text.Caption(frame, "no images", color.Black, bg)
			}
			err := g.Add(frame, period)
			if err != nil {
				return err
			}
		}
	}
	if g.Len() == 0 {
		return errors.New("no frames recorded")
	}
	err := writeLocked(r.Path, g.Encode)
	if err != nil {
		return err
	}
	r.Log.LogAttrs(ctx, slog.LevelInfo, "wrote recording", slog.String("path", r.Path), slog.Int("frames", g.Len()))
	return nil
}
