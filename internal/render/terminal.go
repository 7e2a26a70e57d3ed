// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package render

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"path"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/kortschak/aquarium/internal/animation"
	"github.com/kortschak/aquarium/internal/aquarium"
)

// Terminal is a Renderer that paints the aquarium on a terminal screen.
// Each slot is drawn as a block of cells in its image's dominant colour.
type Terminal struct {
	screen   tcell.Screen
	scene    *Scene
	viewport aquarium.Viewport
	bg       colorful.Color
	clock    animation.Clock
	period   time.Duration
	quit     func()
	now      func() time.Time
	log      *slog.Logger

	mu       sync.Mutex
	progress float64
	loaded   bool
	closed   bool
}

// TerminalOptions are options for a Terminal.
type TerminalOptions struct {
	Viewport   aquarium.Viewport
	Background color.Color
	// Clock and FramePeriod determine the repaint rate.
	Clock       animation.Clock
	FramePeriod time.Duration
	// Quit is called when the user requests to quit.
	Quit func()
	// Now is the time source for the scene.
	// If nil, time.Now is used.
	Now func() time.Time
}

// NewTerminal initialises screen and returns a Terminal painting scene
// on it.
func NewTerminal(screen tcell.Screen, scene *Scene, opts TerminalOptions, log *slog.Logger) (*Terminal, error) {
	err := screen.Init()
	if err != nil {
		return nil, err
	}
	bg := opts.Background
	if bg == nil {
		bg = color.White
	}
	bgc, _ := colorful.MakeColor(bg)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	quit := opts.Quit
	if quit == nil {
		quit = func() {}
	}
	period := opts.FramePeriod
	if period <= 0 {
		period = time.Second / 30
	}
	screen.SetStyle(tcell.StyleDefault.Background(tcellColor(bgc)))
	screen.Clear()
	return &Terminal{
		screen:   screen,
		scene:    scene,
		viewport: opts.Viewport,
		bg:       bgc,
		clock:    opts.Clock,
		period:   period,
		quit:     quit,
		now:      now,
		log:      log.With(slog.String("component", "terminal")),
	}, nil
}

// Present updates the terminal's scene.
func (t *Terminal) Present(st *aquarium.State) {
	t.scene.Update(st, t.now())
	t.mu.Lock()
	t.loaded = true
	t.mu.Unlock()
}

// Progress records load progress for display.
func (t *Terminal) Progress(percent float64) {
	t.mu.Lock()
	t.progress = percent
	if percent < 100 {
		t.loaded = false
	}
	t.mu.Unlock()
}

// Close restores the terminal.
func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.screen.Fini()
	return nil
}

// Run repaints the screen every frame period and handles input until ctx
// is cancelled or the terminal is closed.
func (t *Terminal) Run(ctx context.Context) error {
	events := make(chan tcell.Event, 16)
	go func() {
		defer close(events)
		for {
			ev := t.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	frames := t.clock.Frames(t.period)
	defer frames.Stop()
	frame := frames.Next()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			t.handle(ctx, ev)
		case now := <-frame:
			t.Draw(now)
			frame = frames.Next()
		}
	}
}

func (t *Terminal) handle(ctx context.Context, ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || (ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
			t.log.LogAttrs(ctx, slog.LevelInfo, "quit requested")
			t.quit()
		}
	case *tcell.EventResize:
		t.screen.Sync()
	}
}

// Draw paints the scene at time now.
func (t *Terminal) Draw(now time.Time) {
	t.mu.Lock()
	progress, loaded, closed := t.progress, t.loaded, t.closed
	t.mu.Unlock()
	if closed {
		return
	}

	t.screen.Clear()
	cols, rows := t.screen.Size()
	if cols <= 0 || rows <= 0 {
		return
	}
	if !loaded && progress > 0 {
		t.drawProgress(cols, rows, progress)
		t.screen.Show()
		return
	}

	sprites := t.scene.Sprites(now)
	if len(sprites) == 0 {
		t.text((cols-len("no images"))/2, rows/2, "no images", tcell.StyleDefault.Background(tcellColor(t.bg)).Foreground(tcell.ColorGray))
		t.screen.Show()
		return
	}
	sx := float64(cols) / t.viewport.Width
	sy := float64(rows) / t.viewport.Height
	w := max(1, int(math.Round(t.viewport.Box*sx)))
	h := max(1, int(math.Round(t.viewport.Box*sy)))
	for _, sp := range sprites {
		c, ok := colorful.MakeColor(sp.Image.Dominant())
		if !ok {
			continue
		}
		c = t.bg.BlendRgb(c, min(max(sp.Opacity, 0), 1))
		style := tcell.StyleDefault.Foreground(tcellColor(c)).Background(tcellColor(t.bg))
		x0 := int(math.Round(sp.X * sx))
		y0 := int(math.Round(sp.Y * sy))
		for y := y0; y < y0+h && y < rows; y++ {
			for x := x0; x < x0+w && x < cols; x++ {
				t.screen.SetContent(x, y, '█', nil, style)
			}
		}
		if w > 2 {
			label := path.Base(sp.Image.Name)
			if len(label) > w {
				label = label[:w]
			}
			t.text(x0, y0, label, tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcellColor(c)))
		}
	}
	t.screen.Show()
}

func (t *Terminal) drawProgress(cols, rows int, progress float64) {
	label := fmt.Sprintf("loading %3.0f%%", progress)
	y := rows / 2
	t.text((cols-len(label))/2, y-1, label, tcell.StyleDefault.Background(tcellColor(t.bg)).Foreground(tcell.ColorBlack))
	filled := int(math.Round(progress / 100 * float64(cols)))
	for x := 0; x < cols; x++ {
		r := '░'
		if x < filled {
			r = '█'
		}
		t.screen.SetContent(x, y, r, nil, tcell.StyleDefault.Background(tcellColor(t.bg)).Foreground(tcell.ColorBlue))
	}
}

func (t *Terminal) text(x, y int, s string, style tcell.Style) {
	for i, r := range []rune(s) {
		t.screen.SetContent(max(0, x)+i, y, r, nil, style)
	}
}

func tcellColor(c colorful.Color) tcell.Color {
	r, g, b := c.RGB255()
	return tcell.NewRGBColor(int32(r), int32(g), int32(b))
}
