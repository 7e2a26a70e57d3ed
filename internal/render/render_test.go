// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"

	"github.com/kortschak/aquarium/internal/animation"
	"github.com/kortschak/aquarium/internal/aquarium"
	"github.com/kortschak/aquarium/internal/backdrop"
	"github.com/kortschak/aquarium/internal/locked"
	"github.com/kortschak/aquarium/internal/slogext"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func solid(t *testing.T, name string, w, h int, c color.NRGBA) *backdrop.Image {
	t.Helper()
	pix := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix.SetNRGBA(x, y, c)
		}
	}
	img, err := backdrop.New(name, name, pix)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return img
}

func state(gen uint64, slots ...aquarium.Slot) *aquarium.State {
	return &aquarium.State{Generation: gen, Slots: slots}
}

func slot(img *backdrop.Image, x, y float64) aquarium.Slot {
	return aquarium.Slot{Image: img, Position: aquarium.Position{X: x, Y: y, Speed: 1}}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestEasing(t *testing.T) {
	for _, ease := range []struct {
		name string
		fn   Easing
	}{
		{"linear", Linear},
		{"ease_in_out", EaseInOut},
	} {
		if got := ease.fn(0); !near(got, 0) {
			t.Errorf("%s(0) = %v", ease.name, got)
		}
		if got := ease.fn(1); !near(got, 1) {
			t.Errorf("%s(1) = %v", ease.name, got)
		}
		if got := ease.fn(0.5); !near(got, 0.5) {
			t.Errorf("%s(0.5) = %v", ease.name, got)
		}
		prev := 0.0
		for i := 1; i <= 100; i++ {
			v := ease.fn(float64(i) / 100)
			if v < prev-1e-9 {
				t.Errorf("%s not monotonic at %d: %v < %v", ease.name, i, v, prev)
			}
			prev = v
		}
	}
	if v := EaseInOut(0.1); v >= 0.1 {
		t.Errorf("ease-in-out does not ease in: f(0.1)=%v", v)
	}
	if v := EaseInOut(0.9); v <= 0.9 {
		t.Errorf("ease-in-out does not ease out: f(0.9)=%v", v)
	}
}

func TestScene(t *testing.T) {
	a := solid(t, "a", 2, 2, color.NRGBA{R: 0xff, A: 0xff})
	b := solid(t, "b", 2, 2, color.NRGBA{B: 0xff, A: 0xff})
	s := NewScene()

	check := func(at time.Time, want []Sprite) {
		t.Helper()
		got := s.Sprites(at)
		if !cmp.Equal(got, want, cmp.Comparer(func(x, y *backdrop.Image) bool { return x == y }), cmp.Comparer(func(x, y float64) bool { return near(x, y) })) {
			t.Errorf("unexpected sprites at %v:\n--- want:\n+++ got:\n%s", at.Sub(t0), cmp.Diff(want, got, cmp.Comparer(func(x, y *backdrop.Image) bool { return x == y })))
		}
	}

	s.Update(state(1, slot(a, 0, 0), aquarium.Slot{}, slot(b, 10, 10)), t0)
	check(t0, []Sprite{
		{Slot: 0, Image: a, X: 0, Y: 0, Opacity: 1},
		{Slot: 2, Image: b, X: 10, Y: 10, Opacity: 1},
	})

	s.Update(state(1, slot(a, 100, 50), aquarium.Slot{}, slot(b, 10, 10)), t0)
	check(t0.Add(time.Second), []Sprite{
		{Slot: 0, Image: a, X: 50, Y: 25, Opacity: 1},
		{Slot: 2, Image: b, X: 10, Y: 10, Opacity: 1},
	})
	check(t0.Add(3*time.Second), []Sprite{
		{Slot: 0, Image: a, X: 100, Y: 50, Opacity: 1},
		{Slot: 2, Image: b, X: 10, Y: 10, Opacity: 1},
	})

	// Retargeting mid-transition restarts from the current value.
	s.Update(state(1, slot(a, 0, 0), aquarium.Slot{}, slot(b, 10, 10)), t0.Add(time.Second))
	check(t0.Add(2*time.Second), []Sprite{
		{Slot: 0, Image: a, X: 25, Y: 12.5, Opacity: 1},
		{Slot: 2, Image: b, X: 10, Y: 10, Opacity: 1},
	})

	// Shrinking drops slots.
	s.Update(state(2, slot(b, 0, 0)), t0.Add(4*time.Second))
	got := s.Sprites(t0.Add(4 * time.Second))
	if len(got) != 1 || got[0].Image != b {
		t.Errorf("unexpected sprites after shrink: %+v", got)
	}
	if s.Generation() != 2 {
		t.Errorf("unexpected generation: %d", s.Generation())
	}
}

func TestSceneFadeIn(t *testing.T) {
	a := solid(t, "a", 2, 2, color.NRGBA{R: 0xff, A: 0xff})
	b := solid(t, "b", 2, 2, color.NRGBA{B: 0xff, A: 0xff})
	s := NewScene()
	s.FadeIn = true
	s.Update(state(1, slot(a, 0, 0)), t0)
	s.Update(state(1, slot(b, 0, 0)), t0)
	for _, test := range []struct {
		at   time.Duration
		want float64
	}{
		{0, 0},
		{500 * time.Millisecond, 0.5},
		{time.Second, 1},
		{2 * time.Second, 1},
	} {
		got := s.Sprites(t0.Add(test.at))[0].Opacity
		if !near(got, test.want) {
			t.Errorf("unexpected opacity at %v: got:%v want:%v", test.at, got, test.want)
		}
	}
}

func TestCover(t *testing.T) {
	for _, test := range []struct {
		in, want image.Rectangle
	}{
		{in: image.Rect(0, 0, 20, 10), want: image.Rect(5, 0, 15, 10)},
		{in: image.Rect(0, 0, 10, 30), want: image.Rect(0, 10, 10, 20)},
		{in: image.Rect(2, 2, 6, 6), want: image.Rect(2, 2, 6, 6)},
	} {
		if got := Cover(test.in); got != test.want {
			t.Errorf("unexpected cover of %v: got:%v want:%v", test.in, got, test.want)
		}
	}
}

func TestCompose(t *testing.T) {
	red := color.NRGBA{R: 0xff, A: 0xff}
	blue := color.NRGBA{B: 0xff, A: 0xff}
	pix := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			if x < 10 {
				pix.SetNRGBA(x, y, red)
			} else {
				pix.SetNRGBA(x, y, blue)
			}
		}
	}
	img, err := backdrop.New("0", "split", pix)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bg, err := ParseColor("#102030")
	if err != nil {
		t.Fatalf("unexpected error parsing colour: %v", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, 40, 20))
	Compose(dst, []Sprite{
		{Image: img, X: 100, Y: 50, Opacity: 1},
		{Image: img, X: 300, Y: 100, Opacity: 0},
	}, 100, 0.1, bg)

	for _, test := range []struct {
		x, y int
		want color.RGBA
	}{
		{0, 0, color.RGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xff}},
		{11, 7, color.RGBA{R: 0xff, A: 0xff}},
		{18, 7, color.RGBA{B: 0xff, A: 0xff}},
		{35, 15, color.RGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xff}},
	} {
		if got := dst.RGBAAt(test.x, test.y); got != test.want {
			t.Errorf("unexpected pixel at (%d,%d): got:%v want:%v", test.x, test.y, got, test.want)
		}
	}

	if _, err := ParseColor("not a colour"); err == nil {
		t.Error("expected error for invalid colour")
	}
}

func testLogger() *slog.Logger {
	return slog.New(slogext.NewJSONHandler(&locked.BytesBuffer{}, &slogext.HandlerOptions{Level: slog.LevelDebug}))
}

func TestRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aquarium.gif")
	clock := animation.NewManual()
	vp := aquarium.Viewport{Width: 400, Height: 200, Box: 100}
	rec := &Recorder{
		Path:      path,
		Scene:     NewScene(),
		Viewport:  vp,
		Scale:     0.1,
		FrameRate: 10,
		Duration:  300 * time.Millisecond,
		Clock:     clock,
		Now:       func() time.Time { return t0 },
		Log:       testLogger(),
	}
	red := solid(t, "red", 4, 4, color.NRGBA{R: 0xff, A: 0xff})

	done := make(chan error)
	go func() { done <- rec.Run(context.Background()) }()

	rec.Present(state(1))
	rec.Present(state(1, slot(red, 0, 0)))
	for i := range 3 {
		clock.Ticks <- t0.Add(time.Duration(i) * 100 * time.Millisecond)
	}
	err := <-done
	if err != nil {
		t.Fatalf("unexpected error recording: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("unexpected error opening recording: %v", err)
	}
	defer f.Close()
	g, err := gif.DecodeAll(f)
	if err != nil {
		t.Fatalf("unexpected error decoding recording: %v", err)
	}
	if len(g.Image) != 3 {
		t.Errorf("unexpected frame count: got:%d want:3", len(g.Image))
	}
	if !cmp.Equal(g.Delay, []int{10, 10, 10}) {
		t.Errorf("unexpected delays: %v", g.Delay)
	}
	if b := g.Image[0].Bounds(); b != image.Rect(0, 0, 40, 20) {
		t.Errorf("unexpected frame bounds: %v", b)
	}
	if _, err := os.Stat(path + ".lock"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("lock file not removed: %v", err)
	}
}

func TestRecorderCancelled(t *testing.T) {
	rec := &Recorder{Scene: NewScene(), Clock: animation.NewManual(), Log: testLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := rec.Run(ctx)
	if err != nil {
		t.Errorf("unexpected error for recording cancelled before start: %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	vp := aquarium.Viewport{Width: 400, Height: 200, Box: 100}
	bg, _ := ParseColor("#102030")
	snap := &Snapshot{
		Path:       filepath.Join(t.TempDir(), "aquarium.svg"),
		Scene:      NewScene(),
		Viewport:   vp,
		Background: bg,
		Now:        func() time.Time { return t0 },
	}
	red := solid(t, "red", 4, 4, color.NRGBA{R: 0xff, A: 0xff})
	snap.Present(state(1, slot(red, 12, 34), aquarium.Slot{}))

	var buf bytes.Buffer
	err := snap.Encode(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := buf.String()
	for _, want := range []string{
		`<svg`,
		`width="400"`,
		`fill:#102030`,
		`<image x="12" y="34" width="100" height="100"`,
		`data:image/png;base64,`,
		`preserveAspectRatio="xMidYMid slice"`,
		`opacity:1.00`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("snapshot missing %q:\n%s", want, got)
		}
	}
	if n := strings.Count(got, "<image"); n != 1 {
		t.Errorf("unexpected image count: got:%d want:1", n)
	}

	err = snap.Close()
	if err != nil {
		t.Fatalf("unexpected error writing snapshot: %v", err)
	}
	b, err := os.ReadFile(snap.Path)
	if err != nil {
		t.Fatalf("unexpected error reading snapshot: %v", err)
	}
	if !bytes.Equal(b, buf.Bytes()) {
		t.Error("written snapshot differs from encoded snapshot")
	}
}

func TestWriteLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	fl := flock.New(path + ".lock")
	ok, err := fl.TryLock()
	if err != nil || !ok {
		t.Fatalf("failed to take lock: ok=%t err=%v", ok, err)
	}
	defer fl.Unlock()
	err = writeLocked(path, func(w io.Writer) error { return nil })
	if !errors.Is(err, ErrLocked) {
		t.Errorf("unexpected error: got:%v want:%v", err, ErrLocked)
	}
}

func TestTerminal(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	var quit bool
	term, err := NewTerminal(screen, NewScene(), TerminalOptions{
		Viewport:   aquarium.Viewport{Width: 800, Height: 240, Box: 100},
		Background: color.White,
		Clock:      animation.NewManual(),
		Quit:       func() { quit = true },
		Now:        func() time.Time { return t0 },
	}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer term.Close()
	screen.SetSize(80, 24)

	term.Progress(42)
	term.Draw(t0)
	if r, _, _, _ := screen.GetContent(0, 12); r != '█' {
		t.Errorf("unexpected progress bar start: %q", r)
	}
	if r, _, _, _ := screen.GetContent(79, 12); r != '░' {
		t.Errorf("unexpected progress bar end: %q", r)
	}

	red := solid(t, "red.png", 4, 4, color.NRGBA{R: 0xff, A: 0xff})
	term.Progress(100)
	term.Present(state(1, slot(red, 100, 50)))
	term.Draw(t0)
	r, _, style, _ := screen.GetContent(12, 8)
	if r != '█' {
		t.Errorf("unexpected sprite cell: %q", r)
	}
	fg, _, _ := style.Decompose()
	if r, g, b := fg.RGB(); r <= g || r <= b {
		t.Errorf("unexpected sprite colour: got:%v want red", fg)
	}
	if r, _, _, _ := screen.GetContent(10, 5); r != 'r' {
		t.Errorf("unexpected sprite label: %q", r)
	}
	if r, _, _, _ := screen.GetContent(30, 20); r == '█' {
		t.Error("unexpected sprite cell outside box")
	}

	term.Present(state(2))
	term.Draw(t0)
	if r, _, _, _ := screen.GetContent(38, 12); r != 'i' {
		t.Errorf("missing empty aquarium message: %q", r)
	}

	term.handle(context.Background(), tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone))
	if !quit {
		t.Error("quit not requested")
	}
}

type recordingRenderer struct {
	states   int
	progress []float64
	closed   bool
}

func (r *recordingRenderer) Present(*aquarium.State) { r.states++ }
func (r *recordingRenderer) Progress(p float64)      { r.progress = append(r.progress, p) }
func (r *recordingRenderer) Close() error {
	r.closed = true
	return errors.New("close")
}

func TestMulti(t *testing.T) {
	a, b := &recordingRenderer{}, &recordingRenderer{}
	m := Multi{a, b}
	m.Present(state(1))
	m.Progress(50)
	err := m.Close()
	if err == nil {
		t.Error("expected joined close error")
	}
	for _, r := range []*recordingRenderer{a, b} {
		if r.states != 1 || !cmp.Equal(r.progress, []float64{50}) || !r.closed {
			t.Errorf("unexpected renderer state: %+v", r)
		}
	}
}
