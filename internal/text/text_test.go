// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package text

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/image/draw"
)

var square = image.Rect(0, 0, 72, 72)

func TestSize(t *testing.T) {
	rows, cols := Size(square, Face)
	if rows != 5 || cols != 10 {
		t.Errorf("unexpected size: got:%dx%d want:5x10", rows, cols)
	}
}

func TestLines(t *testing.T) {
	for _, test := range []struct {
		name  string
		text  string
		rect  image.Rectangle
		words bool
		want  []string
	}{
		{name: "small", text: "text", rect: square, words: true, want: []string{"text"}},
		{name: "long_runes", text: "reallylongword", rect: square, want: []string{"reallylong", "word"}},
		{name: "too_small", text: "text", rect: image.Rect(0, 0, 4, 4), want: nil},
		{
			name: "truncated_runes",
			text: strings.Repeat("x", 60),
			rect: square,
			want: []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxxxxxxx", "xxxxxxxxxx", "xxxxxxx..."},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			got := Lines(test.rect, test.text, Face, test.words)
			if !cmp.Equal(test.want, got) {
				t.Errorf("unexpected lines:\n--- want:\n+++ got:\n%s", cmp.Diff(test.want, got))
			}
		})
	}
}

func TestLinesWords(t *testing.T) {
	const sentence = "Lorem ipsum dolor sit amet, consectetur adipisci elit, sed eiusmod tempor incidunt ut labore et dolore magna aliqua."
	rows, cols := Size(square, Face)
	lines := Lines(square, sentence, Face, true)
	if len(lines) != rows {
		t.Fatalf("unexpected line count: got:%d want:%d", len(lines), rows)
	}
	for i, l := range lines {
		if len([]rune(l)) > cols {
			t.Errorf("line %d too long: %q", i, l)
		}
	}
	if !strings.HasSuffix(lines[rows-1], "...") {
		t.Errorf("truncated text not marked: %q", lines[rows-1])
	}
	if !strings.HasPrefix(lines[0], "Lorem") {
		t.Errorf("unexpected first line: %q", lines[0])
	}
}

func TestDraw(t *testing.T) {
	// The ink of a single 7x13 glyph must fall within the glyph cell
	// placed at the requested relative position.
	for _, test := range []struct {
		name   string
		dx, dy float64
		cell   image.Rectangle
	}{
		{name: "topleft", dx: 0, dy: 0, cell: image.Rect(0, 0, 7, 13)},
		{name: "centered", dx: 0.5, dy: 0.5, cell: image.Rect(33, 29, 40, 42)},
		{name: "bottomright", dx: 1, dy: 1, cell: image.Rect(66, 59, 73, 72)},
	} {
		t.Run(test.name, func(t *testing.T) {
			dst := image.NewRGBA(square)
			draw.Draw(dst, dst.Bounds(), &image.Uniform{color.Black}, image.Point{}, draw.Src)
			Draw(dst, "A", color.White, Face, test.dx, test.dy, true)
			got := ink(dst, color.RGBA{A: 0xff})
			if got.Empty() {
				t.Fatal("no text drawn")
			}
			if !got.In(test.cell) {
				t.Errorf("text outside expected cell: got:%v want within:%v", got, test.cell)
			}
		})
	}
}

func TestCaption(t *testing.T) {
	blue := color.RGBA{B: 0xff, A: 0xff}
	dst := image.NewRGBA(square)
	draw.Draw(dst, dst.Bounds(), &image.Uniform{blue}, image.Point{}, draw.Src)
	Caption(dst, "no images", color.Black, color.White)

	var black, white int
	for y := dst.Rect.Min.Y; y < dst.Rect.Max.Y; y++ {
		for x := dst.Rect.Min.X; x < dst.Rect.Max.X; x++ {
			switch dst.RGBAAt(x, y) {
			case color.RGBA{A: 0xff}:
				black++
			case color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}:
				white++
			}
		}
	}
	if black == 0 {
		t.Error("no caption text drawn")
	}
	if white == 0 {
		t.Error("no caption outline drawn")
	}
	for _, p := range []image.Point{{0, 0}, {71, 0}, {0, 71}, {71, 71}} {
		if got := dst.RGBAAt(p.X, p.Y); got != blue {
			t.Errorf("backdrop overwritten at %v: got:%v", p, got)
		}
	}
	b := ink(dst, blue)
	if d := b.Min.Add(b.Max).Div(2).Sub(image.Pt(36, 36)); abs(d.X) > 6 || abs(d.Y) > 8 {
		t.Errorf("caption not centred: ink bounds %v", b)
	}
}

func TestShrink(t *testing.T) {
	s := Shrink{Image: image.NewRGBA(square), Margin: 2}
	want := image.Rect(2, 2, 70, 70)
	if got := s.Bounds(); got != want {
		t.Errorf("unexpected bounds: got:%v want:%v", got, want)
	}
}

// ink returns the bounds of pixels in img that differ from bg.
func ink(img *image.RGBA, bg color.RGBA) image.Rectangle {
	var r image.Rectangle
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		for x := img.Rect.Min.X; x < img.Rect.Max.X; x++ {
			if img.RGBAAt(x, y) != bg {
				r = r.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return r
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
