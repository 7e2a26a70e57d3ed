// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package text draws captions onto raster aquarium frames using
// [basicfont.Face] fonts.
package text

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/bbrks/wrap/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Face is the default caption face.
var Face = basicfont.Face7x13

// Size returns the number of text rows and columns that fit in bound.
func Size(bound image.Rectangle, fnt *basicfont.Face) (rows, cols int) {
	return bound.Dy() / fnt.Height, bound.Dx() / fnt.Advance
}

// Lines breaks text into lines that fit in bound. If words is true,
// lines are broken at word boundaries where possible. Text that does
// not fit is truncated with an ellipsis.
func Lines(bound image.Rectangle, text string, fnt *basicfont.Face, words bool) []string {
	rows, cols := Size(bound, fnt)
	if rows <= 0 || cols <= 0 {
		return nil
	}

	var lines []string
	if words {
		w := wrap.NewWrapper()
		w.StripTrailingNewline = true
		w.CutLongWords = true
		for _, l := range strings.Split(w.Wrap(text, cols), "\n") {
			lines = append(lines, strings.TrimSpace(l))
		}
	} else {
		t := []rune(text)
		for len(t) != 0 {
			n := min(cols, len(t))
			lines = append(lines, string(t[:n]))
			t = t[n:]
		}
	}

	if len(lines) > rows {
		lines = lines[:rows]
		last := []rune(lines[rows-1])
		if n := cols - len("..."); len(last) > n {
			last = last[:max(0, n)]
		}
		lines[rows-1] = string(last) + "..."
	}
	return lines
}

// Draw draws text to dst in col. The relative position of the text block
// is given by dx and dy which must be in [0, 1]; {0, 0} places the text at
// the top left and {0.5, 0.5} centres it.
func Draw(dst draw.Image, text string, col color.Color, fnt *basicfont.Face, dx, dy float64, words bool) {
	lines := Lines(dst.Bounds(), text, fnt, words)
	if len(lines) == 0 {
		return
	}
	min := dst.Bounds().Min
	dot := func(i int) fixed.Point26_6 {
		return fixed.P(min.X, min.Y+fnt.Ascent+fnt.Height*i)
	}
	if dx != 0 || dy != 0 {
		ink := newBounds(dst)
		for i, l := range lines {
			ink.measure(l, fnt, dot(i))
		}
		dst = ink.offset(dst, dx, dy)
	}
	fg := &image.Uniform{col}
	for i, l := range lines {
		d := font.Drawer{Dst: dst, Src: fg, Face: fnt, Dot: dot(i)}
		d.DrawString(l)
	}
}

// Caption draws text centred over dst in col with a single pixel outline
// in outline so that it is legible over any backdrop.
func Caption(dst draw.Image, text string, col, outline color.Color) {
	b := dst.Bounds()
	layer := Outlined[*image.RGBA]{
		Text:         image.NewRGBA(b),
		Background:   image.NewRGBA(b),
		OutlineColor: outline,
	}
	Draw(Shrink{Image: layer, Margin: 1}, text, col, Face, 0.5, 0.5, true)
	draw.Draw(dst, b, layer, b.Min, draw.Over)
}

// Outlined is an image that renders a single pixel width outline
// around a drawing.
type Outlined[T draw.Image] struct {
	Text       T
	Background T

	OutlineColor color.Color
}

func (o Outlined[T]) Set(x, y int, c color.Color) {
	o.Text.Set(x, y, c)
	for i := -1; i <= 1; i++ {
		o.Background.Set(x+i, y, o.OutlineColor)
	}
	for i := -1; i <= 1; i += 2 {
		o.Background.Set(x, y+i, o.OutlineColor)
	}
}

// At returns the text colour composited over the outline.
func (o Outlined[T]) At(x, y int) color.Color {
	// m is the maximum color value returned by image.Color.RGBA.
	const m = 1<<16 - 1

	rT, gT, bT, aT := o.Text.At(x, y).RGBA()
	rO, gO, bO, aO := o.Background.At(x, y).RGBA()
	a := m - aT
	return color.RGBA64{
		R: uint16(rO*a/m + rT),
		G: uint16(gO*a/m + gT),
		B: uint16(bO*a/m + bT),
		A: uint16(aO*a/m + aT),
	}
}

func (o Outlined[T]) Bounds() image.Rectangle {
	return o.Text.Bounds().Intersect(o.Background.Bounds())
}

func (o Outlined[T]) ColorModel() color.Model {
	return color.RGBA64Model
}

// Shrink reduces the bounds of an Image by a margin.
type Shrink struct {
	draw.Image

	// Margin is the margin size in pixels.
	Margin int
}

func (s Shrink) Bounds() image.Rectangle {
	return s.Image.Bounds().Inset(s.Margin)
}

// bounds accumulates the ink bounds of drawn text.
type bounds image.Rectangle

func newBounds(dst draw.Image) *bounds {
	b := bounds(image.Rectangle{Min: dst.Bounds().Max, Max: dst.Bounds().Min})
	return &b
}

func (b *bounds) measure(s string, fnt font.Face, dot fixed.Point26_6) {
	prev := rune(-1)
	for _, c := range s {
		if prev >= 0 {
			dot.X += fnt.Kern(prev, c)
		}
		dr, _, _, advance, ok := fnt.Glyph(dot, c)
		if !ok {
			continue
		}
		b.include(dr.Min)
		b.include(dr.Max)
		dot.X += advance
		prev = c
	}
}

func (b *bounds) include(p image.Point) {
	b.Min.X = min(b.Min.X, p.X)
	b.Min.Y = min(b.Min.Y, p.Y)
	b.Max.X = max(b.Max.X, p.X)
	b.Max.Y = max(b.Max.Y, p.Y)
}

func (b *bounds) offset(img draw.Image, dx, dy float64) draw.Image {
	d := img.Bounds().Max.Sub(b.Max)
	return offset{Image: img, offset: image.Point{X: int(float64(d.X) * dx), Y: int(float64(d.Y) * dy)}}
}

type offset struct {
	draw.Image
	offset image.Point
}

func (o offset) Set(x, y int, c color.Color) {
	o.Image.Set(x+o.offset.X, y+o.offset.Y, c)
}

func (o offset) At(x, y int) color.Color {
	return o.Image.At(x+o.offset.X, y+o.offset.Y)
}
