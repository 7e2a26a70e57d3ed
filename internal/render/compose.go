// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"
)

// ParseColor parses a "#rrggbb" or "#rgb" colour. The empty string is
// parsed as white.
func ParseColor(s string) (color.Color, error) {
	if s == "" {
		return color.White, nil
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return nil, fmt.Errorf("invalid colour: %w", err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// Cover returns the central square of b, the part of an image shown in a
// square box when the image is fitted to cover the box.
func Cover(b image.Rectangle) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	side := min(w, h)
	x := b.Min.X + (w-side)/2
	y := b.Min.Y + (h-side)/2
	return image.Rect(x, y, x+side, y+side)
}

// Compose paints bg over dst and then draws each sprite into a square of
// side box at its position. Sprite coordinates and box are multiplied by
// scale to obtain dst coordinates. Images are scaled to cover their box
// and drawn over the background with their alpha and opacity.
func Compose(dst draw.Image, sprites []Sprite, box, scale float64, bg color.Color) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	side := int(math.Round(box * scale))
	if side <= 0 {
		return
	}
	for _, s := range sprites {
		if s.Image == nil || s.Opacity <= 0 {
			continue
		}
		src := s.Image.Pixels()
		if src == nil {
			continue
		}
		x := dst.Bounds().Min.X + int(math.Round(s.X*scale))
		y := dst.Bounds().Min.Y + int(math.Round(s.Y*scale))
		dr := image.Rect(x, y, x+side, y+side)
		var opts *draw.Options
		if s.Opacity < 1 {
			opts = &draw.Options{
				DstMask: image.NewUniform(color.Alpha{A: uint8(math.Round(s.Opacity * 0xff))}),
			}
		}
		draw.ApproxBiLinear.Scale(dst, dr, src, Cover(src.Bounds()), draw.Over, opts)
	}
}
