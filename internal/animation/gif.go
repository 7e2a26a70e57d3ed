// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"io"
	"time"

	"golang.org/x/image/draw"
)

// GIF is an animated GIF under construction.
type GIF struct {
	*gif.GIF

	// Palette is the palette used to quantise frames.
	// If Palette is nil, palette.Plan9 is used.
	Palette color.Palette

	bounds image.Rectangle
}

// NewGIF returns an empty GIF with the provided frame bounds and loop
// count. A LoopCount of 0 means to loop forever.
func NewGIF(bounds image.Rectangle, loopCount int) *GIF {
	return &GIF{
		GIF: &gif.GIF{
			LoopCount: loopCount,
			Config: image.Config{
				Width:  bounds.Dx(),
				Height: bounds.Dy(),
			},
		},
		bounds: bounds,
	}
}

// Add quantises frame and appends it to the animation with the provided
// display delay. GIF delays have a resolution of 10ms.
func (g *GIF) Add(frame image.Image, delay time.Duration) error {
	if frame.Bounds() != g.bounds {
		return fmt.Errorf("mismatched bounds at %d: %v != %v", len(g.Image), frame.Bounds(), g.bounds)
	}
	pal := g.Palette
	if pal == nil {
		pal = palette.Plan9
	}
	dst := image.NewPaletted(g.bounds, pal)
	draw.FloydSteinberg.Draw(dst, g.bounds, frame, g.bounds.Min)
	g.Image = append(g.Image, dst)
	g.Delay = append(g.Delay, int(delay/(10*time.Millisecond)))
	return nil
}

// Len returns the number of frames in the animation.
func (g *GIF) Len() int {
	return len(g.Image)
}

// Encode writes the animation to w.
func (g *GIF) Encode(w io.Writer) error {
	if len(g.Image) == 0 {
		return errors.New("no frames")
	}
	return gif.EncodeAll(w, g.GIF)
}
