// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package render

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"time"

	svg "github.com/ajstarks/svgo"

	"github.com/kortschak/aquarium/internal/aquarium"
)

// Snapshot is a Renderer that writes the final scene as an SVG document
// with embedded images when it is closed.
type Snapshot struct {
	Path       string
	Scene      *Scene
	Viewport   aquarium.Viewport
	Background color.Color
	// Now is the time source for the scene.
	// If nil, time.Now is used.
	Now func() time.Time
}

func (s *Snapshot) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Present updates the snapshot's scene.
func (s *Snapshot) Present(st *aquarium.State) {
	s.Scene.Update(st, s.now())
}

// Progress is a no-op.
func (s *Snapshot) Progress(float64) {}

// Close writes the snapshot to its path.
func (s *Snapshot) Close() error {
	return writeLocked(s.Path, s.Encode)
}

// Encode writes an SVG rendering of the scene at the current time to w.
func (s *Snapshot) Encode(w io.Writer) error {
	bg := s.Background
	if bg == nil {
		bg = color.White
	}
	width := int(math.Round(s.Viewport.Width))
	height := int(math.Round(s.Viewport.Height))
	box := int(math.Round(s.Viewport.Box))

	canvas := svg.New(w)
	canvas.Start(width, height)
	canvas.Title("Aquarium")
	canvas.Rect(0, 0, width, height, "fill:"+hex(bg))
	for _, sp := range s.Scene.Sprites(s.now()) {
		uri := sp.Image.URI()
		if uri == "" {
			continue
		}
		canvas.Image(
			int(math.Round(sp.X)), int(math.Round(sp.Y)), box, box, uri,
			`preserveAspectRatio="xMidYMid slice"`,
			fmt.Sprintf("opacity:%.2f", sp.Opacity),
		)
	}
	canvas.End()
	return nil
}

func hex(c color.Color) string {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return fmt.Sprintf("#%02x%02x%02x", n.R, n.G, n.B)
}
