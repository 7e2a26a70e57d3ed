// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package backdrop provides near-white background removal for raster images.
//
// Removal is a hard chroma threshold: any pixel with red, green and blue
// values all strictly greater than the threshold is made fully transparent
// and every other pixel is left untouched. There is no feathering at the
// mask edge.
package backdrop

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/cenkalti/dominantcolor"
	"golang.org/x/image/draw"
)

// DefaultThreshold is the channel value that all of red, green and blue
// must exceed for a pixel to be treated as background.
const DefaultThreshold = 240

// ErrDecode is returned wrapped when image data cannot be decoded.
var ErrDecode = errors.New("decode failure")

// Decode decodes a raster image from r, returning the image and the name
// of its format. Any failure is returned as an error wrapping ErrDecode.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, "", fmt.Errorf("%w: empty image: %v", ErrDecode, b)
	}
	return img, format, nil
}

// checkEvery is the number of rows processed between context checks.
const checkEvery = 64

// Remove returns a copy of src with all pixels having red, green and blue
// values greater than threshold made transparent. Pixels that are not
// background retain their non-premultiplied colour exactly when src is an
// *image.NRGBA; other image types are converted to non-premultiplied colour
// first. Remove returns an error if ctx is cancelled while processing.
func Remove(ctx context.Context, src image.Image, threshold uint8) (*image.NRGBA, error) {
	b := src.Bounds()
	dst := image.NewNRGBA(b)
	if n, ok := src.(*image.NRGBA); ok {
		w := 4 * b.Dx()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			copy(dst.Pix[dst.PixOffset(b.Min.X, y):][:w], n.Pix[n.PixOffset(b.Min.X, y):][:w])
		}
	} else {
		draw.Draw(dst, b, src, b.Min, draw.Src)
	}

	w := 4 * b.Dx()
	for y := 0; y < b.Dy(); y++ {
		if y%checkEvery == 0 {
			err := ctx.Err()
			if err != nil {
				return nil, err
			}
		}
		row := dst.Pix[y*dst.Stride:][:w]
		for i := 0; i < len(row); i += 4 {
			if row[i] > threshold && row[i+1] > threshold && row[i+2] > threshold {
				row[i+3] = 0
			}
		}
	}
	return dst, nil
}

// Process removes the background from src and returns the result as an
// Image with the provided identity.
func Process(ctx context.Context, id, name string, src image.Image, threshold uint8) (*Image, error) {
	pix, err := Remove(ctx, src, threshold)
	if err != nil {
		return nil, err
	}
	return New(id, name, pix)
}

// encoder is shared between all encodings; png.Encoder is safe for
// concurrent use when its BufferPool is.
var encoder = png.Encoder{
	CompressionLevel: png.BestSpeed,
	BufferPool:       &bufferPool{},
}

type bufferPool struct {
	pool sync.Pool
}

func (p *bufferPool) Get() *png.EncoderBuffer {
	b, _ := p.pool.Get().(*png.EncoderBuffer)
	return b
}

func (p *bufferPool) Put(b *png.EncoderBuffer) {
	p.pool.Put(b)
}

// Image is a processed image. It holds the masked pixels and their PNG
// encoding for renderers that consume encoded images.
type Image struct {
	// ID is a session-unique identifier for the image.
	ID string
	// Name is the name of the source file.
	Name string

	mu       sync.Mutex
	pix      *image.NRGBA
	encoded  []byte
	bounds   image.Rectangle
	dominant *color.RGBA
}

// New returns an Image holding pix and its PNG encoding.
func New(id, name string, pix *image.NRGBA) (*Image, error) {
	var buf bytes.Buffer
	err := encoder.Encode(&buf, pix)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return &Image{
		ID:      id,
		Name:    name,
		pix:     pix,
		encoded: buf.Bytes(),
		bounds:  pix.Bounds(),
	}, nil
}

// PNG returns the PNG encoding of the image. The returned slice must not
// be mutated. After Release, PNG returns nil.
func (img *Image) PNG() []byte {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.encoded
}

// URI returns the image as a data URI. After Release, URI returns the
// empty string.
func (img *Image) URI() string {
	b := img.PNG()
	if b == nil {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b)
}

// Dominant returns the dominant colour of the image's opaque pixels. The
// result is computed once and cached.
func (img *Image) Dominant() color.RGBA {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.dominant != nil {
		return *img.dominant
	}
	if img.pix == nil {
		return color.RGBA{}
	}
	c := dominantcolor.Find(img.pix)
	img.dominant = &c
	return c
}

// Release drops the image's pixel and encoded data. It is safe to call
// Release more than once. A released image renders as fully transparent.
func (img *Image) Release() {
	img.mu.Lock()
	img.pix = nil
	img.encoded = nil
	img.mu.Unlock()
}

// Released returns whether Release has been called.
func (img *Image) Released() bool {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.pix == nil
}

// At implements the image.Image interface.
func (img *Image) At(x, y int) color.Color {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.pix == nil {
		return color.NRGBA{}
	}
	return img.pix.NRGBAAt(x, y)
}

// Bounds implements the image.Image interface.
func (img *Image) Bounds() image.Rectangle {
	return img.bounds
}

// ColorModel implements the image.Image interface.
func (img *Image) ColorModel() color.Model {
	return color.NRGBAModel
}

// Pixels returns the masked pixel data, or nil if the image has been
// released. The returned image must not be mutated.
func (img *Image) Pixels() *image.NRGBA {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.pix
}
