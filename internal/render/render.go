// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package render provides renderers for aquarium states.
//
// Renderers receive each state published by the aquarium engine and paint
// slots with transitions applied to their positions and opacities in the
// manner of CSS transitions; a 2s linear transition on position and a 1s
// ease-in-out transition on opacity by default.
package render

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gofrs/flock"

	"github.com/kortschak/aquarium/internal/aquarium"
)

// Renderer is a destination for aquarium states and load progress.
type Renderer interface {
	aquarium.Sink

	// Progress is called with load progress
	// percentages in [0, 100].
	Progress(percent float64)

	Close() error
}

// Multi is a Renderer that passes states and progress to a set of
// Renderers.
type Multi []Renderer

func (m Multi) Present(st *aquarium.State) {
	for _, r := range m {
		r.Present(st)
	}
}

func (m Multi) Progress(percent float64) {
	for _, r := range m {
		r.Progress(percent)
	}
}

// Close closes all the renderers, returning any errors joined.
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}

// ErrLocked is returned when an output file is locked by
// another process.
var ErrLocked = errors.New("output locked")

// writeLocked writes to the file at path using fn while holding an
// exclusive lock on path+".lock".
func writeLocked(path string, fn func(io.Writer) error) (err error) {
	lock := path + ".lock"
	fl := flock.New(lock)
	ok, err := fl.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLocked, path)
	}
	defer func() {
		fl.Unlock()
		os.Remove(lock)
	}()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		cerr := f.Close()
		if err == nil {
			err = cerr
		}
	}()
	return fn(f)
}
