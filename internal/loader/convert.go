// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/execabs"
)

// Converter converts image data that cannot be decoded directly into a
// standard raster encoding.
type Converter interface {
	Convert(ctx context.Context, dst io.Writer, src io.Reader) error
}

// ConverterFunc is a function implementing Converter.
type ConverterFunc func(ctx context.Context, dst io.Writer, src io.Reader) error

func (f ConverterFunc) Convert(ctx context.Context, dst io.Writer, src io.Reader) error {
	return f(ctx, dst, src)
}

// DefaultCommand is the default conversion command. It reads HEIC from
// stdin and writes PNG to stdout.
var DefaultCommand = []string{"magick", "heic:-", "png:-"}

// Command is a Converter that runs an external program, passing the
// source data on stdin and reading the converted data from stdout.
type Command struct {
	Argv []string
}

// Convert runs the command. The command is killed if ctx is cancelled.
func (c Command) Convert(ctx context.Context, dst io.Writer, src io.Reader) error {
	if len(c.Argv) == 0 {
		return errors.New("no conversion command")
	}
	cmd := execabs.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stdin = src
	cmd.Stdout = dst
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) != 0 {
			return fmt.Errorf("%s: %w: %s", c.Argv[0], err, msg)
		}
		return fmt.Errorf("%s: %w", c.Argv[0], err)
	}
	return nil
}
