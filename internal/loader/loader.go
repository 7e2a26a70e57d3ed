// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package loader turns a selection of files into a pool of processed
// images.
//
// Loading happens in two phases separated by a barrier. In the first,
// every accepted file is decoded, or converted and then decoded, and in
// the second every successfully decoded image has its background removed.
// Each phase contributes half of the reported progress, divided evenly
// over the files entering it. Files failing in either phase are dropped
// from the pool and reported as failures without affecting other files.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kortschak/aquarium/internal/backdrop"
)

// Kind is a class of per-file failure.
type Kind int

const (
	Decode Kind = iota + 1
	Conversion
	Removal
)

func (k Kind) String() string {
	switch k {
	case Decode:
		return "decode"
	case Conversion:
		return "conversion"
	case Removal:
		return "removal"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Failure is a per-file load failure.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failure: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// ErrNoConverter is the failure cause for files that need conversion
// when no Converter is configured.
var ErrNoConverter = errors.New("no converter")

// Result is the outcome of loading a single file.
type Result struct {
	File File
	// Format is the decoded format of the file.
	Format string
	// Image is the processed image. It is nil
	// when Err is not nil.
	Image *backdrop.Image
	// Err is nil or a *Failure.
	Err error
}

// Report is the outcome of loading a selection of files.
type Report struct {
	// Results holds the result for each accepted
	// file in selection order.
	Results []Result
	// Images is the pool of processed images in
	// selection order.
	Images []*backdrop.Image
	// Rejected is the number of files that were
	// not accepted for loading.
	Rejected int
}

// Failures returns the failed results in r.
func (r *Report) Failures() []Result {
	var f []Result
	for _, res := range r.Results {
		if res.Err != nil {
			f = append(f, res)
		}
	}
	return f
}

// DefaultTimeout is the default per-file, per-phase timeout.
const DefaultTimeout = 30 * time.Second

// Loader loads images from files.
type Loader struct {
	// Converter is used for files with types that
	// need conversion. If it is nil, those files
	// fail to load.
	Converter Converter
	// Threshold is the background removal
	// threshold.
	Threshold uint8
	// Timeout is the limit for each file in each
	// phase. If zero, DefaultTimeout is used.
	Timeout time.Duration
	// Workers is the maximum number of files in
	// work concurrently. If zero, GOMAXPROCS is
	// used.
	Workers int
	// Filter is an optional additional acceptance
	// test for image files.
	Filter *Filter
	// Progress receives load progress.
	Progress *Progress

	Log *slog.Logger

	loading atomic.Bool
	batch   atomic.Uint64
}

// Loading returns whether a Load call is in progress.
func (l *Loader) Loading() bool {
	return l.loading.Load()
}

// Accept returns the files that would be loaded from files and the
// number rejected.
func (l *Loader) Accept(ctx context.Context, files []File) ([]File, int) {
	var accepted []File
	for _, f := range files {
		if !Accepts(f.Type()) {
			continue
		}
		if l.Filter != nil {
			ok, err := l.Filter.Match(f)
			if err != nil {
				l.Log.LogAttrs(ctx, slog.LevelWarn, "filter", slog.String("file", f.Name()), slog.Any("error", err))
			}
			if !ok {
				continue
			}
		}
		accepted = append(accepted, f)
	}
	return accepted, len(files) - len(accepted)
}

// Load loads the accepted files from the selection. Progress is reset
// before loading starts. If no files are accepted, Load returns an empty
// report without reporting progress. Per-file failures are recorded in
// the report. Load only returns an error if ctx is cancelled, in which
// case all processed images are released.
func (l *Loader) Load(ctx context.Context, files []File) (*Report, error) {
	l.loading.Store(true)
	defer l.loading.Store(false)
	l.Progress.Reset()

	accepted, rejected := l.Accept(ctx, files)
	rep := &Report{Rejected: rejected}
	n := len(accepted)
	if n == 0 {
		l.Log.LogAttrs(ctx, slog.LevelInfo, "empty selection", slog.Int("rejected", rejected))
		return rep, nil
	}
	batch := l.batch.Add(1)
	l.Log.LogAttrs(ctx, slog.LevelInfo, "load", slog.Uint64("batch", batch), slog.Int("files", n), slog.Int("rejected", rejected))

	rep.Results = make([]Result, n)
	decoded := make([]image.Image, n)
	for i, f := range accepted {
		rep.Results[i].File = f
	}

	var done atomic.Int64
	l.each(ctx, n, func(i int) {
		res := &rep.Results[i]
		typ := res.File.Type()
		kind := Decode
		if NeedsConversion(typ) {
			kind = Conversion
		}
		d, err := run(ctx, l.timeout(), kind, func(ctx context.Context) (decoding, error) {
			img, format, err := l.decode(ctx, res.File, typ)
			return decoding{img, format}, err
		})
		decoded[i] = d.img
		res.Format = d.format
		if err != nil {
			res.Err = err
			l.warn(ctx, res)
		}
		c := done.Add(1)
		l.Progress.Report(50 * float64(c) / float64(n))
		l.Log.LogAttrs(ctx, slog.LevelDebug, "progress", slog.Float64("value", l.Progress.Value()))
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ok []int
	for i, res := range rep.Results {
		if res.Err == nil {
			ok = append(ok, i)
		}
	}
	m := len(ok)
	if m == 0 {
		l.Progress.Report(100)
		l.Log.LogAttrs(ctx, slog.LevelInfo, "no images loaded", slog.Uint64("batch", batch), slog.Int("failed", n))
		return rep, nil
	}

	done.Store(0)
	l.each(ctx, m, func(j int) {
		i := ok[j]
		res := &rep.Results[i]
		id := fmt.Sprintf("%d-%d", batch, i)
		src := decoded[i]
		img, err := run(ctx, l.timeout(), Removal, func(ctx context.Context) (*backdrop.Image, error) {
			return backdrop.Process(ctx, id, res.File.Name(), src, l.Threshold)
		})
		res.Image = img
		decoded[i] = nil
		if err != nil {
			res.Err = err
			l.warn(ctx, res)
		}
		c := done.Add(1)
		l.Progress.Report(50 + 50*float64(c)/float64(m))
		l.Log.LogAttrs(ctx, slog.LevelDebug, "progress", slog.Float64("value", l.Progress.Value()))
	})
	if err := ctx.Err(); err != nil {
		for _, res := range rep.Results {
			if res.Image != nil {
				res.Image.Release()
			}
		}
		return nil, err
	}

	for _, res := range rep.Results {
		if res.Image != nil {
			rep.Images = append(rep.Images, res.Image)
		}
	}
	l.Log.LogAttrs(ctx, slog.LevelInfo, "loaded", slog.Uint64("batch", batch), slog.Int("images", len(rep.Images)), slog.Int("failed", n-len(rep.Images)))
	return rep, nil
}

func (l *Loader) warn(ctx context.Context, res *Result) {
	var f *Failure
	kind := "unknown"
	if errors.As(res.Err, &f) {
		kind = f.Kind.String()
	}
	l.Log.LogAttrs(ctx, slog.LevelWarn, "load failure", slog.String("file", res.File.Name()), slog.String("kind", kind), slog.Any("error", res.Err))
}

// each calls fn for each index in [0, n) with at most l.Workers
// concurrent calls, returning when all calls have completed. No new
// calls are started after ctx is cancelled.
func (l *Loader) each(ctx context.Context, n int, fn func(i int)) {
	workers := l.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range n {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			fn(i)
		}()
	}
	wg.Wait()
}

func (l *Loader) timeout() time.Duration {
	if l.Timeout <= 0 {
		return DefaultTimeout
	}
	return l.Timeout
}

type decoding struct {
	img    image.Image
	format string
}

// run calls fn with a context bounded by timeout, returning a *Failure of
// the given kind if fn fails or does not return before the timeout. If the
// timeout is reached, run returns without waiting for fn and fn's result
// is discarded.
func run[T any](ctx context.Context, timeout time.Duration, kind Kind, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	c := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		c <- result{v, err}
	}()
	var zero T
	select {
	case r := <-c:
		if r.err != nil {
			return zero, &Failure{Kind: kind, Err: r.err}
		}
		return r.val, nil
	case <-ctx.Done():
		return zero, &Failure{Kind: kind, Err: ctx.Err()}
	}
}

func (l *Loader) decode(ctx context.Context, f File, typ string) (image.Image, string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, "", err
	}
	defer rc.Close()

	var r io.Reader = rc
	if NeedsConversion(typ) {
		if l.Converter == nil {
			return nil, "", ErrNoConverter
		}
		var buf bytes.Buffer
		err = l.Converter.Convert(ctx, &buf, rc)
		if err != nil {
			return nil, "", err
		}
		r = &buf
	}
	return backdrop.Decode(r)
}
