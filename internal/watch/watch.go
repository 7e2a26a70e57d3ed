// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package watch provides debounced file system change notification.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Debounce is the default duration the file system must be quiet before
// a batch of changes is reported. It covers editors that write an empty
// file before writing the buffer, and copies of many files into a
// watched directory.
const Debounce = 100 * time.Millisecond

// Watcher collects fsnotify events into batches.
type Watcher struct {
	watcher  *fsnotify.Watcher
	match    func(name string) bool
	debounce time.Duration
	log      *slog.Logger
}

// New returns a new Watcher. Only events for paths satisfying match are
// reported. If match is nil, all events are reported. If debounce is not
// positive, Debounce is used. Chmod-only events are never reported.
func New(match func(name string) bool, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if match == nil {
		match = func(string) bool { return true }
	}
	if debounce <= 0 {
		debounce = Debounce
	}
	return &Watcher{
		watcher:  w,
		match:    match,
		debounce: debounce,
		log:      log.With(slog.String("component", "watcher")),
	}, nil
}

// Add adds dir and, if recursive is true, its non-hidden subdirectories
// to the watch set.
func (w *Watcher) Add(dir string, recursive bool) error {
	if !recursive {
		return w.watcher.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Close closes the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Run calls fn with each batch of matching events until ctx is cancelled
// or the watcher is closed. A batch is reported once no matching event
// has been seen for the debounce duration. Directories created within
// watched directories are added to the watch set.
func (w *Watcher) Run(ctx context.Context, fn func([]fsnotify.Event)) error {
	var (
		pending []fsnotify.Event
		timer   *time.Timer
		fire    <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Has(fsnotify.Create) {
				fi, err := os.Stat(ev.Name)
				if err == nil && fi.IsDir() && !strings.HasPrefix(fi.Name(), ".") {
					w.log.LogAttrs(ctx, slog.LevelDebug, "watch new directory", slog.String("name", ev.Name))
					err = w.Add(ev.Name, true)
					if err != nil {
						w.log.LogAttrs(ctx, slog.LevelError, "add watch", slog.String("name", ev.Name), slog.Any("error", err))
					}
				}
			}
			if !w.match(ev.Name) {
				continue
			}
			w.log.LogAttrs(ctx, slog.LevelDebug, "event", slog.String("name", ev.Name), slog.String("op", ev.Op.String()))
			pending = append(pending, ev)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			batch := pending
			pending = nil
			fn(batch)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.LogAttrs(ctx, slog.LevelError, "watch", slog.Any("error", err))
		}
	}
}

// Op returns an aggregated fsnotify.Op for all elements of events.
func Op(events []fsnotify.Event) fsnotify.Op {
	var op fsnotify.Op
	for _, e := range events {
		op |= e.Op
	}
	return op
}
