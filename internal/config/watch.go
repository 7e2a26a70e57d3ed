// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kortschak/aquarium/internal/watch"
)

// Change is a configuration change identified by Watch.
type Change struct {
	Event  []fsnotify.Event
	Config *Config
	Sum    Sum
	Err    error
}

// Op returns an aggregated fsnotify.Op for all elements of the receivers'
// Event field.
func (c Change) Op() fsnotify.Op {
	return watch.Op(c.Event)
}

func (c Change) LogValue() slog.Value {
	events := make([]eventValue, len(c.Event))
	for i, e := range c.Event {
		events[i] = eventValue{
			Name: e.Name,
			Op:   e.Op.String(),
			Code: int(e.Op),
		}
	}
	attrs := []slog.Attr{slog.Any("event", events)}
	if c.Err != nil {
		attrs = append(attrs, slog.Any("error", c.Err))
	} else {
		attrs = append(attrs, slog.String("sum", c.Sum.String()))
	}
	return slog.GroupValue(attrs...)
}

type eventValue struct {
	Name string `json:"name"`
	Op   string `json:"op"`
	Code int    `json:"op_code"`
}

// Watch watches the configuration file at path and calls fn for each
// change that results in an invalid configuration or a configuration that
// differs semantically from the last valid configuration seen. The initial
// configuration is cfg. Watch returns when ctx is cancelled.
func Watch(ctx context.Context, path string, cfg *Config, debounce time.Duration, log *slog.Logger, fn func(Change)) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	last, err := cfg.Sum()
	if err != nil {
		return err
	}
	log = log.With(slog.String("component", "config_watcher"))

	w, err := watch.New(func(name string) bool {
		return filepath.Clean(name) == path
	}, debounce, log)
	if err != nil {
		return err
	}
	defer w.Close()
	// Watch the directory so that atomic replacement of the file by
	// editors is seen.
	err = w.Add(filepath.Dir(path), false)
	if err != nil {
		return err
	}
	return w.Run(ctx, func(events []fsnotify.Event) {
		cfg, err := Load(path)
		if errors.Is(err, fs.ErrNotExist) {
			log.LogAttrs(ctx, slog.LevelWarn, "configuration removed", slog.String("path", path))
			return
		}
		c := Change{Event: events, Config: cfg, Err: err}
		if err == nil {
			c.Sum, c.Err = cfg.Sum()
		}
		if c.Err == nil && c.Sum == last {
			log.LogAttrs(ctx, slog.LevelDebug, "no semantic change", slog.Any("change", c))
			return
		}
		if c.Err == nil {
			last = c.Sum
		} else {
			c.Config = nil
		}
		log.LogAttrs(ctx, slog.LevelInfo, "configuration change", slog.Any("change", c))
		fn(c)
	})
}
