// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The aquarium command displays a drifting, rotating set of background
// removed images from a directory.
//
// Usage:
//
//	aquarium [flags] <dir>
//
// Images in dir are loaded, have their near-white background made
// transparent and are assigned to display slots. Every rotation interval
// one slot is given a new image at a random position, and all slots drift
// at every frame. The aquarium may be rendered to a browser (-web), the
// terminal (-tty), an animated GIF (-record) and an SVG snapshot written
// on exit (-snapshot).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kortschak/aquarium/config"
	iconfig "github.com/kortschak/aquarium/internal/config"
	"github.com/kortschak/aquarium/internal/slogext"
	"github.com/kortschak/aquarium/internal/version"
	"github.com/kortschak/aquarium/internal/xdg"
)

// Exit status codes.
const (
	success       = 0
	internalError = 1 << (iota - 1)
	invocationError
)

func main() { os.Exit(Main()) }

func Main() int {
	cfgPath := flag.String("config", "", "configuration file (default $XDG_CONFIG_HOME/aquarium/config.toml if it exists)")
	logging := flag.String("log", "info", "logging level (debug, info, warn or error)")
	lines := flag.Bool("lines", false, "display source line details in logs")
	v := flag.Bool("version", false, "print version and exit")
	watching := flag.Bool("watch", false, "reload images and configuration when they change")
	duration := flag.Duration("duration", 0, "exit after running for the duration (zero runs until interrupted)")
	webAddr := flag.String("web", "", "serve the aquarium to browsers on this address")
	tty := flag.Bool("tty", false, "render the aquarium in the terminal")
	record := flag.String("record", "", "record an animated GIF to this path")
	snapshot := flag.String("snapshot", "", "write an SVG snapshot of the aquarium to this path on exit")
	seed := flag.Uint64("seed", 0, "random seed (zero uses a random seed)")
	slots := flag.Int("slots", 0, "number of display slots (zero uses the configured number)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <dir>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if *v {
		err := version.Print(os.Stdout, "aquarium")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return internalError
		}
		return success
	}
	if flag.NArg() != 1 {
		flag.Usage()
		return invocationError
	}
	dir := flag.Arg(0)
	fi, err := os.Stat(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return invocationError
	}
	if !fi.IsDir() {
		fmt.Fprintf(os.Stderr, "not a directory: %s\n", dir)
		return invocationError
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var level slog.LevelVar
	err = level.UnmarshalText([]byte(*logging))
	if err != nil {
		flag.Usage()
		return invocationError
	}
	addSource := slogext.NewAtomicBool(*lines)

	if *cfgPath == "" {
		path, err := xdg.Config("aquarium/config.toml", false)
		if err == nil {
			*cfgPath = path
		}
	}
	cfg, err := iconfig.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return invocationError
	}
	over := overrides{
		webAddr:  *webAddr,
		tty:      *tty,
		record:   *record,
		snapshot: *snapshot,
		seed:     *seed,
		slots:    *slots,
		duration: *duration,
	}
	override(cfg, set, over)
	err = iconfig.Vet(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return invocationError
	}
	if !set["log"] && cfg.LogLevel != nil {
		level.Set(*cfg.LogLevel)
	}
	if !set["lines"] && cfg.AddSource != nil {
		addSource.Store(*cfg.AddSource)
	}

	// log is the root logger.
	log := slog.New(slogext.GoID{Handler: slogext.NewJSONHandler(os.Stderr, &slogext.HandlerOptions{
		Level:     &level,
		AddSource: addSource,
	})})
	// mlog is the logger for main.
	mlog := log.With(slog.String("component", "aquarium.main"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case <-c:
			mlog.LogAttrs(ctx, slog.LevelInfo, "terminating")
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := newApp(ctx, cancel, dir, cfg, log)
	if err != nil {
		mlog.LogAttrs(ctx, slog.LevelError, "start", slog.Any("error", err))
		return internalError
	}
	a.set, a.over = set, over
	a.level, a.addSource = &level, addSource
	if *watching {
		a.watch(ctx, *cfgPath)
	}
	err = a.run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		mlog.LogAttrs(ctx, slog.LevelError, "exit", slog.Any("error", err))
		return internalError
	}
	mlog.LogAttrs(ctx, slog.LevelInfo, "exit")
	return success
}

// overrides are command line values that take precedence over the
// configuration file.
type overrides struct {
	webAddr  string
	tty      bool
	record   string
	snapshot string
	seed     uint64
	slots    int
	duration time.Duration
}

func override(cfg *config.Config, set map[string]bool, o overrides) {
	if set["web"] {
		switch {
		case o.webAddr == "":
			cfg.Render.Web = nil
		case cfg.Render.Web == nil:
			cfg.Render.Web = &config.Web{Addr: o.webAddr}
		default:
			web := *cfg.Render.Web
			web.Addr = o.webAddr
			cfg.Render.Web = &web
		}
	}
	if set["tty"] {
		if o.tty {
			cfg.Render.Terminal = &config.Terminal{Enabled: true}
		} else {
			cfg.Render.Terminal = nil
		}
	}
	if set["record"] {
		switch {
		case o.record == "":
			cfg.Render.Record = nil
		case cfg.Render.Record == nil:
			d := o.duration
			if d <= 0 {
				d = 10 * time.Second
			}
			cfg.Render.Record = &config.Record{Path: o.record, Duration: config.Duration(d)}
		default:
			cfg.Render.Record.Path = o.record
		}
	}
	if set["snapshot"] {
		if o.snapshot == "" {
			cfg.Render.Snapshot = nil
		} else {
			cfg.Render.Snapshot = &config.Snapshot{Path: o.snapshot}
		}
	}
	if set["seed"] && o.seed != 0 {
		cfg.Aquarium.Seed = &o.seed
	}
	if set["slots"] && o.slots > 0 {
		cfg.Aquarium.Slots = o.slots
	}
}
