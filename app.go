// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gdamore/tcell/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/kortschak/aquarium/config"
	"github.com/kortschak/aquarium/internal/animation"
	"github.com/kortschak/aquarium/internal/aquarium"
	iconfig "github.com/kortschak/aquarium/internal/config"
	"github.com/kortschak/aquarium/internal/loader"
	"github.com/kortschak/aquarium/internal/mtls"
	"github.com/kortschak/aquarium/internal/render"
	"github.com/kortschak/aquarium/internal/watch"
	"github.com/kortschak/aquarium/internal/web"
)

// app is a running aquarium.
type app struct {
	dir    string
	log    *slog.Logger
	cancel context.CancelFunc

	// set and over are the options set on the command
	// line. They take precedence over the configuration.
	set       map[string]bool
	over      overrides
	level     *slog.LevelVar
	addSource *atomic.Bool

	loader    *loader.Loader
	session   *aquarium.Session
	renderers render.Multi
	runners   []func(context.Context) error

	// reloads holds a pending request to reload the
	// image directory. Requests are coalesced.
	reloads chan struct{}
	// loaderConfig is a loader configuration to apply
	// before the next reload.
	loaderConfig atomic.Pointer[config.Loader]

	mu  sync.Mutex
	cfg *config.Config
}

func newApp(ctx context.Context, cancel context.CancelFunc, dir string, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{
		dir:     dir,
		log:     log.With(slog.String("component", "app")),
		cancel:  cancel,
		cfg:     cfg,
		reloads: make(chan struct{}, 1),
	}

	err := a.newRenderers(cfg, log)
	if err != nil {
		a.renderers.Close()
		return nil, err
	}

	a.loader = &loader.Loader{
		Progress: loader.NewProgress(a.renderers.Progress),
		Log:      log.With(slog.String("component", "loader")),
	}
	err = applyLoader(a.loader, &cfg.Loader)
	if err != nil {
		a.renderers.Close()
		return nil, err
	}

	seed := rand.Uint64()
	if cfg.Aquarium.Seed != nil {
		seed = *cfg.Aquarium.Seed
	}
	a.log.LogAttrs(ctx, slog.LevelDebug, "random source", slog.Uint64("seed", seed))
	rnd := rand.New(rand.NewPCG(seed, seed))
	fill, err := aquarium.ParseFill(cfg.Aquarium.Fill)
	if err != nil {
		a.renderers.Close()
		return nil, err
	}
	vp := viewport(cfg)
	engine := &aquarium.Engine{
		Scheduler:   &aquarium.Scheduler{Viewport: vp, Fill: fill, Rand: rnd},
		Simulator:   &aquarium.Simulator{Viewport: vp, Step: cfg.Aquarium.Step, Rand: rnd},
		Clock:       animation.System{},
		Interval:    time.Duration(cfg.Aquarium.Interval),
		FramePeriod: time.Second / time.Duration(cfg.Aquarium.FrameRate),
		Sink:        a.renderers,
		Log:         log.With(slog.String("component", "engine")),
	}
	a.session = aquarium.NewSession(ctx, engine, cfg.Aquarium.Slots, log.With(slog.String("component", "session")))
	return a, nil
}

func viewport(cfg *config.Config) aquarium.Viewport {
	return aquarium.Viewport{
		Width:  cfg.Viewport.Width,
		Height: cfg.Viewport.Height,
		Box:    cfg.Viewport.Box,
	}
}

// newRenderers constructs the renderers configured in cfg.
func (a *app) newRenderers(cfg *config.Config, log *slog.Logger) error {
	bg, err := render.ParseColor(cfg.Render.Background)
	if err != nil {
		return err
	}
	vp := viewport(cfg)
	scene := func() *render.Scene {
		s := render.NewScene()
		s.Transition = time.Duration(cfg.Render.Transition)
		s.Fade = time.Duration(cfg.Render.Fade)
		return s
	}

	if c := cfg.Render.Web; c != nil {
		srv := web.New(web.Options{
			Viewport:   vp,
			Transition: time.Duration(cfg.Render.Transition),
			Fade:       time.Duration(cfg.Render.Fade),
			Background: bg,
		}, log)
		raw, err := net.Listen("tcp", c.Addr)
		if err != nil {
			return err
		}
		files := mtls.Files{RootCA: c.RootCA, Cert: c.Cert, Key: c.Key}
		ln, err := mtls.Listen(raw, files)
		if err != nil {
			raw.Close()
			return fmt.Errorf("web tls: %w", err)
		}
		if !files.IsZero() {
			log.LogAttrs(context.Background(), slog.LevelInfo, "web tls", slog.Bool("client_auth", c.RootCA != ""))
		}
		a.renderers = append(a.renderers, srv)
		a.runners = append(a.runners, func(ctx context.Context) error {
			return srv.Serve(ctx, ln)
		})
	}
	if c := cfg.Render.Terminal; c != nil && c.Enabled {
		screen, err := tcell.NewScreen()
		if err != nil {
			return err
		}
		term, err := render.NewTerminal(screen, scene(), render.TerminalOptions{
			Viewport:   vp,
			Background: bg,
			Clock:      animation.System{},
			Quit:       a.cancel,
		}, log)
		if err != nil {
			return err
		}
		a.renderers = append(a.renderers, term)
		a.runners = append(a.runners, term.Run)
	}
	if c := cfg.Render.Record; c != nil {
		rec := &render.Recorder{
			Path:       c.Path,
			Scene:      scene(),
			Viewport:   vp,
			Scale:      c.Scale,
			FrameRate:  c.FrameRate,
			Duration:   time.Duration(c.Duration),
			Background: bg,
			Clock:      animation.System{},
			Log:        log.With(slog.String("component", "recorder")),
		}
		a.renderers = append(a.renderers, rec)
		a.runners = append(a.runners, rec.Run)
	}
	if c := cfg.Render.Snapshot; c != nil {
		a.renderers = append(a.renderers, &render.Snapshot{
			Path:       c.Path,
			Scene:      scene(),
			Viewport:   vp,
			Background: bg,
		})
	}
	if len(a.renderers) == 0 {
		a.log.LogAttrs(context.Background(), slog.LevelWarn, "no renderers configured")
	}
	return nil
}

// applyLoader sets the loader's options from cfg. It must not be called
// while a load is in progress.
func applyLoader(l *loader.Loader, cfg *config.Loader) error {
	var filter *loader.Filter
	if cfg.Accept != "" {
		var err error
		filter, err = loader.NewFilter(cfg.Accept, l.Log)
		if err != nil {
			return fmt.Errorf("invalid accept expression: %w", err)
		}
	}
	l.Filter = filter
	l.Converter = loader.Command{Argv: cfg.Converter}
	l.Threshold = uint8(cfg.Threshold)
	l.Timeout = time.Duration(cfg.Timeout)
	l.Workers = cfg.Workers
	return nil
}

// run loads the image directory and runs the renderers until ctx is
// cancelled. The directory is reloaded each time a reload is requested.
func (a *app) run(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, fn := range a.runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn(ctx)
			if err != nil {
				a.log.LogAttrs(ctx, slog.LevelError, "renderer", slog.Any("error", err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}

	a.requestReload()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-a.reloads:
			err := a.reload(ctx)
			if err != nil {
				if ctx.Err() != nil {
					break loop
				}
				a.log.LogAttrs(ctx, slog.LevelError, "reload", slog.Any("error", err))
			}
		}
	}

	// Renderers are closed before the session so that output
	// written on close can still see the pool's images.
	wg.Wait()
	errs = append(errs, a.renderers.Close())
	errs = append(errs, a.session.Close())
	return errors.Join(errs...)
}

// requestReload requests a reload of the image directory. It does not
// block.
func (a *app) requestReload() {
	select {
	case a.reloads <- struct{}{}:
	default:
	}
}

// reload loads the image directory and replaces the session's pool with
// the images loaded.
func (a *app) reload(ctx context.Context) error {
	if cfg := a.loaderConfig.Swap(nil); cfg != nil {
		err := applyLoader(a.loader, cfg)
		if err != nil {
			return err
		}
	}
	files, err := loader.Dir(a.dir)
	if err != nil {
		return err
	}
	rep, err := a.loader.Load(ctx, files)
	if err != nil {
		return err
	}
	return a.session.SetPool(rep.Images)
}

// watch starts watching the image directory and, if path is not empty,
// the configuration file at path.
func (a *app) watch(ctx context.Context, path string) {
	w, err := watch.New(func(name string) bool {
		return loader.Accepts(loader.TypeOf(name))
	}, 0, a.log)
	if err != nil {
		a.log.LogAttrs(ctx, slog.LevelError, "watch images", slog.Any("error", err))
		return
	}
	err = w.Add(a.dir, true)
	if err != nil {
		w.Close()
		a.log.LogAttrs(ctx, slog.LevelError, "watch images", slog.Any("error", err))
		return
	}
	go func() {
		defer w.Close()
		w.Run(ctx, func(events []fsnotify.Event) {
			a.log.LogAttrs(ctx, slog.LevelInfo, "image directory changed", slog.Int("events", len(events)), slog.String("op", watch.Op(events).String()))
			a.requestReload()
		})
	}()

	if path == "" {
		return
	}
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()
	go func() {
		err := iconfig.Watch(ctx, path, cfg, 0, a.log, func(c iconfig.Change) {
			if c.Err != nil {
				a.log.LogAttrs(ctx, slog.LevelWarn, "invalid configuration", slog.Any("error", c.Err))
				return
			}
			a.configure(ctx, c.Config)
		})
		if err != nil {
			a.log.LogAttrs(ctx, slog.LevelError, "watch configuration", slog.Any("error", err))
		}
	}()
}

// configure applies the dynamically changeable parts of cfg.
func (a *app) configure(ctx context.Context, cfg *config.Config) {
	override(cfg, a.set, a.over)
	err := iconfig.Vet(cfg)
	if err != nil {
		a.log.LogAttrs(ctx, slog.LevelWarn, "invalid configuration", slog.Any("error", err))
		return
	}
	a.mu.Lock()
	old := a.cfg
	a.cfg = cfg
	a.mu.Unlock()

	if !a.set["log"] && cfg.LogLevel != nil {
		a.level.Set(*cfg.LogLevel)
	}
	if !a.set["lines"] && cfg.AddSource != nil {
		a.addSource.Store(*cfg.AddSource)
	}

	err = a.session.Configure(cfg.Aquarium.Slots, time.Duration(cfg.Aquarium.Interval))
	if err != nil {
		a.log.LogAttrs(ctx, slog.LevelWarn, "configure session", slog.Any("error", err))
	}
	if !cmp.Equal(old.Loader, cfg.Loader) {
		l := cfg.Loader
		a.loaderConfig.Store(&l)
		a.requestReload()
	}

	// Changes to other options take effect at the next start.
	var stale []string
	for name, changed := range map[string]bool{
		"viewport":            !cmp.Equal(old.Viewport, cfg.Viewport),
		"render":              !cmp.Equal(old.Render, cfg.Render),
		"aquarium.fill":       old.Aquarium.Fill != cfg.Aquarium.Fill,
		"aquarium.frame_rate": old.Aquarium.FrameRate != cfg.Aquarium.FrameRate,
		"aquarium.step":       old.Aquarium.Step != cfg.Aquarium.Step,
		"aquarium.seed":       !cmp.Equal(old.Aquarium.Seed, cfg.Aquarium.Seed),
	} {
		if changed {
			stale = append(stale, name)
		}
	}
	if len(stale) != 0 {
		slices.Sort(stale)
		a.log.LogAttrs(ctx, slog.LevelWarn, "configuration changes require restart", slog.Any("options", stale))
	}
}
