// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aquarium

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kortschak/aquarium/internal/backdrop"
)

// Session owns the running engine generation. Each change to the pool,
// slot count or rotation interval cancels the running generation and
// waits for it to finish before starting a new generation with the new
// configuration, so no tick can observe a replaced pool.
type Session struct {
	engine *Engine
	log    *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	gen      uint64
	pool     []*backdrop.Image
	slots    int
	interval time.Duration
	cancel   context.CancelCauseFunc
	done     chan struct{}
	closed   bool
}

// ErrReplaced is the cancellation cause of a generation that has been
// replaced by a new configuration.
var ErrReplaced = errors.New("generation replaced")

// ErrClosed is returned by Session methods after Close.
var ErrClosed = errors.New("session closed")

// NewSession returns a new Session running engine with n slots. No
// generation is started until a pool is provided with SetPool. The
// session ends when ctx is cancelled or Close is called.
func NewSession(ctx context.Context, engine *Engine, n int, log *slog.Logger) *Session {
	return &Session{
		engine:   engine,
		log:      log,
		ctx:      ctx,
		slots:    n,
		interval: engine.Interval,
	}
}

// Generation returns the current generation number. It is
// zero until the first pool is set.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Pool returns the current pool.
func (s *Session) Pool() []*backdrop.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool
}

// SetPool replaces the session's pool and restarts the engine. Images in
// the replaced pool that are not in the new pool are released after the
// new generation has started.
func (s *Session) SetPool(pool []*backdrop.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	old := s.pool
	s.pool = pool
	s.restart()
	release(old, pool)
	return nil
}

// Configure sets the slot count and rotation interval. If either differs
// from the current configuration and a pool has been set, the engine is
// restarted. A non-positive interval is left unchanged.
func (s *Session) Configure(n int, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if interval <= 0 {
		interval = s.interval
	}
	if n == s.slots && interval == s.interval {
		return nil
	}
	s.slots = n
	s.interval = interval
	if s.pool != nil || s.done != nil {
		s.restart()
	}
	return nil
}

// Close stops the running generation and releases the pool.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stop(context.Canceled)
	release(s.pool, nil)
	s.pool = nil
	return nil
}

// restart must be called with s.mu held.
func (s *Session) restart() {
	s.stop(ErrReplaced)
	s.gen++
	gen, pool, n := s.gen, s.pool, s.slots
	s.engine.Interval = s.interval
	ctx, cancel := context.WithCancelCause(s.ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go func() {
		defer close(done)
		err := s.engine.Run(ctx, gen, pool, n)
		switch {
		case errors.Is(err, ErrReplaced):
			s.log.LogAttrs(ctx, slog.LevelInfo, "generation replaced", slog.Uint64("generation", gen))
		case errors.Is(err, context.Canceled):
		default:
			s.log.LogAttrs(ctx, slog.LevelWarn, "generation stopped", slog.Uint64("generation", gen), slog.Any("error", err))
		}
	}()
}

// stop must be called with s.mu held.
func (s *Session) stop(cause error) {
	if s.cancel == nil {
		return
	}
	s.cancel(cause)
	<-s.done
	s.cancel = nil
	s.done = nil
}

// release releases images in old that are not in keep.
func release(old, keep []*backdrop.Image) {
	if len(old) == 0 {
		return
	}
	retained := make(map[*backdrop.Image]bool, len(keep))
	for _, img := range keep {
		retained[img] = true
	}
	for _, img := range old {
		if !retained[img] {
			img.Release()
		}
	}
}
