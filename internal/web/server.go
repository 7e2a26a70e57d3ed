// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package web provides a browser renderer for the aquarium.
//
// The server pushes slot assignments to connected pages over a websocket.
// Pages apply transitions to slot positions and opacities with CSS, so
// the server only sends targets.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kortschak/aquarium/internal/aquarium"
	"github.com/kortschak/aquarium/internal/backdrop"
)

//go:embed static/*
var static embed.FS

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10

	// queue is the number of pending messages held before
	// new messages are dropped.
	queue = 64
)

// Options are the presentation options sent to connecting pages.
type Options struct {
	Viewport   aquarium.Viewport
	Transition time.Duration
	Fade       time.Duration
	Background color.Color
}

// Server is a Renderer that serves the aquarium to web browsers.
type Server struct {
	upgrader websocket.Upgrader
	config   configMessage
	log      *slog.Logger

	messages chan []byte

	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex
	images  map[string]*backdrop.Image
	closed  bool

	latest   atomic.Pointer[frameMessage]
	progress atomic.Pointer[progressMessage]
	dropped  atomic.Uint64
}

type configMessage struct {
	Type         string  `json:"type"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	Box          float64 `json:"box"`
	TransitionMS int64   `json:"transition_ms"`
	FadeMS       int64   `json:"fade_ms"`
	Background   string  `json:"background"`
}

type progressMessage struct {
	Type    string  `json:"type"`
	Percent float64 `json:"percent"`
}

type frameMessage struct {
	Type       string        `json:"type"`
	Generation uint64        `json:"generation"`
	Slots      []slotMessage `json:"slots"`
}

type slotMessage struct {
	Slot    int     `json:"slot"`
	Image   *string `json:"image"`
	Name    string  `json:"name,omitempty"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Opacity float64 `json:"opacity"`
}

// New returns a new Server. The server does not publish messages to
// clients until Run or Serve is called.
func New(opts Options, log *slog.Logger) *Server {
	bg := opts.Background
	if bg == nil {
		bg = color.White
	}
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		config: configMessage{
			Type:         "config",
			Width:        opts.Viewport.Width,
			Height:       opts.Viewport.Height,
			Box:          opts.Viewport.Box,
			TransitionMS: opts.Transition.Milliseconds(),
			FadeMS:       opts.Fade.Milliseconds(),
			Background:   hex(bg),
		},
		log:      log.With(slog.String("component", "web")),
		messages: make(chan []byte, queue),
		clients:  make(map[*websocket.Conn]*sync.Mutex),
		images:   make(map[string]*backdrop.Image),
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	mux := http.NewServeMux()
	mux.Handle("GET /", http.FileServer(http.FS(sub)))
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /image/{id}", s.handleImage)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /state", s.handleState)
	return mux
}

// Serve serves the aquarium on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		s.closeClients()
	}()
	go s.Run(ctx)

	s.log.LogAttrs(ctx, slog.LevelInfo, "serving", slog.String("addr", ln.Addr().String()))
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Run publishes queued messages to connected clients until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-s.messages:
			s.mu.Lock()
			clients := maps.Clone(s.clients)
			s.mu.Unlock()
			var stale []*websocket.Conn
			for conn, writeMu := range clients {
				err := writeMessage(conn, writeMu, websocket.TextMessage, payload)
				if err != nil {
					stale = append(stale, conn)
				}
			}
			for _, conn := range stale {
				s.log.LogAttrs(ctx, slog.LevelDebug, "drop client", slog.String("remote", conn.RemoteAddr().String()))
				s.removeClient(conn)
			}
		}
	}
}

// Present publishes the slots of st to connected clients.
func (s *Server) Present(st *aquarium.State) {
	msg := &frameMessage{
		Type:       "frame",
		Generation: st.Generation,
		Slots:      make([]slotMessage, len(st.Slots)),
	}
	images := make(map[string]*backdrop.Image, len(st.Pool))
	for _, img := range st.Pool {
		images[img.ID] = img
	}
	for i, slot := range st.Slots {
		m := slotMessage{Slot: i, X: slot.Position.X, Y: slot.Position.Y}
		if !slot.Empty() {
			url := "/image/" + slot.Image.ID
			m.Image = &url
			m.Name = slot.Image.Name
			m.Opacity = 1
			images[slot.Image.ID] = slot.Image
		}
		msg.Slots[i] = m
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.images = images
	s.mu.Unlock()
	s.latest.Store(msg)
	s.publish(msg)
}

// Progress publishes load progress to connected clients.
func (s *Server) Progress(percent float64) {
	msg := &progressMessage{Type: "progress", Percent: percent}
	s.progress.Store(msg)
	s.publish(msg)
}

// Close disconnects all clients. Later states are not published.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.closeClients()
	return nil
}

// Dropped returns the number of messages dropped because the publication
// queue was full.
func (s *Server) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Server) publish(msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.LogAttrs(context.Background(), slog.LevelError, "marshal message", slog.Any("error", err))
		return
	}
	select {
	case s.messages <- payload:
	default:
		s.dropped.Add(1)
		s.log.LogAttrs(context.Background(), slog.LevelDebug, "queue full")
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.LogAttrs(r.Context(), slog.LevelWarn, "upgrade", slog.Any("error", err))
		return
	}
	conn.SetReadLimit(1 << 16)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	writeMu := &sync.Mutex{}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	// Hold the write lock until the initial state has been sent so
	// that broadcast messages are not delivered before it.
	writeMu.Lock()
	s.clients[conn] = writeMu
	s.mu.Unlock()
	s.log.LogAttrs(r.Context(), slog.LevelDebug, "client connected", slog.String("remote", conn.RemoteAddr().String()))

	initial := []any{s.config}
	if p := s.progress.Load(); p != nil {
		initial = append(initial, p)
	}
	if f := s.latest.Load(); f != nil {
		initial = append(initial, f)
	}
	for _, msg := range initial {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		err = conn.WriteJSON(msg)
		if err != nil {
			break
		}
	}
	writeMu.Unlock()
	if err != nil {
		s.removeClient(conn)
		return
	}

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					err := writeMessage(conn, writeMu, websocket.PingMessage, nil)
					if err != nil {
						conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer s.removeClient(conn)
		for {
			// Clients have nothing to say, but reading is required
			// to process control messages.
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	img, ok := s.images[id]
	s.mu.Unlock()
	var b []byte
	if ok {
		b = img.PNG()
	}
	if b == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(b)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	msg := s.latest.Load()
	if msg == nil {
		msg = &frameMessage{Type: "frame", Slots: []slotMessage{}}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msg)
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) closeClients() {
	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[*websocket.Conn]*sync.Mutex)
	s.mu.Unlock()
	for conn, writeMu := range clients {
		writeMessage(conn, writeMu, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		conn.Close()
	}
}

func writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, typ int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(typ, payload)
}

func hex(c color.Color) string {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return fmt.Sprintf("#%02x%02x%02x", n.R, n.G, n.B)
}
