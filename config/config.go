// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config provides aquarium configuration types and schemas.
package config

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Config is a complete configuration.
type Config struct {
	LogLevel  *slog.Level `json:"log_level,omitempty" toml:"log_level"`
	AddSource *bool       `json:"log_add_source,omitempty" toml:"log_add_source"`

	Aquarium Aquarium `json:"aquarium" toml:"aquarium"`
	Viewport Viewport `json:"viewport" toml:"viewport"`
	Loader   Loader   `json:"loader" toml:"loader"`
	Render   Render   `json:"render" toml:"render"`
}

// Aquarium is the slot scheduling and motion configuration.
type Aquarium struct {
	// Slots is the number of display slots.
	Slots int `json:"slots" toml:"slots"`
	// Interval is the time between slot rotations.
	Interval Duration `json:"interval" toml:"interval"`
	// FrameRate is the motion simulation rate in frames per second.
	FrameRate int `json:"frame_rate" toml:"frame_rate"`
	// Step is the amplitude of the per-frame random walk.
	Step float64 `json:"step" toml:"step"`
	// Fill is the policy for slots beyond the pool size,
	// "repeat" or "empty".
	Fill string `json:"fill" toml:"fill"`
	// Seed is the random source seed. If nil, a random seed
	// is used.
	Seed *uint64 `json:"seed,omitempty" toml:"seed"`
}

// Viewport is the logical drawing area.
type Viewport struct {
	Width  float64 `json:"width" toml:"width"`
	Height float64 `json:"height" toml:"height"`
	// Box is the side length of the square each
	// slot's image is drawn in.
	Box float64 `json:"box" toml:"box"`
}

// Loader is the image loading configuration.
type Loader struct {
	// Threshold is the channel value above which a pixel
	// with all colour channels exceeding it is treated as
	// background.
	Threshold int `json:"threshold" toml:"threshold"`
	// Timeout is the per-file, per-phase time limit.
	Timeout Duration `json:"timeout" toml:"timeout"`
	// Workers is the number of concurrent loads. If zero,
	// GOMAXPROCS is used.
	Workers int `json:"workers" toml:"workers"`
	// Accept is a CEL expression over name, mime and size
	// that must evaluate true for a file to be loaded.
	Accept string `json:"accept,omitempty" toml:"accept"`
	// Converter is the command used to convert HEIC and HEIF
	// images to PNG, reading stdin and writing stdout.
	Converter []string `json:"converter" toml:"converter"`
}

// Render is the rendering configuration.
type Render struct {
	// Background is the page background as "#rrggbb".
	Background string `json:"background" toml:"background"`
	// Transition and Fade are the position and opacity
	// transition durations.
	Transition Duration `json:"transition" toml:"transition"`
	Fade       Duration `json:"fade" toml:"fade"`

	Web      *Web      `json:"web,omitempty" toml:"web"`
	Terminal *Terminal `json:"terminal,omitempty" toml:"terminal"`
	Record   *Record   `json:"record,omitempty" toml:"record"`
	Snapshot *Snapshot `json:"snapshot,omitempty" toml:"snapshot"`
}

// Web is the browser renderer configuration.
type Web struct {
	Addr string `json:"addr" toml:"addr"`

	// Cert and Key are paths to PEM encoded files.
	// If set, the server is served over TLS. If
	// RootCA is also set, clients must present a
	// certificate signed by it.
	Cert   string `json:"cert,omitempty" toml:"cert"`
	Key    string `json:"key,omitempty" toml:"key"`
	RootCA string `json:"root_ca,omitempty" toml:"root_ca"`
}

// Terminal is the terminal renderer configuration.
type Terminal struct {
	Enabled bool `json:"enabled" toml:"enabled"`
}

// Record is the animated GIF recorder configuration.
type Record struct {
	Path      string   `json:"path" toml:"path"`
	FrameRate int      `json:"frame_rate,omitempty" toml:"frame_rate"`
	Duration  Duration `json:"duration" toml:"duration"`
	// Scale is the ratio of recording pixels to
	// viewport units.
	Scale float64 `json:"scale,omitempty" toml:"scale"`
}

// Snapshot is the SVG snapshot renderer configuration.
type Snapshot struct {
	Path string `json:"path" toml:"path"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Aquarium: Aquarium{
			Slots:     20,
			Interval:  Duration(2 * time.Second),
			FrameRate: 60,
			Step:      5,
			Fill:      "repeat",
		},
		Viewport: Viewport{Width: 1920, Height: 1080, Box: 200},
		Loader: Loader{
			Threshold: 240,
			Timeout:   Duration(30 * time.Second),
			Converter: []string{"magick", "heic:-", "png:-"},
		},
		Render: Render{
			Background: "#ffffff",
			Transition: Duration(2 * time.Second),
			Fade:       Duration(time.Second),
		},
	}
}

// Schema is the schema for a valid configuration.
const Schema = `
{
	log_level?:      _#log_level
	log_add_source?: bool
	aquarium:        _#aquarium
	viewport:        _#viewport
	loader:          _#loader
	render:          _#render
}

_#aquarium: {
	slots:      int & >=0
	interval:   _#duration & !="0s"
	frame_rate: int & >0 & <=240
	step:       number & >=0
	fill:       "repeat" | "empty"
	seed?:      uint64
}

_#viewport: {
	width:  number & >0
	height: number & >0
	box:    number & >0
}

_#loader: {
	threshold: uint8
	timeout:   _#duration & !="0s"
	workers:   int & >=0
	accept?:   string
	converter: [string, ...string]
}

_#render: {
	background: _#web_color
	transition: _#duration
	fade:       _#duration
	web?:       {
		addr:     !=""
		cert?:    !=""
		key?:     !=""
		root_ca?: !=""
	}
	terminal?:  {enabled: bool}
	record?:    {
		path:        !=""
		frame_rate?: int & >0 & <=100
		duration:    _#duration & !="0s"
		scale?:      number & >0
	}
	snapshot?: {path: !=""}
}

_#duration:  =~"^(?:[0-9]+(?:\\.[0-9]+)?(?:h|m|s|ms|us|µs|ns))+$"
_#web_color: =~"^#[0-9a-fA-F]{6}$"
_#log_level: =~"(?i)^(?:debug|info|warn|error)$"
`

// Sum returns the SHA-1 sum of the JSON encoding of the configuration.
// Configurations with equal sums are semantically equal.
func (c *Config) Sum() (Sum, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return Sum{}, err
	}
	return sha1.Sum(b), nil
}

// Sum is a comparable SHA-1 sum.
type Sum [sha1.Size]byte

func (s Sum) String() string {
	return hex.EncodeToString(s[:])
}

// Duration is a time.Duration that is represented in text as a duration
// string parsed by time.ParseDuration.
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
