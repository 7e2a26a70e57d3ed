// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config provides configuration loading, validation and live
// reloading.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/kortschak/aquarium/config"
)

// Alias the publicly visible types.
type (
	Config = config.Config
	Sum    = config.Sum
)

// Error is a configuration validation error.
type Error struct {
	// Paths is the set of invalid configuration paths.
	Paths [][]string
	Err   error
}

func (e *Error) Error() string {
	paths := make([]string, len(e.Paths))
	for i, p := range e.Paths {
		paths[i] = strings.Join(p, ".")
	}
	return fmt.Sprintf("invalid configuration: %s: %v", strings.Join(paths, ", "), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrUnknownKey is returned when a configuration file has keys that are
// not part of the configuration schema.
var ErrUnknownKey = errors.New("unknown configuration key")

// Load reads the TOML configuration at path over the default
// configuration and validates the result. If path is empty, the default
// configuration is returned.
func Load(path string) (*Config, error) {
	cfg := config.Default()
	if path == "" {
		return &cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(b))
}

// Parse parses TOML configuration text over the default configuration
// and validates the result.
func Parse(text string) (*Config, error) {
	cfg := config.Default()
	md, err := toml.Decode(text, &cfg)
	if err != nil {
		return nil, err
	}
	if keys := md.Undecoded(); len(keys) != 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, keys[0])
	}
	return &cfg, Vet(&cfg)
}

// Vet validates cfg against [config.Schema]. If cfg is invalid, the
// returned error is an *Error.
func Vet(cfg *Config) error {
	paths, err := Validate(config.Schema, cfg)
	if err == nil {
		return nil
	}
	if len(paths) == 0 {
		return err
	}
	return &Error{Paths: paths, Err: err}
}
