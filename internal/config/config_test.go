// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kortschak/aquarium/config"
	"github.com/kortschak/aquarium/internal/locked"
	"github.com/kortschak/aquarium/internal/slogext"
)

func ptr[T any](v T) *T { return &v }

var parseTests = []struct {
	name      string
	text      string
	want      func() Config
	wantPaths [][]string
	wantErr   error
}{
	{
		name: "empty",
		text: "",
		want: config.Default,
	},
	{
		name: "overrides",
		text: `
log_level = "debug"

[aquarium]
slots = 5
interval = "500ms"
fill = "empty"
seed = 1

[viewport]
width = 800
height = 600
box = 100

[loader]
threshold = 250
accept = "size < 1000000"

[render]
background = "#102030"

[render.web]
addr = "localhost:7000"

[render.record]
path = "out.gif"
duration = "5s"
`,
		want: func() Config {
			c := config.Default()
			c.LogLevel = ptr(slog.LevelDebug)
			c.Aquarium.Slots = 5
			c.Aquarium.Interval = config.Duration(500 * time.Millisecond)
			c.Aquarium.Fill = "empty"
			c.Aquarium.Seed = ptr[uint64](1)
			c.Viewport = config.Viewport{Width: 800, Height: 600, Box: 100}
			c.Loader.Threshold = 250
			c.Loader.Accept = "size < 1000000"
			c.Render.Background = "#102030"
			c.Render.Web = &config.Web{Addr: "localhost:7000"}
			c.Render.Record = &config.Record{Path: "out.gif", Duration: config.Duration(5 * time.Second)}
			return c
		},
	},
	{
		name: "invalid_fill",
		text: `
[aquarium]
fill = "overflow"
`,
		wantPaths: [][]string{{"aquarium", "fill"}},
	},
	{
		name: "invalid_threshold",
		text: `
[loader]
threshold = 300
`,
		wantPaths: [][]string{{"loader", "threshold"}},
	},
	{
		name: "invalid_multiple",
		text: `
[viewport]
box = 0

[render]
background = "white"
`,
		wantPaths: [][]string{{"render", "background"}, {"viewport", "box"}},
	},
	{
		name: "zero_interval",
		text: `
[aquarium]
interval = "0s"
`,
		wantPaths: [][]string{{"aquarium", "interval"}},
	},
	{
		name: "web_tls",
		text: `
[render.web]
addr = ":8443"
cert = "cert.pem"
key = "key.pem"
root_ca = "ca.pem"
`,
		want: func() Config {
			c := config.Default()
			c.Render.Web = &config.Web{Addr: ":8443", Cert: "cert.pem", Key: "key.pem", RootCA: "ca.pem"}
			return c
		},
	},
	{
		name: "web_empty_cert",
		text: `
[render.web]
addr = ":8443"
cert = ""
`,
		want: func() Config {
			c := config.Default()
			c.Render.Web = &config.Web{Addr: ":8443"}
			return c
		},
	},
	{
		name: "record_without_path",
		text: `
[render.record]
duration = "1s"
`,
		wantPaths: [][]string{{"render", "record", "path"}},
	},
	{
		name: "unknown_key",
		text: `
[aquarium]
tanks = 2
`,
		wantErr: ErrUnknownKey,
	},
}

func TestParse(t *testing.T) {
	for _, test := range parseTests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Parse(test.text)
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Errorf("unexpected error: got:%v want:%v", err, test.wantErr)
				}
				return
			}
			if test.wantPaths != nil {
				var cfgErr *Error
				if !errors.As(err, &cfgErr) {
					t.Fatalf("unexpected error type: got:%T want:%T: %v", err, cfgErr, err)
				}
				if !cmp.Equal(test.wantPaths, cfgErr.Paths) {
					t.Errorf("unexpected paths:\n--- want:\n+++ got:\n%s", cmp.Diff(test.wantPaths, cfgErr.Paths))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(test.want(), *got); diff != "" {
				t.Errorf("unexpected configuration:\n--- want:\n+++ got:\n%s", diff)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error loading default: %v", err)
	}
	if diff := cmp.Diff(config.Default(), *got); diff != "" {
		t.Errorf("unexpected default configuration:\n--- want:\n+++ got:\n%s", diff)
	}

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("unexpected error for missing file: got:%v want:%v", err, os.ErrNotExist)
	}

	path := filepath.Join(t.TempDir(), "config.toml")
	err = os.WriteFile(path, []byte("[aquarium]\nslots = 3\n"), 0o644)
	if err != nil {
		t.Fatalf("unexpected error writing config: %v", err)
	}
	got, err = Load(path)
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}
	if got.Aquarium.Slots != 3 {
		t.Errorf("unexpected slot count: got:%d want:3", got.Aquarium.Slots)
	}
}

var compareTests = []struct {
	a, b []string
	want int
}{
	{a: nil, b: nil, want: 0},
	{a: []string{"a"}, b: nil, want: 1},
	{a: nil, b: []string{"a"}, want: -1},
	{a: []string{"a", "b"}, b: []string{"a", "b"}, want: 0},
	{a: []string{"a", "b"}, b: []string{"a", "c"}, want: -1},
	{a: []string{"a", "c"}, b: []string{"a", "b"}, want: 1},
	{a: []string{"a"}, b: []string{"a", "b"}, want: -1},
}

func TestCompare(t *testing.T) {
	for _, test := range compareTests {
		got := compare(test.a, test.b)
		if got != test.want {
			t.Errorf("unexpected result for compare(%q, %q): got:%d want:%d", test.a, test.b, got, test.want)
		}
	}
}

func TestUnique(t *testing.T) {
	got := unique([][]string{{"b"}, {"a", "b"}, {"b"}, {"a"}, {"a", "b"}})
	want := [][]string{{"a"}, {"a", "b"}, {"b"}}
	if !cmp.Equal(want, got) {
		t.Errorf("unexpected result:\n--- want:\n+++ got:\n%s", cmp.Diff(want, got))
	}
}

func TestSum(t *testing.T) {
	a := config.Default()
	b := config.Default()
	sa, err := a.Sum()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sb, _ := b.Sum()
	if sa != sb {
		t.Errorf("unexpected sum mismatch for equal configurations: %s != %s", sa, sb)
	}
	b.Aquarium.Slots++
	sb, _ = b.Sum()
	if sa == sb {
		t.Error("unexpected sum match for different configurations")
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	write := func(text string) {
		t.Helper()
		err := os.WriteFile(path, []byte(text), 0o644)
		if err != nil {
			t.Fatalf("unexpected error writing config: %v", err)
		}
	}
	write("[aquarium]\nslots = 3\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	var buf locked.BytesBuffer
	log := slog.New(slogext.NewJSONHandler(&buf, &slogext.HandlerOptions{Level: slog.LevelDebug}))
	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan Change, 10)
	done := make(chan error)
	go func() {
		done <- Watch(ctx, path, cfg, 10*time.Millisecond, log, func(c Change) { changes <- c })
	}()

	// The watch may not yet be established, so repeat the write
	// until a change is seen.
	next := func(text string) Change {
		t.Helper()
		for range 50 {
			write(text)
			select {
			case c := <-changes:
				return c
			case <-time.After(100 * time.Millisecond):
			}
		}
		t.Fatalf("no change seen for %q", text)
		return Change{}
	}

	c := next("[aquarium]\nslots = 5\n")
	if c.Err != nil {
		t.Fatalf("unexpected error in change: %v", c.Err)
	}
	if c.Config.Aquarium.Slots != 5 {
		t.Errorf("unexpected slot count: got:%d want:5", c.Config.Aquarium.Slots)
	}

	// A semantically equal rewrite is not reported.
	write("# comment\n[aquarium]\nslots = 5\n")
	c = next("[aquarium]\nslots = 7\n")
	if c.Err != nil {
		t.Fatalf("unexpected error in change: %v", c.Err)
	}
	if c.Config.Aquarium.Slots != 7 {
		t.Errorf("unexpected slot count after equal rewrite: got:%d want:7", c.Config.Aquarium.Slots)
	}

	c = next("[aquarium]\nfill = \"overflow\"\n")
	var cfgErr *Error
	if !errors.As(c.Err, &cfgErr) {
		t.Errorf("unexpected error for invalid change: got:%v want:%T", c.Err, cfgErr)
	}
	if c.Config != nil {
		t.Errorf("unexpected configuration for invalid change: %+v", c.Config)
	}

	cancel()
	err = <-done
	if err != nil {
		t.Errorf("unexpected error from watch: %v", err)
	}
}
