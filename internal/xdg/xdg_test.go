// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xdg

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"
)

var envOrDefaultTests = []struct {
	name string
	set  map[string]string

	key, def, home string

	want   string
	wantOK bool
}{
	{
		name: "key_set",
		set: map[string]string{
			"test_HOME": "testdata/home",
			"testkey":   "testdata/home/dir",
		},
		key:  "testkey",
		def:  "testdata/global_dir",
		home: "test_HOME",

		want:   "testdata/home/dir",
		wantOK: true,
	},
	{
		name: "relative_default",
		set: map[string]string{
			"test_HOME": "testdata/home",
		},
		key:  "testkey",
		def:  "testdata/global_dir",
		home: "test_HOME",

		want:   "testdata/home/testdata/global_dir",
		wantOK: true,
	},
	{
		name: "no_default",
		set: map[string]string{
			"test_HOME": "testdata/home",
		},
		key:  "testkey",
		def:  "",
		home: "test_HOME",

		want:   "",
		wantOK: false,
	},
	{
		name: "no_home",
		key:  "testkey",
		def:  "testdata/global_dir",
		home: "",

		want:   "testdata/global_dir",
		wantOK: true,
	},
	{
		name: "absent_home",
		key:  "testkey",
		def:  "testdata/global_dir",
		home: "invalid_test_HOME",

		want:   "",
		wantOK: false,
	},
}

func TestEnvOrDefault(t *testing.T) {
	for _, test := range envOrDefaultTests {
		t.Run(test.name, func(t *testing.T) {
			for k, v := range test.set {
				t.Setenv(k, v)
			}
			got, gotOK := envOrDefault(test.key, test.def, test.home)
			if gotOK != test.wantOK {
				t.Errorf("unexpected ok: got:%t want:%t", gotOK, test.wantOK)
			}
			if got != test.want {
				t.Errorf("unexpected result: got:%q want:%q", got, test.want)
			}
		})
	}
}

func TestConfig(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG environment variables only used on linux")
	}
	home := t.TempDir()
	global := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("XDG_CONFIG_DIRS", global)

	const name = "aquarium/config.toml"
	_, err := Config(name, false)
	if !errors.Is(err, syscall.ENOENT) {
		t.Errorf("unexpected error for missing config: got:%v want:%v", err, syscall.ENOENT)
	}

	want := filepath.Join(global, name)
	write(t, want)
	got, err := Config(name, false)
	if err != nil {
		t.Errorf("unexpected error for global config: %v", err)
	}
	if got != want {
		t.Errorf("unexpected global config path: got:%q want:%q", got, want)
	}
	_, err = Config(name, true)
	if !errors.Is(err, syscall.ENOENT) {
		t.Errorf("unexpected error for local lookup of global config: got:%v want:%v", err, syscall.ENOENT)
	}

	want = filepath.Join(home, name)
	write(t, want)
	got, err = Config(name, true)
	if err != nil {
		t.Errorf("unexpected error for local config: %v", err)
	}
	if got != want {
		t.Errorf("unexpected local config path: got:%q want:%q", got, want)
	}
}

func write(t *testing.T, path string) {
	t.Helper()
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		t.Fatalf("unexpected error making directory: %v", err)
	}
	err = os.WriteFile(path, nil, 0o644)
	if err != nil {
		t.Fatalf("unexpected error writing file: %v", err)
	}
}
