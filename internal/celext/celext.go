// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package celext provides extensions to ease use of file paths in CEL
// programs.
package celext

import (
	"context"
	"log/slog"
	"path"
	"reflect"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"google.golang.org/protobuf/types/known/structpb"
)

// Lib returns a cel.EnvOption to configure extended functions to ease
// use of slash-separated file paths.
//
// # Base
//
// Returns the last element of a path:
//
//	base(<string>) -> <string>
//
// Examples:
//
//	base("dir/IMG_0001.jpg")  // return "IMG_0001.jpg"
//
// # Dir
//
// Returns all but the last element of a path:
//
//	dir(<string>) -> <string>
//
// Examples:
//
//	dir("dir/IMG_0001.jpg")  // return "dir"
//
// # Ext
//
// Returns the lower-cased file name extension of a path:
//
//	ext(<string>) -> <string>
//
// Examples:
//
//	ext("dir/IMG_0001.JPG")  // return ".jpg"
//
// # Glob
//
// Returns whether the receiver matches a shell file name pattern as
// described by [path.Match]:
//
//	<string>.glob(<string>) -> <bool>
//
// Examples:
//
//	"dir/IMG_0001.jpg".glob("dir/IMG_*")  // return true
//
// # Debug
//
// The second parameter is returned unaltered and the value is logged to the
// lib's logger:
//
//	debug(<string>, <dyn>) -> <dyn>
//
// Examples:
//
//	debug("name", name)  // return name
func Lib(log *slog.Logger) cel.EnvOption {
	return cel.Lib(lib{log: log})
}

type lib struct {
	log *slog.Logger
}

func (l lib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("base",
			cel.Overload(
				"base_string",
				[]*cel.Type{cel.StringType},
				cel.StringType,
				cel.UnaryBinding(stringFunc(path.Base)),
			),
		),
		cel.Function("dir",
			cel.Overload(
				"dir_string",
				[]*cel.Type{cel.StringType},
				cel.StringType,
				cel.UnaryBinding(stringFunc(path.Dir)),
			),
		),
		cel.Function("ext",
			cel.Overload(
				"ext_string",
				[]*cel.Type{cel.StringType},
				cel.StringType,
				cel.UnaryBinding(stringFunc(func(s string) string {
					return strings.ToLower(path.Ext(s))
				})),
			),
		),
		cel.Function("glob",
			cel.MemberOverload(
				"string_glob_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(glob),
			),
		),
		cel.Function("debug",
			cel.Overload(
				"debug_string_dyn",
				[]*cel.Type{cel.StringType, cel.DynType},
				cel.DynType,
				cel.BinaryBinding(l.logDebug),
				cel.OverloadIsNonStrict(),
			),
		),
	}
}

func (lib) ProgramOptions() []cel.ProgramOption { return nil }

func stringFunc(fn func(string) string) func(ref.Val) ref.Val {
	return func(arg ref.Val) ref.Val {
		s, ok := arg.(types.String)
		if !ok {
			return types.ValOrErr(arg, "no such overload")
		}
		return types.String(fn(string(s)))
	}
}

func glob(arg0, arg1 ref.Val) ref.Val {
	name, ok := arg0.(types.String)
	if !ok {
		return types.ValOrErr(arg0, "no such overload")
	}
	pattern, ok := arg1.(types.String)
	if !ok {
		return types.ValOrErr(arg1, "no such overload")
	}
	match, err := path.Match(string(pattern), string(name))
	if err != nil {
		return types.NewErr("invalid pattern %q: %v", pattern, err)
	}
	return types.Bool(match)
}

func (l lib) logDebug(arg0, arg1 ref.Val) ref.Val {
	tag, ok := arg0.(types.String)
	if !ok {
		return types.ValOrErr(tag, "no such overload")
	}
	if l.log == nil {
		return arg1
	}
	val, err := arg1.ConvertToNative(reflect.TypeOf((*structpb.Value)(nil)))
	if err != nil {
		l.log.LogAttrs(context.Background(), slog.LevelError, "cel debug log error", slog.String("tag", string(tag)), slog.Any("error", err))
	} else {
		l.log.LogAttrs(context.Background(), slog.LevelDebug, "cel debug log", slog.String("tag", string(tag)), slog.Any("value", val.(*structpb.Value).AsInterface()))
	}
	return arg1
}
