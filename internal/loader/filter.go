// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loader

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/kortschak/aquarium/internal/celext"
)

// Filter is a compiled CEL file acceptance expression. The expression
// is evaluated with the variables
//
//   - name: the file's path relative to the selection root
//   - mime: the file's media type
//   - size: the file's size in bytes
//
// and must return a bool. The path functions of [celext.Lib] are
// available, and debug calls are logged to the filter's logger.
//
// For example, to accept only JPEG images smaller than 10MB:
//
//	mime == "image/jpeg" && size < 10000000
//
// or to accept only camera images in the top directory:
//
//	name.glob("IMG_*")
type Filter struct {
	src string
	prg cel.Program
}

// NewFilter compiles src into a Filter.
func NewFilter(src string, log *slog.Logger) (*Filter, error) {
	env, err := cel.NewEnv(
		celext.Lib(log),
		cel.Variable("name", cel.StringType),
		cel.Variable("mime", cel.StringType),
		cel.Variable("size", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create env: %v", err)
	}

	ast, iss := env.Compile(src)
	if iss.Err() != nil {
		return nil, fmt.Errorf("failed compilation: %v", iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter must return bool: got %v", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed program instantiation: %v", err)
	}
	return &Filter{src: src, prg: prg}, nil
}

// String returns the filter's source.
func (f *Filter) String() string { return f.src }

// Match returns whether f accepts file.
func (f *Filter) Match(file File) (bool, error) {
	out, _, err := f.prg.Eval(map[string]any{
		"name": file.Name(),
		"mime": file.Type(),
		"size": file.Size(),
	})
	if err != nil {
		return false, fmt.Errorf("failed eval: %v", err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("unexpected result type: %T", out.Value())
	}
	return ok, nil
}
