// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loader

import (
	"bytes"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"strings"
)

func init() {
	// Make typing independent of the host's mime tables
	// for the formats we can handle.
	for ext, typ := range map[string]string{
		".heic": "image/heic",
		".heif": "image/heif",
		".bmp":  "image/bmp",
		".tif":  "image/tiff",
		".tiff": "image/tiff",
		".webp": "image/webp",
	} {
		mime.AddExtensionType(ext, typ)
	}
}

// File is a candidate image file.
type File interface {
	// Name returns the file's path relative
	// to the selection root.
	Name() string
	// Type returns the file's media type.
	Type() string
	// Size returns the file's size in bytes.
	Size() int64
	// Open opens the file for reading.
	Open() (io.ReadCloser, error)
}

// TypeOf returns the media type of the named file based on its extension,
// without parameters. It returns the empty string if the type is unknown.
func TypeOf(name string) string {
	typ := mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	typ, _, _ = strings.Cut(typ, ";")
	return strings.TrimSpace(typ)
}

// Accepts returns whether the media type is an image type.
func Accepts(typ string) bool {
	return strings.HasPrefix(typ, "image/")
}

// NeedsConversion returns whether the media type is an image type that must
// be converted before it can be decoded.
func NeedsConversion(typ string) bool {
	switch typ {
	case "image/heic", "image/heif":
		return true
	default:
		return false
	}
}

// Dir returns the regular files in the directory tree rooted at root
// in lexical order.
func Dir(root string) ([]File, error) {
	return FS(os.DirFS(root))
}

// FS returns the regular files in fsys in lexical order. Hidden files
// and directories are skipped.
func FS(fsys fs.FS) ([]File, error) {
	var files []File
	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if name != "." && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, fsFile{fsys: fsys, name: name, size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

type fsFile struct {
	fsys fs.FS
	name string
	size int64
}

func (f fsFile) Name() string { return f.name }
func (f fsFile) Type() string { return TypeOf(f.name) }
func (f fsFile) Size() int64  { return f.size }

func (f fsFile) Open() (io.ReadCloser, error) {
	return f.fsys.Open(f.name)
}

// Bytes returns a File holding data. If typ is empty the type is
// derived from name.
func Bytes(name, typ string, data []byte) File {
	if typ == "" {
		typ = TypeOf(name)
	}
	return memFile{name: name, typ: typ, data: data}
}

type memFile struct {
	name string
	typ  string
	data []byte
}

func (f memFile) Name() string { return f.name }
func (f memFile) Type() string { return f.typ }
func (f memFile) Size() int64  { return int64(len(f.data)) }

func (f memFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}
