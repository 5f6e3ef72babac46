package exprtmpl

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// Loader supplies template sources by path. A Compiler calls Load at most
// once per path.
type Loader interface {
	Load(ctx context.Context, path string) (string, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, path string) (string, error)

func (f LoaderFunc) Load(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// MapLoader serves templates from memory.
type MapLoader map[string]string

func (m MapLoader) Load(_ context.Context, name string) (string, error) {
	src, ok := m[name]
	if !ok {
		return "", fmt.Errorf("template %q: %w", name, fs.ErrNotExist)
	}
	return src, nil
}

// FSLoader reads templates from a file system, for example os.DirFS or
// an embed.FS. Paths are slash separated and relative to the root.
type FSLoader struct {
	FS fs.FS
}

// NewFSLoader returns a loader reading from fsys.
func NewFSLoader(fsys fs.FS) *FSLoader {
	return &FSLoader{FS: fsys}
}

func (l *FSLoader) Load(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := path.Clean(strings.TrimPrefix(name, "/"))
	if !fs.ValidPath(clean) {
		return "", fmt.Errorf("template %q: %w", name, fs.ErrInvalid)
	}
	data, err := fs.ReadFile(l.FS, clean)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// StringLoader serves a single inline template under Name. Every other
// path is missing.
type StringLoader struct {
	Name   string
	Source string
}

func (l StringLoader) Load(_ context.Context, name string) (string, error) {
	if name != l.Name {
		return "", fmt.Errorf("template %q: %w", name, fs.ErrNotExist)
	}
	return l.Source, nil
}
