package classpath

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// DirRoot serves resources from a directory, usually a build output.
type DirRoot struct {
	dir string
}

// NewDirRoot creates a root over dir, which must exist.
func NewDirRoot(dir string) (*DirRoot, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := statDir(abs); err != nil {
		return nil, err
	}
	return &DirRoot{dir: abs}, nil
}

func (d *DirRoot) Name() string { return d.dir }

func (d *DirRoot) file(p string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(p, "/"))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("resource path %q escapes the root", p)
	}
	return filepath.Join(d.dir, filepath.FromSlash(clean)), nil
}

func (d *DirRoot) Has(_ context.Context, p string) (bool, error) {
	file, err := d.file(p)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(file)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (d *DirRoot) Open(_ context.Context, p string) (io.ReadCloser, error) {
	file, err := d.file(p)
	if err != nil {
		return nil, err
	}
	return os.Open(file)
}

func (d *DirRoot) List(ctx context.Context, prefix string) ([]string, error) {
	base, err := d.file(prefix)
	if err != nil {
		return nil, err
	}

	var out []string
	err = filepath.WalkDir(base, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) && p == base {
				return fs.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if e.IsDir() || !e.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(d.dir, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(out)
	return out, nil
}

func (d *DirRoot) Close() error { return nil }
