package classpath

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/Aman-CERP/annodex/internal/errors"
)

// ArchiveRoot serves resources from a zip archive, such as a jar-style
// bundle of a dependency's index.
type ArchiveRoot struct {
	path    string
	reader  *zip.ReadCloser
	entries map[string]*zip.File
}

// OpenArchive opens the archive at path and indexes its entries.
func OpenArchive(path string) (*ArchiveRoot, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	r, err := zip.OpenReader(abs)
	if err != nil {
		return nil, errors.ReadError(abs, err).WithSuggestion("Check that the classpath archive is a valid zip file")
	}

	a := &ArchiveRoot{path: abs, reader: r, entries: make(map[string]*zip.File, len(r.File))}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		a.entries[strings.TrimPrefix(f.Name, "/")] = f
	}
	return a, nil
}

func (a *ArchiveRoot) Name() string { return a.path }

func (a *ArchiveRoot) Has(_ context.Context, p string) (bool, error) {
	_, ok := a.entries[strings.TrimPrefix(p, "/")]
	return ok, nil
}

func (a *ArchiveRoot) Open(_ context.Context, p string) (io.ReadCloser, error) {
	f, ok := a.entries[strings.TrimPrefix(p, "/")]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: a.path + "!" + p, Err: fs.ErrNotExist}
	}
	return f.Open()
}

func (a *ArchiveRoot) List(_ context.Context, prefix string) ([]string, error) {
	var out []string
	for name := range a.entries {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (a *ArchiveRoot) Close() error {
	return a.reader.Close()
}
