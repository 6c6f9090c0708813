// Package index implements the read path of annodex: listing every
// element annotated with an indexable annotation, using the index
// resources written at build time instead of scanning sources.
//
// [List] probes every namespace prefix on every root of a [Source],
// unions the locations into one sorted set and returns an [Iterator]
// that resolves them lazily. Entries that cannot be resolved are logged
// and skipped; only failures to enumerate or read the index itself are
// returned to the caller.
//
//	it, err := index.List(ctx, "example.com/api.Audit", src)
//	if err != nil {
//	    return err
//	}
//	for e := range it.All() {
//	    fmt.Println(element.Describe(e))
//	}
//	if err := it.Err(); err != nil {
//	    return err
//	}
package index

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Aman-CERP/annodex/pkg/element"
)

// ErrNotFound is returned by class loaders for names they cannot find.
var ErrNotFound = errors.New("not found")

// LinkageError reports a class that exists but cannot be loaded
// consistently, such as one embedding a type that no longer exists.
type LinkageError struct {
	Name string
	Err  error
}

func (e *LinkageError) Error() string {
	return fmt.Sprintf("linkage error loading %s: %v", e.Name, e.Err)
}

func (e *LinkageError) Unwrap() error { return e.Err }

// Resource is one index resource visible to a source.
type Resource interface {
	// Name identifies the resource for diagnostics, e.g. its root and path.
	Name() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// ResourceFinder enumerates resources by path across all roots.
type ResourceFinder interface {
	// Resources returns every resource at path, in root order. A path
	// present on no root yields an empty slice and no error.
	Resources(ctx context.Context, path string) ([]Resource, error)
}

// ClassLoader resolves names to live element handles.
type ClassLoader interface {
	// LoadClass resolves a binary class name. Missing classes yield an
	// error matching ErrNotFound; inconsistent ones a *LinkageError.
	LoadClass(ctx context.Context, name string) (*element.Class, error)

	// LoadPackage resolves an import path.
	LoadPackage(ctx context.Context, path string) (*element.Package, error)
}

// Source provides both index resources and the elements they name.
type Source interface {
	ResourceFinder
	ClassLoader
}

type source struct {
	ResourceFinder
	ClassLoader
}

// NewSource combines a resource finder and a class loader.
func NewSource(finder ResourceFinder, loader ClassLoader) Source {
	return source{ResourceFinder: finder, ClassLoader: loader}
}
