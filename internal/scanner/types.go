// Package scanner discovers the Go source files of a module tree,
// respecting exclusion patterns, .gitignore rules and module boundaries.
package scanner

import (
	"path"
	"time"
)

// File is a discovered source file.
type File struct {
	Path    string    // Slash-separated path relative to the root
	AbsPath string    // Absolute path
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
}

// Dir returns the slash-separated directory of the file relative to the
// root, "." for files at the root.
func (f *File) Dir() string {
	return path.Dir(f.Path)
}

// Options configures a scan.
type Options struct {
	// Root is the directory to scan.
	Root string

	// Exclude lists gitignore-style patterns relative to Root.
	Exclude []string

	// IncludeTests scans _test.go files as well.
	IncludeTests bool

	// RespectGitignore applies .gitignore files found in the tree.
	RespectGitignore bool

	// FollowSymlinks scans symlinked files (default: false).
	FollowSymlinks bool

	// NestedModules descends into directories holding their own go.mod.
	NestedModules bool

	// MaxFileSize skips larger files (0 = DefaultMaxFileSize).
	MaxFileSize int64
}

// Result is sent on the scan channel.
type Result struct {
	File  *File
	Error error
}

// DefaultMaxFileSize is the default maximum source file size (4MB).
const DefaultMaxFileSize = 4 * 1024 * 1024

// DefaultExcludeDirs are directory names never scanned, in addition to
// names starting with "." or "_".
var DefaultExcludeDirs = []string{
	"vendor",
	"testdata",
	"node_modules",
}
