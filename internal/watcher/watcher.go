package watcher

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/annodex/internal/scanner"
)

// Operation is the kind of change observed on a path.
type Operation int

const (
	// OpCreate indicates a new file or directory.
	OpCreate Operation = iota
	// OpModify indicates changed file contents.
	OpModify
	// OpDelete indicates a removed file or directory.
	OpDelete
	// OpRename indicates the path was renamed away.
	OpRename
	// OpIgnoreChange indicates a .gitignore file changed, which can move
	// sources in or out of the scanned set.
	OpIgnoreChange
	// OpModuleChange indicates a go.mod file changed, which can move
	// module boundaries and import paths.
	OpModuleChange
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpIgnoreChange:
		return "IGNORE_CHANGE"
	case OpModuleChange:
		return "MODULE_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a change to one path.
type FileEvent struct {
	// Path is slash-separated and relative to the watched root.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is the quiet period before a batch is emitted.
	// Default: 200ms
	DebounceWindow time.Duration

	// PollInterval is the scan interval of the polling fallback.
	// Default: 2s
	PollInterval time.Duration

	// EventBufferSize is the capacity of the batch channel.
	// Default: 64
	EventBufferSize int

	// Scan holds the scan rules events are filtered with. Its Root is
	// replaced by the watched directory.
	Scan scanner.Options

	// Scanner evaluates Scan. A new one is created when nil.
	Scanner *scanner.Scanner

	// ForcePolling skips fsnotify.
	ForcePolling bool

	Logger *slog.Logger
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		PollInterval:    2 * time.Second,
		EventBufferSize: 64,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// filter decides which paths under root are worth an event.
type filter struct {
	root    string
	scanner *scanner.Scanner
	opts    scanner.Options
}

func newFilter(root string, s *scanner.Scanner, opts scanner.Options) *filter {
	opts.Root = root
	return &filter{root: root, scanner: s, opts: opts}
}

// rel converts an absolute path to a slash-separated root-relative one.
func (f *filter) rel(abs string) (string, bool) {
	r, err := filepath.Rel(f.root, abs)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(r), true
}

// classify returns the operation to report for a raw change on rel, and
// false when the path is irrelevant.
func (f *filter) classify(rel string, op Operation, isDir bool) (Operation, bool) {
	if isDir {
		return op, f.scanner.Accept(&f.opts, rel, true)
	}
	switch path.Base(rel) {
	case ".gitignore":
		if !f.parentAccepted(rel) {
			return op, false
		}
		f.scanner.InvalidateIgnoreCache()
		return OpIgnoreChange, true
	case "go.mod":
		return OpModuleChange, f.parentAccepted(rel)
	}
	return op, f.scanner.Accept(&f.opts, rel, false)
}

func (f *filter) parentAccepted(rel string) bool {
	dir := path.Dir(rel)
	return dir == "." || f.scanner.Accept(&f.opts, dir, true)
}

// Source is a stream of debounced event batches.
type Source interface {
	Events() <-chan []FileEvent
	Errors() <-chan error
}

var _ interface {
	Source
	Start(ctx context.Context, root string) error
	Stop() error
} = (*Watcher)(nil)
