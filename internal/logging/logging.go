package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config configures file logging.
type Config struct {
	// Level is the minimum level (debug, info, warn, error).
	Level string
	// FilePath is the log file. Empty disables file logging.
	FilePath string
	// MaxSizeMB is the size that triggers rotation.
	MaxSizeMB int
	// MaxFiles is the number of rotated files kept.
	MaxFiles int
	// Stderr also writes entries to stderr.
	Stderr bool
}

// DefaultConfig returns the configuration used by --debug.
func DefaultConfig() Config {
	return Config{
		Level:     "debug",
		FilePath:  DefaultLogPath(),
		MaxSizeMB: 10,
		MaxFiles:  5,
		Stderr:    false,
	}
}

// Setup builds a JSON logger for cfg. The returned cleanup closes the
// log file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if cfg.FilePath == "" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), func() {}, nil
	}

	w, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}
	var out io.Writer = w
	if cfg.Stderr {
		out = io.MultiWriter(w, os.Stderr)
	}
	cleanup := func() {
		_ = w.Sync()
		_ = w.Close()
	}
	return slog.New(slog.NewJSONHandler(out, opts)), cleanup, nil
}

// Console returns the logger used without --debug: plain text on w at
// the given level.
func Console(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel converts a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
