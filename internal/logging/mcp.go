package logging

import (
	"log/slog"
)

// SetupServeMode installs file-only logging for the MCP server and
// returns its cleanup. Nothing may be written to stdout or stderr while
// serving, or the JSON-RPC stream is corrupted.
func SetupServeMode(level string) (*slog.Logger, func(), error) {
	cfg := DefaultConfig()
	if level != "" {
		cfg.Level = level
	}
	cfg.Stderr = false

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	logger.Info("serve mode logging initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))
	return logger, cleanup, nil
}
