package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.annodex/logs, or a directory under the temp
// dir when the home directory is unknown.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".annodex", "logs")
	}
	return filepath.Join(home, ".annodex", "logs")
}

// DefaultLogPath returns the log file written with --debug.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "annodex.log")
}

// FindLogFile returns explicit when set, else the default log file, or
// an error when the file does not exist.
func FindLogFile(explicit string) (string, error) {
	p := explicit
	if p == "" {
		p = DefaultLogPath()
	}
	if _, err := os.Stat(p); err != nil {
		if explicit != "" {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return "", fmt.Errorf("no log file found at %s; run annodex with --debug first", p)
	}
	return p, nil
}
