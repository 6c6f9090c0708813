package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Aman-CERP/annodex/internal/errors"
)

const (
	// MaxBackups is the number of backups kept per config file.
	MaxBackups = 3

	// BackupSuffix separates a config file name from its backup stamp.
	BackupSuffix = ".bak"
)

// Backup copies the config file at path to a timestamped sibling before
// it is overwritten and prunes older backups. It returns "" when there
// is nothing to back up.
func Backup(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.ReadError(path, err)
	}

	stamp := time.Now().Format("20060102-150405.000000000")
	backup := fmt.Sprintf("%s%s.%s", path, BackupSuffix, stamp)
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		return "", errors.WriteError(backup, err)
	}

	backups, err := ListBackups(path)
	if err == nil && len(backups) > MaxBackups {
		for _, old := range backups[MaxBackups:] {
			_ = os.Remove(old)
		}
	}
	return backup, nil
}

// ListBackups returns the backups of the config file at path, newest
// first.
func ListBackups(path string) ([]string, error) {
	dir, base := filepath.Dir(path), filepath.Base(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.ReadError(dir, err)
	}

	prefix := base + BackupSuffix + "."
	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, e.Name()))
		}
	}
	// Stamps sort lexically in time order.
	slices.Sort(backups)
	slices.Reverse(backups)
	return backups, nil
}

// Restore replaces the config file at path with backup, backing up the
// current file first.
func Restore(path, backup string) error {
	data, err := os.ReadFile(backup)
	if err != nil {
		return errors.ReadError(backup, err).WithSuggestion("List backups with 'annodex config show --backups'")
	}
	if _, err := Backup(path); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WriteError(path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WriteError(path, err)
	}
	return nil
}
