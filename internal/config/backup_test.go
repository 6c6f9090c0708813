package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackup_NoFile(t *testing.T) {
	backup, err := Backup(filepath.Join(t.TempDir(), ProjectFile))

	require.NoError(t, err)
	assert.Empty(t, backup)
}

func TestBackup_PrunesOldBackups(t *testing.T) {
	// Given: an existing config file
	path := filepath.Join(t.TempDir(), ProjectFile)
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	// When: it is backed up more often than MaxBackups
	var last string
	for i := 0; i < MaxBackups+2; i++ {
		b, err := Backup(path)
		require.NoError(t, err)
		last = b
	}

	// Then: only the newest MaxBackups remain, newest first
	backups, err := ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, MaxBackups)
	assert.Equal(t, last, backups[0])
	data, err := os.ReadFile(last)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}

func TestRestore(t *testing.T) {
	// Given: a config file and a backup of an older version
	path := filepath.Join(t.TempDir(), "annodex", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("index:\n  prefix: legacy\n"), 0o644))
	old, err := Backup(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("index:\n  prefix: services\n"), 0o644))

	// When: restoring the backup
	require.NoError(t, Restore(path, old))

	// Then: the old content is back and the replaced one was kept
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "index:\n  prefix: legacy\n", string(data))
	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, 2)
}

func TestRestore_MissingBackup(t *testing.T) {
	err := Restore(filepath.Join(t.TempDir(), ProjectFile), "/nonexistent/backup")
	assert.Error(t, err)
}
