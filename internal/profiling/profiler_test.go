package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireNonEmpty(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSession_WritesAllProfiles(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		CPU:   filepath.Join(dir, "cpu.prof"),
		Heap:  filepath.Join(dir, "heap.prof"),
		Trace: filepath.Join(dir, "trace.out"),
	}
	require.True(t, cfg.Enabled())

	s, err := Start(cfg)
	require.NoError(t, err)

	sum := 0
	for i := range 1_000_000 {
		sum += i
	}
	_ = sum

	require.NoError(t, s.Stop())
	requireNonEmpty(t, cfg.CPU)
	requireNonEmpty(t, cfg.Heap)
	requireNonEmpty(t, cfg.Trace)
}

func TestSession_HeapOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.prof")

	s, err := Start(Config{Heap: path})
	require.NoError(t, err)
	require.NoError(t, s.Stop())

	requireNonEmpty(t, path)
}

func TestStart_InvalidPath(t *testing.T) {
	_, err := Start(Config{CPU: filepath.Join(t.TempDir(), "missing", "cpu.prof")})
	require.Error(t, err)
}

func TestStart_TraceFailureStopsCPU(t *testing.T) {
	dir := t.TempDir()

	_, err := Start(Config{
		CPU:   filepath.Join(dir, "cpu.prof"),
		Trace: filepath.Join(dir, "missing", "trace.out"),
	})
	require.Error(t, err)

	// CPU profiling was stopped, so a new session can start it again.
	s, err := Start(Config{CPU: filepath.Join(dir, "cpu2.prof")})
	require.NoError(t, err)
	require.NoError(t, s.Stop())
}

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{Trace: "t.out"}.Enabled())
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{3 * 1024 * 1024, "3.0 MiB"},
		{50 * 1024 * 1024 * 1024, "50 GiB"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBytes(tt.bytes))
		})
	}
}
