package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".annodex", "logs"), DefaultLogDir())
	assert.Equal(t, filepath.Join(home, ".annodex", "logs", "annodex.log"), DefaultLogPath())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: file logging at info level
	path := filepath.Join(t.TempDir(), "logs", "annodex.log")
	logger, cleanup, err := Setup(Config{Level: "info", FilePath: path, MaxSizeMB: 1, MaxFiles: 2})
	require.NoError(t, err)

	// When: logging below and at the level
	logger.Debug("hidden")
	logger.Info("build complete", slog.Int("files", 4))
	cleanup()

	// Then: only the info entry is written, as JSON
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	e := ParseLine(lines[0])
	assert.True(t, e.Valid)
	assert.Equal(t, "INFO", e.Level)
	assert.Equal(t, "build complete", e.Msg)
	assert.Equal(t, float64(4), e.Attrs["files"])
}

func TestConsole(t *testing.T) {
	var b strings.Builder
	logger := Console(&b, "warn")

	logger.Info("quiet")
	logger.Warn("loud")

	assert.NotContains(t, b.String(), "quiet")
	assert.Contains(t, b.String(), "msg=loud")
}

func TestFindLogFile(t *testing.T) {
	explicit := filepath.Join(t.TempDir(), "x.log")
	_, err := FindLogFile(explicit)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(explicit, []byte("{}\n"), 0o644))
	got, err := FindLogFile(explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, got)
}

func TestRotatingWriter_Rotation(t *testing.T) {
	// Given: a writer rotating past 100 bytes, keeping 2 files
	path := filepath.Join(t.TempDir(), "rotate.log")
	w, err := newRotatingWriter(path, 100, 2)
	require.NoError(t, err)
	defer w.Close()

	// When: writing four 60 byte entries
	for i := 0; i < 4; i++ {
		_, err := fmt.Fprintf(w, "%059d\n", i)
		require.NoError(t, err)
	}

	// Then: the newest entry is current and only two rotations remain
	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%059d\n", 3), string(current))
	first, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%059d\n", 2), string(first))
	_, err = os.Stat(path + ".2")
	assert.NoError(t, err)
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingWriter_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "append.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	_, err = w.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))

	_, err = w.Write([]byte("late\n"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.log")
	w, err := NewRotatingWriter(path, 10, 3)
	require.NoError(t, err)
	defer w.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = fmt.Fprintf(w, "{\"id\":%d,\"iter\":%d}\n", id, j)
			}
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 400)
}

const sampleLog = `{"time":"2026-01-02T10:00:00Z","level":"DEBUG","msg":"scanning","root":"/src"}
{"time":"2026-01-02T10:00:01Z","level":"INFO","msg":"build complete","files":4,"mode":"full"}
not json at all
{"time":"2026-01-02T10:00:02Z","level":"ERROR","msg":"rebuild failed","error":"locked"}
`

func TestViewer_Tail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annodex.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))

	tests := []struct {
		name string
		cfg  ViewerConfig
		n    int
		want []string
	}{
		{"all", ViewerConfig{}, 0, []string{"scanning", "build complete", "", "rebuild failed"}},
		{"last two", ViewerConfig{}, 2, []string{"", "rebuild failed"}},
		{"info and up", ViewerConfig{Level: "info"}, 0, []string{"build complete", "", "rebuild failed"}},
		{"pattern", ViewerConfig{Pattern: regexp.MustCompile(`mode`)}, 0, []string{"build complete"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := NewViewer(tt.cfg, nil).Tail(path, tt.n)
			require.NoError(t, err)
			var got []string
			for _, e := range entries {
				got = append(got, e.Msg)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestViewer_Format(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, nil)

	e := ParseLine(`{"time":"2026-01-02T10:00:01.5Z","level":"INFO","msg":"build complete","mode":"full","files":4}`)
	assert.Equal(t, "10:00:01.500 INFO  build complete files=4 mode=full", v.Format(e))

	raw := ParseLine("plain text")
	assert.False(t, raw.Valid)
	assert.Equal(t, "plain text", v.Format(raw))
}

func TestViewer_Print(t *testing.T) {
	var b strings.Builder
	v := NewViewer(ViewerConfig{NoColor: true}, &b)

	v.Print([]Entry{ParseLine("one"), ParseLine("two")})

	assert.Equal(t, "one\ntwo\n", b.String())
}

func TestViewer_Follow(t *testing.T) {
	// Given: a log file being followed
	path := filepath.Join(t.TempDir(), "annodex.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan Entry, 4)
	done := make(chan error, 1)
	go func() { done <- NewViewer(ViewerConfig{Level: "warn"}, nil).Follow(ctx, path, out) }()
	time.Sleep(150 * time.Millisecond)

	// When: entries are appended
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"time":"2026-01-02T10:00:03Z","level":"INFO","msg":"ignored"}` + "\n" +
		`{"time":"2026-01-02T10:00:04Z","level":"WARN","msg":"lock wait"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Then: only new matching entries arrive
	select {
	case e := <-out:
		assert.Equal(t, "lock wait", e.Msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for followed entry")
	}
	cancel()
	assert.NoError(t, <-done)
}
