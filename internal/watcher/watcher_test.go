package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/annodex/internal/scanner"
)

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpCreate, "CREATE"},
		{OpModify, "MODIFY"},
		{OpDelete, "DELETE"},
		{OpRename, "RENAME"},
		{OpIgnoreChange, "IGNORE_CHANGE"},
		{OpModuleChange, "MODULE_CHANGE"},
		{Operation(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.String())
		})
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	opts := Options{DebounceWindow: 10 * time.Millisecond}.WithDefaults()

	assert.Equal(t, 10*time.Millisecond, opts.DebounceWindow)
	assert.Equal(t, DefaultOptions().PollInterval, opts.PollInterval)
	assert.Equal(t, DefaultOptions().EventBufferSize, opts.EventBufferSize)
	assert.NotNil(t, opts.Logger)
}

func newTestFilter(t *testing.T, opts scanner.Options) *filter {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("gen/\n"), 0o644))
	s, err := scanner.New()
	require.NoError(t, err)
	opts.RespectGitignore = true
	return newFilter(root, s, opts)
}

func TestFilter_Classify(t *testing.T) {
	f := newTestFilter(t, scanner.Options{Exclude: []string{"legacy/"}})

	tests := []struct {
		name     string
		rel      string
		op       Operation
		isDir    bool
		want     Operation
		relevant bool
	}{
		{"go source", "svc/stuff.go", OpModify, false, OpModify, true},
		{"test file", "svc/stuff_test.go", OpModify, false, OpModify, false},
		{"non-go file", "README.md", OpCreate, false, OpCreate, false},
		{"vendor", "vendor/x/x.go", OpCreate, false, OpCreate, false},
		{"hidden dir", ".git/HEAD", OpModify, false, OpModify, false},
		{"gitignored", "gen/out.go", OpCreate, false, OpCreate, false},
		{"excluded", "legacy/old.go", OpCreate, false, OpCreate, false},
		{"source dir", "svc", OpCreate, true, OpCreate, true},
		{"testdata dir", "svc/testdata", OpCreate, true, OpCreate, false},
		{"root go.mod", "go.mod", OpModify, false, OpModuleChange, true},
		{"nested go.mod", "tools/go.mod", OpCreate, false, OpModuleChange, true},
		{"vendored go.mod", "vendor/x/go.mod", OpCreate, false, OpModuleChange, false},
		{"gitignore", ".gitignore", OpModify, false, OpIgnoreChange, true},
		{"nested gitignore", "svc/.gitignore", OpCreate, false, OpIgnoreChange, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, ok := f.classify(tt.rel, tt.op, tt.isDir)
			assert.Equal(t, tt.relevant, ok)
			if ok {
				assert.Equal(t, tt.want, op)
			}
		})
	}
}

func TestFilter_Rel(t *testing.T) {
	f := newTestFilter(t, scanner.Options{})

	rel, ok := f.rel(filepath.Join(f.root, "svc", "stuff.go"))
	assert.True(t, ok)
	assert.Equal(t, "svc/stuff.go", rel)

	_, ok = f.rel(f.root)
	assert.False(t, ok)

	_, ok = f.rel(filepath.Dir(f.root))
	assert.False(t, ok)
}
