package gosrc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModulePath(t *testing.T) {
	tests := []struct {
		name    string
		gomod   string
		want    string
		wantErr bool
	}{
		{"plain", "module example.com/app\n\ngo 1.25\n", "example.com/app", false},
		{"quoted", "module \"example.com/app\"\n", "example.com/app", false},
		{"comment", "// header\nmodule example.com/app // trailing\n", "example.com/app", false},
		{"missing", "go 1.25\n", "", true},
		{"modulex is not module", "modulex foo\n", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ModulePath([]byte(tt.gomod))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindModule_WalksUp(t *testing.T) {
	// Given: a module with a nested package directory
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/app\n"), 0o644))
	nested := filepath.Join(root, "internal", "api")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	// When: searching from the nested directory
	m, err := FindModule(nested)

	// Then: the module root and import paths resolve
	require.NoError(t, err)
	assert.Equal(t, "example.com/app", m.Path)

	ip, err := m.ImportPath(nested)
	require.NoError(t, err)
	assert.Equal(t, "example.com/app/internal/api", ip)

	dir, ok := m.PackageDir("example.com/app/internal/api")
	require.True(t, ok)
	assert.Equal(t, nested, dir)

	assert.False(t, m.Contains("example.com/application"))
	assert.True(t, m.Contains("example.com/app"))
}

func TestFindModule_NoGoMod(t *testing.T) {
	_, err := FindModule(t.TempDir())
	assert.Error(t, err)
}

func TestDefaultPackageName(t *testing.T) {
	tests := map[string]string{
		"example.com/api":                 "api",
		"github.com/minio/minio-go/v7":    "minio",
		"gopkg.in/yaml.v3":                "yaml",
		"github.com/mattn/go-isatty":      "isatty",
		"github.com/x/annotations-go":     "annotations",
		"github.com/hashicorp/golang-lru": "golanglru",
	}
	for in, want := range tests {
		assert.Equal(t, want, defaultPackageName(in), in)
	}
}
