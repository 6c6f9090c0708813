package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const auditName = "example.com/app/api.Audit"

var moduleFiles = map[string]string{
	"go.mod": "module example.com/app\n",
	"api/api.go": `package api

// @annodex.Indexed
// @annodex.Retention(runtime)
type Audit struct{}
`,
	"svc/stuff.go": `package svc

import "example.com/app/api"

// @api.Audit
type Stuff struct {
	// @api.Audit
	Name string
}

// @api.Audit
func (s *Stuff) Run() {}
`,
	"svc/other.go": `package svc

import "example.com/app/api"

// @api.Audit
type Other struct{}
`,
}

// isolate points the user config and home directory at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	return home
}

// writeModule writes the test module to a temp dir and returns its root.
func writeModule(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range moduleFiles {
		writeFile(t, root, name, content)
	}
	return root
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// run executes the CLI with args and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
