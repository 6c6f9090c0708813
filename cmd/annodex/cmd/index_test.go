package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/annodex/internal/errors"
)

func listLocations(t *testing.T, stdout string) []string {
	t.Helper()
	var entries []listEntry
	require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
	locs := make([]string, 0, len(entries))
	for _, e := range entries {
		locs = append(locs, e.Location)
	}
	return locs
}

func TestIndexCmd_BuildsThenLists(t *testing.T) {
	isolate(t)
	root := writeModule(t)

	// Given: an indexed module
	stdout, _, err := run(t, "-C", root, "index")
	require.NoError(t, err)
	assert.Contains(t, stdout, "full build")
	assert.DirExists(t, filepath.Join(root, ".annodex", "out", "META-INF", "services"))

	// When: listing the annotation as JSON
	stdout, _, err = run(t, "-C", root, "list", auditName, "--json")
	require.NoError(t, err)

	// Then: every annotated element is listed
	assert.ElementsMatch(t, []string{
		"example.com/app/svc.Other",
		"example.com/app/svc.Stuff",
		"example.com/app/svc.Stuff#Run()",
		"example.com/app/svc.Stuff#Name",
	}, listLocations(t, stdout))
}

func TestIndexCmd_SecondBuildIsIncremental(t *testing.T) {
	isolate(t)
	root := writeModule(t)

	_, _, err := run(t, "-C", root, "index")
	require.NoError(t, err)

	// When: indexing again without changes
	stdout, _, err := run(t, "-C", root, "index")

	// Then: the build is incremental
	require.NoError(t, err)
	assert.Contains(t, stdout, "incremental build")
}

func TestIndexCmd_Progress(t *testing.T) {
	isolate(t)
	root := writeModule(t)

	// When: indexing with progress forced on a non-terminal stderr
	stdout, stderr, err := run(t, "-C", root, "index", "--progress")

	// Then: plain stage lines go to stderr and the summary to stdout
	require.NoError(t, err)
	assert.Contains(t, stderr, "[SCAN] Scanning...")
	assert.Contains(t, stderr, "[PARSE] 2/2")
	assert.Contains(t, stderr, "[INDEX] 2/2")
	assert.Contains(t, stderr, "[DONE] full build")
	assert.NotContains(t, stdout, "[SCAN]")
	assert.Contains(t, stdout, "full build")
}

func TestIndexCmd_NoProgressWithoutTerminal(t *testing.T) {
	isolate(t)
	root := writeModule(t)

	_, stderr, err := run(t, "-C", root, "index")

	require.NoError(t, err)
	assert.NotContains(t, stderr, "[SCAN]")
}

func TestIndexCmd_PathArgument(t *testing.T) {
	isolate(t)
	root := writeModule(t)

	_, _, err := run(t, "index", root)

	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, ".annodex", "out", "META-INF", "services", "annotations", auditName))
}

func TestIndexCmd_InvalidPath(t *testing.T) {
	isolate(t)

	_, _, err := run(t, "index", filepath.Join(t.TempDir(), "missing"))

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidPath))
}

func TestIndexCmd_BuildErrorsCarryCode(t *testing.T) {
	// Given: a module with a syntax error
	isolate(t)
	root := writeModule(t)
	writeFile(t, root, "svc/broken.go", "package svc\n\nfunc broken( {\n")

	// When: indexing it
	_, _, err := run(t, "-C", root, "index")

	// Then: the command fails with the build failure code
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeBuildFailed))
}

func TestListCmd_Filters(t *testing.T) {
	isolate(t)
	root := writeModule(t)
	_, _, err := run(t, "-C", root, "index")
	require.NoError(t, err)

	tests := []struct {
		name       string
		annotation string
		args       []string
		want       []string
	}{
		{"method", auditName, []string{"--kind", "method"}, []string{"example.com/app/svc.Stuff#Run()"}},
		{"type alias", auditName, []string{"--kind", "type"}, []string{"example.com/app/svc.Other", "example.com/app/svc.Stuff"}},
		{"two kinds", auditName, []string{"--kind", "method,field"}, []string{"example.com/app/svc.Stuff#Run()", "example.com/app/svc.Stuff#Name"}},
		{"at prefix", "@" + auditName, []string{"--kind", "field"}, []string{"example.com/app/svc.Stuff#Name"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"-C", root, "list", tt.annotation, "--json"}, tt.args...)
			stdout, _, err := run(t, args...)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, listLocations(t, stdout))
		})
	}
}

func TestListCmd_Limit(t *testing.T) {
	isolate(t)
	root := writeModule(t)
	_, _, err := run(t, "-C", root, "index")
	require.NoError(t, err)

	stdout, _, err := run(t, "-C", root, "list", auditName, "--json", "--limit", "2")

	require.NoError(t, err)
	assert.Len(t, listLocations(t, stdout), 2)
}

func TestListCmd_Table(t *testing.T) {
	isolate(t)
	root := writeModule(t)
	_, _, err := run(t, "-C", root, "index")
	require.NoError(t, err)

	stdout, _, err := run(t, "-C", root, "list", auditName)

	require.NoError(t, err)
	assert.Contains(t, stdout, "KIND")
	assert.Contains(t, stdout, "example.com/app/svc.Stuff#Run()")
}

func TestListCmd_UnknownAnnotationIsEmpty(t *testing.T) {
	isolate(t)
	root := writeModule(t)
	_, _, err := run(t, "-C", root, "index")
	require.NoError(t, err)

	stdout, _, err := run(t, "-C", root, "list", "example.com/app/api.Missing", "--json")

	require.NoError(t, err)
	assert.Empty(t, listLocations(t, stdout))
}

func TestListCmd_InvalidKind(t *testing.T) {
	isolate(t)
	root := writeModule(t)
	_, _, err := run(t, "-C", root, "index")
	require.NoError(t, err)

	_, _, err = run(t, "-C", root, "list", auditName, "--kind", "module")

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))
}

func TestListCmd_NoIndex(t *testing.T) {
	isolate(t)
	root := writeModule(t)

	// Given: a module never indexed
	// When: listing
	_, _, err := run(t, "-C", root, "list", auditName)

	// Then: the error says how to create the index
	require.Error(t, err)
	ae, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeConfigNotFound, ae.Code)
	assert.Contains(t, ae.Suggestion, "annodex index")
}

func TestListCmd_ExtraClasspath(t *testing.T) {
	isolate(t)
	root := writeModule(t)
	out := t.TempDir()

	// Given: a module indexed into a directory outside the project
	_, _, err := run(t, "-C", root, "index", "--output", out)
	require.NoError(t, err)

	// When: listing with that directory on the classpath
	stdout, _, err := run(t, "-C", root, "list", auditName, "--json", "--classpath", out)

	// Then: its resources are read
	require.NoError(t, err)
	assert.Len(t, listLocations(t, stdout), 4)
}

func TestAnnotationsCmd(t *testing.T) {
	isolate(t)
	root := writeModule(t)
	_, _, err := run(t, "-C", root, "index")
	require.NoError(t, err)

	stdout, _, err := run(t, "-C", root, "annotations", "--json")
	require.NoError(t, err)

	var names []string
	require.NoError(t, json.Unmarshal([]byte(stdout), &names))
	assert.Equal(t, []string{auditName}, names)
}

func TestIndexCmd_DropsDeletedElements(t *testing.T) {
	isolate(t)
	root := writeModule(t)
	_, _, err := run(t, "-C", root, "index")
	require.NoError(t, err)

	// Given: a file removed after the first build
	require.NoError(t, os.Remove(filepath.Join(root, "svc", "other.go")))

	// When: rebuilding
	_, _, err = run(t, "-C", root, "index")
	require.NoError(t, err)

	// Then: its element is gone from the index
	stdout, _, err := run(t, "-C", root, "list", auditName, "--json", "--kind", "class")
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com/app/svc.Stuff"}, listLocations(t, stdout))
}
