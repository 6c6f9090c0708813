package cmd

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/annodex/internal/build"
	"github.com/Aman-CERP/annodex/internal/mcp"
	"github.com/Aman-CERP/annodex/internal/watcher"
)

func TestServeCmd_NoStdoutOutput(t *testing.T) {
	// stdout carries only JSON-RPC while serving, so startup failures
	// must not print there either.
	isolate(t)
	root := writeModule(t)
	_, _, err := run(t, "-C", root, "index")
	require.NoError(t, err)

	stdout, _, err := run(t, "-C", root, "serve", "--transport", "sse")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
	assert.Empty(t, stdout)
}

func TestServeCmd_WatchIndexesFirst(t *testing.T) {
	isolate(t)
	root := writeModule(t)

	// Given: a module never indexed
	// When: serving with --watch and a transport that fails to start
	_, _, err := run(t, "-C", root, "serve", "--watch", "--transport", "sse")

	// Then: the index was built before the server started
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
	assert.FileExists(t, filepath.Join(root, ".annodex", "out", "META-INF", "services", "annotations", auditName))
}

func TestServeCmd_NoIndex(t *testing.T) {
	isolate(t)
	root := writeModule(t)

	_, _, err := run(t, "-C", root, "serve")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestInvalidateReport_RefreshesResources(t *testing.T) {
	isolate(t)
	root := writeModule(t)
	_, _, err := run(t, "-C", root, "index")
	require.NoError(t, err)

	p, err := loadProject(root)
	require.NoError(t, err)
	q, err := p.openQuery(context.Background(), nil)
	require.NoError(t, err)
	defer q.Close()
	srv, err := mcp.NewServer(q.catalog, q.loader, mcp.Options{Root: root})
	require.NoError(t, err)
	ctx := context.Background()

	// Given: the svc package loaded by a first query
	_, err = srv.CallTool(ctx, "list_annotated", map[string]any{"annotation": auditName})
	require.NoError(t, err)

	// And: an annotation type added and indexed after the server started
	writeFile(t, root, "api/trace.go", `package api

// @annodex.Indexed
// @annodex.Retention(runtime)
type Trace struct{}
`)
	writeFile(t, root, "svc/traced.go", `package svc

import "example.com/app/api"

// @api.Trace
type Traced struct{}
`)
	_, _, err = run(t, "-C", root, "index")
	require.NoError(t, err)

	// When: the rebuild is reported
	report := invalidateReport(ctx, srv, slog.Default())
	report([]watcher.FileEvent{{Path: "svc/traced.go", Operation: watcher.OpCreate}}, &build.Result{}, nil)

	// Then: the new annotation and its element are visible
	out, err := srv.CallTool(ctx, "list_annotations", nil)
	require.NoError(t, err)
	assert.Contains(t, out.(string), "example.com/app/api.Trace")

	out, err = srv.CallTool(ctx, "list_annotated", map[string]any{"annotation": "example.com/app/api.Trace"})
	require.NoError(t, err)
	assert.Contains(t, out.(string), "example.com/app/svc.Traced")
}
