package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/internal/provenance"
)

func TestStatusCmd_NoIndex(t *testing.T) {
	isolate(t)
	root := writeModule(t)

	// Given: a module that was never indexed
	// When: asking for status
	_, _, err := run(t, "-C", root, "status")

	// Then: it reports the missing index
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigNotFound))
}

func TestStatusCmd_JSON(t *testing.T) {
	isolate(t)
	root := writeModule(t)
	_, _, err := run(t, "-C", root, "index")
	require.NoError(t, err)
	_, _, err = run(t, "-C", root, "index")
	require.NoError(t, err)

	stdout, _, err := run(t, "-C", root, "status", "--json")
	require.NoError(t, err)

	var info statusInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, root, info.Root)
	assert.Equal(t, 3, info.Files)
	assert.Equal(t, 1, info.Resources)
	assert.Equal(t, 4, info.Locations)
	require.Len(t, info.Builds, 2)
	assert.Equal(t, provenance.ModeIncremental, info.Builds[0].Mode)
	assert.Equal(t, provenance.ModeFull, info.Builds[1].Mode)
	assert.Equal(t, provenance.StatusOK, info.Builds[0].Status)
}

func TestStatusCmd_Limit(t *testing.T) {
	isolate(t)
	root := writeModule(t)
	for range 3 {
		_, _, err := run(t, "-C", root, "index")
		require.NoError(t, err)
	}

	stdout, _, err := run(t, "-C", root, "status", "--json", "--limit", "1")
	require.NoError(t, err)

	var info statusInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Len(t, info.Builds, 1)
}

func TestStatusCmd_Table(t *testing.T) {
	isolate(t)
	root := writeModule(t)
	_, _, err := run(t, "-C", root, "index")
	require.NoError(t, err)

	stdout, _, err := run(t, "-C", root, "status")

	require.NoError(t, err)
	assert.Contains(t, stdout, "Locations")
	assert.Contains(t, stdout, "MODE")
	assert.Contains(t, stdout, provenance.ModeFull)
}
