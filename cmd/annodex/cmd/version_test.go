package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/annodex/pkg/version"
)

func TestVersionCmd_DefaultOutput(t *testing.T) {
	stdout, _, err := run(t, "version")

	require.NoError(t, err)
	assert.Equal(t, version.String(), strings.TrimSpace(stdout))
}

func TestVersionCmd_ShortOutput(t *testing.T) {
	stdout, _, err := run(t, "version", "--short")

	require.NoError(t, err)
	assert.Equal(t, version.Short(), strings.TrimSpace(stdout))
}

func TestVersionCmd_JSONOutput(t *testing.T) {
	stdout, _, err := run(t, "version", "--json")
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, version.Version, info["version"])
}
