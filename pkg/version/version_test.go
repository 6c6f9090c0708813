package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_FollowsSemverOrDev(t *testing.T) {
	require.NotEmpty(t, Version)
	if Version == "dev" {
		return
	}
	semver := regexp.MustCompile(`^v?\d+\.\d+\.\d+([-+][-+a-zA-Z0-9.]+)?$`)
	assert.True(t, semver.MatchString(Version), "got %s", Version)
}

func TestString(t *testing.T) {
	str := String()

	assert.Contains(t, str, "annodex "+Version)
	assert.Contains(t, str, "commit: "+Commit)
	assert.Contains(t, str, "go: "+GoVersion)
	assert.Equal(t, Version, Short())
}

func TestGetInfo(t *testing.T) {
	// Given: the build information

	// When: serializing it
	data, err := json.Marshal(GetInfo())
	require.NoError(t, err)

	// Then: every field is present under its JSON name
	var got map[string]string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]string{
		"version":    Version,
		"commit":     Commit,
		"date":       Date,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}, got)
}

func TestFromBuildInfo(t *testing.T) {
	saved := []string{Version, Commit, Date}
	t.Cleanup(func() { Version, Commit, Date = saved[0], saved[1], saved[2] })

	tests := []struct {
		name                string
		version, commit     string
		info                debug.BuildInfo
		wantVer, wantCommit string
		wantDate            string
	}{
		{
			name:    "vcs stamps fill unset values",
			version: "dev", commit: "unknown",
			info: debug.BuildInfo{
				Main: debug.Module{Version: "v1.4.0"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "0123456789abcdef0123"},
					{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
					{Key: "vcs.modified", Value: "true"},
				},
			},
			wantVer: "v1.4.0", wantCommit: "0123456789ab-dirty", wantDate: "2026-01-02T03:04:05Z",
		},
		{
			name:    "ldflags win",
			version: "v2.0.0", commit: "feedbeef",
			info: debug.BuildInfo{
				Main:     debug.Module{Version: "v1.4.0"},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123"}},
			},
			wantVer: "v2.0.0", wantCommit: "feedbeef", wantDate: "unknown",
		},
		{
			name:    "devel main module",
			version: "dev", commit: "unknown",
			info:    debug.BuildInfo{Main: debug.Module{Version: "(devel)"}},
			wantVer: "dev", wantCommit: "unknown", wantDate: "unknown",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Version, Commit, Date = tt.version, tt.commit, "unknown"

			fromBuildInfo(&tt.info)

			assert.Equal(t, tt.wantVer, Version)
			assert.Equal(t, tt.wantCommit, Commit)
			assert.Equal(t, tt.wantDate, Date)
		})
	}
}
