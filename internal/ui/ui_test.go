package ui

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStage_Names(t *testing.T) {
	tests := []struct {
		stage Stage
		name  string
		icon  string
	}{
		{StageScanning, "Scanning", "SCAN"},
		{StageParsing, "Parsing", "PARSE"},
		{StageIndexing, "Indexing", "INDEX"},
		{StageComplete, "Complete", "DONE"},
		{Stage(99), "Unknown", "???"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.stage.String())
			assert.Equal(t, tt.icon, tt.stage.Icon())
		})
	}
}

func TestNewConfig_Options(t *testing.T) {
	buf := &bytes.Buffer{}

	cfg := NewConfig(buf, WithForcePlain(true), WithNoColor(true), WithProjectDir("/src/app"))

	assert.Equal(t, buf, cfg.Output)
	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "/src/app", cfg.ProjectDir)
}

func TestNewRenderer_PlainForNonTTY(t *testing.T) {
	// Given: output that is not a terminal
	cfg := NewConfig(&bytes.Buffer{})

	// When: choosing a renderer
	r := NewRenderer(cfg)

	// Then: plain text is used
	assert.IsType(t, &PlainRenderer{}, r)
}

func TestIsTTY(t *testing.T) {
	assert.False(t, IsTTY(nil))
	assert.False(t, IsTTY(&bytes.Buffer{}))

	f, err := os.CreateTemp(t.TempDir(), "out")
	assert.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.False(t, IsTTY(f))
}

func TestDetectCI(t *testing.T) {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if val, ok := os.LookupEnv(v); ok {
			t.Setenv(v, val)
			assert.NoError(t, os.Unsetenv(v))
		}
	}
	assert.False(t, DetectCI())

	t.Setenv("CI", "true")
	assert.True(t, DetectCI())
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestGetStyles(t *testing.T) {
	assert.Equal(t, "text", GetStyles(true).Active.Render("text"))
	assert.Contains(t, GetStyles(false).Active.Render("text"), "text")
}
