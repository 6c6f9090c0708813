package output

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/annodex/internal/errors"
)

func TestWriter_StatusIcons(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"success", func(w *Writer) { w.Success("Index complete") }, "✓ Index complete\n"},
		{"warning", func(w *Writer) { w.Warningf("%d warnings", 2) }, "! 2 warnings\n"},
		{"error", func(w *Writer) { w.Errorf("build %s", "failed") }, "✗ build failed\n"},
		{"status", func(w *Writer) { w.Statusf(">", "scanning %s", "src") }, "> scanning src\n"},
		{"indented", func(w *Writer) { w.Status("", "detail") }, "  detail\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.write(NewPlain(buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_Table(t *testing.T) {
	// Given: rows of varying width
	buf := &bytes.Buffer{}
	w := NewPlain(buf)

	// When: printing a table
	w.Table([]string{"KIND", "LOCATION"}, [][]string{
		{"class", "example.com/app/svc.Stuff"},
		{"constructor", "example.com/app/svc.Stuff"},
	})

	// Then: columns are aligned without trailing spaces
	assert.Equal(t, "KIND         LOCATION\n"+
		"class        example.com/app/svc.Stuff\n"+
		"constructor  example.com/app/svc.Stuff\n", buf.String())
}

func TestWriter_KeyValue(t *testing.T) {
	buf := &bytes.Buffer{}
	NewPlain(buf).KeyValue("Mode", "full", "Annotations", "2")

	assert.Equal(t, "  Mode:        full\n  Annotations: 2\n", buf.String())
}

func TestWriter_Diagnostic(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewPlain(buf)

	w.Diagnostic("error", errors.ErrCodeSyntax, "syntax error", "svc/other.go:9")
	w.Diagnostic("warning", "", "no module", "")

	assert.Equal(t, "svc/other.go:9: error syntax error ["+errors.ErrCodeSyntax+"]\nwarning no module\n", buf.String())
}

func TestWriter_Err(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewPlain(buf)

	w.Err(errors.ConfigError("paths.output must not be empty", nil).WithSuggestion("Set paths.output"))

	out := buf.String()
	assert.Contains(t, out, "✗ paths.output must not be empty\n")
	assert.Contains(t, out, "hint: Set paths.output")
	assert.Contains(t, out, "code: "+errors.ErrCodeConfigInvalid)
}

func TestWriter_ErrPlainError(t *testing.T) {
	buf := &bytes.Buffer{}
	NewPlain(buf).Err(os.ErrNotExist)
	NewPlain(buf).Err(nil)

	assert.Equal(t, "✗ file does not exist\n", buf.String())
}

func TestWriter_Progress(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewPlain(buf)

	w.Progress(5, 10, "parsing")
	w.Progress(10, 10, "done")
	w.Progress(1, 0, "ignored")

	out := buf.String()
	assert.Contains(t, out, " 50% parsing")
	assert.True(t, strings.HasSuffix(out, "100% done\n"))
}

func TestRenderProgressBar(t *testing.T) {
	assert.Equal(t, "█████░░░░░", renderProgressBar(5, 10, 10))
	assert.Equal(t, "██████████", renderProgressBar(20, 10, 10))
	assert.Equal(t, "░░░░░░░░░░", renderProgressBar(1, 0, 10))
}

func TestColorEnabled(t *testing.T) {
	// A buffer is never a terminal.
	assert.False(t, ColorEnabled(&bytes.Buffer{}))
	assert.False(t, New(&bytes.Buffer{}).Color())

	t.Setenv("NO_COLOR", "1")
	assert.False(t, ColorEnabled(os.Stdout))
}
