// Package output formats CLI output. Styling is applied only when the
// destination is a terminal and NO_COLOR is unset.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/annodex/internal/errors"
)

// Writer writes formatted CLI output.
type Writer struct {
	out    io.Writer
	color  bool
	styles Styles
}

// New creates a writer for out, styled when out is a color terminal.
func New(out io.Writer) *Writer {
	return newWriter(out, ColorEnabled(out))
}

// NewPlain creates an unstyled writer.
func NewPlain(out io.Writer) *Writer {
	return newWriter(out, false)
}

func newWriter(out io.Writer, color bool) *Writer {
	w := &Writer{out: out, color: color, styles: NoColorStyles()}
	if color {
		w.styles = DefaultStyles()
	}
	return w
}

// ColorEnabled reports whether out is a terminal and NO_COLOR is unset.
func ColorEnabled(out io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := out.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Color reports whether the writer styles its output.
func (w *Writer) Color() bool { return w.color }

// Styles returns the active styles.
func (w *Writer) Styles() Styles { return w.styles }

// Out returns the underlying writer.
func (w *Writer) Out() io.Writer { return w.out }

// Status prints msg after icon; an empty icon indents instead.
func (w *Writer) Status(icon, msg string) {
	if icon == "" {
		_, _ = fmt.Fprintf(w.out, "  %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
}

// Statusf prints a formatted status message.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

func (w *Writer) Success(msg string) { w.Status(w.styles.Success.Render("✓"), msg) }

func (w *Writer) Successf(format string, args ...any) { w.Success(fmt.Sprintf(format, args...)) }

func (w *Writer) Warning(msg string) { w.Status(w.styles.Warning.Render("!"), msg) }

func (w *Writer) Warningf(format string, args ...any) { w.Warning(fmt.Sprintf(format, args...)) }

func (w *Writer) Error(msg string) { w.Status(w.styles.Error.Render("✗"), msg) }

func (w *Writer) Errorf(format string, args ...any) { w.Error(fmt.Sprintf(format, args...)) }

// Header prints a section title.
func (w *Writer) Header(title string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(title))
}

// Line prints msg unchanged.
func (w *Writer) Line(msg string) {
	_, _ = fmt.Fprintln(w.out, msg)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Code prints content indented, surrounded by blank lines.
func (w *Writer) Code(content string) {
	w.Newline()
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", w.styles.Code.Render(line))
	}
	w.Newline()
}

// KeyValue prints aligned "key: value" pairs in order. pairs alternates
// keys and values.
func (w *Writer) KeyValue(pairs ...string) {
	width := 0
	for i := 0; i+1 < len(pairs); i += 2 {
		width = max(width, lipgloss.Width(pairs[i]))
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		label := pairs[i] + ":" + strings.Repeat(" ", width-lipgloss.Width(pairs[i]))
		_, _ = fmt.Fprintf(w.out, "  %s %s\n", w.styles.Label.Render(label), pairs[i+1])
	}
}

// Table prints rows in aligned columns under a header row.
func (w *Writer) Table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	render := func(cells []string, style lipgloss.Style) {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if i < len(widths)-1 {
				cell += strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			}
			parts[i] = style.Render(cell)
		}
		_, _ = fmt.Fprintln(w.out, strings.TrimRight(strings.Join(parts, "  "), " "))
	}
	render(header, w.styles.Header)
	for _, row := range rows {
		render(row, lipgloss.NewStyle())
	}
}

// Diagnostic prints one build diagnostic.
func (w *Writer) Diagnostic(severity, code, message, where string) {
	style := w.styles.Warning
	if severity == "error" {
		style = w.styles.Error
	}
	line := fmt.Sprintf("%s %s", style.Render(severity), message)
	if code != "" {
		line += " " + w.styles.Dim.Render("["+code+"]")
	}
	if where != "" {
		line = w.styles.Dim.Render(where+":") + " " + line
	}
	_, _ = fmt.Fprintln(w.out, line)
}

// Err prints err with its code and hint when it carries them.
func (w *Writer) Err(err error) {
	if err == nil {
		return
	}
	ae, ok := errors.As(err)
	if !ok {
		w.Error(err.Error())
		return
	}
	w.Error(ae.Message)
	if ae.Cause != nil && ae.Cause.Error() != ae.Message {
		w.Status("", w.styles.Dim.Render("cause: "+ae.Cause.Error()))
	}
	if ae.Suggestion != "" {
		w.Status("", "hint: "+ae.Suggestion)
	}
	w.Status("", w.styles.Dim.Render("code: "+ae.Code))
}

// Progress prints an in-place progress bar, ending the line when done.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}
	pct := float64(current) / float64(total) * 100
	bar := w.styles.Progress.Render(renderProgressBar(current, total, 30))
	_, _ = fmt.Fprintf(w.out, "\r[%s] %3.0f%% %s", bar, pct, msg)
	if current >= total {
		w.Newline()
	}
}

func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	filled := min(max(current*width/total, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
