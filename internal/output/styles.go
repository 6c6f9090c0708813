package output

import "github.com/charmbracelet/lipgloss"

// Palette (ANSI 256).
const (
	ColorAccent   = "154"
	ColorAccentDm = "106"
	ColorGray     = "245"
	ColorDarkGray = "240"
	ColorRed      = "196"
	ColorYellow   = "220"
)

// Styles holds the lipgloss styles of CLI output.
type Styles struct {
	Header   lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Dim      lipgloss.Style
	Label    lipgloss.Style
	Code     lipgloss.Style
	Progress lipgloss.Style
	Kind     lipgloss.Style
}

// DefaultStyles returns the styles used on color terminals.
func DefaultStyles() Styles {
	return Styles{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent)),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:      lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Label:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Code:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentDm)),
		Progress: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent)),
		Kind:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentDm)),
	}
}

// NoColorStyles returns styles that render text unchanged.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header:   plain,
		Success:  plain,
		Warning:  plain,
		Error:    plain,
		Dim:      plain,
		Label:    plain,
		Code:     plain,
		Progress: plain,
		Kind:     plain,
	}
}
