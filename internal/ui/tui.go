package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws an animated progress view with bubbletea. It does
// not read input; interrupts are left to the caller's signal handling.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *buildModel
	tracker *ProgressTracker
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails when the output is
// not a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newBuildModel(tracker, cfg.ProjectDir)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}
	r.program = tea.NewProgram(r.model,
		tea.WithContext(ctx),
		tea.WithOutput(r.cfg.Output),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.tracker.Apply(event)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(progressMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.tracker.SetStage(StageComplete, 0)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()

	if program == nil {
		return nil
	}
	program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

type progressMsg ProgressEvent
type completeMsg CompletionStats
type tickMsg time.Time

// buildModel is the bubbletea model of one build.
type buildModel struct {
	tracker     *ProgressTracker
	width       int
	complete    bool
	spinner     spinner.Model
	progressBar progress.Model
	styles      Styles
	projectDir  string
}

func newBuildModel(tracker *ProgressTracker, projectDir string) *buildModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	p := progress.New(
		progress.WithSolidFill(ColorAccent),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	return &buildModel{
		tracker:     tracker,
		spinner:     s,
		progressBar: p,
		styles:      DefaultStyles(),
		width:       80,
		projectDir:  projectDir,
	}
}

// Init implements tea.Model.
func (m *buildModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *buildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(msg.Width-30, 20)
	case progressMsg:
		// The tracker already holds the state.
	case completeMsg:
		m.complete = true
		return m, tea.Quit
	case tickMsg:
		return m, tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model. The view is cleared once the build is
// done so the caller's summary follows directly.
func (m *buildModel) View() string {
	if m.complete {
		return ""
	}

	title := "annodex"
	if m.projectDir != "" {
		title += " • " + m.projectDir
	}
	lines := []string{
		m.styles.Header.Render(title),
		m.renderStages(),
		m.renderProgress(),
	}
	if item := m.tracker.Stats().Item; item != "" {
		lines = append(lines, m.styles.Label.Render(truncatePath(item, max(m.width-4, 20))))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (m *buildModel) renderStages() string {
	current := m.tracker.Stats().Stage

	var parts []string
	for _, s := range []Stage{StageScanning, StageParsing, StageIndexing} {
		switch {
		case s < current:
			parts = append(parts, m.styles.Success.Render("● "+s.String()))
		case s == current:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+s.String()))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+s.String()))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *buildModel) renderProgress() string {
	stats := m.tracker.Stats()
	if stats.Total == 0 {
		return m.styles.Dim.Render(fmt.Sprintf("%s...", stats.Stage))
	}

	line := fmt.Sprintf("%s  %s  %s",
		m.progressBar.ViewAs(stats.Progress),
		m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100)),
		m.styles.Label.Render(fmt.Sprintf("%d/%d", stats.Current, stats.Total)))
	if stats.ETA > 0 {
		line += m.styles.Label.Render(fmt.Sprintf("  eta %s", stats.ETA.Round(time.Second)))
	}
	return line
}

// truncatePath shortens p from the left to at most maxLen runes.
func truncatePath(p string, maxLen int) string {
	p = filepath.ToSlash(p)
	r := []rune(p)
	if len(r) <= maxLen {
		return p
	}
	if maxLen <= 3 {
		return string(r[len(r)-maxLen:])
	}
	return "..." + string(r[len(r)-maxLen+3:])
}
