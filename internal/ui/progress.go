package ui

import (
	"sync"
	"time"
)

// ProgressTracker holds the progress of the current stage.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu         sync.RWMutex
	stage      Stage
	current    int
	total      int
	item       string
	startTime  time.Time
	stageStart time.Time
	lastETA    time.Duration
}

// ProgressStats contains a snapshot of current progress.
type ProgressStats struct {
	Stage    Stage
	Current  int
	Total    int
	Progress float64
	ETA      time.Duration
	Item     string
	Elapsed  time.Duration
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		stage:      StageScanning,
		startTime:  now,
		stageStart: now,
	}
}

// SetStage transitions to a new stage.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.total = total
	p.current = 0
	p.item = ""
	p.stageStart = time.Now()
	p.lastETA = 0
}

// Apply records an event, switching stage when it changes. Counts
// never move backwards within a stage.
func (p *ProgressTracker) Apply(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.Stage != p.stage {
		p.stage = event.Stage
		p.current = 0
		p.item = ""
		p.stageStart = time.Now()
		p.lastETA = 0
	}
	if event.Total > 0 {
		p.total = event.Total
	}
	if event.Current > p.current {
		p.current = event.Current
	}
	if event.Item != "" {
		p.item = event.Item
	}
}

// Progress returns the fraction of the current stage done, in [0, 1].
func (p *ProgressTracker) Progress() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.progress()
}

func (p *ProgressTracker) progress() float64 {
	if p.total <= 0 {
		return 0
	}
	f := float64(p.current) / float64(p.total)
	if f > 1 {
		return 1
	}
	return f
}

// Elapsed returns the time since the tracker was created.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Since(p.startTime)
}

// Stats returns a snapshot of the current progress.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Stage:    p.stage,
		Current:  p.current,
		Total:    p.total,
		Progress: p.progress(),
		ETA:      p.eta(),
		Item:     p.item,
		Elapsed:  time.Since(p.startTime),
	}
}

// eta extrapolates the stage rate, smoothed against the previous
// estimate. Callers hold p.mu.
func (p *ProgressTracker) eta() time.Duration {
	if p.current <= 0 || p.total <= 0 || p.current >= p.total {
		return 0
	}
	spent := time.Since(p.stageStart)
	raw := time.Duration(float64(spent) / float64(p.current) * float64(p.total-p.current))
	if p.lastETA > 0 {
		raw = time.Duration(0.3*float64(raw) + 0.7*float64(p.lastETA))
	}
	p.lastETA = raw
	return raw
}
