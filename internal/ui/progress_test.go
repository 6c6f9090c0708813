package ui

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Apply(t *testing.T) {
	// Given: a tracker in the parse stage
	p := NewProgressTracker()
	p.Apply(ProgressEvent{Stage: StageParsing, Total: 4})

	// When: packages finish out of order
	p.Apply(ProgressEvent{Stage: StageParsing, Current: 2, Total: 4, Item: "svc"})
	p.Apply(ProgressEvent{Stage: StageParsing, Current: 1, Total: 4, Item: "api"})

	// Then: the count never moves backwards
	stats := p.Stats()
	assert.Equal(t, StageParsing, stats.Stage)
	assert.Equal(t, 2, stats.Current)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, "api", stats.Item)
	assert.InDelta(t, 0.5, stats.Progress, 0.001)
}

func TestProgressTracker_StageChangeResets(t *testing.T) {
	p := NewProgressTracker()
	p.Apply(ProgressEvent{Stage: StageScanning, Current: 10, Total: 10, Item: "a.go"})

	p.Apply(ProgressEvent{Stage: StageParsing, Total: 3})

	stats := p.Stats()
	assert.Equal(t, 0, stats.Current)
	assert.Equal(t, 3, stats.Total)
	assert.Empty(t, stats.Item)
}

func TestProgressTracker_Progress(t *testing.T) {
	p := NewProgressTracker()
	assert.Zero(t, p.Progress())

	p.SetStage(StageParsing, 2)
	p.Apply(ProgressEvent{Stage: StageParsing, Current: 5})
	assert.Equal(t, 1.0, p.Progress())
}

func TestProgressTracker_ETA(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageParsing, 10)
	assert.Zero(t, p.Stats().ETA)

	time.Sleep(10 * time.Millisecond)
	p.Apply(ProgressEvent{Stage: StageParsing, Current: 5})
	assert.Positive(t, p.Stats().ETA)

	p.Apply(ProgressEvent{Stage: StageParsing, Current: 10})
	assert.Zero(t, p.Stats().ETA)
}

func TestProgressTracker_Concurrent(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageParsing, 100)

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Apply(ProgressEvent{Stage: StageParsing, Current: i, Total: 100})
			_ = p.Stats()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, p.Stats().Current)
	assert.Positive(t, p.Elapsed())
}
