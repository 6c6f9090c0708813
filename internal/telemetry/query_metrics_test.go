package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{250 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, LatencyToBucket(tt.latency))
		})
	}
}

func TestQueryEvent_IsZeroResult(t *testing.T) {
	assert.True(t, QueryEvent{Tool: "list_annotated", Annotation: "a.B"}.IsZeroResult())
	assert.False(t, QueryEvent{Tool: "list_annotated", Annotation: "a.B", ResultCount: 1}.IsZeroResult())
	assert.False(t, QueryEvent{Tool: "list_annotations"}.IsZeroResult())
}

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	// Given: a buffer of capacity 3
	b := NewCircularBuffer[string](3)

	// When: adding 4 items
	for _, s := range []string{"a", "b", "c", "d"} {
		b.Add(s)
	}

	// Then: the oldest is gone and order is preserved
	assert.Equal(t, 3, b.Size())
	assert.Equal(t, []string{"b", "c", "d"}, b.Items())
}

func TestCircularBuffer_Empty(t *testing.T) {
	b := NewCircularBuffer[int](0)

	assert.Empty(t, b.Items())
	assert.Equal(t, 0, b.Size())
}

func TestQueryMetrics_Snapshot(t *testing.T) {
	// Given: a few recorded tool calls
	m := NewQueryMetrics()
	m.Record(QueryEvent{Tool: "list_annotated", Annotation: "app/api.Audit", ResultCount: 4, Latency: time.Millisecond})
	m.Record(QueryEvent{Tool: "list_annotated", Annotation: "app/api.Audit", ResultCount: 4, Latency: time.Millisecond})
	m.Record(QueryEvent{Tool: "list_annotated", Annotation: "app/api.Missing", Latency: 20 * time.Millisecond})
	m.Record(QueryEvent{Tool: "list_annotations", ResultCount: 1, Latency: time.Millisecond})

	// When: taking a snapshot
	s := m.Snapshot()

	// Then: counts and rankings reflect the calls
	assert.Equal(t, int64(4), s.TotalQueries)
	assert.Equal(t, map[string]int64{"list_annotated": 3, "list_annotations": 1}, s.ToolCounts)
	require.Len(t, s.TopAnnotations, 2)
	assert.Equal(t, AnnotationCount{Annotation: "app/api.Audit", Count: 2}, s.TopAnnotations[0])
	assert.Equal(t, []string{"app/api.Missing"}, s.ZeroResultQueries)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.InDelta(t, 25.0, s.ZeroResultPercentage(), 0.001)
	assert.Equal(t, int64(3), s.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP50])
}

func TestQueryMetrics_TopAnnotationsBounded(t *testing.T) {
	m := NewQueryMetricsWithConfig(Config{TopAnnotationsCapacity: 2})

	for _, a := range []string{"a.A", "b.B", "c.C"} {
		m.Record(QueryEvent{Tool: "list_annotated", Annotation: a, ResultCount: 1})
	}

	assert.Len(t, m.Snapshot().TopAnnotations, 2)
}

func TestQueryMetrics_EmptySnapshot(t *testing.T) {
	s := NewQueryMetrics().Snapshot()

	assert.Zero(t, s.TotalQueries)
	assert.Zero(t, s.ZeroResultPercentage())
	assert.NotNil(t, s.TopAnnotations)
	assert.NotNil(t, s.ZeroResultQueries)
}

func TestQueryMetrics_ConcurrentRecord(t *testing.T) {
	m := NewQueryMetrics()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				m.Record(QueryEvent{Tool: "list_annotated", Annotation: "a.B", ResultCount: 1})
			}
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	assert.Equal(t, int64(800), s.TotalQueries)
	assert.Equal(t, int64(800), s.TopAnnotations[0].Count)
}
