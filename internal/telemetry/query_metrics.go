// Package telemetry records how the MCP server is queried: which tools
// and annotations are asked for, which queries find nothing, and how
// long they take. Data stays in memory for the life of the server.
package telemetry

import (
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one answered tool call.
type QueryEvent struct {
	Tool string
	// Annotation is empty for tools that take none.
	Annotation  string
	ResultCount int
	Latency     time.Duration
}

// IsZeroResult returns true if an annotation query found nothing.
func (e QueryEvent) IsZeroResult() bool {
	return e.Annotation != "" && e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items in the buffer, oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// AnnotationCount is an annotation and how often it was queried.
type AnnotationCount struct {
	Annotation string `json:"annotation"`
	Count      int64  `json:"count"`
}

// Snapshot is an immutable copy of the collected metrics.
type Snapshot struct {
	ToolCounts          map[string]int64        `json:"tool_counts"`
	TopAnnotations      []AnnotationCount       `json:"top_annotations"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Config sizes the collector.
type Config struct {
	TopAnnotationsCapacity int // Annotations tracked (default: 100)
	ZeroResultsCapacity    int // Zero-result queries kept (default: 100)
}

// DefaultConfig returns the default sizes.
func DefaultConfig() Config {
	return Config{
		TopAnnotationsCapacity: 100,
		ZeroResultsCapacity:    100,
	}
}

// QueryMetrics collects query telemetry. It is safe for concurrent use.
type QueryMetrics struct {
	mu sync.RWMutex

	tools           map[string]int64
	annotations     *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	totalQueries    int64
	zeroResultCount int64
	startTime       time.Time
}

// NewQueryMetrics creates a collector with the default configuration.
func NewQueryMetrics() *QueryMetrics {
	return NewQueryMetricsWithConfig(DefaultConfig())
}

// NewQueryMetricsWithConfig creates a collector sized by cfg.
func NewQueryMetricsWithConfig(cfg Config) *QueryMetrics {
	if cfg.TopAnnotationsCapacity <= 0 {
		cfg.TopAnnotationsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}
	annotations, _ := lru.New[string, int64](cfg.TopAnnotationsCapacity)
	return &QueryMetrics{
		tools:       make(map[string]int64),
		annotations: annotations,
		zeroResults: NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:   make(map[LatencyBucket]int64),
		startTime:   time.Now(),
	}
}

// Record captures one tool call.
func (m *QueryMetrics) Record(event QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tools[event.Tool]++
	m.totalQueries++
	m.latencies[LatencyToBucket(event.Latency)]++

	if a := strings.TrimSpace(event.Annotation); a != "" {
		count, _ := m.annotations.Get(a)
		m.annotations.Add(a, count+1)
	}
	if event.IsZeroResult() {
		m.zeroResults.Add(event.Annotation)
		m.zeroResultCount++
	}
}

// Snapshot returns the current metrics.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tools := make(map[string]int64, len(m.tools))
	for k, v := range m.tools {
		tools[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	top := make([]AnnotationCount, 0, m.annotations.Len())
	for _, key := range m.annotations.Keys() {
		if count, ok := m.annotations.Peek(key); ok {
			top = append(top, AnnotationCount{Annotation: key, Count: count})
		}
	}
	slices.SortStableFunc(top, func(a, b AnnotationCount) int {
		if a.Count != b.Count {
			return int(b.Count - a.Count)
		}
		return strings.Compare(a.Annotation, b.Annotation)
	})

	return &Snapshot{
		ToolCounts:          tools,
		TopAnnotations:      top,
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: latencies,
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		Since:               m.startTime,
	}
}
