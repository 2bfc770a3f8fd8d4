package metrics

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	StageResolve = "resolve"
	StageInspect = "inspect"
	StageHost    = "host"
	StagePublish = "publish"
)

// StageTimings holds the latency of each pipeline stage for one conversion.
type StageTimings struct {
	mu sync.Mutex

	ConversionID string
	startTime    time.Time
	total        time.Duration

	starts map[string]time.Time
	stages map[string]time.Duration
	// order of first completion
	order []string
}

func NewStageTimings(conversionID string) *StageTimings {
	return &StageTimings{
		ConversionID: conversionID,
		startTime:    time.Now(),
		starts:       make(map[string]time.Time),
		stages:       make(map[string]time.Duration),
	}
}

// Start marks the start of stage.
func (m *StageTimings) Start(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts[stage] = time.Now()
}

// End marks the end of stage and returns its latency. Ending a stage that was
// never started is a no-op.
func (m *StageTimings) End(stage string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	start, ok := m.starts[stage]
	if !ok {
		return 0
	}
	delete(m.starts, stage)
	d := time.Since(start)
	if _, seen := m.stages[stage]; !seen {
		m.order = append(m.order, stage)
	}
	m.stages[stage] += d
	return d
}

// Finalize records the total latency.
func (m *StageTimings) Finalize() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = time.Since(m.startTime)
	return m.total
}

// Each calls fn for every finished stage in completion order.
func (m *StageTimings) Each(fn func(stage string, d time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.order {
		fn(s, m.stages[s])
	}
}

// Fields returns the timings as log fields.
func (m *StageTimings) Fields() []zap.Field {
	m.mu.Lock()
	defer m.mu.Unlock()
	fields := []zap.Field{
		zap.String("conversion_id", m.ConversionID),
		zap.Float64("total_ms", ms(m.total)),
	}
	for _, s := range m.order {
		fields = append(fields, zap.Float64(s+"_ms", ms(m.stages[s])))
	}
	return fields
}

// Summary returns a human-readable summary.
func (m *StageTimings) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "Conversion %s: %.2f ms", m.ConversionID, ms(m.total))
	for _, s := range m.order {
		fmt.Fprintf(&b, "\n  %s: %.2f ms", s, ms(m.stages[s]))
	}
	return b.String()
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
