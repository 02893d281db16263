package obs

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics is the narrow interface the dispatch and evaluator packages use to
// record timings and counts, so tests can substitute an in-memory double.
type Metrics interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

// OtelMetrics records counters and histograms through the OpenTelemetry
// metric API, lazily creating instruments by name.
type OtelMetrics struct {
	meter      metric.Meter
	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewOtelMetrics builds a Metrics backed by the global OpenTelemetry meter
// provider under the "ragarena" meter name.
func NewOtelMetrics() *OtelMetrics {
	return &OtelMetrics{
		meter:      otel.Meter("ragarena"),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (m *OtelMetrics) IncCounter(name string, labels map[string]string) {
	if m == nil {
		return
	}
	c := m.getCounter(name)
	if c == nil {
		return
	}
	c.Add(context.Background(), 1, metric.WithAttributes(toAttrs(labels)...))
}

func (m *OtelMetrics) ObserveHistogram(name string, value float64, labels map[string]string) {
	if m == nil {
		return
	}
	h := m.getHistogram(name)
	if h == nil {
		return
	}
	h.Record(context.Background(), value, metric.WithAttributes(toAttrs(labels)...))
}

func (m *OtelMetrics) getCounter(name string) metric.Int64Counter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c
	}
	c, err := m.meter.Int64Counter(name)
	if err != nil {
		return nil
	}
	m.counters[name] = c
	return c
}

func (m *OtelMetrics) getHistogram(name string) metric.Float64Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histograms[name]; ok {
		return h
	}
	h, err := m.meter.Float64Histogram(name)
	if err != nil {
		return nil
	}
	m.histograms[name] = h
	return h
}

func toAttrs(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		out = append(out, attribute.String(k, v))
	}
	return out
}

// MockMetrics is an in-memory Metrics double for tests.
type MockMetrics struct {
	mu      sync.Mutex
	Counters map[string]int
	Hists    map[string][]float64
}

// NewMockMetrics builds an empty MockMetrics.
func NewMockMetrics() *MockMetrics {
	return &MockMetrics{Counters: map[string]int{}, Hists: map[string][]float64{}}
}

func (m *MockMetrics) IncCounter(name string, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Counters[name]++
}

func (m *MockMetrics) ObserveHistogram(name string, value float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Hists[name] = append(m.Hists[name], value)
}
