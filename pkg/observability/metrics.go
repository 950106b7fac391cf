package observability

import (
	"sync"
	"time"
)

// MetricsClient defines the interface for metrics collection
type MetricsClient interface {
	IncrementCounter(name string, value float64)
	IncrementCounterWithLabels(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
	RecordTimer(name string, duration time.Duration, labels map[string]string)
	StartTimer(name string, labels map[string]string) func()
	Close() error
}

// InMemoryMetricsClient accumulates metrics in process memory. It backs the
// default deployment where no external metrics sink is configured, and lets
// tests assert on recorded values.
type InMemoryMetricsClient struct {
	mu         sync.Mutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewMetricsClient creates a new in-memory metrics client
func NewMetricsClient() *InMemoryMetricsClient {
	return &InMemoryMetricsClient{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// IncrementCounter increments a named counter
func (m *InMemoryMetricsClient) IncrementCounter(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
}

// IncrementCounterWithLabels increments a named counter, ignoring labels
func (m *InMemoryMetricsClient) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
	m.IncrementCounter(name, value)
}

// RecordGauge records a gauge value
func (m *InMemoryMetricsClient) RecordGauge(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

// RecordHistogram records a histogram observation
func (m *InMemoryMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms[name] = append(m.histograms[name], value)
}

// RecordTimer records a duration as a histogram observation in seconds
func (m *InMemoryMetricsClient) RecordTimer(name string, duration time.Duration, labels map[string]string) {
	m.RecordHistogram(name, duration.Seconds(), labels)
}

// StartTimer returns a func that records the elapsed time when called
func (m *InMemoryMetricsClient) StartTimer(name string, labels map[string]string) func() {
	start := time.Now()
	return func() {
		m.RecordTimer(name, time.Since(start), labels)
	}
}

// CounterValue returns the current value of a counter
func (m *InMemoryMetricsClient) CounterValue(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// Close implements MetricsClient.Close
func (m *InMemoryMetricsClient) Close() error { return nil }

// NoopMetricsClient discards all metrics
type NoopMetricsClient struct{}

// NewNoopMetricsClient creates a new NoopMetricsClient
func NewNoopMetricsClient() MetricsClient { return &NoopMetricsClient{} }

func (m *NoopMetricsClient) IncrementCounter(name string, value float64) {}
func (m *NoopMetricsClient) IncrementCounterWithLabels(name string, value float64, labels map[string]string) {
}
func (m *NoopMetricsClient) RecordGauge(name string, value float64, labels map[string]string)     {}
func (m *NoopMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {}
func (m *NoopMetricsClient) RecordTimer(name string, duration time.Duration, labels map[string]string) {
}

// StartTimer implements MetricsClient.StartTimer
func (m *NoopMetricsClient) StartTimer(name string, labels map[string]string) func() {
	return func() {}
}

// Close implements MetricsClient.Close
func (m *NoopMetricsClient) Close() error { return nil }
