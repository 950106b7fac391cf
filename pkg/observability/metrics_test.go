package observability

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryMetricsCounters(t *testing.T) {
	m := NewMetricsClient()

	m.IncrementCounter("search.requests", 1)
	m.IncrementCounter("search.requests", 2)
	m.IncrementCounterWithLabels("search.requests", 1, map[string]string{"type": "server"})

	assert.Equal(t, 4.0, m.CounterValue("search.requests"))
	assert.Zero(t, m.CounterValue("unknown"))
}

func TestInMemoryMetricsConcurrentSafe(t *testing.T) {
	m := NewMetricsClient()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.IncrementCounter("c", 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1600.0, m.CounterValue("c"))
}

func TestStartTimerRecordsElapsed(t *testing.T) {
	m := NewMetricsClient()

	stop := m.StartTimer("op.duration", nil)
	time.Sleep(5 * time.Millisecond)
	stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Len(t, m.histograms["op.duration"], 1)
	assert.Greater(t, m.histograms["op.duration"][0], 0.0)
}
