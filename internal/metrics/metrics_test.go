package metrics

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterAndGauge(t *testing.T) {
	r := NewRegistry("test")
	c := r.Counter("events_total", "events", nil)
	assert.Same(t, c, r.Counter("events_total", "again", nil))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()
	c.Add(5)
	assert.Equal(t, uint64(55), c.Value())
	assert.Equal(t, "test_events_total", c.Name())

	g := r.Gauge("busy", "busy", nil)
	g.SetBool(true)
	g.Inc()
	g.Dec()
	assert.Equal(t, int64(1), g.Value())
	g.SetBool(false)
	assert.Equal(t, int64(0), g.Value())
}

func TestHistogramBuckets(t *testing.T) {
	r := NewRegistry("")
	h := r.Histogram("latency", "latency", Labels{"op": "run"}, []float64{1, 0.1})
	h.Observe(0.1)
	h.Observe(0.5)
	h.Observe(7)
	h.ObserveDuration(50 * time.Millisecond)

	assert.Equal(t, uint64(4), h.Count())
	assert.InDelta(t, 7.65, h.Sum(), 1e-9)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()
	assert.Contains(t, out, "# TYPE latency histogram")
	assert.Contains(t, out, `latency_bucket{op="run",le="0.1"} 2`)
	assert.Contains(t, out, `latency_bucket{op="run",le="1"} 3`)
	assert.Contains(t, out, `latency_bucket{op="run",le="+Inf"} 4`)
	assert.Contains(t, out, `latency_count{op="run"} 4`)
}

func TestWritePrometheusSorted(t *testing.T) {
	r := NewRegistry("x")
	r.Counter("b_total", "b", nil).Inc()
	r.Counter("a_total", "a", Labels{"z": "1", "k": "2"}).Add(3)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()
	assert.Less(t, strings.Index(out, "x_a_total"), strings.Index(out, "x_b_total"))
	assert.Contains(t, out, `x_a_total{k="2",z="1"} 3`)
}

func TestSnapshotAndReset(t *testing.T) {
	m := NewAutoType(nil)
	m.Runs.Inc()
	m.Running.Set(1)
	m.RunDuration.ObserveDuration(2 * time.Second)

	got := m.Registry().Snapshot()
	assert.Equal(t, 1.0, got["autotype_runs_total"])
	assert.Equal(t, 1.0, got["autotype_running"])
	assert.Equal(t, 1.0, got["autotype_run_duration_seconds_count"])
	assert.Equal(t, 2.0, got["autotype_run_duration_seconds_sum"])

	m.Registry().Reset()
	snap := m.Registry().Snapshot()
	assert.Zero(t, snap["autotype_runs_total"])
	assert.Zero(t, snap["autotype_run_duration_seconds_count"])
}

func TestUptime(t *testing.T) {
	m := NewAutoType(nil)
	m.started = time.Now().Add(-90 * time.Second)
	m.UpdateUptime()
	assert.GreaterOrEqual(t, m.UptimeSeconds.Value(), int64(90))
}
