package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := &Metrics{}
	m.RecordBatch(1000)
	m.RecordBatch(437)
	m.RecordFailure()

	assert.Equal(t, 1437, m.TotalRows())
	assert.Equal(t, 2, m.TotalBatches())
	assert.Equal(t, 1, m.FailedAttempts())
}

func TestMetricsThroughput(t *testing.T) {
	start := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	m := &Metrics{}
	m.Start(start)
	m.RecordBatch(500)
	m.Finish(start.Add(2 * time.Second))

	assert.Equal(t, 2*time.Second, m.Duration())
	assert.InDelta(t, 250.0, m.Throughput(), 0.001)
}

func TestMetricsThroughputZeroDuration(t *testing.T) {
	m := &Metrics{}
	m.RecordBatch(500)

	// Run never finished: no duration, no rate.
	assert.Equal(t, time.Duration(0), m.Duration())
	assert.Equal(t, 0.0, m.Throughput())
}

func TestMetricsSummary(t *testing.T) {
	start := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	m := &Metrics{}
	m.Start(start)
	m.RecordBatch(1000)
	m.RecordBatch(1000)
	m.RecordBatch(437)
	m.RecordFailure()
	m.Finish(start.Add(4 * time.Second))

	summary := m.Summary()
	assert.Equal(t, "2026-08-29 12:00:00", summary["Start Time"])
	assert.Equal(t, "2026-08-29 12:00:04", summary["End Time"])
	assert.Equal(t, "2,437", summary["Total Rows"])
	assert.Equal(t, "3", summary["Total Batches"])
	assert.Equal(t, "1", summary["Failed Attempts"])
	assert.Equal(t, "4.00", summary["Duration (seconds)"])
	assert.Equal(t, "609.25", summary["Rows/Second"])
}

func TestMetricsSummaryInProgress(t *testing.T) {
	m := &Metrics{}
	m.Start(time.Now())

	assert.Equal(t, "In Progress", m.Summary()["End Time"])
}
