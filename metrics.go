package pipeline

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Metrics accumulates counters over one extraction run. It is owned by
// a single Extractor and is not safe for concurrent use without
// external synchronization.
type Metrics struct {
	startTime      time.Time
	endTime        time.Time
	totalRows      int
	totalBatches   int
	failedAttempts int
}

func (m *Metrics) Start(t time.Time) {
	m.startTime = t
}

// Finish records the end of the run. It is called on both the normal
// and the failure path so partial summaries stay meaningful.
func (m *Metrics) Finish(t time.Time) {
	m.endTime = t
}

// RecordBatch accounts one accepted, non-empty page.
func (m *Metrics) RecordBatch(rows int) {
	m.totalBatches++
	m.totalRows += rows
}

// RecordFailure accounts one unsuccessful fetch attempt, whether or
// not a later retry succeeds.
func (m *Metrics) RecordFailure() {
	m.failedAttempts++
}

func (m *Metrics) TotalRows() int      { return m.totalRows }
func (m *Metrics) TotalBatches() int   { return m.totalBatches }
func (m *Metrics) FailedAttempts() int { return m.failedAttempts }

func (m *Metrics) Duration() time.Duration {
	if m.endTime.IsZero() {
		return 0
	}
	return m.endTime.Sub(m.startTime)
}

// Throughput is rows per second, zero when the duration is zero.
func (m *Metrics) Throughput() float64 {
	seconds := m.Duration().Seconds()
	if seconds <= 0 {
		return 0
	}
	return float64(m.totalRows) / seconds
}

// Summary renders the counters for human consumption. Formatting here
// is cosmetic and not part of the functional contract.
func (m *Metrics) Summary() map[string]string {
	endTime := "In Progress"
	if !m.endTime.IsZero() {
		endTime = m.endTime.Format("2006-01-02 15:04:05")
	}
	return map[string]string{
		"Start Time":         m.startTime.Format("2006-01-02 15:04:05"),
		"End Time":           endTime,
		"Total Rows":         humanize.Comma(int64(m.totalRows)),
		"Total Batches":      fmt.Sprintf("%d", m.totalBatches),
		"Failed Attempts":    fmt.Sprintf("%d", m.failedAttempts),
		"Duration (seconds)": fmt.Sprintf("%.2f", m.Duration().Seconds()),
		"Rows/Second":        fmt.Sprintf("%.2f", m.Throughput()),
	}
}
