package pipeline

import (
	"time"

	"go.uber.org/zap"
)

type EventKind int

const (
	// EventBatchFetched is emitted after a page is accepted.
	EventBatchFetched EventKind = iota
	// EventAttemptFailed is emitted for every unsuccessful fetch
	// attempt, including ones that are later retried successfully.
	EventAttemptFailed
	// EventRunFinished is emitted once, on both the normal and the
	// failure path.
	EventRunFinished
)

// RunEvent carries the progress of one extraction run. The metrics
// recorder, the console reporter, the prometheus bridge and the TUI
// are all independent subscribers of the same stream.
type RunEvent struct {
	Kind    EventKind
	Offset  int
	Rows    int
	Attempt int
	Elapsed time.Duration
	Err     error

	TotalRows      int
	TotalBatches   int
	FailedAttempts int
}

type RunObserver interface {
	OnEvent(RunEvent)
}

// LogReporter writes a human-readable progress line per event.
type LogReporter struct{}

func (LogReporter) OnEvent(ev RunEvent) {
	switch ev.Kind {
	case EventBatchFetched:
		zap.S().Infow(
			"retrieved batch",
			"offset", ev.Offset,
			"rows", ev.Rows,
			"total_rows", ev.TotalRows,
			"total_batches", ev.TotalBatches,
			"elapsed", ev.Elapsed,
		)
	case EventAttemptFailed:
		zap.S().Warnw(
			"fetch attempt failed",
			"offset", ev.Offset,
			"attempt", ev.Attempt,
			"error", ev.Err,
		)
	case EventRunFinished:
		if ev.Err != nil {
			zap.S().Errorw("extraction failed", "error", ev.Err)
			return
		}
		zap.S().Infow(
			"extraction finished",
			"total_rows", ev.TotalRows,
			"total_batches", ev.TotalBatches,
			"failed_attempts", ev.FailedAttempts,
		)
	}
}

// ChannelObserver forwards events into a channel, dropping none; the
// consumer owns the channel's lifetime.
type ChannelObserver struct {
	C chan RunEvent
}

func NewChannelObserver(buffer int) *ChannelObserver {
	return &ChannelObserver{C: make(chan RunEvent, buffer)}
}

func (o *ChannelObserver) OnEvent(ev RunEvent) {
	o.C <- ev
}

func (o *ChannelObserver) Close() {
	close(o.C)
}
