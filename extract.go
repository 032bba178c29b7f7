// Package pipeline implements the paginated extraction engine for the
// CDC PLACES dataset: a sequential fetch loop over offset-based pages,
// per-batch retry, run metrics and dual-format persistence.
package pipeline

import (
	"context"
	"time"

	"github.com/placesdata/pipeline/config"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"resty.dev/v3"
)

// Extractor drives one extraction run at a time. It owns its metrics
// and page accumulation for the duration of a run; reuse across
// sequential runs is fine, concurrent use is not.
type Extractor struct {
	httpClient     *resty.Client
	circuitBreaker *gobreaker.CircuitBreaker[*resty.Response]
	cfg            *config.Config
	metrics        *Metrics
	observers      []RunObserver
	now            func() time.Time
}

func NewExtractor(cfg *config.Config, observers ...RunObserver) *Extractor {
	e := &Extractor{
		httpClient: resty.New().
			SetTimeout(cfg.API.Timeout).
			SetLogger(zap.S()),
		cfg:       cfg,
		metrics:   &Metrics{},
		observers: observers,
		now:       time.Now,
	}

	if cfg.API.CircuitBreaker.Enabled {
		cb := cfg.API.CircuitBreaker
		e.circuitBreaker = gobreaker.NewCircuitBreaker[*resty.Response](
			gobreaker.Settings{
				Name:        "dataset_api",
				MaxRequests: cb.MaxRequests,
				Interval:    cb.Interval,
				Timeout:     cb.Timeout,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures > cb.ConsecutiveFailures
				},
			})
	}

	return e
}

// Metrics exposes the recorder of the most recent run.
func (e *Extractor) Metrics() *Metrics {
	return e.metrics
}

// Extract runs the fetch loop from offset 0 until the API returns an
// empty page. The empty page is the sole normal-termination signal;
// the total row count is never queried in advance. Offset-consistent
// server pagination is assumed: if the backing dataset mutates during
// a run, rows can be duplicated or dropped.
func (e *Extractor) Extract(ctx context.Context) (*Table, error) {
	e.metrics = &Metrics{}
	e.metrics.Start(e.now())
	zap.S().Infow(
		"starting data extraction",
		"url", e.cfg.API.RequestURL,
		"batch_size", e.cfg.Run.BatchSize,
	)

	var pages []*Table
	offset := 0
	for {
		batchStart := e.now()
		page, err := e.fetchBatch(ctx, offset)
		if err != nil {
			e.metrics.Finish(e.now())
			e.emit(RunEvent{
				Kind:           EventRunFinished,
				Err:            err,
				TotalRows:      e.metrics.TotalRows(),
				TotalBatches:   e.metrics.TotalBatches(),
				FailedAttempts: e.metrics.FailedAttempts(),
			})
			return nil, err
		}

		if page.Empty() {
			zap.S().Infow("no more data to fetch", "offset", offset)
			break
		}

		e.metrics.RecordBatch(page.NumRows())
		pages = append(pages, page)
		e.emit(RunEvent{
			Kind:           EventBatchFetched,
			Offset:         offset,
			Rows:           page.NumRows(),
			Elapsed:        e.now().Sub(batchStart),
			TotalRows:      e.metrics.TotalRows(),
			TotalBatches:   e.metrics.TotalBatches(),
			FailedAttempts: e.metrics.FailedAttempts(),
		})

		offset += e.cfg.Run.BatchSize
	}

	combined, err := Concat(pages)
	e.metrics.Finish(e.now())
	if err != nil {
		e.emit(RunEvent{Kind: EventRunFinished, Err: err})
		return nil, err
	}

	e.emit(RunEvent{
		Kind:           EventRunFinished,
		TotalRows:      e.metrics.TotalRows(),
		TotalBatches:   e.metrics.TotalBatches(),
		FailedAttempts: e.metrics.FailedAttempts(),
	})
	for key, value := range e.metrics.Summary() {
		zap.S().Infow("extraction summary", "metric", key, "value", value)
	}
	return combined, nil
}

func (e *Extractor) emit(ev RunEvent) {
	for _, o := range e.observers {
		o.OnEvent(ev)
	}
}
