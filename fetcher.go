package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"resty.dev/v3"
)

// fetchBatch retrieves one page of rows, retrying up to the configured
// attempt budget. Exhausting the budget is fatal for the whole run.
func (e *Extractor) fetchBatch(ctx context.Context, offset int) (*Table, error) {
	logger := zap.S().With("offset", offset)
	logger.Debugw("fetching batch", "limit", e.cfg.Run.BatchSize)

	var table *Table
	attempt := 0
	err := retry.Do(
		func() error {
			attempt++
			t, err := e.fetchOnce(ctx, offset)
			if err != nil {
				e.metrics.RecordFailure()
				e.emit(RunEvent{
					Kind:           EventAttemptFailed,
					Offset:         offset,
					Attempt:        attempt,
					Err:            err,
					TotalRows:      e.metrics.TotalRows(),
					TotalBatches:   e.metrics.TotalBatches(),
					FailedAttempts: e.metrics.FailedAttempts(),
				})
				return err
			}
			table = t
			return nil
		},
		retry.Attempts(uint(e.cfg.API.RetryAttempts)),
		retry.Delay(e.cfg.API.RetryBackoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, &ExtractionError{
			Offset:   offset,
			Attempts: attempt,
			Err:      err,
		}
	}

	logger.Debugw("retrieved batch", "rows", table.NumRows())
	return table, nil
}

// fetchOnce performs a single bounded request for a page. Any network
// error, non-2xx status or malformed body fails the attempt.
func (e *Extractor) fetchOnce(ctx context.Context, offset int) (*Table, error) {
	request := e.httpClient.R().
		WithContext(ctx).
		SetQueryParams(map[string]string{
			"$limit":  strconv.Itoa(e.cfg.Run.BatchSize),
			"$offset": strconv.Itoa(offset),
			"$order":  e.cfg.API.OrderKey,
		})

	execute := func() (*resty.Response, error) {
		resp, err := request.Get(e.cfg.API.RequestURL)
		if err != nil {
			return resp, fmt.Errorf("performing request: %w", err)
		}
		status := resp.StatusCode()
		switch {
		case status > 399 && status < 500:
			return resp, fmt.Errorf("%w: status %d", ErrClientError, status)
		case status > 499:
			return resp, fmt.Errorf("%w: status %d", ErrServerError, status)
		case !resp.IsSuccess():
			return resp, fmt.Errorf("unexpected status %d from dataset API", status)
		}
		return resp, nil
	}

	var resp *resty.Response
	var err error
	if e.circuitBreaker != nil {
		resp, err = e.circuitBreaker.Execute(execute)
		if errors.Is(err, gobreaker.ErrOpenState) ||
			errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("circuit breaker rejected request: %w", err)
		}
	} else {
		resp, err = execute()
	}
	if err != nil {
		return nil, err
	}

	table, err := ParseCSVTable(bytes.NewReader(resp.Bytes()))
	if err != nil {
		return nil, err
	}
	return table, nil
}
