package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrClientError marks a 4xx response from the dataset API.
	ErrClientError = errors.New("client error from dataset API")
	// ErrServerError marks a 5xx response from the dataset API.
	ErrServerError = errors.New("server error from dataset API")

	// ErrPersistence marks a fatal failure while writing an artifact.
	ErrPersistence = errors.New("persistence failure")
	// ErrParquetUnavailable is the single soft-degradation path of the
	// writer: columnar output support is missing, CSV is still written.
	ErrParquetUnavailable = errors.New("parquet support unavailable")

	// ErrConfiguration marks a missing input file or directory detected
	// before any work begins.
	ErrConfiguration = errors.New("configuration error")
)

// ExtractionError is returned when a batch exhausts its retry budget.
// It is fatal for the whole extraction run.
type ExtractionError struct {
	Offset   int
	Attempts int
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf(
		"extraction failed at offset %d after %d attempts: %v",
		e.Offset, e.Attempts, e.Err,
	)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
