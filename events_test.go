package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelObserverForwardsAndCloses(t *testing.T) {
	observer := NewChannelObserver(4)
	observer.OnEvent(RunEvent{Kind: EventBatchFetched, Offset: 0, Rows: 1000})
	observer.OnEvent(RunEvent{Kind: EventRunFinished, TotalRows: 1000})
	observer.Close()

	var received []RunEvent
	for ev := range observer.C {
		received = append(received, ev)
	}
	require.Len(t, received, 2)
	assert.Equal(t, EventBatchFetched, received[0].Kind)
	assert.Equal(t, 1000, received[0].Rows)
	assert.Equal(t, EventRunFinished, received[1].Kind)
}

func TestExtractionErrorUnwraps(t *testing.T) {
	err := &ExtractionError{Offset: 2000, Attempts: 3, Err: ErrServerError}

	assert.ErrorIs(t, err, ErrServerError)
	assert.Contains(t, err.Error(), "offset 2000")
	assert.Contains(t, err.Error(), "3 attempts")

	var extractionErr *ExtractionError
	require.True(t, errors.As(error(err), &extractionErr))
}
