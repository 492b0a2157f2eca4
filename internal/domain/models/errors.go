package models

import (
	"fmt"
	"time"
)

// DataUnavailableError means every configured candle source failed. Fatal for
// the cycle: no report, no new records.
type DataUnavailableError struct {
	Symbol  string
	Sources []string
	Last    error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("no candle data for %s after trying %d sources: %v", e.Symbol, len(e.Sources), e.Last)
}

func (e *DataUnavailableError) Unwrap() error {
	return e.Last
}

// InsufficientHistoryError means the candle history is shorter than the
// longest indicator window. Fatal for the cycle.
type InsufficientHistoryError struct {
	Need int
	Got  int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient candle history: need %d, got %d", e.Need, e.Got)
}

// ModelFitError means one model could not be fitted. Recoverable: the cycle
// continues with the remaining models and renormalized weights.
type ModelFitError struct {
	Model string
	Err   error
}

func (e *ModelFitError) Error() string {
	return fmt.Sprintf("model %s fit failed: %v", e.Model, e.Err)
}

func (e *ModelFitError) Unwrap() error {
	return e.Err
}

// ValidationGapError means no realized price was available for a due record.
// Recoverable: the record stays PENDING and is retried next cycle.
type ValidationGapError struct {
	RecordID   string
	TargetTime time.Time
}

func (e *ValidationGapError) Error() string {
	return fmt.Sprintf("no realized price for record %s (target %s)", e.RecordID, e.TargetTime.UTC().Format(time.RFC3339))
}
