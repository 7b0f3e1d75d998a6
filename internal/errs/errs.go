// Package errs holds the error kinds shared by the strategy, backtest and live
// paths. Call sites wrap one of the sentinels with context; callers branch with
// errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid strategy or runtime parameters.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation marks input records missing a required field.
	ErrValidation = errors.New("validation error")
	// ErrData marks price history that failed the data handler's checks.
	ErrData = errors.New("data error")
	// ErrDataFreshness marks a price history whose last bar is too old to trade on.
	ErrDataFreshness = errors.New("stale data")
	// ErrExternalService marks a failed brokerage, data or mail call.
	ErrExternalService = errors.New("external service error")
)

// FieldError reports a required field that is absent or undefined at a given
// position of an input sequence.
type FieldError struct {
	Field  string
	Index  int
	Reason string
}

func (e *FieldError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("missing required field %q at index %d", e.Field, e.Index)
	}
	return fmt.Sprintf("missing required field %q at index %d: %s", e.Field, e.Index, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return ErrValidation
}

// Missing returns a FieldError for field at index.
func Missing(field string, index int, reason string) error {
	return &FieldError{Field: field, Index: index, Reason: reason}
}
