// Package apperr defines the error kinds shared by the attendance engine.
// Producers wrap one of the sentinels with context; callers match with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrInactive         = errors.New("inactive")
	ErrConflict         = errors.New("conflict")
	ErrAlreadyComplete  = errors.New("already complete")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrTimeout          = errors.New("timeout")
	ErrUnavailable      = errors.New("unavailable")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidArgument, "invalid_argument"},
	{ErrNotFound, "not_found"},
	{ErrInactive, "inactive"},
	{ErrConflict, "conflict"},
	{ErrAlreadyComplete, "already_complete"},
	{ErrInvalidTimestamp, "invalid_timestamp"},
	{ErrTimeout, "timeout"},
	{ErrUnavailable, "unavailable"},
}

// Kind returns the stable name of the first sentinel err wraps, or "internal".
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// Retryable reports whether err came from storage not answering in time.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable)
}

// Invalid is shorthand for wrapping ErrInvalidArgument.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
