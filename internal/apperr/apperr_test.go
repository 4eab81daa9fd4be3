package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "wrapped not found", err: fmt.Errorf("%w: student", ErrNotFound), expected: "not_found"},
		{name: "double wrapped conflict", err: fmt.Errorf("update: %w", fmt.Errorf("%w: tag", ErrConflict)), expected: "conflict"},
		{name: "invalid helper", err: Invalid("device id is required"), expected: "invalid_argument"},
		{name: "unknown", err: errors.New("boom"), expected: "internal"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Kind(tc.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(fmt.Errorf("read: %w", ErrTimeout)))
	assert.True(t, Retryable(ErrUnavailable))
	assert.False(t, Retryable(ErrConflict))
	assert.Equal(t, "invalid argument: device id is required", Invalid("device id is required").Error())
}
