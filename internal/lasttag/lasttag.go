// Package lasttag holds the most recent unmatched or registration tag in a
// single slot that expires after a short TTL.
package lasttag

import (
	"context"
	"time"
)

// Entry is the content of the slot.
type Entry struct {
	Tag      string    `json:"rfidTag"`
	DeviceID string    `json:"deviceId,omitempty"`
	At       time.Time `json:"timestamp"`
}

// Store is the slot. Take fails with apperr.ErrNotFound when the slot is
// empty or expired; clear empties it as part of the same read.
type Store interface {
	Put(ctx context.Context, e Entry) error
	Take(ctx context.Context, clear bool) (Entry, error)
	Healthy(ctx context.Context) bool
}
