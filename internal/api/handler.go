package api

import (
	"context"
	"time"

	"gate-attendance-backend/internal/clock"
	"gate-attendance-backend/internal/devices"
	"gate-attendance-backend/internal/directory"
	"gate-attendance-backend/internal/lasttag"
	"gate-attendance-backend/internal/ledger"
	"gate-attendance-backend/internal/report"
)

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the handlers call into.
type Deps struct {
	Directory *directory.Service
	Ledger    *ledger.Ledger
	Devices   *devices.Registry
	Reports   *report.Aggregator
	LastTag   lasttag.Store
	Clock     *clock.Clock
	DB        Pinger
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	Deps
	started time.Time
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{Deps: d, started: time.Now()}
}
