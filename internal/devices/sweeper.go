package devices

import (
	"context"
	"log"
	"time"
)

// Sweeper runs Registry.Sweep on a fixed interval.
type Sweeper struct {
	registry *Registry
	interval time.Duration
}

// NewSweeper returns a sweeper; a non-positive interval selects 30s.
func NewSweeper(r *Registry, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{registry: r, interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("Starting liveness sweeper with interval %s", s.interval)
	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.SweepOnce(ctx)
		case <-ctx.Done():
			log.Println("Liveness sweeper stopped.")
			return
		}
	}
}

// SweepOnce performs a single sweep, logging any failure.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	if _, err := s.registry.Sweep(ctx); err != nil && ctx.Err() == nil {
		log.Printf("Error during liveness sweep: %v", err)
	}
}
