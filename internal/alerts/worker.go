package alerts

import (
	"context"
	"errors"
	"log"
	"time"

	"gate-attendance-backend/internal/apperr"
	"gate-attendance-backend/internal/metrics"
)

// Alert is a tamper signal carried by a scan.
type Alert struct {
	DeviceID string
	Tag      string
	At       time.Time
}

// TamperMarker is the device registry operation an alert triggers.
type TamperMarker interface {
	MarkTampered(ctx context.Context, deviceID string) (bool, error)
}

// WorkerPool manages a pool of workers that apply tamper alerts.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	marker  TamperMarker
	timeout time.Duration
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, marker TamperMarker) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, size*16), // Buffered channel
		marker:  marker,
		timeout: 5 * time.Second,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Alert worker %d started", id)
	for {
		select {
		case alert := <-wp.jobs:
			wp.apply(ctx, alert)
		case <-ctx.Done():
			log.Printf("Alert worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an alert without blocking the scan path. It reports
// false and drops the alert when the queue is full.
func (wp *WorkerPool) Dispatch(alert Alert) bool {
	select {
	case wp.jobs <- alert:
		return true
	default:
		metrics.TamperAlerts.WithLabelValues("dropped").Inc()
		log.Printf("Alert queue full; dropped tamper alert for device %s", alert.DeviceID)
		return false
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Alert {
	return wp.jobs
}

func (wp *WorkerPool) apply(ctx context.Context, alert Alert) {
	ctx, cancel := context.WithTimeout(ctx, wp.timeout)
	defer cancel()

	changed, err := wp.marker.MarkTampered(ctx, alert.DeviceID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		metrics.TamperAlerts.WithLabelValues("unknown_device").Inc()
		log.Printf("Tamper alert for unregistered device %s (tag %s)", alert.DeviceID, alert.Tag)
	case err != nil:
		metrics.TamperAlerts.WithLabelValues("failed").Inc()
		log.Printf("Error marking device %s tampered: %v", alert.DeviceID, err)
	case changed:
		metrics.TamperAlerts.WithLabelValues("marked").Inc()
		log.Printf("Device %s marked tampered by scan of tag %s", alert.DeviceID, alert.Tag)
	default:
		metrics.TamperAlerts.WithLabelValues("unchanged").Inc()
	}
}
