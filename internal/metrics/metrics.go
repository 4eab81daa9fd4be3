// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scans counts scan results by outcome or error kind.
	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gate_scans_total",
		Help: "Scan events processed, by outcome.",
	}, []string{"outcome"})

	Heartbeats = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gate_device_heartbeats_total",
		Help: "Device heartbeats recorded, by resulting status.",
	}, []string{"status"})

	DevicesMarkedOffline = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gate_devices_marked_offline_total",
		Help: "Devices flipped to offline by the liveness sweep.",
	})

	SweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gate_device_sweep_errors_total",
		Help: "Per-device failures skipped by the liveness sweep.",
	})

	TamperAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gate_tamper_alerts_total",
		Help: "Tamper alerts from scans, by result.",
	}, []string{"result"})

	ScanLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gate_scan_lock_wait_seconds",
		Help:    "Time spent waiting for the per student-day lock.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	})
)
