// Package devices is the registry of gate readers and their liveness.
package devices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/datatypes"

	"gate-attendance-backend/internal/apperr"
	"gate-attendance-backend/internal/clock"
	"gate-attendance-backend/internal/keylock"
	"gate-attendance-backend/internal/metrics"
	"gate-attendance-backend/internal/model"
	"gate-attendance-backend/internal/store"
)

// DefaultLivenessTimeout is how long a device may stay silent before the
// sweep reports it offline.
const DefaultLivenessTimeout = 2 * time.Minute

// DefaultLockTimeout bounds how long an operation waits for a device's lock.
const DefaultLockTimeout = 5 * time.Second

// Telemetry is what a reader reports with each heartbeat.
type Telemetry struct {
	IPAddress      string `json:"ipAddress,omitempty"`
	WifiSignal     *int   `json:"wifiSignal,omitempty"`
	Uptime         int64  `json:"uptime,omitempty"`
	CacheSize      int64  `json:"cacheSize,omitempty"`
	Firmware       string `json:"firmwareVersion,omitempty"`
	MACAddress     string `json:"macAddress,omitempty"`
	SecurityStatus string `json:"securityStatus,omitempty"` // "secure", "tampered" or empty

	// Raw is stored verbatim when set; otherwise the fields above are.
	Raw json.RawMessage `json:"-"`
}

// Patch carries administrative label changes.
type Patch struct {
	Location    *string `json:"location"`
	Description *string `json:"description"`
}

// Registry owns every device mutation.
type Registry struct {
	store       store.DeviceStore
	locks       *keylock.Locker
	clock       *clock.Clock
	timeout     time.Duration
	lockTimeout time.Duration
}

// NewRegistry returns a registry; a non-positive timeout selects
// DefaultLivenessTimeout.
func NewRegistry(st store.DeviceStore, locks *keylock.Locker, clk *clock.Clock, livenessTimeout time.Duration) *Registry {
	if livenessTimeout <= 0 {
		livenessTimeout = DefaultLivenessTimeout
	}
	return &Registry{store: st, locks: locks, clock: clk, timeout: livenessTimeout, lockTimeout: DefaultLockTimeout}
}

// lock takes the device's lock, waiting at most lockTimeout.
func (r *Registry) lock(ctx context.Context, id string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	defer cancel()
	return r.locks.Lock(lockCtx, "device|"+id)
}

// Register creates the device offline if new; otherwise it changes only the
// labels that were supplied.
func (r *Registry) Register(ctx context.Context, id string, location, description *string) (*model.Device, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.Invalid("deviceId is required")
	}
	unlock, err := r.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := r.store.RegisterDevice(ctx, id, location, description)
	if err != nil {
		return nil, err
	}
	log.Printf("devices: registered %s at %q", d.ID, d.Location)
	return d, nil
}

// Heartbeat marks the device alive and stores its telemetry. The status
// becomes tampered when the telemetry says so, stays tampered when the
// telemetry is silent about security, and is normal otherwise.
func (r *Registry) Heartbeat(ctx context.Context, id string, tel Telemetry) (*model.Device, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.Invalid("deviceId is required")
	}
	security := strings.ToLower(strings.TrimSpace(tel.SecurityStatus))
	if security != "" && security != string(model.SecuritySecure) && security != string(model.SecurityTampered) {
		return nil, apperr.Invalid("securityStatus must be secure or tampered")
	}

	raw := tel.Raw
	if len(raw) == 0 {
		b, err := json.Marshal(tel)
		if err != nil {
			return nil, fmt.Errorf("encode telemetry: %w", err)
		}
		raw = b
	}

	unlock, err := r.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := r.store.GetDevice(ctx, id)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	status := model.DeviceNormal
	switch {
	case security == string(model.SecurityTampered):
		status = model.DeviceTampered
	case security == "" && current != nil && current.Status == model.DeviceTampered:
		status = model.DeviceTampered
	}

	now := r.clock.Now()
	d := &model.Device{
		ID:            id,
		Status:        status,
		LastHeartbeat: &now,
		IPAddress:     tel.IPAddress,
		WifiSignal:    tel.WifiSignal,
		Uptime:        tel.Uptime,
		CacheSize:     tel.CacheSize,
		Firmware:      tel.Firmware,
		MACAddress:    tel.MACAddress,
		Location:      model.DefaultDeviceLocation,
		Telemetry:     datatypes.JSON(raw),
	}
	if current != nil {
		d.Location = current.Location
		d.Description = current.Description
		d.CreatedAt = current.CreatedAt
	}
	if err := r.store.SaveHeartbeat(ctx, d); err != nil {
		return nil, err
	}
	metrics.Heartbeats.WithLabelValues(string(status)).Inc()
	if current == nil || current.Status != status {
		log.Printf("devices: %s is now %s", id, status)
	}
	return d, nil
}

// List sweeps stale devices and returns every device.
func (r *Registry) List(ctx context.Context) ([]model.Device, error) {
	if _, err := r.Sweep(ctx); err != nil {
		log.Printf("devices: sweep before list failed: %v", err)
	}
	return r.store.ListDevices(ctx)
}

// Get returns one device, reporting it offline if its last heartbeat is
// older than the liveness timeout even when no sweep has run yet.
func (r *Registry) Get(ctx context.Context, id string) (*model.Device, error) {
	d, err := r.store.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != model.DeviceOffline && r.stale(d, r.clock.Now()) {
		d.Status = model.DeviceOffline
	}
	return d, nil
}

// Update changes device labels.
func (r *Registry) Update(ctx context.Context, id string, p Patch) (*model.Device, error) {
	fields := map[string]any{}
	if p.Location != nil {
		loc := strings.TrimSpace(*p.Location)
		if loc == "" {
			return nil, apperr.Invalid("location must not be empty")
		}
		fields["location"] = loc
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	unlock, err := r.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return r.store.UpdateDevice(ctx, id, fields)
}

// Delete removes a device.
func (r *Registry) Delete(ctx context.Context, id string) error {
	unlock, err := r.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	return r.store.DeleteDevice(ctx, id)
}

// MarkTampered records a tamper signal carried by a scan. Offline devices
// are left offline; it reports whether the status changed.
func (r *Registry) MarkTampered(ctx context.Context, id string) (bool, error) {
	unlock, err := r.lock(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()
	return r.store.MarkTamperedIfOnline(ctx, id)
}

// Sweep flips every non-offline device whose last heartbeat is older than
// the liveness timeout to offline and returns the ids it flipped. Staleness
// is rechecked under each device's lock so a concurrent heartbeat wins.
// Per-device failures are logged and skipped.
func (r *Registry) Sweep(ctx context.Context) ([]string, error) {
	candidates, err := r.store.StaleDevices(ctx, r.clock.Now().Add(-r.timeout))
	if err != nil {
		return nil, err
	}

	var flipped []string
	for _, c := range candidates {
		ok, err := r.sweepOne(ctx, c.ID)
		if err != nil {
			metrics.SweepErrors.Inc()
			log.Printf("devices: sweep skipped %s: %v", c.ID, err)
			continue
		}
		if ok {
			flipped = append(flipped, c.ID)
		}
	}
	if len(flipped) > 0 {
		metrics.DevicesMarkedOffline.Add(float64(len(flipped)))
		log.Printf("devices: marked offline %v", flipped)
	}
	return flipped, nil
}

func (r *Registry) sweepOne(ctx context.Context, id string) (bool, error) {
	unlock, err := r.lock(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	// The cutoff is taken after the lock so a heartbeat that landed while
	// we waited is not older than it.
	return r.store.MarkOfflineIfStale(ctx, id, r.clock.Now().Add(-r.timeout))
}

func (r *Registry) stale(d *model.Device, now time.Time) bool {
	return d.LastHeartbeat == nil || d.LastHeartbeat.Before(now.Add(-r.timeout))
}
