package devices

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gate-attendance-backend/internal/apperr"
	"gate-attendance-backend/internal/clock"
	"gate-attendance-backend/internal/keylock"
	"gate-attendance-backend/internal/model"
	"gate-attendance-backend/internal/store"
)

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newRegistry(t *testing.T) (*Registry, *fakeNow) {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, gormDB.AutoMigrate(&model.Device{}))

	now := &fakeNow{t: time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)}
	clk, err := clock.New("Asia/Jakarta", 7*time.Hour, now.Now)
	require.NoError(t, err)

	st := store.NewGormStore(gormDB, store.Options{})
	return NewRegistry(st, keylock.New(), clk, 0), now
}

func TestRegistry_RegisterAndHeartbeat(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)

	_, err := reg.Register(ctx, " ", nil, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	d, err := reg.Register(ctx, "gate-1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.DeviceOffline, d.Status)
	assert.Equal(t, model.DefaultDeviceLocation, d.Location)

	signal := -55
	d, err = reg.Heartbeat(ctx, "gate-1", Telemetry{IPAddress: "10.0.0.5", WifiSignal: &signal, Firmware: "2.1.0"})
	require.NoError(t, err)
	assert.Equal(t, model.DeviceNormal, d.Status)
	require.NotNil(t, d.LastHeartbeat)

	got, err := reg.Get(ctx, "gate-1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", got.IPAddress)
	assert.Equal(t, "2.1.0", got.Firmware)

	var stored map[string]any
	require.NoError(t, json.Unmarshal(got.Telemetry, &stored))
	assert.Equal(t, "10.0.0.5", stored["ipAddress"])

	loc := "East gate"
	d, err = reg.Register(ctx, "gate-1", &loc, nil)
	require.NoError(t, err)
	assert.Equal(t, model.DeviceNormal, d.Status, "registration never overwrites live state")
	assert.Equal(t, "10.0.0.5", d.IPAddress)
	assert.Equal(t, "East gate", d.Location)

	_, err = reg.Heartbeat(ctx, "", Telemetry{})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = reg.Get(ctx, "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRegistry_HeartbeatCreatesDevice(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)

	d, err := reg.Heartbeat(ctx, "gate-9", Telemetry{Raw: json.RawMessage(`{"uptime":42,"extra":"kept"}`), Uptime: 42})
	require.NoError(t, err)
	assert.Equal(t, model.DeviceNormal, d.Status)

	got, err := reg.Get(ctx, "gate-9")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultDeviceLocation, got.Location)
	assert.JSONEq(t, `{"uptime":42,"extra":"kept"}`, string(got.Telemetry))
}

func TestRegistry_TamperIsSticky(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)

	testCases := []struct {
		security string
		expected model.DeviceStatus
	}{
		{"tampered", model.DeviceTampered},
		{"", model.DeviceTampered},
		{"secure", model.DeviceNormal},
		{"", model.DeviceNormal},
	}
	for _, tc := range testCases {
		d, err := reg.Heartbeat(ctx, "gate-1", Telemetry{SecurityStatus: tc.security})
		require.NoError(t, err)
		assert.Equal(t, tc.expected, d.Status, "after security %q", tc.security)
	}

	_, err := reg.Heartbeat(ctx, "gate-1", Telemetry{SecurityStatus: "broken"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestRegistry_LivenessSweep(t *testing.T) {
	ctx := context.Background()
	reg, now := newRegistry(t)

	_, err := reg.Heartbeat(ctx, "gate-1", Telemetry{})
	require.NoError(t, err)
	_, err = reg.Heartbeat(ctx, "gate-2", Telemetry{SecurityStatus: "tampered"})
	require.NoError(t, err)

	now.Advance(90 * time.Second)
	_, err = reg.Heartbeat(ctx, "gate-2", Telemetry{})
	require.NoError(t, err)

	now.Advance(45 * time.Second) // gate-1 silent for 135s, gate-2 for 45s
	list, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.DeviceOffline, list[0].Status)
	assert.Equal(t, model.DeviceTampered, list[1].Status)

	flipped, err := reg.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, flipped, "already offline")

	d, err := reg.Heartbeat(ctx, "gate-1", Telemetry{})
	require.NoError(t, err)
	assert.Equal(t, model.DeviceNormal, d.Status)
	assert.True(t, d.LastHeartbeat.Equal(now.Now()))

	now.Advance(3 * time.Minute)
	got, err := reg.Get(ctx, "gate-1")
	require.NoError(t, err)
	assert.Equal(t, model.DeviceOffline, got.Status, "Get reports staleness before a sweep")

	flipped, err = reg.Sweep(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"gate-1", "gate-2"}, flipped)
}

func TestRegistry_MarkTampered(t *testing.T) {
	ctx := context.Background()
	reg, now := newRegistry(t)

	_, err := reg.Heartbeat(ctx, "gate-1", Telemetry{})
	require.NoError(t, err)

	changed, err := reg.MarkTampered(ctx, "gate-1")
	require.NoError(t, err)
	assert.True(t, changed)

	now.Advance(5 * time.Minute)
	_, err = reg.Sweep(ctx)
	require.NoError(t, err)
	changed, err = reg.MarkTampered(ctx, "gate-1")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = reg.MarkTampered(ctx, "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRegistry_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)

	_, err := reg.Register(ctx, "gate-1", nil, nil)
	require.NoError(t, err)

	desc := "Back door"
	d, err := reg.Update(ctx, "gate-1", Patch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Back door", d.Description)

	empty := " "
	_, err = reg.Update(ctx, "gate-1", Patch{Location: &empty})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = reg.Update(ctx, "ghost", Patch{Description: &desc})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, reg.Delete(ctx, "gate-1"))
	assert.ErrorIs(t, reg.Delete(ctx, "gate-1"), apperr.ErrNotFound)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	reg, now := newRegistry(t)
	_, err := reg.Heartbeat(context.Background(), "gate-1", Telemetry{})
	require.NoError(t, err)
	now.Advance(10 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(reg, time.Hour).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		d, err := reg.store.GetDevice(context.Background(), "gate-1")
		return err == nil && d.Status == model.DeviceOffline
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRegistry_LockWaitIsBounded(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t)
	reg.lockTimeout = 50 * time.Millisecond

	unlock, err := reg.locks.Lock(ctx, "device|gate-1")
	require.NoError(t, err)
	defer unlock()

	start := time.Now()
	_, err = reg.Heartbeat(ctx, "gate-1", Telemetry{})
	assert.ErrorIs(t, err, apperr.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)

	_, err = reg.MarkTampered(ctx, "gate-1")
	assert.ErrorIs(t, err, apperr.ErrTimeout)
	assert.ErrorIs(t, reg.Delete(ctx, "gate-1"), apperr.ErrTimeout)

	// Other devices are unaffected.
	_, err = reg.Heartbeat(ctx, "gate-2", Telemetry{})
	assert.NoError(t, err)
}
