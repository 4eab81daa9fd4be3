package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-attendance-backend/config"
	"gate-attendance-backend/internal/app"
	"gate-attendance-backend/internal/db"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func call(t *testing.T, h http.Handler, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

// TestGateDayLifecycle walks one school day through the HTTP surface:
// enrolment, entry and exit scans, a tampered reader, a reader going
// silent and the closing report.
func TestGateDayLifecycle(t *testing.T) {
	// --- Test Setup ---
	// Defaults fill everything not set here, as they would from a file.
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	sweep := false
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = "file:" + filepath.Join(t.TempDir(), "gate.db")
	cfg.Database.LogLevel = "silent"
	cfg.Devices.SweepEnabled = &sweep
	cfg.WorkerPool.Size = 2
	cfg.Server.CacheTTLSeconds = 0
	cfg.LastTag.Backend = "memory"

	gormDB, err := db.Init(&cfg.Database)
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()

	// 07:10 in Jakarta.
	clk := &manualClock{t: time.Date(2025, 3, 10, 0, 10, 0, 0, time.UTC)}
	application, err := app.New(cfg, gormDB, clk.Now)
	require.NoError(t, err)
	defer application.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go application.Run(ctx)

	h := application.Router

	// --- Enrolment ---
	code, _ := call(t, h, http.MethodPost, "/api/students/store-rfid", map[string]any{"rfidTag": "04A1B2", "deviceId": "gate-1"})
	require.Equal(t, http.StatusOK, code)
	code, body := call(t, h, http.MethodGet, "/api/students/last-rfid?clear=true", nil)
	require.Equal(t, http.StatusOK, code)
	tag := body["rfidTag"].(string)

	code, body = call(t, h, http.MethodPost, "/api/students", map[string]any{
		"studentId": "2025-001", "rfidTag": tag, "name": "Dewi", "class": "8B", "grade": "8",
	})
	require.Equal(t, http.StatusCreated, code, body)
	studentID := body["id"].(string)
	code, _ = call(t, h, http.MethodPost, "/api/students", map[string]any{
		"studentId": "2025-002", "rfidTag": "04FFFF", "name": "Eka", "class": "8B", "grade": "8",
	})
	require.Equal(t, http.StatusCreated, code)

	// --- Reader comes online ---
	code, body = call(t, h, http.MethodPost, "/api/devices/heartbeat", map[string]any{
		"deviceId": "gate-1", "ipAddress": "192.168.1.20", "wifiSignal": -55, "uptime": 3600,
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "normal", body["device"].(map[string]any)["status"])

	// --- Entry, with a zone-less device timestamp ---
	// Readers report UTC wall time without a zone; the gateway offset (+7h)
	// is added, so 17:05 on the 9th lands at 07:05 on the 10th in Jakarta.
	code, body = call(t, h, http.MethodPost, "/api/attendance/scan", map[string]any{
		"rfidTag": tag, "deviceId": "gate-1", "timestamp": "2025-03-09T17:05:00",
	})
	require.Equal(t, http.StatusCreated, code, body)
	att := body["attendance"].(map[string]any)
	assert.Equal(t, "2025-03-10", att["date"])
	assert.Equal(t, "2025-03-10T07:05:00+07:00", att["entryTime"])
	assert.Equal(t, "present", att["status"])

	// --- Exit, the reader reports tampering ---
	clk.Advance(7 * time.Hour)
	code, _ = call(t, h, http.MethodPost, "/api/attendance/device/heartbeat", map[string]any{"deviceId": "gate-1"})
	require.Equal(t, http.StatusOK, code)
	code, body = call(t, h, http.MethodPost, "/api/attendance/scan", map[string]any{
		"rfidTag": tag, "deviceId": "gate-1", "securityStatus": "tampered",
	})
	require.Equal(t, http.StatusOK, code, body)
	att = body["attendance"].(map[string]any)
	assert.Equal(t, "2025-03-10T14:10:00+07:00", att["exitTime"])
	assert.Equal(t, "tampered", att["securityStatus"])

	assert.Eventually(t, func() bool {
		d, err := application.Devices.Get(context.Background(), "gate-1")
		return err == nil && d.Status == "tampered"
	}, 2*time.Second, 20*time.Millisecond, "tamper alert should mark the reader")

	code, body = call(t, h, http.MethodPost, "/api/attendance/scan", map[string]any{"rfidTag": tag, "deviceId": "gate-1"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already_complete", body["code"])

	// --- Admin marks the second student late ---
	code, body = call(t, h, http.MethodGet, "/api/students?search=eka", nil)
	require.Equal(t, http.StatusOK, code)
	eka := body["items"].([]any)[0].(map[string]any)["id"].(string)
	code, body = call(t, h, http.MethodPost, "/api/attendance", map[string]any{
		"studentId": eka, "date": "2025-03-10", "status": "late", "createdBy": "admin",
	})
	require.Equal(t, http.StatusCreated, code, body)

	// --- The reader goes silent ---
	clk.Advance(5 * time.Minute)
	code, body = call(t, h, http.MethodPost, "/api/devices/sweep", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"gate-1"}, body["markedOffline"])

	code, body = call(t, h, http.MethodGet, "/api/devices/gate-1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "offline", body["status"])

	// --- Closing report ---
	code, body = call(t, h, http.MethodGet, "/api/attendance/report?startDate=2025-03-10&endDate=2025-03-10&class=8B", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 1, body["totalDays"])
	rows := body["report"].([]any)
	require.Len(t, rows, 2)
	for _, r := range rows {
		row := r.(map[string]any)
		switch row["student"].(map[string]any)["id"] {
		case studentID:
			assert.EqualValues(t, 1, row["present"])
			assert.EqualValues(t, 100, row["attendancePercentage"])
		case eka:
			assert.EqualValues(t, 1, row["late"])
			assert.EqualValues(t, 75, row["attendancePercentage"])
		default:
			t.Fatalf("unexpected report row %v", row)
		}
	}

	// Records remain; the student cannot be deleted.
	code, body = call(t, h, http.MethodDelete, "/api/students/"+studentID, nil)
	assert.Equal(t, http.StatusConflict, code, body)
}
