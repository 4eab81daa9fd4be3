package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"gorm.io/gorm"

	"gate-attendance-backend/internal/apperr"
	"gate-attendance-backend/internal/model"
)

// StudentStore persists the person directory.
type StudentStore interface {
	CreateStudent(ctx context.Context, s *model.Student) error
	GetStudent(ctx context.Context, id string) (*model.Student, error)
	GetStudentByTag(ctx context.Context, tag string) (*model.Student, error)
	UpdateStudent(ctx context.Context, id string, fields map[string]any) (*model.Student, error)
	ListStudents(ctx context.Context, q StudentQuery) ([]model.Student, int64, error)
	DeleteStudent(ctx context.Context, id string) error
	CountAttendanceForStudent(ctx context.Context, studentID string) (int64, error)
}

// AttendanceStore persists daily attendance records. The conditional
// setters report whether a row matched, so callers can re-read on a lost race.
type AttendanceStore interface {
	CreateAttendance(ctx context.Context, rec *model.Attendance) error
	GetAttendance(ctx context.Context, id string) (*model.Attendance, error)
	FindAttendance(ctx context.Context, studentID, day string) (*model.Attendance, error)
	SetEntryIfEmpty(ctx context.Context, id string, at time.Time, deviceID string, sec model.SecurityStatus) (bool, error)
	SetExitIfOpen(ctx context.Context, id string, at time.Time, deviceID string, sec model.SecurityStatus) (bool, error)
	UpdateAttendance(ctx context.Context, id string, fields map[string]any) (*model.Attendance, error)
	ListAttendance(ctx context.Context, q AttendanceQuery) ([]model.Attendance, int64, error)
	AttendanceBetween(ctx context.Context, startDay, endDay string, studentIDs []string) ([]model.Attendance, error)
}

// DeviceStore persists the device registry.
type DeviceStore interface {
	RegisterDevice(ctx context.Context, id string, location, description *string) (*model.Device, error)
	SaveHeartbeat(ctx context.Context, d *model.Device) error
	GetDevice(ctx context.Context, id string) (*model.Device, error)
	ListDevices(ctx context.Context) ([]model.Device, error)
	StaleDevices(ctx context.Context, cutoff time.Time) ([]model.Device, error)
	MarkOfflineIfStale(ctx context.Context, id string, cutoff time.Time) (bool, error)
	MarkTamperedIfOnline(ctx context.Context, id string) (bool, error)
	UpdateDevice(ctx context.Context, id string, fields map[string]any) (*model.Device, error)
	DeleteDevice(ctx context.Context, id string) error
}

// Store defines the interface for all database operations.
type Store interface {
	StudentStore
	AttendanceStore
	DeviceStore
	Ping(ctx context.Context) error
}

// Options bounds each storage call.
type Options struct {
	OpTimeout    time.Duration // per call; default 3s
	RetryBackoff time.Duration // before the single read retry; default 50ms
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db      *gorm.DB
	timeout time.Duration
	backoff time.Duration
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, opts Options) Store {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 3 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 50 * time.Millisecond
	}
	return &gormStore{db: db, timeout: opts.OpTimeout, backoff: opts.RetryBackoff}
}

// Ping checks that the database answers within the operation timeout.
func (s *gormStore) Ping(ctx context.Context) error {
	return s.exec(ctx, "ping", func(db *gorm.DB) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(db.Statement.Context)
	})
}

// exec runs fn once under the operation timeout. Writes go through exec only.
func (s *gormStore) exec(ctx context.Context, what string, fn func(db *gorm.DB) error) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return translate(opCtx, what, fn(s.db.WithContext(opCtx)))
}

// read is exec with one retry after a short backoff when storage timed out
// or was unreachable. Only idempotent reads may use it.
func (s *gormStore) read(ctx context.Context, what string, fn func(db *gorm.DB) error) error {
	err := s.exec(ctx, what, fn)
	if !apperr.Retryable(err) || ctx.Err() != nil {
		return err
	}
	log.Printf("store: %s failed (%v); retrying once", what, err)
	timer := time.NewTimer(s.backoff)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return err
	}
	return s.exec(ctx, what, fn)
}

func translate(opCtx context.Context, what string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, what)
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return fmt.Errorf("%w: %s: duplicate key", apperr.ErrConflict, what)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %s: still referenced", apperr.ErrConflict, what)
	case errors.Is(opCtx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s", apperr.ErrTimeout, what)
	case isUnavailable(err):
		return fmt.Errorf("%w: %s: %v", apperr.ErrUnavailable, what, err)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}

// utc normalizes instants before they reach the database so that stored
// values compare correctly on drivers that keep them as text.
func utc(t time.Time) time.Time { return t.UTC() }

func page(db *gorm.DB, offset, limit int) *gorm.DB {
	if offset > 0 {
		db = db.Offset(offset)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	return db
}
