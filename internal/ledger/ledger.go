// Package ledger turns gate scans into one attendance record per student
// per civil day and maintains those records for administrators.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"gate-attendance-backend/internal/alerts"
	"gate-attendance-backend/internal/apperr"
	"gate-attendance-backend/internal/clock"
	"gate-attendance-backend/internal/keylock"
	"gate-attendance-backend/internal/lasttag"
	"gate-attendance-backend/internal/metrics"
	"gate-attendance-backend/internal/model"
	"gate-attendance-backend/internal/store"
)

// Outcome is what a scan did to the day's record.
type Outcome string

const (
	OutcomeEntry     Outcome = "entry"
	OutcomeExit      Outcome = "exit"
	OutcomeDuplicate Outcome = "duplicate"
)

// Label is the human-readable outcome returned to the reader.
func (o Outcome) Label() string {
	switch o {
	case OutcomeEntry:
		return "Entry time recorded"
	case OutcomeExit:
		return "Exit time recorded"
	case OutcomeDuplicate:
		return "Duplicate scan ignored"
	default:
		return string(o)
	}
}

// Scan is one raw reader event.
type Scan struct {
	Tag      string
	DeviceID string
	RawTime  string // optional device timestamp
	Security string // "secure", "tampered" or empty for secure
}

// ScanResult is returned for every accepted scan.
type ScanResult struct {
	Student      model.StudentSummary
	Record       *model.Attendance
	Outcome      Outcome
	TimeFellBack bool // the device time was unusable and server time was used
}

// Resolver is the part of the directory the ledger needs.
type Resolver interface {
	ResolveByTag(ctx context.Context, tag string) (*model.Student, error)
	ResolveByID(ctx context.Context, id string) (*model.Student, error)
}

// AlertSink receives tamper signals carried by scans.
type AlertSink interface {
	Dispatch(a alerts.Alert) bool
}

// Options tune scan handling. Zero values disable the optional parts.
type Options struct {
	MinScanInterval time.Duration // scans closer than this to the entry are duplicates
	LockTimeout     time.Duration // default 5s
	Alerts          AlertSink
	Unmatched       lasttag.Store // receives tags that resolve to no student
}

// maxAttempts bounds re-decisions after a lost race. Each lost race moves
// the record forward (none, open, closed), so three reads always settle.
const maxAttempts = 3

// Ledger owns all attendance record mutation.
type Ledger struct {
	store store.AttendanceStore
	dir   Resolver
	clock *clock.Clock
	locks *keylock.Locker
	opts  Options
}

// New returns a ledger.
func New(st store.AttendanceStore, dir Resolver, clk *clock.Clock, locks *keylock.Locker, opts Options) *Ledger {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 5 * time.Second
	}
	return &Ledger{store: st, dir: dir, clock: clk, locks: locks, opts: opts}
}

// RecordScan applies one scan: the first of the day sets the entry, the
// second sets the exit, and any later one fails with apperr.ErrAlreadyComplete.
func (l *Ledger) RecordScan(ctx context.Context, scan Scan) (*ScanResult, error) {
	res, err := l.recordScan(ctx, scan)
	if err != nil {
		metrics.Scans.WithLabelValues(apperr.Kind(err)).Inc()
		return nil, err
	}
	metrics.Scans.WithLabelValues(string(res.Outcome)).Inc()
	return res, nil
}

func (l *Ledger) recordScan(ctx context.Context, scan Scan) (*ScanResult, error) {
	tag := strings.TrimSpace(scan.Tag)
	deviceID := strings.TrimSpace(scan.DeviceID)
	if tag == "" {
		return nil, apperr.Invalid("rfidTag is required")
	}
	if deviceID == "" {
		return nil, apperr.Invalid("deviceId is required")
	}
	sec, err := parseSecurity(scan.Security)
	if err != nil {
		return nil, err
	}

	observed, fellBack, terr := l.clock.ObservedAt(scan.RawTime)
	if terr != nil {
		log.Printf("ledger: %v from device %s; using server time", terr, deviceID)
	}

	if sec == model.SecurityTampered && l.opts.Alerts != nil {
		l.opts.Alerts.Dispatch(alerts.Alert{DeviceID: deviceID, Tag: tag, At: observed})
	}

	student, err := l.dir.ResolveByTag(ctx, tag)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) && l.opts.Unmatched != nil {
			if perr := l.opts.Unmatched.Put(ctx, lasttag.Entry{Tag: tag, DeviceID: deviceID, At: observed}); perr != nil {
				log.Printf("ledger: could not keep unmatched tag %s: %v", tag, perr)
			}
		}
		return nil, err
	}

	day := l.clock.Day(observed)
	unlock, err := l.lock(ctx, student.ID, day)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, outcome, err := l.applyScan(ctx, student, day, observed, deviceID, sec)
	if err != nil {
		return nil, err
	}
	rec.Student = student
	log.Printf("ledger: %s for student %s on %s via %s", outcome, student.ExternalID, day, deviceID)
	return &ScanResult{Student: student.Summary(), Record: rec, Outcome: outcome, TimeFellBack: fellBack}, nil
}

// applyScan runs read, decide, conditional write. A write that loses to a
// concurrent writer re-reads and decides again.
func (l *Ledger) applyScan(ctx context.Context, student *model.Student, day string, observed time.Time, deviceID string, sec model.SecurityStatus) (*model.Attendance, Outcome, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		rec, err := l.store.FindAttendance(ctx, student.ID, day)
		if errors.Is(err, apperr.ErrNotFound) {
			rec = &model.Attendance{
				ID:        uuid.NewString(),
				StudentID: student.ID,
				Day:       day,
				EntryTime: &observed,
				Status:    model.StatusPresent,
				DeviceID:  deviceID,
				Security:  sec,
			}
			err = l.store.CreateAttendance(ctx, rec)
			if errors.Is(err, apperr.ErrConflict) {
				continue
			}
			if err != nil {
				return nil, "", err
			}
			return rec, OutcomeEntry, nil
		}
		if err != nil {
			return nil, "", err
		}

		switch {
		case rec.ExitTime != nil:
			return nil, "", fmt.Errorf("%w: student %s already has entry and exit on %s", apperr.ErrAlreadyComplete, student.ExternalID, day)

		case rec.EntryTime == nil:
			// Manual row without observations: the scan adds the entry and
			// keeps the administrator's status.
			ok, err := l.store.SetEntryIfEmpty(ctx, rec.ID, observed, deviceID, sec)
			if err != nil {
				return nil, "", err
			}
			if !ok {
				continue
			}
			rec.EntryTime, rec.DeviceID, rec.Security = &observed, deviceID, sec
			return rec, OutcomeEntry, nil

		default:
			if l.duplicate(*rec.EntryTime, observed) {
				return rec, OutcomeDuplicate, nil
			}
			ok, err := l.store.SetExitIfOpen(ctx, rec.ID, observed, deviceID, sec)
			if err != nil {
				return nil, "", err
			}
			if !ok {
				continue
			}
			rec.ExitTime, rec.DeviceID, rec.Security = &observed, deviceID, sec
			return rec, OutcomeExit, nil
		}
	}
	return nil, "", fmt.Errorf("%w: attendance of student %s on %s kept changing", apperr.ErrConflict, student.ExternalID, day)
}

func (l *Ledger) duplicate(entry, observed time.Time) bool {
	if l.opts.MinScanInterval <= 0 {
		return false
	}
	d := observed.Sub(entry)
	if d < 0 {
		d = -d
	}
	return d < l.opts.MinScanInterval
}

func (l *Ledger) lock(ctx context.Context, studentID, day string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, l.opts.LockTimeout)
	defer cancel()
	start := time.Now()
	unlock, err := l.locks.Lock(lockCtx, "attendance|"+studentID+"|"+day)
	metrics.ScanLockWait.Observe(time.Since(start).Seconds())
	return unlock, err
}

func parseSecurity(raw string) (model.SecurityStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(model.SecuritySecure):
		return model.SecuritySecure, nil
	case string(model.SecurityTampered):
		return model.SecurityTampered, nil
	default:
		return "", apperr.Invalid("securityStatus must be secure or tampered, got %q", raw)
	}
}
