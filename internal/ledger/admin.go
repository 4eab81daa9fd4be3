package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"gate-attendance-backend/internal/apperr"
	"gate-attendance-backend/internal/model"
	"gate-attendance-backend/internal/store"
)

// ManualEntry is an administrator-created record.
type ManualEntry struct {
	StudentID string // internal id
	Date      string // civil day or timestamp; empty means today
	Status    string
	Notes     string
	CreatedBy string
	EntryTime string // optional reference time for present records
}

// RecordPatch changes a record without state-machine checks. For the time
// fields nil keeps the value, "" clears it, anything else is parsed.
type RecordPatch struct {
	Status    *string
	Notes     *string
	EntryTime *string
	ExitTime  *string
}

// Filter narrows List. Date wins over the StartDate/EndDate range.
type Filter struct {
	Date      string
	StartDate string
	EndDate   string
	StudentID string
	Status    string
	Class     string
	Grade     string
}

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

// AddManual creates a record directly in the requested status. It fails
// with apperr.ErrConflict if the student already has a record that day.
func (l *Ledger) AddManual(ctx context.Context, in ManualEntry) (*model.Attendance, error) {
	status := model.AttendanceStatus(strings.TrimSpace(in.Status))
	if !status.Valid() {
		return nil, apperr.Invalid("status must be one of present, absent, late, half-day")
	}
	student, err := l.dir.ResolveByID(ctx, in.StudentID)
	if err != nil {
		return nil, err
	}

	day := l.clock.Today()
	if strings.TrimSpace(in.Date) != "" {
		if day, err = l.clock.ParseDay(in.Date); err != nil {
			return nil, err
		}
	}

	rec := &model.Attendance{
		ID:        uuid.NewString(),
		StudentID: student.ID,
		Day:       day,
		Status:    status,
		DeviceID:  model.ManualEntryDevice,
		Security:  model.SecuritySecure,
		Notes:     in.Notes,
	}
	if by := strings.TrimSpace(in.CreatedBy); by != "" {
		rec.CreatedBy = &by
	}
	if status == model.StatusPresent {
		entry, err := l.referenceTime(day, in.EntryTime)
		if err != nil {
			return nil, err
		}
		rec.EntryTime = &entry
	}

	unlock, err := l.lock(ctx, student.ID, day)
	if err != nil {
		return nil, err
	}
	defer unlock()

	_, err = l.store.FindAttendance(ctx, student.ID, day)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: student %s already has a record on %s", apperr.ErrConflict, student.ExternalID, day)
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}
	if err := l.store.CreateAttendance(ctx, rec); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, fmt.Errorf("%w: student %s already has a record on %s", apperr.ErrConflict, student.ExternalID, day)
		}
		return nil, err
	}
	rec.Student = student
	log.Printf("ledger: manual %s record for student %s on %s", status, student.ExternalID, day)
	return rec, nil
}

// referenceTime is the supplied time, or now when the day is today, or the
// start of the day otherwise.
func (l *Ledger) referenceTime(day, raw string) (time.Time, error) {
	if strings.TrimSpace(raw) != "" {
		return l.clock.ParseInstant(raw)
	}
	if day == l.clock.Today() {
		return l.clock.Now(), nil
	}
	return l.clock.StartOfDay(day)
}

// Update applies an administrative correction.
func (l *Ledger) Update(ctx context.Context, id string, p RecordPatch) (*model.Attendance, error) {
	fields := map[string]any{}
	if p.Status != nil {
		status := model.AttendanceStatus(strings.TrimSpace(*p.Status))
		if !status.Valid() {
			return nil, apperr.Invalid("status must be one of present, absent, late, half-day")
		}
		fields["status"] = status
	}
	if p.Notes != nil {
		fields["notes"] = *p.Notes
	}
	for col, raw := range map[string]*string{"entry_time": p.EntryTime, "exit_time": p.ExitTime} {
		if raw == nil {
			continue
		}
		if strings.TrimSpace(*raw) == "" {
			fields[col] = nil
			continue
		}
		t, err := l.clock.ParseInstant(*raw)
		if err != nil {
			return nil, err
		}
		fields[col] = t
	}

	current, err := l.store.GetAttendance(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock, err := l.lock(ctx, current.StudentID, current.Day)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return l.store.UpdateAttendance(ctx, id, fields)
}

// Get returns one record with its student.
func (l *Ledger) Get(ctx context.Context, id string) (*model.Attendance, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Invalid("id is required")
	}
	return l.store.GetAttendance(ctx, id)
}

// List returns one page of records, newest day first.
func (l *Ledger) List(ctx context.Context, f Filter, p Page) ([]model.Attendance, int64, error) {
	q := store.AttendanceQuery{
		StudentID: f.StudentID,
		Class:     f.Class,
		Grade:     f.Grade,
		Offset:    (p.Page - 1) * p.Limit,
		Limit:     p.Limit,
	}
	if f.Status != "" {
		if !model.AttendanceStatus(f.Status).Valid() {
			return nil, 0, apperr.Invalid("unknown status %q", f.Status)
		}
		q.Status = f.Status
	}
	var err error
	if f.Date != "" {
		if q.Day, err = l.clock.ParseDay(f.Date); err != nil {
			return nil, 0, err
		}
	} else {
		if f.StartDate != "" {
			if q.StartDay, err = l.clock.ParseDay(f.StartDate); err != nil {
				return nil, 0, err
			}
		}
		if f.EndDate != "" {
			if q.EndDay, err = l.clock.ParseDay(f.EndDate); err != nil {
				return nil, 0, err
			}
		}
		if q.StartDay != "" && q.EndDay != "" && q.EndDay < q.StartDay {
			return nil, 0, apperr.Invalid("endDate %s precedes startDate %s", q.EndDay, q.StartDay)
		}
	}
	return l.store.ListAttendance(ctx, q)
}
