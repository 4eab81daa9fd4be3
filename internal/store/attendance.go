package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"gate-attendance-backend/internal/model"
)

// CreateAttendance inserts rec. Losing the (student_id, day) race yields
// apperr.ErrConflict.
func (s *gormStore) CreateAttendance(ctx context.Context, rec *model.Attendance) error {
	normalizeTimes(rec)
	return s.exec(ctx, "attendance of "+rec.StudentID+" on "+rec.Day, func(db *gorm.DB) error {
		return db.Omit("Student").Create(rec).Error
	})
}

func (s *gormStore) GetAttendance(ctx context.Context, id string) (*model.Attendance, error) {
	var rec model.Attendance
	err := s.read(ctx, "attendance "+id, func(db *gorm.DB) error {
		return db.Preload("Student").Where("id = ?", id).First(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *gormStore) FindAttendance(ctx context.Context, studentID, day string) (*model.Attendance, error) {
	var rec model.Attendance
	err := s.read(ctx, "attendance of "+studentID+" on "+day, func(db *gorm.DB) error {
		return db.Where("student_id = ? AND day = ?", studentID, day).First(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SetEntryIfEmpty stamps the entry of a row that has neither entry nor exit.
func (s *gormStore) SetEntryIfEmpty(ctx context.Context, id string, at time.Time, deviceID string, sec model.SecurityStatus) (bool, error) {
	return s.conditional(ctx, "entry of attendance "+id,
		"id = ? AND entry_time IS NULL AND exit_time IS NULL", id,
		map[string]any{"entry_time": utc(at), "device_id": deviceID, "security": sec})
}

// SetExitIfOpen stamps the exit of a row that has an entry and no exit.
func (s *gormStore) SetExitIfOpen(ctx context.Context, id string, at time.Time, deviceID string, sec model.SecurityStatus) (bool, error) {
	return s.conditional(ctx, "exit of attendance "+id,
		"id = ? AND entry_time IS NOT NULL AND exit_time IS NULL", id,
		map[string]any{"exit_time": utc(at), "device_id": deviceID, "security": sec})
}

func (s *gormStore) conditional(ctx context.Context, what, where, id string, fields map[string]any) (bool, error) {
	var affected int64
	err := s.exec(ctx, what, func(db *gorm.DB) error {
		res := db.Model(&model.Attendance{}).Where(where, id).Updates(fields)
		affected = res.RowsAffected
		return res.Error
	})
	return affected == 1, err
}

// UpdateAttendance applies administrative field changes without any state
// checks and returns the fresh row with its student.
func (s *gormStore) UpdateAttendance(ctx context.Context, id string, fields map[string]any) (*model.Attendance, error) {
	for k, v := range fields {
		if t, ok := v.(time.Time); ok {
			fields[k] = utc(t)
		}
	}
	var rec model.Attendance
	err := s.exec(ctx, "attendance "+id, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("id = ?", id).First(&rec).Error; err != nil {
				return err
			}
			if len(fields) > 0 {
				if err := tx.Model(&model.Attendance{}).Where("id = ?", id).Updates(fields).Error; err != nil {
					return err
				}
			}
			rec = model.Attendance{}
			return tx.Preload("Student").Where("id = ?", id).First(&rec).Error
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListAttendance returns one page of records, newest day first, each with
// its student preloaded.
func (s *gormStore) ListAttendance(ctx context.Context, q AttendanceQuery) ([]model.Attendance, int64, error) {
	var (
		records []model.Attendance
		total   int64
	)
	err := s.read(ctx, "attendance list", func(db *gorm.DB) error {
		if err := attendanceFilter(db.Model(&model.Attendance{}), q).Count(&total).Error; err != nil {
			return err
		}
		return page(attendanceFilter(db, q), q.Offset, q.Limit).
			Preload("Student").
			Order("attendances.day DESC").
			Order("attendances.entry_time DESC").
			Order("attendances.id ASC").
			Find(&records).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func attendanceFilter(db *gorm.DB, q AttendanceQuery) *gorm.DB {
	if q.Class != "" || q.Grade != "" {
		db = db.Joins("JOIN students ON students.id = attendances.student_id")
		if q.Class != "" {
			db = db.Where("students.class = ?", q.Class)
		}
		if q.Grade != "" {
			db = db.Where("students.grade = ?", q.Grade)
		}
	}
	switch {
	case q.Day != "":
		db = db.Where("attendances.day = ?", q.Day)
	default:
		if q.StartDay != "" {
			db = db.Where("attendances.day >= ?", q.StartDay)
		}
		if q.EndDay != "" {
			db = db.Where("attendances.day <= ?", q.EndDay)
		}
	}
	if q.StudentID != "" {
		db = db.Where("attendances.student_id = ?", q.StudentID)
	}
	if q.Status != "" {
		db = db.Where("attendances.status = ?", q.Status)
	}
	return db
}

// AttendanceBetween returns every record with startDay <= day <= endDay
// for the given students, oldest day first. A nil studentIDs means all.
func (s *gormStore) AttendanceBetween(ctx context.Context, startDay, endDay string, studentIDs []string) ([]model.Attendance, error) {
	var records []model.Attendance
	if studentIDs != nil && len(studentIDs) == 0 {
		return records, nil
	}
	err := s.read(ctx, "attendance between "+startDay+" and "+endDay, func(db *gorm.DB) error {
		db = db.Where("day >= ? AND day <= ?", startDay, endDay)
		if studentIDs != nil {
			db = db.Where("student_id IN ?", studentIDs)
		}
		return db.Order("day ASC").Order("entry_time ASC").Find(&records).Error
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func normalizeTimes(rec *model.Attendance) {
	if rec.EntryTime != nil {
		t := utc(*rec.EntryTime)
		rec.EntryTime = &t
	}
	if rec.ExitTime != nil {
		t := utc(*rec.ExitTime)
		rec.ExitTime = &t
	}
}
