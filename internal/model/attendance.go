package model

import "time"

// AttendanceStatus is the day's classification of a student.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
	StatusLate    AttendanceStatus = "late"
	StatusHalfDay AttendanceStatus = "half-day"
)

// Valid reports whether s is one of the known statuses.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusHalfDay:
		return true
	default:
		return false
	}
}

// SecurityStatus is the tamper state reported with a scan.
type SecurityStatus string

const (
	SecuritySecure   SecurityStatus = "secure"
	SecurityTampered SecurityStatus = "tampered"
)

// ManualEntryDevice marks records created by an operator rather than a reader.
const ManualEntryDevice = "manual-entry"

// Attendance is the canonical record for one student on one civil day.
// The (student_id, day) pair is unique.
type Attendance struct {
	ID        string           `gorm:"primaryKey;size:36" json:"id"`
	StudentID string           `gorm:"size:36;not null;uniqueIndex:idx_attendance_student_day,priority:1" json:"studentRef"`
	Day       string           `gorm:"size:10;not null;uniqueIndex:idx_attendance_student_day,priority:2;index" json:"day"`
	EntryTime *time.Time       `json:"entryTime"`
	ExitTime  *time.Time       `json:"exitTime"`
	Status    AttendanceStatus `gorm:"size:16;not null;index" json:"status"`
	DeviceID  string           `gorm:"size:64;not null" json:"device"`
	Security  SecurityStatus   `gorm:"size:16;not null" json:"securityStatus"`
	Notes     string           `gorm:"type:text" json:"notes,omitempty"`
	CreatedBy *string          `gorm:"size:64" json:"createdBy,omitempty"`
	CreatedAt time.Time        `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time        `gorm:"not null" json:"updatedAt"`

	// Associations
	Student *Student `gorm:"foreignKey:StudentID;references:ID" json:"student,omitempty"`
}

// Complete reports whether both observations of the day are present.
func (a Attendance) Complete() bool { return a.ExitTime != nil }
