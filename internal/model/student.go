package model

import "time"

// Student is a person whose presence is tracked at the gate.
type Student struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	ExternalID    string     `gorm:"column:student_id;uniqueIndex;size:64;not null" json:"studentId"` // school-issued
	Tag           string     `gorm:"column:rfid_tag;uniqueIndex;size:64;not null" json:"rfidTag"`
	Name          string     `gorm:"size:50;not null" json:"name"`
	Class         string     `gorm:"size:64;not null;index" json:"class"`
	Grade         string     `gorm:"size:32;not null;index" json:"grade"`
	Gender        string     `gorm:"size:16" json:"gender,omitempty"`
	DateOfBirth   *time.Time `json:"dateOfBirth,omitempty"`
	ParentContact string     `gorm:"size:32" json:"parentContact,omitempty"`
	Address       string     `gorm:"size:255" json:"address,omitempty"`
	Active        bool       `gorm:"not null" json:"active"`
	CreatedAt     time.Time  `gorm:"not null" json:"createdAt"`
	UpdatedAt     time.Time  `gorm:"not null" json:"updatedAt"`
}

// StudentSummary is the public view returned alongside scan results.
type StudentSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StudentID string `json:"studentId"`
	Class     string `json:"class"`
	Grade     string `json:"grade"`
}

// Summary returns the public attributes of s.
func (s Student) Summary() StudentSummary {
	return StudentSummary{ID: s.ID, Name: s.Name, StudentID: s.ExternalID, Class: s.Class, Grade: s.Grade}
}
