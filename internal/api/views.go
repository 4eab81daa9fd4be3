package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gate-attendance-backend/internal/apperr"
	"gate-attendance-backend/internal/clock"
	"gate-attendance-backend/internal/model"
	"gate-attendance-backend/internal/report"
)

// Instants leave the service as ISO-8601 strings in the canonical zone.

type studentView struct {
	ID            string  `json:"id"`
	StudentID     string  `json:"studentId"`
	RFIDTag       string  `json:"rfidTag"`
	Name          string  `json:"name"`
	Class         string  `json:"class"`
	Grade         string  `json:"grade"`
	Gender        string  `json:"gender,omitempty"`
	DateOfBirth   *string `json:"dateOfBirth,omitempty"`
	ParentContact string  `json:"parentContact,omitempty"`
	Address       string  `json:"address,omitempty"`
	Active        bool    `json:"active"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

type attendanceView struct {
	ID             string                `json:"id"`
	Student        *model.StudentSummary `json:"student,omitempty"`
	Date           string                `json:"date"`
	EntryTime      *string               `json:"entryTime"`
	ExitTime       *string               `json:"exitTime"`
	Status         string                `json:"status"`
	Device         string                `json:"device"`
	SecurityStatus string                `json:"securityStatus"`
	Notes          string                `json:"notes,omitempty"`
	CreatedBy      *string               `json:"createdBy,omitempty"`
	CreatedAt      string                `json:"createdAt"`
	UpdatedAt      string                `json:"updatedAt"`
}

type deviceView struct {
	DeviceID      string  `json:"deviceId"`
	Status        string  `json:"status"`
	LastHeartbeat *string `json:"lastHeartbeat"`
	IPAddress     string  `json:"ipAddress,omitempty"`
	WifiSignal    *int    `json:"wifiSignal"`
	Uptime        int64   `json:"uptime"`
	CacheSize     int64   `json:"cacheSize"`
	Firmware      string  `json:"firmwareVersion,omitempty"`
	MACAddress    string  `json:"macAddress,omitempty"`
	Location      string  `json:"location"`
	Description   string  `json:"description"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

type reportRowView struct {
	Student    model.StudentSummary `json:"student"`
	Present    int                  `json:"present"`
	Absent     int                  `json:"absent"`
	Late       int                  `json:"late"`
	HalfDay    int                  `json:"halfDay"`
	Percentage float64              `json:"attendancePercentage"`
	Records    []attendanceView     `json:"records"`
}

func formatPtr(clk *clock.Clock, t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := clk.Format(*t)
	return &s
}

func formatTime(clk *clock.Clock, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return clk.Format(t)
}

func toStudentView(clk *clock.Clock, s *model.Student) studentView {
	v := studentView{
		ID: s.ID, StudentID: s.ExternalID, RFIDTag: s.Tag, Name: s.Name, Class: s.Class, Grade: s.Grade,
		Gender: s.Gender, ParentContact: s.ParentContact, Address: s.Address, Active: s.Active,
		CreatedAt: formatTime(clk, s.CreatedAt), UpdatedAt: formatTime(clk, s.UpdatedAt),
	}
	if s.DateOfBirth != nil {
		d := s.DateOfBirth.Format(clock.DayLayout)
		v.DateOfBirth = &d
	}
	return v
}

func toAttendanceView(clk *clock.Clock, a *model.Attendance) attendanceView {
	v := attendanceView{
		ID:             a.ID,
		Date:           a.Day,
		EntryTime:      formatPtr(clk, a.EntryTime),
		ExitTime:       formatPtr(clk, a.ExitTime),
		Status:         string(a.Status),
		Device:         a.DeviceID,
		SecurityStatus: string(a.Security),
		Notes:          a.Notes,
		CreatedBy:      a.CreatedBy,
		CreatedAt:      formatTime(clk, a.CreatedAt),
		UpdatedAt:      formatTime(clk, a.UpdatedAt),
	}
	if a.Student != nil {
		s := a.Student.Summary()
		v.Student = &s
	}
	return v
}

func toAttendanceViews(clk *clock.Clock, recs []model.Attendance) []attendanceView {
	out := make([]attendanceView, 0, len(recs))
	for i := range recs {
		out = append(out, toAttendanceView(clk, &recs[i]))
	}
	return out
}

func toDeviceView(clk *clock.Clock, d *model.Device) deviceView {
	return deviceView{
		DeviceID: d.ID, Status: string(d.Status), LastHeartbeat: formatPtr(clk, d.LastHeartbeat),
		IPAddress: d.IPAddress, WifiSignal: d.WifiSignal, Uptime: d.Uptime, CacheSize: d.CacheSize,
		Firmware: d.Firmware, MACAddress: d.MACAddress, Location: d.Location, Description: d.Description,
		CreatedAt: formatTime(clk, d.CreatedAt), UpdatedAt: formatTime(clk, d.UpdatedAt),
	}
}

func toReportRows(clk *clock.Clock, rows []report.Row) []reportRowView {
	out := make([]reportRowView, 0, len(rows))
	for _, r := range rows {
		out = append(out, reportRowView{
			Student: r.Student, Present: r.Present, Absent: r.Absent, Late: r.Late, HalfDay: r.HalfDay,
			Percentage: r.Percentage, Records: toAttendanceViews(clk, r.Records),
		})
	}
	return out
}

const (
	defaultLimit = 10
	maxLimit     = 100
)

// pageParams reads page (>=1, default 1) and limit (1..100, default 10).
func pageParams(c *gin.Context) (page, limit int, err error) {
	page, limit = 1, defaultLimit
	if v := c.Query("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil || page < 1 {
			return 0, 0, apperr.Invalid("page must be a positive integer")
		}
	}
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 || limit > maxLimit {
			return 0, 0, apperr.Invalid("limit must be between 1 and %d", maxLimit)
		}
	}
	return page, limit, nil
}

func paginated(items any, total int64, page, limit int) gin.H {
	pages := (total + int64(limit) - 1) / int64(limit)
	return gin.H{
		"items": items,
		"total": total,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"pages": pages,
		},
	}
}
