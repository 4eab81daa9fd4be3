// Package report aggregates attendance records into per-student summaries
// over a range of civil days.
package report

import (
	"context"
	"math"

	"gate-attendance-backend/internal/apperr"
	"gate-attendance-backend/internal/clock"
	"gate-attendance-backend/internal/directory"
	"gate-attendance-backend/internal/model"
	"gate-attendance-backend/internal/store"
)

// Weights of each status in the attendance percentage.
const (
	presentWeight = 1.0
	lateWeight    = 0.75
	halfDayWeight = 0.5
)

// Request selects the range and the students. Both dates are required and
// may be bare days or timestamps.
type Request struct {
	StartDate string
	EndDate   string
	Class     string
	Grade     string
}

// Row is one student's summary.
type Row struct {
	Student    model.StudentSummary `json:"student"`
	Present    int                  `json:"present"`
	Absent     int                  `json:"absent"`
	Late       int                  `json:"late"`
	HalfDay    int                  `json:"halfDay"`
	Percentage float64              `json:"attendancePercentage"`
	Records    []model.Attendance   `json:"records"`
}

// Report is the aggregate over [StartDay, EndDay].
type Report struct {
	StartDay  string `json:"startDate"`
	EndDay    string `json:"endDate"`
	TotalDays int    `json:"totalDays"`
	Rows      []Row  `json:"report"`
}

// Students lists the candidate set in directory order.
type Students interface {
	List(ctx context.Context, f directory.Filter) ([]model.Student, error)
}

// Aggregator builds reports.
type Aggregator struct {
	students Students
	records  store.AttendanceStore
	clock    *clock.Clock
}

// New returns an aggregator.
func New(students Students, records store.AttendanceStore, clk *clock.Clock) *Aggregator {
	return &Aggregator{students: students, records: records, clock: clk}
}

// Generate returns one row per matching student, including students with no
// records, in directory order.
func (a *Aggregator) Generate(ctx context.Context, req Request) (*Report, error) {
	if req.StartDate == "" || req.EndDate == "" {
		return nil, apperr.Invalid("startDate and endDate are required")
	}
	start, err := a.clock.ParseDay(req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := a.clock.ParseDay(req.EndDate)
	if err != nil {
		return nil, err
	}
	total, err := a.clock.DaysInclusive(start, end)
	if err != nil {
		return nil, err
	}

	students, err := a.students.List(ctx, directory.Filter{Class: req.Class, Grade: req.Grade})
	if err != nil {
		return nil, err
	}

	var ids []string
	if req.Class != "" || req.Grade != "" {
		ids = make([]string, 0, len(students))
		for _, s := range students {
			ids = append(ids, s.ID)
		}
	}
	records, err := a.records.AttendanceBetween(ctx, start, end, ids)
	if err != nil {
		return nil, err
	}

	byStudent := make(map[string][]model.Attendance, len(students))
	for _, r := range records {
		byStudent[r.StudentID] = append(byStudent[r.StudentID], r)
	}

	rows := make([]Row, 0, len(students))
	for _, s := range students {
		row := Row{Student: s.Summary(), Records: byStudent[s.ID]}
		if row.Records == nil {
			row.Records = []model.Attendance{}
		}
		for _, r := range row.Records {
			switch r.Status {
			case model.StatusPresent:
				row.Present++
			case model.StatusAbsent:
				row.Absent++
			case model.StatusLate:
				row.Late++
			case model.StatusHalfDay:
				row.HalfDay++
			}
		}
		row.Percentage = Percentage(row.Present, row.Late, row.HalfDay, total)
		rows = append(rows, row)
	}

	return &Report{StartDay: start, EndDay: end, TotalDays: total, Rows: rows}, nil
}

// Percentage is the weighted attendance rate over totalDays, rounded half
// away from zero to two decimals.
func Percentage(present, late, halfDay, totalDays int) float64 {
	if totalDays <= 0 {
		return 0
	}
	weighted := presentWeight*float64(present) + lateWeight*float64(late) + halfDayWeight*float64(halfDay)
	return math.Round(weighted/float64(totalDays)*100*100) / 100
}
