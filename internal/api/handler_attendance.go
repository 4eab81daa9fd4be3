package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gate-attendance-backend/internal/ledger"
	"gate-attendance-backend/internal/report"
)

type scanRequest struct {
	RFIDTag        string `json:"rfidTag" binding:"required"`
	DeviceID       string `json:"deviceId" binding:"required"`
	Timestamp      string `json:"timestamp"`
	SecurityStatus string `json:"securityStatus"`
}

// Scan handles POST /api/attendance/scan.
func (h *Handler) Scan(c *gin.Context) {
	var req scanRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.Ledger.RecordScan(c.Request.Context(), ledger.Scan{
		Tag:      req.RFIDTag,
		DeviceID: req.DeviceID,
		RawTime:  req.Timestamp,
		Security: req.SecurityStatus,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if res.Outcome == ledger.OutcomeEntry {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"message":    res.Outcome.Label(),
		"outcome":    res.Outcome,
		"student":    res.Student,
		"attendance": toAttendanceView(h.Clock, res.Record),
		"serverTime": h.Clock.Format(h.Clock.Now()),
	})
}

// ListAttendance handles GET /api/attendance.
func (h *Handler) ListAttendance(c *gin.Context) {
	page, limit, err := pageParams(c)
	if err != nil {
		writeError(c, err)
		return
	}
	items, total, err := h.Ledger.List(c.Request.Context(), ledger.Filter{
		Date:      c.Query("date"),
		StartDate: c.Query("startDate"),
		EndDate:   c.Query("endDate"),
		StudentID: c.Query("studentId"),
		Status:    c.Query("status"),
		Class:     c.Query("class"),
		Grade:     c.Query("grade"),
	}, ledger.Page{Page: page, Limit: limit})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, paginated(toAttendanceViews(h.Clock, items), total, page, limit))
}

// Report handles GET /api/attendance/report.
func (h *Handler) Report(c *gin.Context) {
	rep, err := h.Reports.Generate(c.Request.Context(), report.Request{
		StartDate: c.Query("startDate"),
		EndDate:   c.Query("endDate"),
		Class:     c.Query("class"),
		Grade:     c.Query("grade"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"startDate": rep.StartDay,
		"endDate":   rep.EndDay,
		"totalDays": rep.TotalDays,
		"report":    toReportRows(h.Clock, rep.Rows),
	})
}

// GetAttendance handles GET /api/attendance/:id.
func (h *Handler) GetAttendance(c *gin.Context) {
	rec, err := h.Ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAttendanceView(h.Clock, rec))
}

type manualRequest struct {
	StudentID string `json:"studentId" binding:"required"`
	Date      string `json:"date"`
	Status    string `json:"status" binding:"required"`
	Notes     string `json:"notes"`
	EntryTime string `json:"entryTime"`
	CreatedBy string `json:"createdBy"`
}

// AddManual handles POST /api/attendance.
func (h *Handler) AddManual(c *gin.Context) {
	var req manualRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.Ledger.AddManual(c.Request.Context(), ledger.ManualEntry{
		StudentID: req.StudentID,
		Date:      req.Date,
		Status:    req.Status,
		Notes:     req.Notes,
		EntryTime: req.EntryTime,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAttendanceView(h.Clock, rec))
}

type updateRecordRequest struct {
	Status    *string `json:"status"`
	Notes     *string `json:"notes"`
	EntryTime *string `json:"entryTime"`
	ExitTime  *string `json:"exitTime"`
}

// UpdateAttendance handles PUT /api/attendance/:id.
func (h *Handler) UpdateAttendance(c *gin.Context) {
	var req updateRecordRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.Ledger.Update(c.Request.Context(), c.Param("id"), ledger.RecordPatch(req))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAttendanceView(h.Clock, rec))
}
