package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gate-attendance-backend/internal/apperr"
	"gate-attendance-backend/internal/directory"
	"gate-attendance-backend/internal/lasttag"
	"gate-attendance-backend/internal/model"
)

// ListStudents handles GET /api/students.
func (h *Handler) ListStudents(c *gin.Context) {
	page, limit, err := pageParams(c)
	if err != nil {
		writeError(c, err)
		return
	}
	f := directory.Filter{Class: c.Query("class"), Grade: c.Query("grade"), Search: c.Query("search")}
	if v := c.Query("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(c, apperr.Invalid("active must be true or false"))
			return
		}
		f.Active = &active
	}

	students, total, err := h.Directory.Search(c.Request.Context(), f, directory.Page{Page: page, Limit: limit})
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]studentView, 0, len(students))
	for i := range students {
		views = append(views, toStudentView(h.Clock, &students[i]))
	}
	c.JSON(http.StatusOK, paginated(views, total, page, limit))
}

// CreateStudent handles POST /api/students.
func (h *Handler) CreateStudent(c *gin.Context) {
	var req directory.NewStudent
	if !bindJSON(c, &req) {
		return
	}
	st, err := h.Directory.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toStudentView(h.Clock, st))
}

// GetStudent handles GET /api/students/:id.
func (h *Handler) GetStudent(c *gin.Context) {
	h.respondStudent(c, http.StatusOK)(h.Directory.ResolveByID(c.Request.Context(), c.Param("id")))
}

// GetStudentByTag handles GET /api/students/rfid/:tag. Inactive students
// are returned too; only scans are gated.
func (h *Handler) GetStudentByTag(c *gin.Context) {
	st, err := h.Directory.ResolveByTag(c.Request.Context(), c.Param("tag"))
	if err != nil && !(st != nil && apperr.Kind(err) == "inactive") {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStudentView(h.Clock, st))
}

// UpdateStudent handles PUT /api/students/:id.
func (h *Handler) UpdateStudent(c *gin.Context) {
	var req directory.StudentPatch
	if !bindJSON(c, &req) {
		return
	}
	h.respondStudent(c, http.StatusOK)(h.Directory.Update(c.Request.Context(), c.Param("id"), req))
}

// DeactivateStudent handles POST /api/students/:id/deactivate.
func (h *Handler) DeactivateStudent(c *gin.Context) {
	h.respondStudent(c, http.StatusOK)(h.Directory.Deactivate(c.Request.Context(), c.Param("id")))
}

// ActivateStudent handles POST /api/students/:id/activate.
func (h *Handler) ActivateStudent(c *gin.Context) {
	h.respondStudent(c, http.StatusOK)(h.Directory.Activate(c.Request.Context(), c.Param("id")))
}

// DeleteStudent handles DELETE /api/students/:id.
func (h *Handler) DeleteStudent(c *gin.Context) {
	if err := h.Directory.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type storeTagRequest struct {
	RFIDTag  string `json:"rfidTag" binding:"required"`
	DeviceID string `json:"deviceId"`
}

// StoreTag handles POST /api/students/store-rfid.
func (h *Handler) StoreTag(c *gin.Context) {
	var req storeTagRequest
	if !bindJSON(c, &req) {
		return
	}
	e := lasttag.Entry{Tag: req.RFIDTag, DeviceID: req.DeviceID, At: h.Clock.Now()}
	if err := h.LastTag.Put(c.Request.Context(), e); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "RFID tag stored", "rfidTag": e.Tag, "timestamp": h.Clock.Format(e.At)})
}

// GetLastTag handles GET /api/students/last-rfid. With clear=true the slot
// is emptied by the read.
func (h *Handler) GetLastTag(c *gin.Context) {
	clear, _ := strconv.ParseBool(c.DefaultQuery("clear", "false"))
	e, err := h.LastTag.Take(c.Request.Context(), clear)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rfidTag": e.Tag, "deviceId": e.DeviceID, "timestamp": h.Clock.Format(e.At)})
}

func (h *Handler) respondStudent(c *gin.Context, status int) func(*model.Student, error) {
	return func(st *model.Student, err error) {
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(status, toStudentView(h.Clock, st))
	}
}
