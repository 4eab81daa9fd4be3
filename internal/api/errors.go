package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"gate-attendance-backend/internal/apperr"
)

var statusByKind = map[string]int{
	"invalid_argument":  http.StatusBadRequest,
	"invalid_timestamp": http.StatusBadRequest,
	"not_found":         http.StatusNotFound,
	"inactive":          http.StatusUnprocessableEntity,
	"conflict":          http.StatusConflict,
	"already_complete":  http.StatusConflict,
	"timeout":           http.StatusGatewayTimeout,
	"unavailable":       http.StatusServiceUnavailable,
}

// writeError maps err to a status and a {"error", "code"} body.
func writeError(c *gin.Context, err error) {
	kind := apperr.Kind(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("api: %s %s: %v", c.Request.Method, c.FullPath(), err)
		msg = "internal server error"
	}
	if apperr.Retryable(err) {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": kind})
}

// bindJSON decodes the body into dst, reporting failures as invalid input.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, apperr.Invalid("%v", err))
		return false
	}
	return true
}
