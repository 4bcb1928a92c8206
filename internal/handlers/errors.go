package handlers

import (
	"errors"
	"net/http"

	"env_automation/internal/device"
	"env_automation/internal/repository"
	"env_automation/internal/service"

	"github.com/gin-gonic/gin"
)

const errInvalidBodyPref = "invalid body: "

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// audit records a state-changing request together with the operator who made it.
func (h *Handler) audit(c *gin.Context, event string, kv ...interface{}) {
	if h.log == nil {
		return
	}
	h.log.Infow(event, append([]interface{}{"operator", operatorID(c)}, kv...)...)
}

// respondServiceError maps validation errors to 4xx and everything else to 500.
func (h *Handler) respondServiceError(c *gin.Context, userMsg, logKey string, err error) {
	switch {
	case errors.Is(err, service.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrScheduleNameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidDevice),
		errors.Is(err, service.ErrInvalidAlert),
		errors.Is(err, service.ErrInvalidSchedule),
		errors.Is(err, service.ErrInvalidAction),
		errors.Is(err, device.ErrUnknownType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, userMsg, logKey, err)
	}
}

// bindJSONOrBadRequest tries to bind the request body into dst and writes a 400 JSON on failure.
// Returns false if the request was already handled (aborted), true otherwise.
func (h *Handler) bindJSONOrBadRequest(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if h.log != nil {
			h.log.Infow("bad_request_body", "path", c.FullPath(), "err", err)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return false
	}
	return true
}
