package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"env_automation/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errFromInvalid   = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid     = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"
	errDeviceInvalid = "'device_id' must be a positive integer"
	errLimitInvalid  = "'limit' must be a positive integer"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"

	defaultHistoryLimit = 500
	maxHistoryLimit     = 5000
)

// isDateOnly reports whether the query string represents a date without time component.
func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

// @Summary      Device reading history
// @Description  Filter readings by date (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD'). If 'to' is date-only, it is treated as end-of-day inclusive.
// @Tags         history
// @Produce      json
// @Param        device_id  query  int     true   "Device ID"
// @Param        from       query  string  false  "Start of range"  example(2026-03-01)
// @Param        to         query  string  false  "End of range. Date-only treated as end of day."  example(2026-03-31)
// @Param        limit      query  int     false  "Maximum readings returned (default 500)"
// @Success      200  {object}  map[string]interface{}  "count, readings"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/history [get]
// @Security     BearerAuth
func (h *Handler) getHistory(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		f   = service.HistoryFilter{Limit: defaultHistoryLimit}
		err error
	)
	f.DeviceID, err = strconv.ParseInt(c.Query("device_id"), 10, 64)
	if err != nil || f.DeviceID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errDeviceInvalid})
		return
	}
	if qs := c.Query("limit"); qs != "" {
		f.Limit, err = strconv.Atoi(qs)
		if err != nil || f.Limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": errLimitInvalid})
			return
		}
		if f.Limit > maxHistoryLimit {
			f.Limit = maxHistoryLimit
		}
	}
	// Parse 'from' (optional)
	if qs := c.Query("from"); qs != "" {
		f.From, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errFromInvalid})
			return
		}
	}
	// Parse 'to' (optional). If only a date is provided, make it end-of-day inclusive.
	if qs := c.Query("to"); qs != "" {
		f.To, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errToInvalid})
			return
		}
		if isDateOnly(qs) {
			f.To = f.To.Add(24*time.Hour - time.Nanosecond).UTC()
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'from' must be <= 'to'"})
		return
	}
	readings, err := h.services.History.Readings(ctx, f)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load history", "history_list_failed", err,
			"device_id", f.DeviceID, "from", f.From, "to", f.To)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(readings),
		"readings": readings,
	})
}

func parseQueryTime(s string) (time.Time, error) {
	// Try multiple accepted formats, normalizing to UTC.
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf(
		"invalid time format %q, expected one of: "+
			"RFC3339 (e.g. 2026-03-01T15:04:05Z), "+
			"'YYYY-MM-DD HH:MM:SS', "+
			"'YYYY-MM-DD'",
		s,
	)
}
