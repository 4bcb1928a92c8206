package handlers

import (
	"net/http"
	"strconv"

	"env_automation/internal/repository"
	"env_automation/internal/service"

	"github.com/gin-gonic/gin"
)

// @Summary      Create alert
// @Tags         alerts
// @Accept       json
// @Produce      json
// @Param        body  body      service.AlertRequest  true  "Alert"
// @Success      201   {object}  models.Alert
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/alerts [post]
// @Security     BearerAuth
func (h *Handler) createAlert(c *gin.Context) {
	var req service.AlertRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	a, err := h.services.AlertAdmin.CreateAlert(c.Request.Context(), req)
	if err != nil {
		h.respondServiceError(c, "failed to create alert", "alert_create_failed", err)
		return
	}
	h.audit(c, "alert_created", "alert_id", a.ID, "device_id", a.DeviceID)
	c.JSON(http.StatusCreated, a)
}

// @Summary      List alert events
// @Tags         alerts
// @Produce      json
// @Param        alert_id   query  int   false  "Alert ID"
// @Param        device_id  query  int   false  "Device ID"
// @Param        resolved   query  bool  false  "Resolution state"
// @Param        limit      query  int   false  "Maximum events returned"
// @Success      200  {object}  map[string]interface{}  "count, events"
// @Failure      400  {object}  map[string]string
// @Router       /api/v1/alerts/events [get]
// @Security     BearerAuth
func (h *Handler) listAlertEvents(c *gin.Context) {
	var f repository.AlertEventFilter
	for key, dst := range map[string]**int64{"alert_id": &f.AlertID, "device_id": &f.DeviceID} {
		qs := c.Query(key)
		if qs == "" {
			continue
		}
		v, err := strconv.ParseInt(qs, 10, 64)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid '" + key + "'"})
			return
		}
		*dst = &v
	}
	resolved, err := queryBool(c, "resolved")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'resolved'"})
		return
	}
	f.Resolved = resolved
	if qs := c.Query("limit"); qs != "" {
		if f.Limit, err = strconv.Atoi(qs); err != nil || f.Limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": errLimitInvalid})
			return
		}
	}

	events, err := h.services.AlertAdmin.ListEvents(c.Request.Context(), f)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load alert events", "alert_events_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(events), "events": events})
}

// @Summary      Evaluate all enabled alerts now
// @Tags         alerts
// @Produce      json
// @Success      200  {object}  models.EvaluationStats
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/alerts/evaluate [post]
// @Security     BearerAuth
func (h *Handler) evaluateAlerts(c *gin.Context) {
	stats, err := h.services.Alerts.EvaluateAll(batchContext(c))
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to evaluate alerts", "alerts_evaluate_failed", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
