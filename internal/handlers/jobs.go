package handlers

import (
	"context"
	"net/http"

	"env_automation/internal/service"

	"github.com/gin-gonic/gin"
)

// @Summary      Create schedule
// @Description  kind is one of ONE_OFF, INTERVAL, CRON, RECURRING, STATIC. A schedule with no next run is stored disabled.
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Param        body  body      service.ScheduleRequest  true  "Schedule"
// @Success      201   {object}  models.Schedule
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/schedules [post]
// @Security     BearerAuth
func (h *Handler) createSchedule(c *gin.Context) {
	var req service.ScheduleRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	s, err := h.services.Jobs.CreateSchedule(c.Request.Context(), req)
	if err != nil {
		h.respondServiceError(c, "failed to create schedule", "schedule_create_failed", err)
		return
	}
	h.audit(c, "schedule_created", "schedule_id", s.ID, "kind", s.Kind, "enabled", s.Enabled)
	c.JSON(http.StatusCreated, s)
}

// @Summary      Process due schedules now
// @Tags         jobs
// @Produce      json
// @Success      200  {object}  models.ScheduleRunStats
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/schedules/run [post]
// @Security     BearerAuth
func (h *Handler) runDueSchedules(c *gin.Context) {
	stats, err := h.services.Jobs.ProcessDueSchedules(batchContext(c))
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to process schedules", "schedules_run_failed", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// @Summary      Queue a manual device action
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Param        body  body      service.ManualActionRequest  true  "Action"
// @Success      201   {object}  models.DeviceAction
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/actions [post]
// @Security     BearerAuth
func (h *Handler) createAction(c *gin.Context) {
	var req service.ManualActionRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	a, err := h.services.Jobs.CreateManualAction(c.Request.Context(), req)
	if err != nil {
		h.respondServiceError(c, "failed to create action", "action_create_failed", err)
		return
	}
	h.audit(c, "action_queued", "action_id", a.ID, "device_id", a.DeviceID, "action_type", a.ActionType)
	c.JSON(http.StatusCreated, a)
}

// @Summary      Dispatch pending actions now
// @Tags         jobs
// @Produce      json
// @Success      200  {object}  models.DispatchStats
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/actions/dispatch [post]
// @Security     BearerAuth
func (h *Handler) dispatchActions(c *gin.Context) {
	stats, err := h.services.Jobs.DispatchPending(batchContext(c))
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to dispatch actions", "actions_dispatch_failed", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// batchContext keeps request values but not cancellation, so a client that
// disconnects mid-batch cannot leave a fan-out half written.
func batchContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}
