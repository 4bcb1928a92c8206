package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"env_automation/internal/repository"
	"env_automation/internal/service"

	"github.com/gin-gonic/gin"
)

const errInvalidID = "invalid id"

// pathID parses the :id path parameter and writes a 400 on failure.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidID})
		return 0, false
	}
	return id, true
}

// queryBool parses an optional boolean query parameter.
func queryBool(c *gin.Context, key string) (*bool, error) {
	s := strings.TrimSpace(c.Query(key))
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// @Summary      List devices
// @Tags         devices
// @Produce      json
// @Param        type          query  string  false  "Driver type tag"  Enums(thermal,relay,mqtt)
// @Param        poll_enabled  query  bool    false  "Filter by polling flag"
// @Param        is_active     query  bool    false  "Filter by active flag"
// @Success      200  {object}  map[string]interface{}  "count, devices"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/devices [get]
// @Security     BearerAuth
func (h *Handler) listDevices(c *gin.Context) {
	f := repository.DeviceFilter{Type: strings.ToLower(strings.TrimSpace(c.Query("type")))}
	var err error
	if f.PollEnabled, err = queryBool(c, "poll_enabled"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'poll_enabled'"})
		return
	}
	if f.IsActive, err = queryBool(c, "is_active"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'is_active'"})
		return
	}
	devices, err := h.services.Devices.List(c.Request.Context(), f)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load devices", "devices_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(devices), "devices": devices})
}

// @Summary      Register device
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        body  body      service.DeviceRequest  true  "Device"
// @Success      201   {object}  models.Device
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/devices [post]
// @Security     BearerAuth
func (h *Handler) registerDevice(c *gin.Context) {
	var req service.DeviceRequest
	if !h.bindJSONOrBadRequest(c, &req) {
		return
	}
	d, err := h.services.Devices.Register(c.Request.Context(), req)
	if err != nil {
		h.respondServiceError(c, "failed to register device", "device_register_failed", err)
		return
	}
	h.audit(c, "device_registered", "device_id", d.ID, "type", d.Type)
	c.JSON(http.StatusCreated, d)
}

// @Summary      Get device
// @Tags         devices
// @Produce      json
// @Param        id   path      int  true  "Device ID"
// @Success      200  {object}  models.Device
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/devices/{id} [get]
// @Security     BearerAuth
func (h *Handler) getDevice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	d, err := h.services.Devices.Get(c.Request.Context(), id)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load device", "device_get_failed", err, "device_id", id)
		return
	}
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": service.ErrDeviceNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, d)
}

// @Summary      Remove device
// @Tags         devices
// @Param        id   path  int  true  "Device ID"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/devices/{id} [delete]
// @Security     BearerAuth
func (h *Handler) removeDevice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.services.Devices.Remove(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": service.ErrDeviceNotFound.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to remove device", "device_remove_failed", err, "device_id", id)
		return
	}
	h.audit(c, "device_removed", "device_id", id)
	c.Status(http.StatusNoContent)
}

// @Summary      Test device connection
// @Tags         devices
// @Produce      json
// @Param        id   path      int  true  "Device ID"
// @Success      200  {object}  map[string]interface{}  "ok, error"
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/devices/{id}/test [post]
// @Security     BearerAuth
func (h *Handler) testDevice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	err := h.services.Devices.TestConnection(c.Request.Context(), id)
	switch {
	case errors.Is(err, service.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
