package handlers

import (
	"env_automation/internal/logger"
	"env_automation/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// Status stream over WebSocket on the same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		api.GET("/status", h.getStatus)
		api.GET("/stats", h.getStats)
		api.GET("/history", h.getHistory)
		h.registerDeviceRoutes(api)
		h.registerAlertRoutes(api)
		h.registerJobRoutes(api)
	}
}

func (h *Handler) registerDeviceRoutes(api *gin.RouterGroup) {
	devices := api.Group("/devices")
	{
		devices.GET("", h.listDevices)
		// Body example: {"name":"greenhouse-probe","type":"thermal","poll_enabled":true,"poll_interval":30}
		devices.POST("", h.registerDevice)
		devices.GET("/:id", h.getDevice)
		devices.DELETE("/:id", h.removeDevice)
		devices.POST("/:id/test", h.testDevice)
	}
}

func (h *Handler) registerAlertRoutes(api *gin.RouterGroup) {
	alerts := api.Group("/alerts")
	{
		alerts.POST("", h.createAlert)
		alerts.GET("/events", h.listAlertEvents)
		alerts.POST("/evaluate", h.evaluateAlerts)
	}
}

func (h *Handler) registerJobRoutes(api *gin.RouterGroup) {
	schedules := api.Group("/schedules")
	{
		schedules.POST("", h.createSchedule)
		schedules.POST("/run", h.runDueSchedules)
	}
	actions := api.Group("/actions")
	{
		actions.POST("", h.createAction)
		actions.POST("/dispatch", h.dispatchActions)
	}
}
