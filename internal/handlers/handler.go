package handlers

import (
	"smart_bottle/internal/logger"
	"smart_bottle/internal/service"

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

	// Versioned API endpoints
	h.registerAPIRoutes(router)

	// Live view and slider events over one socket, same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/display", h.getDisplay)
		h.registerSetpointRoutes(api)
	}
}

func (h *Handler) registerSetpointRoutes(api *gin.RouterGroup) {
	setpoint := api.Group("/setpoint")
	{
		// Body example: {"value":42}
		setpoint.POST("/drag", h.dragSetpoint)
		setpoint.POST("/commit", h.commitSetpoint)
	}
}
