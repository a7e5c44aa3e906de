package handlers

import (
	"net/http"
	"time"

	"oilfox_bridge/internal/logger"
	"oilfox_bridge/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Options configures the optional parts of the router.
type Options struct {
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	// StreamInterval is the default period of the /ws snapshot stream.
	StreamInterval time.Duration
}

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	metrics  http.Handler
	stream   time.Duration
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger, opts Options) *Handler {
	stream := opts.StreamInterval
	if stream <= 0 || stream > maxInterval {
		stream = defaultInterval
	}
	return &Handler{services: services, metrics: opts.Metrics, stream: stream, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	h.setupMiddleware(router)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// Snapshot stream (HTTP upgrade) on the same port
	router.GET("/ws", h.streamAuthMiddleware, h.wsConnect)

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
		h.registerBridgeRoutes(api)
		h.registerDeviceRoutes(api)
		h.registerDiscoveryRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerBridgeRoutes(api *gin.RouterGroup) {
	bridge := api.Group("/bridge")
	{
		bridge.GET("", h.getBridge)
		bridge.POST("/refresh", h.refreshBridge)
		// Body example: {"channel":"liters","command":"REFRESH","device_id":"D1"}
		bridge.POST("/command", h.sendCommand)
	}
}

func (h *Handler) registerDeviceRoutes(api *gin.RouterGroup) {
	devices := api.Group("/devices")
	{
		devices.GET("", h.listDevices)
		devices.GET("/:id", h.getDevice)
	}
}

func (h *Handler) registerDiscoveryRoutes(api *gin.RouterGroup) {
	discovery := api.Group("/discovery")
	{
		discovery.GET("", h.listDiscovery)
		discovery.POST("/scan", h.scan)
		discovery.POST("/:id/approve", h.approve)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	api.GET("/logs", h.getLogs)
}

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}
