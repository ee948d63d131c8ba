package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront-service/internal/service"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups everything the HTTP layer calls into
type Services struct {
	Checkout  *service.CheckoutService
	Catalog   *service.CatalogService
	Resellers *service.ResellerService
	Recorder  *service.Recorder
	Access    *service.AccessService
	Auth      *service.AuthService
	Settings  *service.SettingsService

	// Live serves the admin websocket feed; nil disables the route
	Live http.Handler
	// Checks are pinged by /ready
	Checks map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services) *Handler {
	return &Handler{svc: svc, logger: util.GetLogger()}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/checkout", h.checkout)
		v1.GET("/products", h.listPublicProducts)
		v1.GET("/products/:id", h.getPublicProduct)
		v1.GET("/resellers/validate/:ref", h.validateReseller)
		v1.GET("/settings", h.publicSettings)
		v1.POST("/auth/login", h.login)
	}

	admin := v1.Group("/admin", h.authenticate(false))
	{
		admin.GET("/me", h.me)
		admin.GET("/dashboard", h.dashboard)
		admin.GET("/permissions", h.listPermissions)

		admin.GET("/products", h.listProducts)
		admin.POST("/products", h.createProduct)
		admin.GET("/products/:id", h.getProduct)
		admin.PUT("/products/:id", h.updateProduct)
		admin.DELETE("/products/:id", h.deleteProduct)
		admin.POST("/products/:id/stock", h.adjustStock)

		admin.GET("/resellers", h.listResellers)
		admin.POST("/resellers", h.createReseller)
		admin.GET("/resellers/:id", h.getReseller)
		admin.PUT("/resellers/:id", h.updateReseller)
		admin.DELETE("/resellers/:id", h.deleteReseller)

		admin.GET("/roles", h.listRoles)
		admin.POST("/roles", h.createRole)
		admin.PUT("/roles/:id", h.updateRole)
		admin.DELETE("/roles/:id", h.deleteRole)

		admin.GET("/users", h.listUsers)
		admin.POST("/users", h.createUser)
		admin.PUT("/users/:id", h.updateUser)
		admin.DELETE("/users/:id", h.deleteUser)

		admin.PUT("/settings", h.updateSettings)
		admin.GET("/notifications", h.listNotifications)

		admin.GET("/transactions", h.listTransactions)
		admin.GET("/transactions/:id", h.getTransaction)
		admin.PATCH("/transactions/:id", h.updateTransactionDetails)
		admin.PATCH("/transactions/:id/status", h.updateTransactionStatus)
		admin.DELETE("/transactions/:id", h.deleteTransaction)
	}

	if h.svc.Live != nil {
		v1.GET("/admin/live", h.authenticate(true), gin.WrapH(h.svc.Live))
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, p := range h.svc.Checks {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "down"
			ready = false
			continue
		}
		checks[name] = "up"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// statusFor maps an error class to its HTTP status
func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindUnauthorized:
		return http.StatusForbidden
	case service.KindUnauthenticated:
		return http.StatusUnauthorized
	case service.KindRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// respondError writes the error body {code, message, details}
func (h *Handler) respondError(c *gin.Context, err error) {
	p := service.Describe(err)
	status := statusFor(p.Kind)
	if status == http.StatusInternalServerError {
		util.LoggerFromContext(c.Request.Context()).Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	body := gin.H{"code": p.Code, "message": p.Message}
	if len(p.Details) > 0 {
		body["details"] = p.Details
	}
	c.AbortWithStatusJSON(status, body)
}

// badRequest reports a body or parameter that could not be parsed
func badRequest(c *gin.Context, message string, err error) {
	body := gin.H{"code": "INVALID_REQUEST", "message": message}
	if err != nil {
		body["details"] = gin.H{"error": err.Error()}
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id", nil)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

// bindJSON decodes the body, reporting a malformed body as 400
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "invalid request body", err)
		return false
	}
	return true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}
