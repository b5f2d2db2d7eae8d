package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pixrepo/internal/catalog"
	"pixrepo/internal/service"
	"pixrepo/internal/storage"
	"pixrepo/internal/uploader"
)

// Dependencies are the services the HTTP layer is wired to.
type Dependencies struct {
	Sources service.SourceService
	Batches service.BatchService
	Manager uploader.Manager
	Auth    service.AuthService
	Catalog *catalog.Store
	// Proxy serves gitee raw content; nil disables the route.
	Proxy *GiteeProxy
	// MaxUploadSize bounds each uploaded file in bytes; 0 means unbounded.
	MaxUploadSize int64
	Logger        *logrus.Logger
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	sources   service.SourceService
	batches   service.BatchService
	manager   uploader.Manager
	auth      service.AuthService
	catalog   *catalog.Store
	proxy     *GiteeProxy
	maxUpload int64
	logger    *logrus.Logger
}

func NewHandler(deps Dependencies) *Handler {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog.NewStore()
	}
	return &Handler{
		sources:   deps.Sources,
		batches:   deps.Batches,
		manager:   deps.Manager,
		auth:      deps.Auth,
		catalog:   deps.Catalog,
		proxy:     deps.Proxy,
		maxUpload: deps.MaxUploadSize,
		logger:    deps.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
		api.POST("/auth/login", h.login)
		if h.proxy != nil {
			api.GET("/proxy/gitee/*path", h.proxy.Serve)
		}

		secured := api.Group("")
		secured.Use(h.authMiddleware())
		{
			secured.GET("/sources", h.listSources)
			secured.POST("/sources", h.createSource)
			secured.GET("/sources/:id", h.getSource)
			secured.PUT("/sources/:id", h.updateSource)
			secured.DELETE("/sources/:id", h.deleteSource)

			secured.GET("/sources/:id/images", h.listImages)
			secured.POST("/sources/:id/images", h.uploadImage)
			secured.POST("/sources/:id/images/delete", h.deleteImages)
			secured.PATCH("/sources/:id/images/:name", h.updateImage)
			secured.DELETE("/sources/:id/images/:name", h.deleteImage)

			secured.GET("/sources/:id/batches", h.listBatches)
			secured.GET("/sources/:id/progress", h.sourceProgress)
			secured.POST("/sources/:id/batches", h.createBatch)
			secured.GET("/batches/:id", h.getBatch)
			secured.GET("/batches/:id/events", h.batchEvents)
			secured.DELETE("/batches/:id", h.cancelBatch)
		}
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// authMiddleware accepts a bearer token, or a token query parameter for
// EventSource clients that cannot set headers.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.auth == nil || !h.auth.Enabled() {
			c.Next()
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		if err := h.auth.Verify(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.auth == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrAuthDisabled.Error()})
		return
	}

	token, expiresAt, err := h.auth.Login(c.Request.Context(), req.Password)
	switch {
	case errors.Is(err, service.ErrAuthDisabled):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: formatTime(expiresAt)})
}

// statusFor maps service and storage errors onto HTTP statuses.
func statusFor(err error) int {
	var (
		netErr    *storage.NetworkError
		remoteErr *storage.RemoteError
	)
	switch {
	case errors.Is(err, service.ErrInvalidImage), errors.Is(err, service.ErrInvalidSource):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrSourceExists), errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case service.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &remoteErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithField("path", c.FullPath()).Errorf("request failed: %v", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
