package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vaultpay/vaultpay-server/internal/apperr"
	"github.com/vaultpay/vaultpay-server/internal/models"
	"github.com/vaultpay/vaultpay-server/internal/repository"
	"github.com/vaultpay/vaultpay-server/internal/security"
	"github.com/vaultpay/vaultpay-server/internal/service"
	"go.uber.org/zap"
)

// Handler holds the dependencies for the API endpoints
type Handler struct {
	svc    service.Service
	repo   repository.Repository
	tokens *security.TokenManager
	logger *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(svc service.Service, repo repository.Repository, tokens *security.TokenManager, logger *zap.Logger) *Handler {
	return &Handler{
		svc:    svc,
		repo:   repo,
		tokens: tokens,
		logger: logger,
	}
}

// SetupRoutes registers all routes on the router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := router.Group("/api/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
	}

	accounts := router.Group("/api/accounts")
	accounts.Use(h.AuthMiddleware(models.ScopeAccountsRead))
	{
		accounts.POST("", h.CreateAccount)
		accounts.GET("/:id/balance", h.GetBalance)
	}

	transfers := router.Group("/api/transfers")
	transfers.Use(h.AuthMiddleware(models.ScopeTransfersWrite))
	{
		transfers.POST("", h.CreateTransfer)
	}

	merchant := router.Group("/api/merchant")
	merchant.Use(h.MerchantAuthMiddleware(models.ScopePaymentsWrite))
	{
		merchant.POST("/payments", h.MerchantPayment)
	}
}

// errorStatus maps an error kind to HTTP status and stable error code
func errorStatus(kind apperr.Kind) (int, string) {
	switch kind {
	case apperr.KindAuthentication:
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case apperr.KindAuthorization:
		return http.StatusForbidden, "FORBIDDEN"
	case apperr.KindNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case apperr.KindConflict:
		return http.StatusConflict, "CONFLICT"
	case apperr.KindValidation:
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests, "RATE_LIMITED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// respondError writes the JSON error body for a service error. Internal
// causes are logged, never returned to the client.
func (h *Handler) respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal(err)
	}

	status, code := errorStatus(appErr.Kind)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}

	c.JSON(status, models.ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: appErr.Message,
	})
}

func (h *Handler) abortWithError(c *gin.Context, err error) {
	h.respondError(c, err)
	c.Abort()
}
