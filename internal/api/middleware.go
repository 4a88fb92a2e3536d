package api

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vaultpay/vaultpay-server/internal/metrics"
	"github.com/vaultpay/vaultpay-server/internal/models"
	"github.com/vaultpay/vaultpay-server/internal/security"
)

// Context keys set by the middlewares
const (
	ContextUserID     = "userId"
	ContextScopes     = "scopes"
	ContextMerchantID = "merchantId"
)

// AuthMiddleware returns a Gin middleware enforcing a bearer credential with
// the required scopes. On success the user ID and granted scopes are placed
// in the request context.
func (h *Handler) AuthMiddleware(requiredScopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Authentication required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "Invalid token format")
			return
		}

		userID, scopes, err := h.tokens.Verify(parts[1])
		if err != nil {
			metrics.AuthFailuresTotal.WithLabelValues("bearer").Inc()
			abortUnauthorized(c, "Invalid token")
			return
		}

		// The credential subject must still exist and be active
		user, err := h.repo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Status:  "error",
				Code:    "INTERNAL_ERROR",
				Message: "internal error",
			})
			c.Abort()
			return
		}
		if user == nil || user.Status != models.StatusActive {
			metrics.AuthFailuresTotal.WithLabelValues("bearer").Inc()
			abortUnauthorized(c, "Invalid token")
			return
		}

		if err := security.RequireScopes(scopes, requiredScopes); err != nil {
			c.JSON(http.StatusForbidden, models.ErrorResponse{
				Status:  "error",
				Code:    "FORBIDDEN",
				Message: err.Error(),
			})
			c.Abort()
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextScopes, scopes)
		c.Next()
	}
}

// MerchantAuthMiddleware returns a Gin middleware running the full signed
// request chain: rate limit, timestamp freshness, key lookup, nonce single
// use and signature verification over the raw body bytes as received. On
// success the merchant ID is placed in the request context.
func (h *Handler) MerchantAuthMiddleware(requiredScopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawBody, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abortUnauthorized(c, "Authentication required")
			return
		}
		// Restore the body so the handler can still bind it
		c.Request.Body = io.NopCloser(bytes.NewReader(rawBody))

		merchantID, err := h.svc.AuthenticateMerchant(
			c.Request.Context(),
			c.GetHeader("X-Key-Id"),
			c.GetHeader("X-Timestamp"),
			c.GetHeader("X-Nonce"),
			c.GetHeader("X-Signature"),
			c.Request.Method,
			c.Request.URL.Path,
			rawBody,
			requiredScopes,
		)
		if err != nil {
			h.abortWithError(c, err)
			return
		}

		c.Set(ContextMerchantID, merchantID)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Status:  "error",
		Code:    "UNAUTHORIZED",
		Message: message,
	})
	c.Abort()
}
