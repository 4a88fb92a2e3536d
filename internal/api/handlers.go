package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vaultpay/vaultpay-server/internal/apperr"
	"github.com/vaultpay/vaultpay-server/internal/models"
)

// Register handles POST /api/auth/register
func (h *Handler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body"))
		return
	}

	resp, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Login handles POST /api/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body"))
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreateAccount handles POST /api/accounts
func (h *Handler) CreateAccount(c *gin.Context) {
	var req models.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body"))
		return
	}

	userID := c.GetString(ContextUserID)
	resp, err := h.svc.CreateAccount(c.Request.Context(), userID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetBalance handles GET /api/accounts/:id/balance
func (h *Handler) GetBalance(c *gin.Context) {
	userID := c.GetString(ContextUserID)
	accountID := c.Param("id")

	resp, err := h.svc.GetBalance(c.Request.Context(), userID, accountID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreateTransfer handles POST /api/transfers. The idempotency key arrives
// out-of-band in the Idempotency-Key header; a replayed key returns the
// stored result with 200 instead of 201.
func (h *Handler) CreateTransfer(c *gin.Context) {
	idempotencyKey := c.GetHeader("Idempotency-Key")
	if idempotencyKey == "" {
		h.respondError(c, apperr.Validation("missing Idempotency-Key header"))
		return
	}

	var req models.CreateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body"))
		return
	}

	userID := c.GetString(ContextUserID)
	resp, err := h.svc.CreateTransfer(c.Request.Context(), userID, idempotencyKey, req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// MerchantPayment handles POST /api/merchant/payments. The signed request
// chain has already run in the middleware; this acknowledges the
// authenticated merchant.
func (h *Handler) MerchantPayment(c *gin.Context) {
	var req models.MerchantPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body"))
		return
	}

	c.JSON(http.StatusOK, models.MerchantPaymentResponse{
		Status:     "success",
		MerchantID: c.GetString(ContextMerchantID),
		Reference:  req.Reference,
	})
}
