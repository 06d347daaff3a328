package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"table-settlement/internal/logger"
	"table-settlement/internal/models"
	"table-settlement/internal/services"
	"table-settlement/internal/utils"
)

const maxWebhookBody = 64 << 10

type WebhookHandler struct {
	webhookService *services.WebhookService
	log            *logger.Logger
}

func NewWebhookHandler(webhookService *services.WebhookService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService, log: log}
}

// BankTransfer always answers 200 so the bank does not retry business
// rejections; the outcome is in the body. Infrastructure failures answer 500
// and are retried.
func (h *WebhookHandler) BankTransfer(c *gin.Context) {
	var n models.BankTransferNotification
	if err := c.ShouldBindJSON(&n); err != nil {
		h.log.LogSecurity("WEBHOOK_MALFORMED", "Malformed bank notification from "+c.ClientIP())
		c.JSON(http.StatusOK, models.WebhookResult{Success: false, Message: "malformed notification"})
		return
	}

	result, err := h.webhookService.HandleBankTransfer(c.Request.Context(), &n)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, models.WebhookResult{Success: false, Message: "temporary failure"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *WebhookHandler) Stripe(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Failed to read request body", err)
		return
	}

	result, err := h.webhookService.HandleStripeEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		respondError(c, "Webhook rejected", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
