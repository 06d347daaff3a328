package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"table-settlement/internal/models"
	"table-settlement/internal/services"
	"table-settlement/internal/utils"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
}

func NewPaymentHandler(paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	payment, err := h.paymentService.CreatePayment(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Payment creation failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Payment created", payment)
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.paymentService.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to retrieve payment", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Payment retrieved", payment)
}

// ProcessPayment is the staff confirmation that money was received.
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	payment, err := h.paymentService.ProcessPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Payment processing failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Payment processed", payment)
}

func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	var req models.RefundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	payment, err := h.paymentService.RefundPayment(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, "Refund processing failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Payment refunded", payment)
}
