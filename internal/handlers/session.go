package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"table-settlement/internal/models"
	"table-settlement/internal/services"
	"table-settlement/internal/utils"
)

type SessionHandler struct {
	sessionService *services.SessionService
	paymentService *services.PaymentService
}

func NewSessionHandler(sessionService *services.SessionService, paymentService *services.PaymentService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		paymentService: paymentService,
	}
}

// CreateSession answers 201 for a new session and 200 when the table's live
// session is returned instead.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req models.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	opened, err := h.sessionService.CreateSession(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to open session", err)
		return
	}

	if opened.Created {
		utils.SuccessResponse(c, http.StatusCreated, "Session opened", opened)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Table already has a live session", opened)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	detail, err := h.sessionService.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to retrieve session", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Session retrieved", detail)
}

func (h *SessionHandler) CloseSession(c *gin.Context) {
	var req models.CloseSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	session, err := h.sessionService.CloseSession(c.Request.Context(), c.Param("id"), req.Notes)
	if err != nil {
		respondError(c, "Failed to close session", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Session closed", session)
}

func (h *SessionHandler) GetSessionPayment(c *gin.Context) {
	payment, err := h.paymentService.GetPaymentBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to retrieve payment", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Payment retrieved", payment)
}
