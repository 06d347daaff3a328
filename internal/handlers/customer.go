package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"table-settlement/internal/middleware"
	"table-settlement/internal/models"
	"table-settlement/internal/services"
	"table-settlement/internal/utils"
)

// CustomerHandler serves the table device. Every route runs behind
// middleware.SessionAuth and is scoped to the authenticated session.
type CustomerHandler struct {
	sessionService *services.SessionService
	orderService   *services.OrderService
}

func NewCustomerHandler(sessionService *services.SessionService, orderService *services.OrderService) *CustomerHandler {
	return &CustomerHandler{
		sessionService: sessionService,
		orderService:   orderService,
	}
}

func (h *CustomerHandler) session(c *gin.Context) (*models.TableSession, bool) {
	session, ok := middleware.CurrentSession(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Missing session", nil)
	}
	return session, ok
}

func (h *CustomerHandler) GetSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	detail, err := h.sessionService.GetSession(c.Request.Context(), session.ID)
	if err != nil {
		respondError(c, "Failed to retrieve session", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Session retrieved", detail)
}

func (h *CustomerHandler) CreateOrder(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	req.SessionID = session.ID
	req.OrderType = models.OrderDineIn

	order, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to create order", err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Order created", order)
}

// AddItems answers 404 for orders of other sessions.
func (h *CustomerHandler) AddItems(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req models.AddItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	current, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to add items", err)
		return
	}
	if current.SessionID == nil || *current.SessionID != session.ID {
		utils.ErrorResponse(c, http.StatusNotFound, "Failed to add items", services.ErrOrderNotFound)
		return
	}

	order, err := h.orderService.AddOrderItems(c.Request.Context(), current.ID, req.Items)
	if err != nil {
		respondError(c, "Failed to add items", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Items added", order)
}
