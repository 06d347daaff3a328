package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"table-settlement/internal/models"
	"table-settlement/internal/services"
	"table-settlement/internal/utils"
)

type OrderHandler struct {
	orderService *services.OrderService
}

func NewOrderHandler(orderService *services.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to create order", err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Order created", order)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to retrieve order", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Order retrieved", order)
}

func (h *OrderHandler) AddItems(c *gin.Context) {
	var req models.AddItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	order, err := h.orderService.AddOrderItems(c.Request.Context(), c.Param("id"), req.Items)
	if err != nil {
		respondError(c, "Failed to add items", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Items added", order)
}

func (h *OrderHandler) UpdateItem(c *gin.Context) {
	var req models.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	item, err := h.orderService.UpdateOrderItem(c.Request.Context(), c.Param("id"), c.Param("itemId"), &req)
	if err != nil {
		respondError(c, "Failed to update item", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Item updated", item)
}

func (h *OrderHandler) DeleteItem(c *gin.Context) {
	if err := h.orderService.DeleteOrderItem(c.Request.Context(), c.Param("id"), c.Param("itemId")); err != nil {
		respondError(c, "Failed to delete item", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Item deleted", nil)
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	order, err := h.orderService.CancelOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to cancel order", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Order cancelled", order)
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req models.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	order, err := h.orderService.UpdateOrderStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, "Failed to update order status", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Order status updated", order)
}

func (h *OrderHandler) UpdateItemStatus(c *gin.Context) {
	var req models.UpdateItemStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	item, err := h.orderService.UpdateItemStatus(c.Request.Context(), c.Param("id"), c.Param("itemId"), req.Status)
	if err != nil {
		respondError(c, "Failed to update item status", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Item status updated", item)
}
