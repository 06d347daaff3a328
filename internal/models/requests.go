package models

type CreateSessionRequest struct {
	TableID       string `json:"tableId" binding:"required"`
	CustomerCount int    `json:"customerCount" binding:"required"`
	Notes         string `json:"notes"`
}

type CloseSessionRequest struct {
	Notes string `json:"notes"`
}

type OrderItemInput struct {
	MenuItemID string `json:"menuItemId" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required"`
	Notes      string `json:"notes"`
}

type CreateOrderRequest struct {
	SessionID     string           `json:"sessionId"`
	OrderType     OrderType        `json:"orderType"`
	CustomerName  string           `json:"customerName"`
	CustomerPhone string           `json:"customerPhone"`
	Notes         string           `json:"notes"`
	Items         []OrderItemInput `json:"items" binding:"required"`
}

type AddItemsRequest struct {
	Items []OrderItemInput `json:"items" binding:"required"`
}

type UpdateItemRequest struct {
	Quantity *int    `json:"quantity"`
	Notes    *string `json:"notes"`
}

type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status" binding:"required"`
}

type UpdateItemStatusRequest struct {
	Status ItemStatus `json:"status" binding:"required"`
}
