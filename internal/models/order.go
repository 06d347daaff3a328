package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderType string

const (
	OrderDineIn   OrderType = "DINE_IN"
	OrderTakeAway OrderType = "TAKE_AWAY"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderPreparing OrderStatus = "PREPARING"
	OrderReady     OrderStatus = "READY"
	OrderServed    OrderStatus = "SERVED"
	OrderPaid      OrderStatus = "PAID"
	OrderCancelled OrderStatus = "CANCELLED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderConfirmed, OrderCancelled},
	OrderConfirmed: {OrderPreparing, OrderCancelled},
	OrderPreparing: {OrderReady, OrderCancelled},
	OrderReady:     {OrderServed, OrderCancelled},
	OrderServed:    {OrderPaid},
}

// CanTransitionTo reports whether the order state machine allows s -> next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderPaid || s == OrderCancelled
}

// ItemCascade returns the item status an order status pushes down to its
// items. PAID and the early states do not cascade.
func (s OrderStatus) ItemCascade() (ItemStatus, bool) {
	switch s {
	case OrderPreparing:
		return ItemCooking, true
	case OrderReady:
		return ItemReady, true
	case OrderServed:
		return ItemServed, true
	case OrderCancelled:
		return ItemCancelled, true
	}
	return "", false
}

type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemCooking   ItemStatus = "COOKING"
	ItemReady     ItemStatus = "READY"
	ItemServed    ItemStatus = "SERVED"
	ItemCancelled ItemStatus = "CANCELLED"
)

var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemPending: {ItemCooking, ItemCancelled},
	ItemCooking: {ItemReady, ItemCancelled},
	ItemReady:   {ItemServed, ItemCancelled},
}

func (s ItemStatus) CanTransitionTo(next ItemStatus) bool {
	for _, allowed := range itemTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Settled reports whether the item no longer blocks closing its session.
func (s ItemStatus) Settled() bool {
	return s == ItemServed || s == ItemCancelled
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID            string      `json:"id" bun:"id,pk"`
	SessionID     *string     `json:"sessionId,omitempty" bun:"session_id,nullzero"`
	OrderType     OrderType   `json:"orderType" bun:"order_type"`
	Status        OrderStatus `json:"status" bun:"status"`
	CustomerName  string      `json:"customerName,omitempty" bun:"customer_name"`
	CustomerPhone string      `json:"customerPhone,omitempty" bun:"customer_phone"`
	Notes         string      `json:"notes,omitempty" bun:"notes"`
	CreatedAt     time.Time   `json:"createdAt" bun:"created_at"`
	UpdatedAt     time.Time   `json:"updatedAt" bun:"updated_at"`
}

type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID           string          `json:"id" bun:"id,pk"`
	OrderID      string          `json:"orderId" bun:"order_id"`
	MenuItemID   string          `json:"menuItemId" bun:"menu_item_id"`
	Name         string          `json:"name" bun:"name"`
	Quantity     int             `json:"quantity" bun:"quantity"`
	PriceAtOrder decimal.Decimal `json:"priceAtOrder" bun:"price_at_order,type:decimal(12,2)"`
	Status       ItemStatus      `json:"status" bun:"status"`
	Notes        string          `json:"notes,omitempty" bun:"notes"`
	CreatedAt    time.Time       `json:"createdAt" bun:"created_at"`
	UpdatedAt    time.Time       `json:"updatedAt" bun:"updated_at"`
}

// LineTotal is priceAtOrder x quantity.
func (i *OrderItem) LineTotal() decimal.Decimal {
	return i.PriceAtOrder.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderDetail struct {
	*Order
	Items []*OrderItem    `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// BillableTotal sums non-cancelled items of a non-cancelled order.
func BillableTotal(order *Order, items []*OrderItem) decimal.Decimal {
	total := decimal.Zero
	if order.Status == OrderCancelled {
		return total
	}
	for _, item := range items {
		if item.Status == ItemCancelled {
			continue
		}
		total = total.Add(item.LineTotal())
	}
	return total
}
