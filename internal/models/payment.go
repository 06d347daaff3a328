package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	StatusPending    PaymentStatus = "PENDING"
	StatusProcessing PaymentStatus = "PROCESSING"
	StatusSuccess    PaymentStatus = "SUCCESS"
	StatusFailed     PaymentStatus = "FAILED"
	StatusRefunded   PaymentStatus = "REFUNDED"
)

type PaymentMethod string

const (
	MethodCash    PaymentMethod = "CASH"
	MethodBanking PaymentMethod = "BANKING"
	MethodCard    PaymentMethod = "CARD"
)

func (m PaymentMethod) Valid() bool {
	return m == MethodCash || m == MethodBanking || m == MethodCard
}

// Payment links to exactly one of a session or a standalone order.
type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	ID            string          `json:"id" bun:"id,pk"`
	SessionID     *string         `json:"sessionId,omitempty" bun:"session_id,nullzero,unique"`
	OrderID       *string         `json:"orderId,omitempty" bun:"order_id,nullzero,unique"`
	TotalAmount   decimal.Decimal `json:"totalAmount" bun:"total_amount,type:decimal(12,2)"`
	SubTotal      decimal.Decimal `json:"subTotal" bun:"sub_total,type:decimal(12,2)"`
	Tax           decimal.Decimal `json:"tax" bun:"tax,type:decimal(12,2)"`
	Discount      decimal.Decimal `json:"discount" bun:"discount,type:decimal(12,2)"`
	PaymentMethod PaymentMethod   `json:"paymentMethod" bun:"payment_method"`
	Status        PaymentStatus   `json:"status" bun:"status"`
	TransactionID string          `json:"transactionId,omitempty" bun:"transaction_id,unique"`
	GatewayRef    string          `json:"gatewayRef,omitempty" bun:"gateway_ref"`
	PaymentTime   *time.Time      `json:"paymentTime,omitempty" bun:"payment_time,nullzero"`
	RefundReason  string          `json:"refundReason,omitempty" bun:"refund_reason"`
	CreatedAt     time.Time       `json:"createdAt" bun:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" bun:"updated_at"`
}

type CreatePaymentRequest struct {
	SessionID     string          `json:"sessionId"`
	OrderID       string          `json:"orderId"`
	PaymentMethod PaymentMethod   `json:"paymentMethod" binding:"required"`
	Discount      decimal.Decimal `json:"discount"`
}

type RefundRequest struct {
	Reason string `json:"reason"`
}
