package models

import "time"

const (
	EventPaymentSuccess       = "payment.success"
	EventPaymentRefunded      = "payment.refunded"
	EventOrderCreated         = "order.created"
	EventOrderReady           = "order.ready"
	EventOrderCancelled       = "order.cancelled"
	EventSessionOpened        = "session.opened"
	EventSessionClosed        = "session.closed"
	EventReservationConfirmed = "reservation.confirmed"
	EventReservationNoShow    = "reservation.no_show"
)

// Event is the value handed to notification dispatch after a commit.
type Event struct {
	Type          string            `json:"type"`
	PaymentID     string            `json:"paymentId,omitempty"`
	SessionID     string            `json:"sessionId,omitempty"`
	OrderID       string            `json:"orderId,omitempty"`
	TableID       string            `json:"tableId,omitempty"`
	ReservationID string            `json:"reservationId,omitempty"`
	Payload       map[string]string `json:"payload,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// Key is the partition/routing key used by the event transports.
func (e *Event) Key() string {
	switch {
	case e.TableID != "":
		return e.TableID
	case e.SessionID != "":
		return e.SessionID
	case e.OrderID != "":
		return e.OrderID
	case e.PaymentID != "":
		return e.PaymentID
	}
	return e.ReservationID
}
