package services

import (
	"errors"
	"fmt"

	"table-settlement/internal/storage"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	}
	return "internal"
}

// Error is a business failure the transport layer can map to a status code.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrTableNotFound     = errors.New("table not found")
	ErrTableOutOfService = errors.New("table is out of service")
	ErrCapacityExceeded  = errors.New("capacity exceeded")

	ErrSessionNotFound        = errors.New("session not found")
	ErrSessionClosed          = errors.New("session already closed")
	ErrSessionUnauthorized    = errors.New("invalid or expired session")
	ErrSessionHasPendingItems = errors.New("session has items that are not served")

	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderItemNotFound   = errors.New("order item not found")
	ErrOrderClosed         = errors.New("order is cancelled or paid")
	ErrOrderServed         = errors.New("order already served")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrItemServed          = errors.New("item already served")
	ErrLastItem            = errors.New("order must keep at least one item")
	ErrMenuItemNotFound    = errors.New("menu item not found")
	ErrMenuItemUnavailable = errors.New("menu item unavailable")

	ErrPaymentNotFound         = errors.New("payment not found")
	ErrPaymentAlreadyProcessed = errors.New("payment already processed")
	ErrPaymentRefunded         = errors.New("payment already refunded")
	ErrPaymentNotRefundable    = errors.New("payment not refundable")
	ErrPaymentStale            = errors.New("orders changed since the payment was created")
	ErrNothingToPay            = errors.New("nothing to pay")

	ErrReservationNotFound = errors.New("reservation not found")
	ErrReservationConflict = errors.New("table already reserved in this window")
	ErrReservationState    = errors.New("reservation cannot change from its current status")
)

func newError(kind Kind, sentinel error) *Error {
	return &Error{Kind: kind, Message: sentinel.Error(), Err: sentinel}
}

func validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func conflict(sentinel error) *Error     { return newError(KindConflict, sentinel) }
func unauthorized(sentinel error) *Error { return newError(KindUnauthorized, sentinel) }

// lookupErr turns storage.ErrNotFound into a NotFound error carrying sentinel
// and wraps anything else as an internal failure.
func lookupErr(err error, sentinel error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return newError(KindNotFound, sentinel)
	}
	return fmt.Errorf("failed to load %s: %w", sentinel.Error(), err)
}

// KindOf classifies err for transport mapping.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, storage.ErrNotFound) {
		return KindNotFound
	}
	return KindInternal
}
