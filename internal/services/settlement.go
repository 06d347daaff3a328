package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"table-settlement/internal/models"
	"table-settlement/internal/storage"
)

const (
	TriggerStaff         = "staff"
	TriggerBankWebhook   = "bank_webhook"
	TriggerStripeWebhook = "stripe_webhook"
)

type settled struct {
	payment *models.Payment
	tableID string
	orders  []string
}

// checkBilled rejects a payment whose subtotal no longer matches what the
// orders it covers would bill now. The caller must hold the session or order
// lock so the total cannot move before the orders are marked paid.
func checkBilled(p *models.Payment, billed decimal.Decimal) error {
	if billed.Equal(p.SubTotal) {
		return nil
	}
	return &Error{
		Kind:    KindConflict,
		Message: fmt.Sprintf("payment covers %s but orders now total %s, create the payment again", p.SubTotal.StringFixed(2), billed.StringFixed(2)),
		Err:     ErrPaymentStale,
	}
}

// Settle is the one settlement path shared by staff and webhooks. Locks are
// taken Payment, Session, Table, Orders, Items; the payment status is read
// only under its lock, so a second caller always sees SUCCESS.
func (s *PaymentService) Settle(ctx context.Context, paymentID, trigger string) (*models.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "settlement.settle", trace.WithAttributes(
		attribute.String("payment.id", paymentID),
		attribute.String("settlement.trigger", trigger),
	))
	defer span.End()

	s.log.LogPayment("SETTLE", paymentID, fmt.Sprintf("Settlement requested by %s", trigger))

	var result settled
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		p, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return lookupErr(err, ErrPaymentNotFound)
		}
		switch p.Status {
		case models.StatusSuccess:
			return conflict(ErrPaymentAlreadyProcessed)
		case models.StatusRefunded:
			return conflict(ErrPaymentRefunded)
		}

		now := s.now()
		p.Status = models.StatusSuccess
		p.PaymentTime = &now
		p.UpdatedAt = now

		served := []models.ItemStatus{models.ItemCancelled}
		switch {
		case p.SessionID != nil:
			session, err := tx.LockSession(ctx, *p.SessionID)
			if err != nil {
				return lookupErr(err, ErrSessionNotFound)
			}
			if session.Status == models.SessionClosed {
				return conflict(ErrSessionClosed)
			}
			table, err := tx.LockTable(ctx, session.TableID)
			if err != nil {
				return lookupErr(err, ErrTableNotFound)
			}
			billed, err := sessionSubTotal(ctx, tx, session.ID)
			if err != nil {
				return err
			}
			if err := checkBilled(p, billed); err != nil {
				return err
			}

			orderIDs, err := tx.MarkSessionOrdersPaid(ctx, session.ID, now)
			if err != nil {
				return err
			}
			if _, err := tx.CascadeItemStatus(ctx, orderIDs, models.ItemServed, served, now); err != nil {
				return err
			}
			if err := tx.CloseSessions(ctx, []string{session.ID}, now, ""); err != nil {
				return err
			}
			if _, err := releaseTable(ctx, tx, table, now, s.window); err != nil {
				return err
			}
			result.tableID = table.ID
			result.orders = orderIDs

		case p.OrderID != nil:
			order, err := tx.LockOrder(ctx, *p.OrderID)
			if err != nil {
				return lookupErr(err, ErrOrderNotFound)
			}
			if order.Status == models.OrderCancelled {
				return conflict(ErrOrderClosed)
			}
			items, err := tx.ListItemsByOrder(ctx, order.ID)
			if err != nil {
				return err
			}
			if err := checkBilled(p, models.BillableTotal(order, items)); err != nil {
				return err
			}
			if err := tx.UpdateOrderStatus(ctx, order.ID, models.OrderPaid, now); err != nil {
				return err
			}
			if _, err := tx.CascadeItemStatus(ctx, []string{order.ID}, models.ItemServed, served, now); err != nil {
				return err
			}
			result.orders = []string{order.ID}

		default:
			return fmt.Errorf("payment %s has no settlement target", p.ID)
		}

		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		result.payment = p
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.LogPayment("SETTLE_FAILED", paymentID, err.Error())
		return nil, err
	}

	p := result.payment
	span.SetAttributes(attribute.Int("settlement.orders", len(result.orders)))
	s.log.LogPayment("SETTLED", p.ID, fmt.Sprintf("Payment SUCCESS via %s, %d order(s) paid", trigger, len(result.orders)))

	s.emit(models.Event{
		Type:      models.EventPaymentSuccess,
		PaymentID: p.ID,
		SessionID: deref(p.SessionID),
		OrderID:   deref(p.OrderID),
		TableID:   result.tableID,
		Payload: map[string]string{
			"trigger":       trigger,
			"totalAmount":   p.TotalAmount.StringFixed(2),
			"transactionId": p.TransactionID,
			"paymentMethod": string(p.PaymentMethod),
		},
	})
	if p.SessionID != nil {
		s.emit(models.Event{Type: models.EventSessionClosed, SessionID: *p.SessionID, TableID: result.tableID})
	}
	return p, nil
}
