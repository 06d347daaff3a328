package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"table-settlement/internal/config"
	"table-settlement/internal/logger"
	"table-settlement/internal/models"
	"table-settlement/internal/storage"
	"table-settlement/internal/utils"
)

// CardGateway creates and reverses card charges for CARD payments.
type CardGateway interface {
	CreateIntent(ctx context.Context, payment *models.Payment) (string, error)
	Refund(ctx context.Context, intentID string) error
}

type PaymentService struct {
	base
	taxRate decimal.Decimal
	prefix  string
	window  time.Duration
	card    CardGateway
	tracer  trace.Tracer

	newTransactionID func() string
}

func NewPaymentService(store storage.Store, notifier Notifier, log *logger.Logger, cfg config.SettlementConfig, window time.Duration) *PaymentService {
	s := &PaymentService{
		base:    newBase(store, notifier, log),
		taxRate: cfg.TaxRate,
		prefix:  cfg.TransactionPrefix,
		window:  window,
		tracer:  otel.Tracer("table-settlement/services"),
	}
	s.newTransactionID = func() string { return utils.GenerateTransactionID(s.prefix) }
	return s
}

// SetCardGateway enables card intents for CARD payments.
func (s *PaymentService) SetCardGateway(card CardGateway) {
	s.card = card
}

type amounts struct {
	subTotal decimal.Decimal
	tax      decimal.Decimal
	total    decimal.Decimal
}

func (s *PaymentService) computeAmounts(subTotal, discount decimal.Decimal) (amounts, error) {
	tax := subTotal.Mul(s.taxRate).Round(2)
	gross := subTotal.Add(tax)
	if discount.GreaterThan(gross) {
		return amounts{}, validationf("discount %s exceeds amount due %s", discount.StringFixed(2), gross.StringFixed(2))
	}
	return amounts{subTotal: subTotal, tax: tax, total: gross.Sub(discount)}, nil
}

func sessionSubTotal(ctx context.Context, q storage.Queries, sessionID string) (decimal.Decimal, error) {
	orders, err := q.ListOrdersBySession(ctx, sessionID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, order := range orders {
		if order.Status == models.OrderCancelled {
			continue
		}
		items, err := q.ListItemsByOrder(ctx, order.ID)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(models.BillableTotal(order, items))
	}
	return total, nil
}

// CreatePayment prepares the single payment of a session or a takeaway order.
// A pending, processing or failed payment is recomputed and returned again
// with its transaction id unchanged.
func (s *PaymentService) CreatePayment(ctx context.Context, req *models.CreatePaymentRequest) (*models.Payment, error) {
	if (req.SessionID == "") == (req.OrderID == "") {
		return nil, validationf("exactly one of sessionId or orderId is required")
	}
	if !req.PaymentMethod.Valid() {
		return nil, validationf("unknown payment method %q", req.PaymentMethod)
	}
	if req.Discount.IsNegative() {
		return nil, validationf("discount cannot be negative")
	}

	target := req.SessionID
	if target == "" {
		target = req.OrderID
	}
	s.log.LogPayment("INIT", "new", fmt.Sprintf("Creating %s payment for %s", req.PaymentMethod, target))

	var (
		payment *models.Payment
		err     error
	)
	for attempt := 0; attempt < 2; attempt++ {
		payment, err = s.createOrRefresh(ctx, req)
		if !errors.Is(err, storage.ErrDuplicate) {
			break
		}
		s.log.Warn("PAYMENT", fmt.Sprintf("Concurrent payment creation for %s, retrying", target))
	}
	if err != nil {
		s.log.LogPayment("CREATE_FAILED", target, err.Error())
		return nil, err
	}

	if payment.PaymentMethod == models.MethodCard && s.card != nil {
		if payment, err = s.attachIntent(ctx, payment); err != nil {
			return nil, err
		}
	}

	s.log.LogPayment("CREATED", payment.ID, fmt.Sprintf("Total %s (sub %s, tax %s, discount %s), transaction %s",
		payment.TotalAmount.StringFixed(2), payment.SubTotal.StringFixed(2), payment.Tax.StringFixed(2),
		payment.Discount.StringFixed(2), payment.TransactionID))
	return payment, nil
}

func (s *PaymentService) createOrRefresh(ctx context.Context, req *models.CreatePaymentRequest) (*models.Payment, error) {
	var payment *models.Payment
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var (
			existing *models.Payment
			err      error
		)
		if req.SessionID != "" {
			existing, err = tx.GetPaymentBySession(ctx, req.SessionID)
		} else {
			existing, err = tx.GetPaymentByOrder(ctx, req.OrderID)
		}
		switch {
		case errors.Is(err, storage.ErrNotFound):
			existing = nil
		case err != nil:
			return err
		}

		// payment row first, then its session or order
		if existing != nil {
			if existing, err = tx.LockPayment(ctx, existing.ID); err != nil {
				return fmt.Errorf("failed to lock payment: %w", err)
			}
			switch existing.Status {
			case models.StatusSuccess:
				return conflict(ErrPaymentAlreadyProcessed)
			case models.StatusRefunded:
				return conflict(ErrPaymentRefunded)
			}
		}

		var subTotal decimal.Decimal
		if req.SessionID != "" {
			session, err := tx.LockSession(ctx, req.SessionID)
			if err != nil {
				return lookupErr(err, ErrSessionNotFound)
			}
			if session.Status == models.SessionClosed {
				return conflict(ErrSessionClosed)
			}
			if subTotal, err = sessionSubTotal(ctx, tx, session.ID); err != nil {
				return err
			}
		} else {
			order, err := tx.LockOrder(ctx, req.OrderID)
			if err != nil {
				return lookupErr(err, ErrOrderNotFound)
			}
			if order.SessionID != nil {
				return validationf("order %s belongs to a session; pay the session instead", order.ID)
			}
			if order.Status.Terminal() {
				return conflict(ErrOrderClosed)
			}
			items, err := tx.ListItemsByOrder(ctx, order.ID)
			if err != nil {
				return err
			}
			subTotal = models.BillableTotal(order, items)
		}
		if !subTotal.IsPositive() {
			return newError(KindValidation, ErrNothingToPay)
		}

		amt, err := s.computeAmounts(subTotal, req.Discount)
		if err != nil {
			return err
		}

		now := s.now()
		if existing != nil {
			existing.SubTotal = amt.subTotal
			existing.Tax = amt.tax
			existing.Discount = req.Discount
			existing.TotalAmount = amt.total
			existing.PaymentMethod = req.PaymentMethod
			existing.Status = models.StatusPending
			existing.UpdatedAt = now
			if err := tx.UpdatePayment(ctx, existing); err != nil {
				return err
			}
			payment = existing
			return nil
		}

		payment = &models.Payment{
			ID:            utils.GenerateID(),
			TotalAmount:   amt.total,
			SubTotal:      amt.subTotal,
			Tax:           amt.tax,
			Discount:      req.Discount,
			PaymentMethod: req.PaymentMethod,
			Status:        models.StatusPending,
			TransactionID: s.newTransactionID(),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if req.SessionID != "" {
			payment.SessionID = strPtr(req.SessionID)
		} else {
			payment.OrderID = strPtr(req.OrderID)
		}
		return tx.InsertPayment(ctx, payment)
	})
	return payment, err
}

func (s *PaymentService) attachIntent(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	ref, err := s.card.CreateIntent(ctx, payment)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create intent for payment %s: %v", payment.ID, err))
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		locked, err := tx.LockPayment(ctx, payment.ID)
		if err != nil {
			return lookupErr(err, ErrPaymentNotFound)
		}
		if locked.Status != models.StatusPending {
			payment = locked
			return nil
		}
		locked.GatewayRef = ref
		locked.UpdatedAt = s.now()
		if err := tx.UpdatePayment(ctx, locked); err != nil {
			return err
		}
		payment = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.LogPayment("STRIPE", payment.ID, fmt.Sprintf("Payment intent %s attached", ref))
	return payment, nil
}

// ProcessPayment settles a payment on behalf of staff.
func (s *PaymentService) ProcessPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.Settle(ctx, paymentID, TriggerStaff)
}

// RefundPayment reverses a successful payment once. Sessions and orders keep
// their settled state.
func (s *PaymentService) RefundPayment(ctx context.Context, paymentID, reason string) (*models.Payment, error) {
	s.log.LogPayment("REFUND_INIT", paymentID, fmt.Sprintf("Initiating refund, reason: %s", reason))

	var payment *models.Payment
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		p, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return lookupErr(err, ErrPaymentNotFound)
		}
		switch p.Status {
		case models.StatusSuccess:
		case models.StatusRefunded:
			return conflict(ErrPaymentRefunded)
		default:
			return conflict(ErrPaymentNotRefundable)
		}

		if p.PaymentMethod == models.MethodCard && p.GatewayRef != "" && s.card != nil {
			if err := s.card.Refund(ctx, p.GatewayRef); err != nil {
				return fmt.Errorf("card refund failed: %w", err)
			}
		}

		p.Status = models.StatusRefunded
		p.RefundReason = reason
		p.UpdatedAt = s.now()
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		s.log.LogPayment("REFUND_FAILED", paymentID, err.Error())
		return nil, err
	}

	s.log.LogPayment("REFUND_SUCCESS", paymentID, "Refund completed successfully")
	s.emit(models.Event{
		Type:      models.EventPaymentRefunded,
		PaymentID: payment.ID,
		SessionID: deref(payment.SessionID),
		OrderID:   deref(payment.OrderID),
		Payload: map[string]string{
			"totalAmount": payment.TotalAmount.StringFixed(2),
			"reason":      reason,
		},
	})
	return payment, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	var payment *models.Payment
	err := s.store.View(ctx, func(q storage.Queries) error {
		var err error
		if payment, err = q.GetPayment(ctx, paymentID); err != nil {
			return lookupErr(err, ErrPaymentNotFound)
		}
		return nil
	})
	return payment, err
}

func (s *PaymentService) GetPaymentBySession(ctx context.Context, sessionID string) (*models.Payment, error) {
	var payment *models.Payment
	err := s.store.View(ctx, func(q storage.Queries) error {
		var err error
		if payment, err = q.GetPaymentBySession(ctx, sessionID); err != nil {
			return lookupErr(err, ErrPaymentNotFound)
		}
		return nil
	})
	return payment, err
}
