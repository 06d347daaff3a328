package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"table-settlement/internal/logger"
	"table-settlement/internal/models"
	"table-settlement/internal/storage"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// DeliveryGuard remembers webhook deliveries that already settled a payment.
type DeliveryGuard interface {
	Seen(ctx context.Context, deliveryID string) (bool, error)
	Mark(ctx context.Context, deliveryID string) error
}

const (
	msgIgnoredOutgoing  = "ignored outgoing transfer"
	msgNoTransactionID  = "no transaction id in transfer content"
	msgPaymentNotFound  = "payment not found"
	msgAlreadyProcessed = "already processed"
	msgAmountMismatch   = "amount mismatch"
	msgSettled          = "payment settled"
)

type WebhookService struct {
	payments      *PaymentService
	guard         DeliveryGuard
	log           *logger.Logger
	txPattern     *regexp.Regexp
	stripeSecret  string
	minorExponent int32
}

func NewWebhookService(payments *PaymentService, guard DeliveryGuard, log *logger.Logger, prefix string) *WebhookService {
	return &WebhookService{
		payments:  payments,
		guard:     guard,
		log:       log,
		txPattern: regexp.MustCompile(regexp.QuoteMeta(strings.ToUpper(prefix)) + `[A-Z0-9]{10}`),
	}
}

// EnableStripe turns on verification of Stripe webhook payloads.
func (s *WebhookService) EnableStripe(secret string, minorExponent int32) {
	s.stripeSecret = secret
	s.minorExponent = minorExponent
}

// ExtractTransactionID finds the transaction token in a free-text memo.
func (s *WebhookService) ExtractTransactionID(texts ...string) string {
	for _, text := range texts {
		if match := s.txPattern.FindString(strings.ToUpper(text)); match != "" {
			return match
		}
	}
	return ""
}

func failure(message string) models.WebhookResult {
	return models.WebhookResult{Success: false, Message: message}
}

// HandleBankTransfer reconciles one bank notification. Business rejections
// are returned as results; the error return is reserved for infrastructure
// failures that are safe to retry.
func (s *WebhookService) HandleBankTransfer(ctx context.Context, n *models.BankTransferNotification) (models.WebhookResult, error) {
	deliveryID := strconv.FormatInt(n.ID, 10)
	s.log.LogPayment("WEBHOOK", deliveryID, fmt.Sprintf("Bank transfer %s %d from %s", n.TransferType, n.TransferAmount, n.Gateway))

	if strings.EqualFold(n.TransferType, models.TransferOut) {
		return models.WebhookResult{Success: true, Message: msgIgnoredOutgoing}, nil
	}

	if s.guard != nil && n.ID != 0 {
		seen, err := s.guard.Seen(ctx, deliveryID)
		if err != nil {
			s.log.Warn("REDIS", fmt.Sprintf("Delivery guard unavailable, falling back to database: %v", err))
		} else if seen {
			s.log.LogPayment("WEBHOOK_DUPLICATE", deliveryID, "Delivery already settled")
			return models.WebhookResult{Success: true, Message: msgAlreadyProcessed}, nil
		}
	}

	txnID := s.ExtractTransactionID(n.Content, n.Description)
	if txnID == "" {
		s.log.LogPayment("WEBHOOK_UNMATCHED", deliveryID, "No transaction id in content")
		return failure(msgNoTransactionID), nil
	}

	var payment *models.Payment
	err := s.payments.store.View(ctx, func(q storage.Queries) error {
		var err error
		payment, err = q.GetPaymentByTransactionID(ctx, txnID)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		s.log.LogPayment("WEBHOOK_UNMATCHED", txnID, "Unknown transaction id")
		return failure(msgPaymentNotFound), nil
	}
	if err != nil {
		return models.WebhookResult{}, err
	}

	if payment.Status == models.StatusSuccess {
		return models.WebhookResult{Success: true, Message: msgAlreadyProcessed, PaymentID: payment.ID}, nil
	}

	expected := payment.TotalAmount.Round(0).IntPart()
	if n.TransferAmount != expected {
		s.log.LogPayment("WEBHOOK_MISMATCH", payment.ID, fmt.Sprintf("Received %d, expected %d", n.TransferAmount, expected))
		return models.WebhookResult{Success: false, Message: msgAmountMismatch, PaymentID: payment.ID}, nil
	}

	result, err := s.settle(ctx, payment.ID, TriggerBankWebhook)
	if err != nil {
		return result, err
	}
	if result.Success && s.guard != nil && n.ID != 0 {
		if err := s.guard.Mark(ctx, deliveryID); err != nil {
			s.log.Warn("REDIS", fmt.Sprintf("Failed to mark delivery %s: %v", deliveryID, err))
		}
	}
	return result, nil
}

// settle converges on the shared settlement path and turns business
// rejections into results.
func (s *WebhookService) settle(ctx context.Context, paymentID, trigger string) (models.WebhookResult, error) {
	_, err := s.payments.Settle(ctx, paymentID, trigger)
	switch {
	case err == nil:
		return models.WebhookResult{Success: true, Message: msgSettled, PaymentID: paymentID}, nil
	case errors.Is(err, ErrPaymentAlreadyProcessed):
		return models.WebhookResult{Success: true, Message: msgAlreadyProcessed, PaymentID: paymentID}, nil
	case KindOf(err) != KindInternal:
		return models.WebhookResult{Success: false, Message: err.Error(), PaymentID: paymentID}, nil
	}
	return models.WebhookResult{}, err
}

// HandleStripeEvent verifies a Stripe webhook and settles the payment named
// in a succeeded intent's metadata.
func (s *WebhookService) HandleStripeEvent(ctx context.Context, payload []byte, signature string) (models.WebhookResult, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.stripeSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		s.log.LogSecurity("STRIPE_SIGNATURE", fmt.Sprintf("Rejected webhook: %v", err))
		return models.WebhookResult{}, &Error{Kind: KindValidation, Message: ErrInvalidSignature.Error(), Err: ErrInvalidSignature}
	}

	if event.Type != "payment_intent.succeeded" {
		return models.WebhookResult{Success: true, Message: "ignored event " + string(event.Type)}, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return failure("malformed payment intent"), nil
	}

	paymentID := intent.Metadata["payment_id"]
	if paymentID == "" {
		return failure(msgPaymentNotFound), nil
	}

	payment, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return failure(msgPaymentNotFound), nil
		}
		return models.WebhookResult{}, err
	}
	if payment.Status == models.StatusSuccess {
		return models.WebhookResult{Success: true, Message: msgAlreadyProcessed, PaymentID: payment.ID}, nil
	}

	received := intent.AmountReceived
	if received == 0 {
		received = intent.Amount
	}
	if expected := MinorUnits(payment.TotalAmount, s.minorExponent); received != expected {
		s.log.LogPayment("WEBHOOK_MISMATCH", payment.ID, fmt.Sprintf("Stripe received %d, expected %d", received, expected))
		return models.WebhookResult{Success: false, Message: msgAmountMismatch, PaymentID: payment.ID}, nil
	}

	return s.settle(ctx, payment.ID, TriggerStripeWebhook)
}
