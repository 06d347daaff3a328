package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"table-settlement/internal/config"
	"table-settlement/internal/logger"
	"table-settlement/internal/models"
)

var (
	ErrStripeAPIError         = errors.New("stripe API error")
	ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")
)

// StripeService creates PaymentIntents for CARD payments and refunds them.
type StripeService struct {
	client   *client.API
	currency string
	exponent int32
	log      *logger.Logger
}

func NewStripeService(cfg config.StripeConfig, log *logger.Logger) (*StripeService, error) {
	if cfg.SecretKey == "" {
		log.Warn("STRIPE", "STRIPE_SECRET_KEY not set, card intents disabled")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(cfg.SecretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeService{
		client:   sc,
		currency: cfg.Currency,
		exponent: cfg.MinorUnitExponent,
		log:      log,
	}, nil
}

// MinorUnits converts an amount to the currency's smallest unit.
func MinorUnits(amount decimal.Decimal, exponent int32) int64 {
	return amount.Shift(exponent).Round(0).IntPart()
}

func (s *StripeService) CreateIntent(ctx context.Context, payment *models.Payment) (string, error) {
	amount := MinorUnits(payment.TotalAmount, s.exponent)
	s.log.LogPayment("STRIPE", payment.ID, fmt.Sprintf("Creating payment intent for %d %s", amount, s.currency))

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(s.currency),
		Description:        stripe.String("Table settlement " + payment.TransactionID),
		PaymentMethodTypes: []*string{stripe.String("card")},
		Metadata: map[string]string{
			"payment_id":     payment.ID,
			"transaction_id": payment.TransactionID,
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(fmt.Sprintf("%s-%d", payment.ID, amount))

	pi, err := s.client.PaymentIntents.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent: %v", err))
		return "", fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}

	s.log.LogPayment("STRIPE", payment.ID, fmt.Sprintf("Payment intent created: %s", pi.ID))
	return pi.ID, nil
}

func (s *StripeService) Refund(ctx context.Context, intentID string) error {
	s.log.LogPayment("REFUND", intentID, "Refunding payment intent")

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx

	refund, err := s.client.Refunds.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Refund failed: %v", err))
		return fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}

	s.log.LogPayment("REFUND", intentID, fmt.Sprintf("Refund successful, refund ID: %s", refund.ID))
	return nil
}
