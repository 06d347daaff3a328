package services

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"table-settlement/internal/models"
)

// bankingPayment opens a session on table five, orders lunch and prepares a
// BANKING payment with transaction id TX1234567890 and total 110,000.
func bankingPayment(t *testing.T, f *fixture) *models.Payment {
	t.Helper()
	f.payments.newTransactionID = func() string { return "TX1234567890" }

	opened := f.openSession(t, tableFive, 4)
	f.orderLunch(t, opened.ID)
	payment, err := f.payments.CreatePayment(f.ctx, &models.CreatePaymentRequest{SessionID: opened.ID, PaymentMethod: models.MethodBanking})
	require.NoError(t, err)
	require.Equal(t, "TX1234567890", payment.TransactionID)
	return payment
}

func transfer(id int64, amount int64, content string) *models.BankTransferNotification {
	return &models.BankTransferNotification{
		ID:             id,
		Gateway:        "Vietcombank",
		TransferType:   models.TransferIn,
		TransferAmount: amount,
		Content:        content,
	}
}

func TestBankWebhookSettlesOnce(t *testing.T) {
	f := newFixture(t)
	payment := bankingPayment(t, f)

	result, err := f.webhooks.HandleBankTransfer(f.ctx, transfer(1001, 110000, "Thanh toan TX1234567890 ban 5"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, msgSettled, result.Message)
	assert.Equal(t, payment.ID, result.PaymentID)

	// replayed delivery
	result, err = f.webhooks.HandleBankTransfer(f.ctx, transfer(1001, 110000, "Thanh toan TX1234567890 ban 5"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, msgAlreadyProcessed, result.Message)

	// same money, new delivery id
	result, err = f.webhooks.HandleBankTransfer(f.ctx, transfer(1002, 110000, "TX1234567890"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, msgAlreadyProcessed, result.Message)

	success := f.notifier.ofType(models.EventPaymentSuccess)
	require.Len(t, success, 1)
	assert.Equal(t, TriggerBankWebhook, success[0].Payload["trigger"])
	assert.Equal(t, models.TableAvailable, f.table(t, tableFive).Status)
}

func TestBankWebhookAfterStaffProcessing(t *testing.T) {
	f := newFixture(t)
	payment := bankingPayment(t, f)

	_, err := f.payments.ProcessPayment(f.ctx, payment.ID)
	require.NoError(t, err)

	result, err := f.webhooks.HandleBankTransfer(f.ctx, transfer(2001, 110000, "TX1234567890"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, msgAlreadyProcessed, result.Message)
	assert.Len(t, f.notifier.ofType(models.EventPaymentSuccess), 1)
}

func TestBankWebhookRejections(t *testing.T) {
	f := newFixture(t)
	payment := bankingPayment(t, f)

	cases := []struct {
		name    string
		n       *models.BankTransferNotification
		success bool
		message string
	}{
		{
			name:    "outgoing transfer",
			n:       &models.BankTransferNotification{ID: 1, TransferType: models.TransferOut, TransferAmount: 110000, Content: "TX1234567890"},
			success: true,
			message: msgIgnoredOutgoing,
		},
		{
			name:    "no transaction id",
			n:       transfer(2, 110000, "lunch for table five"),
			message: msgNoTransactionID,
		},
		{
			name:    "unknown transaction id",
			n:       transfer(3, 110000, "TXZZZZZZZZZZ"),
			message: msgPaymentNotFound,
		},
		{
			name:    "amount mismatch",
			n:       transfer(4, 100000, "TX1234567890"),
			message: msgAmountMismatch,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := f.webhooks.HandleBankTransfer(f.ctx, tc.n)
			require.NoError(t, err)
			assert.Equal(t, tc.success, result.Success)
			assert.Equal(t, tc.message, result.Message)
		})
	}

	current, err := f.payments.GetPayment(f.ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, current.Status)
	assert.Empty(t, f.notifier.ofType(models.EventPaymentSuccess))
}

func TestBankWebhookRejectsStalePayment(t *testing.T) {
	f := newFixture(t)
	payment := bankingPayment(t, f)

	_, err := f.orders.CreateOrder(f.ctx, &models.CreateOrderRequest{
		SessionID: *payment.SessionID,
		Items:     []models.OrderItemInput{{MenuItemID: menuPho, Quantity: 3}},
	})
	require.NoError(t, err)

	result, err := f.webhooks.HandleBankTransfer(f.ctx, transfer(5001, 110000, "TX1234567890"))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, ErrPaymentStale.Error())

	current, err := f.payments.GetPayment(f.ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, current.Status)
	assert.Empty(t, f.notifier.ofType(models.EventPaymentSuccess))
	assert.False(t, f.guard.seen["5001"])
}

func TestBankWebhookMatchesLowercaseAndDescription(t *testing.T) {
	f := newFixture(t)
	bankingPayment(t, f)

	n := transfer(3001, 110000, "chuyen khoan")
	n.Description = "MBVCB.123 tx1234567890 ban 5"

	result, err := f.webhooks.HandleBankTransfer(f.ctx, n)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, msgSettled, result.Message)
}

func TestBankWebhookGuardFailureFallsThrough(t *testing.T) {
	f := newFixture(t)
	bankingPayment(t, f)
	f.guard.err = errors.New("redis: connection refused")

	result, err := f.webhooks.HandleBankTransfer(f.ctx, transfer(4001, 110000, "TX1234567890"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, msgSettled, result.Message)
}

func TestExtractTransactionID(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "TX1234567890", f.webhooks.ExtractTransactionID("pay TX1234567890 now"))
	assert.Equal(t, "TXABCDEFGHJK", f.webhooks.ExtractTransactionID("", "ref txabcdefghjk"))
	assert.Empty(t, f.webhooks.ExtractTransactionID("TX12345", "nothing here"))
}

func stripeEvent(t *testing.T, eventType string, paymentID string, amount int64) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_test_1",
		"object":      "event",
		"type":        eventType,
		"api_version": "2025-03-31.basil",
		"created":     time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":              "pi_test_1",
				"object":          "payment_intent",
				"amount":          amount,
				"amount_received": amount,
				"currency":        "vnd",
				"status":          "succeeded",
				"metadata":        map[string]string{"payment_id": paymentID},
			},
		},
	})
	require.NoError(t, err)
	return payload
}

func signed(payload []byte, secret string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret}).Header
}

func TestStripeWebhookSettles(t *testing.T) {
	f := newFixture(t)
	f.webhooks.EnableStripe("whsec_test", 0)

	opened := f.openSession(t, tableFive, 2)
	f.orderLunch(t, opened.ID)
	payment, err := f.payments.CreatePayment(f.ctx, &models.CreatePaymentRequest{SessionID: opened.ID, PaymentMethod: models.MethodCard})
	require.NoError(t, err)

	payload := stripeEvent(t, "payment_intent.succeeded", payment.ID, 110000)
	result, err := f.webhooks.HandleStripeEvent(f.ctx, payload, signed(payload, "whsec_test"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, msgSettled, result.Message)

	result, err = f.webhooks.HandleStripeEvent(f.ctx, payload, signed(payload, "whsec_test"))
	require.NoError(t, err)
	assert.Equal(t, msgAlreadyProcessed, result.Message)

	success := f.notifier.ofType(models.EventPaymentSuccess)
	require.Len(t, success, 1)
	assert.Equal(t, TriggerStripeWebhook, success[0].Payload["trigger"])
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	f.webhooks.EnableStripe("whsec_test", 0)

	payload := stripeEvent(t, "payment_intent.succeeded", "pay-1", 1000)
	_, err := f.webhooks.HandleStripeEvent(f.ctx, payload, signed(payload, "whsec_other"))
	assertKind(t, err, KindValidation, ErrInvalidSignature)
}

func TestStripeWebhookAmountMismatchAndOtherEvents(t *testing.T) {
	f := newFixture(t)
	f.webhooks.EnableStripe("whsec_test", 0)

	opened := f.openSession(t, tableFive, 2)
	f.orderLunch(t, opened.ID)
	payment, err := f.payments.CreatePayment(f.ctx, &models.CreatePaymentRequest{SessionID: opened.ID, PaymentMethod: models.MethodCard})
	require.NoError(t, err)

	payload := stripeEvent(t, "payment_intent.succeeded", payment.ID, 5000)
	result, err := f.webhooks.HandleStripeEvent(f.ctx, payload, signed(payload, "whsec_test"))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, msgAmountMismatch, result.Message)

	payload = stripeEvent(t, "payment_intent.created", payment.ID, 110000)
	result, err = f.webhooks.HandleStripeEvent(f.ctx, payload, signed(payload, "whsec_test"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "ignored")

	assert.Empty(t, f.notifier.ofType(models.EventPaymentSuccess))
}
