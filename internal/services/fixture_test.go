package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"table-settlement/internal/config"
	"table-settlement/internal/logger"
	"table-settlement/internal/models"
	"table-settlement/internal/storage"
)

type captureNotifier struct {
	mu     sync.Mutex
	events []models.Event
}

func (n *captureNotifier) Emit(event models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *captureNotifier) ofType(eventType string) []models.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.Event
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type memGuard struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newMemGuard() *memGuard { return &memGuard{seen: make(map[string]bool)} }

func (g *memGuard) Seen(ctx context.Context, deliveryID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	return g.seen[deliveryID], nil
}

func (g *memGuard) Mark(ctx context.Context, deliveryID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.seen[deliveryID] = true
	return nil
}

type fakeCard struct {
	intents  int
	refunded []string
}

func (c *fakeCard) CreateIntent(ctx context.Context, payment *models.Payment) (string, error) {
	c.intents++
	return fmt.Sprintf("pi_test_%d", c.intents), nil
}

func (c *fakeCard) Refund(ctx context.Context, intentID string) error {
	c.refunded = append(c.refunded, intentID)
	return nil
}

const (
	tableFive = "table-5"
	tableTwo  = "table-2"
	menuPho   = "menu-pho"
	menuTea   = "menu-tea"
	menuOff   = "menu-off"
)

var baseTime = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type fixture struct {
	ctx      context.Context
	store    *storage.InMemoryStore
	notifier *captureNotifier
	guard    *memGuard

	mu  sync.Mutex
	now time.Time
	seq int

	sessions     *SessionService
	orders       *OrderService
	payments     *PaymentService
	webhooks     *WebhookService
	reservations *ReservationService
	sync         *Synchronizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx:      context.Background(),
		store:    storage.NewInMemoryStore(),
		notifier: &captureNotifier{},
		guard:    newMemGuard(),
		now:      baseTime,
	}
	log := logger.NewDiscard()
	window := DefaultReservationWindow

	f.sessions = NewSessionService(f.store, f.notifier, log, 2*time.Hour, window)
	f.orders = NewOrderService(f.store, f.notifier, log, true)
	f.payments = NewPaymentService(f.store, f.notifier, log, config.SettlementConfig{
		TaxRate:           decimal.NewFromFloat(0.10),
		TransactionPrefix: "TX",
	}, window)
	f.webhooks = NewWebhookService(f.payments, f.guard, log, "TX")
	f.reservations = NewReservationService(f.store, f.notifier, log, window)
	f.sync = NewSynchronizer(f.store, f.notifier, log, config.SyncConfig{
		ExpiredInterval:   10 * time.Minute,
		NoShowInterval:    time.Hour,
		ReservedInterval:  5 * time.Minute,
		ReservationWindow: window,
		ExpiredAfter:      2 * time.Hour,
		NoShowAfter:       30 * time.Minute,
	})

	for _, b := range []*base{&f.sessions.base, &f.orders.base, &f.payments.base, &f.reservations.base, &f.sync.base} {
		b.SetClock(f.clock)
	}
	f.payments.newTransactionID = func() string {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.seq++
		return fmt.Sprintf("TX%010d", f.seq)
	}

	err := f.store.WithTx(f.ctx, func(tx storage.Tx) error {
		for _, table := range []*models.Table{
			{ID: tableFive, Number: 5, Capacity: 4, Status: models.TableAvailable, UpdatedAt: baseTime},
			{ID: tableTwo, Number: 2, Capacity: 2, Status: models.TableAvailable, UpdatedAt: baseTime},
		} {
			if err := tx.InsertTable(f.ctx, table); err != nil {
				return err
			}
		}
		for _, item := range []*models.MenuItem{
			{ID: menuPho, Name: "Pho bo", Price: decimal.NewFromInt(60000), Available: true},
			{ID: menuTea, Name: "Iced tea", Price: decimal.NewFromInt(20000), Available: true},
			{ID: menuOff, Name: "Seasonal special", Price: decimal.NewFromInt(90000), Available: false},
		} {
			if err := tx.InsertMenuItem(f.ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) openSession(t *testing.T, tableID string, guests int) *models.OpenedSession {
	t.Helper()
	opened, err := f.sessions.CreateSession(f.ctx, &models.CreateSessionRequest{TableID: tableID, CustomerCount: guests})
	require.NoError(t, err)
	return opened
}

// orderLunch places one pho and two teas: 100,000 before tax.
func (f *fixture) orderLunch(t *testing.T, sessionID string) *models.OrderDetail {
	t.Helper()
	order, err := f.orders.CreateOrder(f.ctx, &models.CreateOrderRequest{
		SessionID: sessionID,
		Items: []models.OrderItemInput{
			{MenuItemID: menuPho, Quantity: 1},
			{MenuItemID: menuTea, Quantity: 2},
		},
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) serve(t *testing.T, orderID string) {
	t.Helper()
	for _, status := range []models.OrderStatus{models.OrderConfirmed, models.OrderPreparing, models.OrderReady, models.OrderServed} {
		_, err := f.orders.UpdateOrderStatus(f.ctx, orderID, status)
		require.NoError(t, err)
	}
}

func (f *fixture) table(t *testing.T, id string) *models.Table {
	t.Helper()
	var table *models.Table
	require.NoError(t, f.store.View(f.ctx, func(q storage.Queries) error {
		var err error
		table, err = q.GetTable(f.ctx, id)
		return err
	}))
	return table
}

func (f *fixture) session(t *testing.T, id string) *models.TableSession {
	t.Helper()
	var session *models.TableSession
	require.NoError(t, f.store.View(f.ctx, func(q storage.Queries) error {
		var err error
		session, err = q.GetSession(f.ctx, id)
		return err
	}))
	return session
}

func assertKind(t *testing.T, err error, kind Kind, sentinel error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, KindOf(err), err.Error())
	if sentinel != nil {
		assert.True(t, errors.Is(err, sentinel), "expected %v, got %v", sentinel, err)
	}
}

func assertAmount(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(decimal.NewFromInt(want)), "want %d, got %s", want, got)
}
