package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"table-settlement/internal/models"
)

func strPtr(s string) *string { return &s }

func seedTable(t *testing.T, s *InMemoryStore, id string, number int) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx Tx) error {
		return tx.InsertTable(context.Background(), &models.Table{ID: id, Number: number, Capacity: 4, Status: models.TableAvailable})
	})
	require.NoError(t, err)
}

func TestInMemoryStoreRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	seedTable(t, store, "t-1", 1)

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.UpdateTableStatus(ctx, "t-1", models.TableOccupied, time.Now()))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = store.View(ctx, func(q Queries) error {
		table, err := q.GetTable(ctx, "t-1")
		require.NoError(t, err)
		assert.Equal(t, models.TableAvailable, table.Status)
		return nil
	})
	require.NoError(t, err)
}

func TestInMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	seedTable(t, store, "t-1", 1)

	_ = store.View(ctx, func(q Queries) error {
		table, _ := q.GetTable(ctx, "t-1")
		table.Status = models.TableOutOfService
		return nil
	})

	_ = store.View(ctx, func(q Queries) error {
		table, _ := q.GetTable(ctx, "t-1")
		assert.Equal(t, models.TableAvailable, table.Status)
		return nil
	})
}

func TestInMemoryStoreCountSessionsStarted(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	seedTable(t, store, "t-1", 1)
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertSession(ctx, &models.TableSession{ID: "s-1", TableID: "t-1", Status: models.SessionActive, StartTime: start}); err != nil {
			return err
		}
		return tx.CloseSessions(ctx, []string{"s-1"}, start.Add(time.Hour), "")
	}))

	_ = store.View(ctx, func(q Queries) error {
		n, err := q.CountSessionsStarted(ctx, "t-1", start.Add(-time.Minute), start.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, n, "closed sessions still count")

		n, err = q.CountSessionsStarted(ctx, "t-1", start.Add(time.Minute), start.Add(time.Hour))
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	})
}

func TestInMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	err := store.View(ctx, func(q Queries) error {
		_, err := q.GetPayment(ctx, "missing")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStoreOneLiveSessionPerTable(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	seedTable(t, store, "t-1", 1)

	insert := func(id string, status models.SessionStatus) error {
		return store.WithTx(ctx, func(tx Tx) error {
			return tx.InsertSession(ctx, &models.TableSession{ID: id, TableID: "t-1", Status: status})
		})
	}

	require.NoError(t, insert("s-1", models.SessionActive))
	assert.ErrorIs(t, insert("s-2", models.SessionActive), ErrDuplicate)

	require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
		return tx.CloseSessions(ctx, []string{"s-1"}, time.Now(), "done")
	}))
	require.NoError(t, insert("s-3", models.SessionActive))

	_ = store.View(ctx, func(q Queries) error {
		n, err := q.CountLiveSessions(ctx, "t-1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		closed, err := q.GetSession(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, models.SessionClosed, closed.Status)
		assert.Equal(t, "done", closed.Notes)
		assert.NotNil(t, closed.EndTime)
		return nil
	})
}

func TestInMemoryStoreCascadeAndMarkPaid(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	now := time.Now()

	err := store.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertOrder(ctx, &models.Order{ID: "o-1", SessionID: strPtr("s-1"), Status: models.OrderServed}))
		require.NoError(t, tx.InsertOrder(ctx, &models.Order{ID: "o-2", SessionID: strPtr("s-1"), Status: models.OrderCancelled}))
		return tx.InsertItems(ctx, []*models.OrderItem{
			{ID: "i-1", OrderID: "o-1", Quantity: 1, PriceAtOrder: decimal.NewFromInt(10), Status: models.ItemReady},
			{ID: "i-2", OrderID: "o-1", Quantity: 1, PriceAtOrder: decimal.NewFromInt(10), Status: models.ItemCancelled},
		})
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx Tx) error {
		ids, err := tx.MarkSessionOrdersPaid(ctx, "s-1", now)
		require.NoError(t, err)
		assert.Equal(t, []string{"o-1"}, ids)

		n, err := tx.CascadeItemStatus(ctx, ids, models.ItemServed, []models.ItemStatus{models.ItemCancelled}, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return nil
	})
	require.NoError(t, err)

	_ = store.View(ctx, func(q Queries) error {
		items, err := q.ListItemsByOrder(ctx, "o-1")
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, models.ItemServed, items[0].Status)
		assert.Equal(t, models.ItemCancelled, items[1].Status)

		cancelled, _ := q.GetOrder(ctx, "o-2")
		assert.Equal(t, models.OrderCancelled, cancelled.Status)
		return nil
	})
}

func TestInMemoryStorePaymentUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	insert := func(id, session, txn string) error {
		return store.WithTx(ctx, func(tx Tx) error {
			return tx.InsertPayment(ctx, &models.Payment{ID: id, SessionID: strPtr(session), TransactionID: txn})
		})
	}

	require.NoError(t, insert("p-1", "s-1", "TXAAAAAAAAAA"))
	assert.ErrorIs(t, insert("p-2", "s-1", "TXBBBBBBBBBB"), ErrDuplicate)
	assert.ErrorIs(t, insert("p-3", "s-2", "TXAAAAAAAAAA"), ErrDuplicate)

	_ = store.View(ctx, func(q Queries) error {
		p, err := q.GetPaymentByTransactionID(ctx, "TXAAAAAAAAAA")
		require.NoError(t, err)
		assert.Equal(t, "p-1", p.ID)
		return nil
	})
}

func TestInMemoryStoreReservationWindow(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)

	err := store.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertReservation(ctx, &models.Reservation{ID: "r-2", TableID: "t-1", ReservationTime: base.Add(time.Hour), Status: models.ReservationConfirmed}))
		require.NoError(t, tx.InsertReservation(ctx, &models.Reservation{ID: "r-1", TableID: "t-1", ReservationTime: base, Status: models.ReservationConfirmed}))
		return tx.InsertReservation(ctx, &models.Reservation{ID: "r-3", TableID: "t-1", ReservationTime: base.Add(5 * time.Hour), Status: models.ReservationConfirmed})
	})
	require.NoError(t, err)

	_ = store.View(ctx, func(q Queries) error {
		list, err := q.ListReservations(ctx, models.ReservationConfirmed, base, base.Add(2*time.Hour))
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "r-1", list[0].ID)
		assert.Equal(t, "r-2", list[1].ID)

		n, err := q.CountReservations(ctx, "t-1", []models.ReservationStatus{models.ReservationConfirmed}, base, base.Add(2*time.Hour), "r-1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	})
}
