package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"table-settlement/internal/models"
	"table-settlement/internal/storage"
)

func TestCreateSessionReturnsLiveSession(t *testing.T) {
	f := newFixture(t)

	first := f.openSession(t, tableFive, 2)
	second := f.openSession(t, tableFive, 3)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Secret, second.Secret)
	assert.Len(t, f.notifier.ofType(models.EventSessionOpened), 1)

	var live int
	require.NoError(t, f.store.View(f.ctx, func(q storage.Queries) error {
		var err error
		live, err = q.CountLiveSessions(f.ctx, tableFive)
		return err
	}))
	assert.Equal(t, 1, live)
}

func TestCreateSessionFlagsStaleLiveSession(t *testing.T) {
	f := newFixture(t)
	first := f.openSession(t, tableFive, 2)
	assert.False(t, first.Stale)

	f.advance(2*time.Hour + time.Minute)
	again := f.openSession(t, tableFive, 2)
	assert.False(t, again.Created)
	assert.True(t, again.Stale)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, baseTime.Add(2*time.Hour), again.ExpiresAt)

	_, err := f.sessions.ValidateSession(f.ctx, again.ID, again.Secret)
	assertKind(t, err, KindUnauthorized, ErrSessionUnauthorized)

	_, err = f.sessions.CloseSession(f.ctx, again.ID, "expired at the table")
	require.NoError(t, err)
	fresh := f.openSession(t, tableFive, 2)
	assert.True(t, fresh.Created)
	assert.False(t, fresh.Stale)
}

func TestCreateSessionRules(t *testing.T) {
	f := newFixture(t)

	_, err := f.sessions.CreateSession(f.ctx, &models.CreateSessionRequest{TableID: tableTwo, CustomerCount: 3})
	assertKind(t, err, KindConflict, ErrCapacityExceeded)

	_, err = f.sessions.CreateSession(f.ctx, &models.CreateSessionRequest{TableID: "nope", CustomerCount: 1})
	assertKind(t, err, KindNotFound, ErrTableNotFound)

	_, err = f.sessions.CreateSession(f.ctx, &models.CreateSessionRequest{TableID: tableTwo})
	assertKind(t, err, KindValidation, nil)

	require.NoError(t, f.store.WithTx(f.ctx, func(tx storage.Tx) error {
		return tx.UpdateTableStatus(f.ctx, tableTwo, models.TableOutOfService, baseTime)
	}))
	_, err = f.sessions.CreateSession(f.ctx, &models.CreateSessionRequest{TableID: tableTwo, CustomerCount: 1})
	assertKind(t, err, KindConflict, ErrTableOutOfService)
}

func TestValidateSession(t *testing.T) {
	f := newFixture(t)
	opened := f.openSession(t, tableFive, 2)

	session, err := f.sessions.ValidateSession(f.ctx, opened.ID, opened.Secret)
	require.NoError(t, err)
	assert.Equal(t, opened.ID, session.ID)

	_, err = f.sessions.ValidateSession(f.ctx, opened.ID, "not-the-secret")
	assertKind(t, err, KindUnauthorized, ErrSessionUnauthorized)

	_, err = f.sessions.ValidateSession(f.ctx, "missing", opened.Secret)
	assertKind(t, err, KindUnauthorized, ErrSessionUnauthorized)

	f.advance(2*time.Hour + time.Minute)
	_, err = f.sessions.ValidateSession(f.ctx, opened.ID, opened.Secret)
	assertKind(t, err, KindUnauthorized, ErrSessionUnauthorized)
}

func TestCloseSessionRefusesUnservedItems(t *testing.T) {
	f := newFixture(t)
	opened := f.openSession(t, tableFive, 2)
	order := f.orderLunch(t, opened.ID)

	_, err := f.sessions.CloseSession(f.ctx, opened.ID, "")
	assertKind(t, err, KindConflict, ErrSessionHasPendingItems)
	assert.Equal(t, models.TableOccupied, f.table(t, tableFive).Status)

	f.serve(t, order.ID)

	closed, err := f.sessions.CloseSession(f.ctx, opened.ID, "left early")
	require.NoError(t, err)
	assert.Equal(t, models.SessionClosed, closed.Status)
	assert.Equal(t, "left early", closed.Notes)
	require.NotNil(t, closed.EndTime)
	assert.Equal(t, models.TableAvailable, f.table(t, tableFive).Status)

	_, err = f.sessions.CloseSession(f.ctx, opened.ID, "")
	assertKind(t, err, KindConflict, ErrSessionClosed)
}

func TestCloseSessionWithCancelledOrder(t *testing.T) {
	f := newFixture(t)
	opened := f.openSession(t, tableFive, 2)
	order := f.orderLunch(t, opened.ID)

	_, err := f.orders.CancelOrder(f.ctx, order.ID)
	require.NoError(t, err)

	_, err = f.sessions.CloseSession(f.ctx, opened.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.TableAvailable, f.table(t, tableFive).Status)
}

func TestCloseSessionKeepsTableForUpcomingReservation(t *testing.T) {
	f := newFixture(t)
	opened := f.openSession(t, tableFive, 2)

	reservation, err := f.reservations.CreateReservation(f.ctx, &models.CreateReservationRequest{
		TableID:         tableFive,
		ReservationTime: baseTime.Add(90 * time.Minute),
		PartySize:       4,
	})
	require.NoError(t, err)
	_, err = f.reservations.ConfirmReservation(f.ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TableOccupied, f.table(t, tableFive).Status)

	_, err = f.sessions.CloseSession(f.ctx, opened.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.TableReserved, f.table(t, tableFive).Status)
}

func TestGetSessionDetail(t *testing.T) {
	f := newFixture(t)
	opened := f.openSession(t, tableFive, 2)
	f.orderLunch(t, opened.ID)

	detail, err := f.sessions.GetSession(f.ctx, opened.ID)
	require.NoError(t, err)
	assert.Equal(t, opened.ID, detail.Session.ID)
	assert.Equal(t, 5, detail.Table.Number)
	require.Len(t, detail.Orders, 1)
	assert.Len(t, detail.Orders[0].Items, 2)
	assert.Nil(t, detail.Payment)

	_, err = f.sessions.GetSession(f.ctx, "missing")
	assertKind(t, err, KindNotFound, ErrSessionNotFound)
}

func TestCanRelease(t *testing.T) {
	f := newFixture(t)
	window := DefaultReservationWindow

	check := func() bool {
		var ok bool
		require.NoError(t, f.store.View(f.ctx, func(q storage.Queries) error {
			var err error
			ok, err = CanRelease(f.ctx, q, tableFive, f.clock(), window)
			return err
		}))
		return ok
	}

	assert.True(t, check())

	opened := f.openSession(t, tableFive, 2)
	assert.False(t, check())

	_, err := f.sessions.CloseSession(f.ctx, opened.ID, "")
	require.NoError(t, err)
	assert.True(t, check())

	reservation, err := f.reservations.CreateReservation(f.ctx, &models.CreateReservationRequest{
		TableID:         tableFive,
		ReservationTime: baseTime.Add(time.Hour),
		PartySize:       2,
	})
	require.NoError(t, err)
	assert.True(t, check(), "pending reservations do not claim the table")

	_, err = f.reservations.ConfirmReservation(f.ctx, reservation.ID)
	require.NoError(t, err)
	assert.False(t, check())
}
