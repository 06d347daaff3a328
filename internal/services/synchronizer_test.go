package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"table-settlement/internal/models"
	"table-settlement/internal/storage"
)

func (f *fixture) reservation(t *testing.T, id string) *models.Reservation {
	t.Helper()
	r, err := f.reservations.GetReservation(f.ctx, id)
	require.NoError(t, err)
	return r
}

func TestMarkNoShows(t *testing.T) {
	f := newFixture(t)
	r := f.reserve(t, tableFive, baseTime.Add(10*time.Minute), 4)
	f.confirm(t, r.ID)
	require.Equal(t, models.TableReserved, f.table(t, tableFive).Status)

	f.advance(20 * time.Minute)
	n, err := f.sync.MarkNoShows(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "party is only ten minutes late")

	f.advance(30 * time.Minute)
	n, err = f.sync.MarkNoShows(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, models.ReservationNoShow, f.reservation(t, r.ID).Status)
	assert.Equal(t, models.TableAvailable, f.table(t, tableFive).Status)
	events := f.notifier.ofType(models.EventReservationNoShow)
	require.Len(t, events, 1)
	assert.Equal(t, r.ID, events[0].ReservationID)

	n, err = f.sync.MarkNoShows(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNoShowKeepsSeatedTableOccupied(t *testing.T) {
	f := newFixture(t)
	r := f.reserve(t, tableFive, baseTime.Add(10*time.Minute), 4)
	f.confirm(t, r.ID)

	f.advance(15 * time.Minute)
	f.openSession(t, tableFive, 2)

	f.advance(35 * time.Minute)
	n, err := f.sync.MarkNoShows(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.TableOccupied, f.table(t, tableFive).Status)
}

func TestReleaseExpiredMarksUnseatedPartyNoShow(t *testing.T) {
	f := newFixture(t)
	r := f.reserve(t, tableFive, baseTime.Add(30*time.Minute), 4)
	f.confirm(t, r.ID)

	f.advance(2*time.Hour + 40*time.Minute)
	completed, noShows, err := f.sync.ReleaseExpired(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, completed)
	assert.Equal(t, 1, noShows)

	assert.Equal(t, models.ReservationNoShow, f.reservation(t, r.ID).Status)
	assert.Equal(t, models.TableAvailable, f.table(t, tableFive).Status)
	events := f.notifier.ofType(models.EventReservationNoShow)
	require.Len(t, events, 1)
	assert.Equal(t, r.ID, events[0].ReservationID)
}

func TestReleaseExpiredCompletesSeatedParty(t *testing.T) {
	f := newFixture(t)
	r := f.reserve(t, tableFive, baseTime.Add(30*time.Minute), 4)
	f.confirm(t, r.ID)

	f.advance(35 * time.Minute)
	opened := f.openSession(t, tableFive, 4)
	f.orderLunch(t, opened.ID)
	payment, err := f.payments.CreatePayment(f.ctx, &models.CreatePaymentRequest{SessionID: opened.ID, PaymentMethod: models.MethodCash})
	require.NoError(t, err)
	_, err = f.payments.ProcessPayment(f.ctx, payment.ID)
	require.NoError(t, err)

	f.advance(2*time.Hour + 5*time.Minute)
	completed, noShows, err := f.sync.ReleaseExpired(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.Zero(t, noShows)

	assert.Equal(t, models.ReservationCompleted, f.reservation(t, r.ID).Status)
	assert.Equal(t, models.TableAvailable, f.table(t, tableFive).Status)
	assert.Empty(t, f.notifier.ofType(models.EventReservationNoShow))
}

func TestRunOnceReportsExpiredNoShows(t *testing.T) {
	f := newFixture(t)
	r := f.reserve(t, tableFive, baseTime.Add(10*time.Minute), 4)
	f.confirm(t, r.ID)

	f.advance(3 * time.Hour)
	report, err := f.sync.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{NoShows: 1}, report)
	assert.Equal(t, models.ReservationNoShow, f.reservation(t, r.ID).Status)
	assert.Len(t, f.notifier.ofType(models.EventReservationNoShow), 1)
}

func TestSyncReservedTables(t *testing.T) {
	f := newFixture(t)
	r := f.reserve(t, tableFive, baseTime.Add(3*time.Hour), 4)
	f.confirm(t, r.ID)
	require.Equal(t, models.TableAvailable, f.table(t, tableFive).Status)

	require.NoError(t, f.store.WithTx(f.ctx, func(tx storage.Tx) error {
		return tx.UpdateTableStatus(f.ctx, tableTwo, models.TableReserved, baseTime)
	}))

	reserved, released, err := f.sync.SyncReservedTables(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, reserved)
	assert.Equal(t, 1, released)
	assert.Equal(t, models.TableAvailable, f.table(t, tableTwo).Status)

	f.advance(time.Hour + 5*time.Minute)
	reserved, released, err = f.sync.SyncReservedTables(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reserved)
	assert.Zero(t, released)
	assert.Equal(t, models.TableReserved, f.table(t, tableFive).Status)

	reserved, _, err = f.sync.SyncReservedTables(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, reserved)
}

func TestSyncReservedSkipsSeatedTable(t *testing.T) {
	f := newFixture(t)
	f.openSession(t, tableFive, 2)
	r := f.reserve(t, tableFive, baseTime.Add(90*time.Minute), 4)
	f.confirm(t, r.ID)

	reserved, _, err := f.sync.SyncReservedTables(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, reserved)
	assert.Equal(t, models.TableOccupied, f.table(t, tableFive).Status)
}

func TestRunOnce(t *testing.T) {
	f := newFixture(t)
	gone := f.reserve(t, tableFive, baseTime.Add(10*time.Minute), 4)
	f.confirm(t, gone.ID)
	soon := f.reserve(t, tableTwo, baseTime.Add(3*time.Hour), 2)
	f.confirm(t, soon.ID)

	f.advance(time.Hour + 30*time.Minute)
	report, err := f.sync.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncReport{NoShows: 1, Reserved: 1}, report)

	assert.Equal(t, models.ReservationNoShow, f.reservation(t, gone.ID).Status)
	assert.Equal(t, models.TableAvailable, f.table(t, tableFive).Status)
	assert.Equal(t, models.TableReserved, f.table(t, tableTwo).Status)
}
