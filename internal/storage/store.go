package storage

import (
	"context"
	"errors"
	"time"

	"table-settlement/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Store is the persistence boundary. Every multi-entity mutation runs inside
// WithTx; the transaction commits when fn returns nil and rolls back
// otherwise. View runs unlocked reads for display.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(q Queries) error) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// Queries are plain reads. Inside a transaction they see the latest committed
// data (read committed), so callers take the relevant row lock first.
type Queries interface {
	GetTable(ctx context.Context, id string) (*models.Table, error)
	ListTablesByStatus(ctx context.Context, status models.TableStatus) ([]*models.Table, error)
	GetMenuItem(ctx context.Context, id string) (*models.MenuItem, error)

	GetSession(ctx context.Context, id string) (*models.TableSession, error)
	ListLiveSessionsByTable(ctx context.Context, tableID string) ([]*models.TableSession, error)
	CountLiveSessions(ctx context.Context, tableID string) (int, error)
	// CountSessionsStarted counts sessions of any status on tableID whose
	// start time is in [from, to].
	CountSessionsStarted(ctx context.Context, tableID string, from, to time.Time) (int, error)

	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrdersBySession(ctx context.Context, sessionID string) ([]*models.Order, error)
	ListItemsByOrder(ctx context.Context, orderID string) ([]*models.OrderItem, error)

	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentBySession(ctx context.Context, sessionID string) (*models.Payment, error)
	GetPaymentByOrder(ctx context.Context, orderID string) (*models.Payment, error)
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)

	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	// ListReservations returns reservations in status whose time is in [from, to].
	ListReservations(ctx context.Context, status models.ReservationStatus, from, to time.Time) ([]*models.Reservation, error)
	// CountReservations counts reservations for a table in any of statuses with
	// time in [from, to], excluding excludeID.
	CountReservations(ctx context.Context, tableID string, statuses []models.ReservationStatus, from, to time.Time, excludeID string) (int, error)
}

// Tx is a unit of work. Lock* methods acquire an exclusive row lock and
// return the row as read under that lock. Callers acquire locks in the order
// Payment, Session, Table, Order, Item, Reservation.
type Tx interface {
	Queries

	LockPayment(ctx context.Context, id string) (*models.Payment, error)
	LockSession(ctx context.Context, id string) (*models.TableSession, error)
	LockActiveSessionsByTable(ctx context.Context, tableID string) ([]*models.TableSession, error)
	LockTable(ctx context.Context, id string) (*models.Table, error)
	LockOrder(ctx context.Context, id string) (*models.Order, error)
	LockReservation(ctx context.Context, id string) (*models.Reservation, error)

	InsertTable(ctx context.Context, t *models.Table) error
	UpdateTableStatus(ctx context.Context, id string, status models.TableStatus, now time.Time) error
	InsertMenuItem(ctx context.Context, m *models.MenuItem) error
	UpdateMenuItemPrice(ctx context.Context, m *models.MenuItem) error

	InsertSession(ctx context.Context, s *models.TableSession) error
	CloseSessions(ctx context.Context, ids []string, endTime time.Time, notes string) error

	InsertOrder(ctx context.Context, o *models.Order) error
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, now time.Time) error
	// MarkSessionOrdersPaid sets every non-cancelled order of the session to PAID
	// and returns the affected order ids.
	MarkSessionOrdersPaid(ctx context.Context, sessionID string, now time.Time) ([]string, error)

	InsertItems(ctx context.Context, items []*models.OrderItem) error
	UpdateItem(ctx context.Context, item *models.OrderItem) error
	DeleteItem(ctx context.Context, id string) error
	// CascadeItemStatus sets status on every item of orderIDs whose status is
	// not in skip, returning the number of rows changed.
	CascadeItemStatus(ctx context.Context, orderIDs []string, status models.ItemStatus, skip []models.ItemStatus, now time.Time) (int64, error)

	InsertPayment(ctx context.Context, p *models.Payment) error
	UpdatePayment(ctx context.Context, p *models.Payment) error

	InsertReservation(ctx context.Context, r *models.Reservation) error
	UpdateReservationStatus(ctx context.Context, id string, status models.ReservationStatus, now time.Time) error
}
