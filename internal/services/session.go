package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"table-settlement/internal/logger"
	"table-settlement/internal/models"
	"table-settlement/internal/storage"
	"table-settlement/internal/utils"
)

type SessionService struct {
	base
	ttl    time.Duration
	window time.Duration
}

func NewSessionService(store storage.Store, notifier Notifier, log *logger.Logger, ttl, window time.Duration) *SessionService {
	return &SessionService{
		base:   newBase(store, notifier, log),
		ttl:    ttl,
		window: window,
	}
}

// CreateSession opens a session on a table. A table that already has a live
// session returns that session instead, so repeated QR scans converge.
func (s *SessionService) CreateSession(ctx context.Context, req *models.CreateSessionRequest) (*models.OpenedSession, error) {
	if req.TableID == "" {
		return nil, validationf("tableId is required")
	}
	if req.CustomerCount < 1 {
		return nil, validationf("customerCount must be at least 1")
	}

	s.log.LogSession("OPEN", req.TableID, fmt.Sprintf("Opening session for %d customers", req.CustomerCount))

	var opened *models.OpenedSession
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		table, err := tx.LockTable(ctx, req.TableID)
		if err != nil {
			return lookupErr(err, ErrTableNotFound)
		}

		live, err := tx.ListLiveSessionsByTable(ctx, table.ID)
		if err != nil {
			return err
		}
		if len(live) > 0 {
			existing := live[0]
			opened = &models.OpenedSession{
				TableSession: existing,
				Secret:       existing.Secret,
				Stale:        existing.Status != models.SessionActive || existing.Expired(s.now()),
			}
			return nil
		}

		if table.Status == models.TableOutOfService {
			return conflict(ErrTableOutOfService)
		}
		if req.CustomerCount > table.Capacity {
			return &Error{Kind: KindConflict, Message: fmt.Sprintf("capacity exceeded: table %d seats %d", table.Number, table.Capacity), Err: ErrCapacityExceeded}
		}

		now := s.now()
		session := &models.TableSession{
			ID:            utils.GenerateID(),
			TableID:       table.ID,
			Secret:        utils.GenerateSecret(),
			Status:        models.SessionActive,
			CustomerCount: req.CustomerCount,
			Notes:         req.Notes,
			StartTime:     now,
			ExpiresAt:     now.Add(s.ttl),
		}
		if err := tx.InsertSession(ctx, session); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return &Error{Kind: KindConflict, Message: "table already has a live session", Err: err}
			}
			return err
		}
		if err := tx.UpdateTableStatus(ctx, table.ID, models.TableOccupied, now); err != nil {
			return err
		}

		opened = &models.OpenedSession{TableSession: session, Secret: session.Secret, Created: true}
		return nil
	})
	if err != nil {
		s.log.LogSession("OPEN_FAILED", req.TableID, err.Error())
		return nil, err
	}

	if opened.Created {
		s.log.LogSession("OPENED", opened.ID, fmt.Sprintf("Table %s occupied", opened.TableID))
		s.emit(models.Event{
			Type:      models.EventSessionOpened,
			SessionID: opened.ID,
			TableID:   opened.TableID,
			Payload:   map[string]string{"customerCount": fmt.Sprint(opened.CustomerCount)},
		})
	} else if opened.Stale {
		s.log.Warn("SESSION", fmt.Sprintf("Table %s has stale session %s (%s, expired at %s); staff must close it",
			opened.TableID, opened.ID, opened.Status, opened.ExpiresAt.Format(time.RFC3339)))
	} else {
		s.log.LogSession("REUSED", opened.ID, fmt.Sprintf("Table %s already has a live session", opened.TableID))
	}
	return opened, nil
}

// ValidateSession is the authorization gate for customer requests.
func (s *SessionService) ValidateSession(ctx context.Context, sessionID, secret string) (*models.TableSession, error) {
	if sessionID == "" || secret == "" {
		return nil, unauthorized(ErrSessionUnauthorized)
	}

	var session *models.TableSession
	err := s.store.View(ctx, func(q storage.Queries) error {
		var err error
		session, err = q.GetSession(ctx, sessionID)
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.LogSecurity("SESSION_REJECTED", fmt.Sprintf("Unknown session %s", sessionID))
			return nil, unauthorized(ErrSessionUnauthorized)
		}
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(session.Secret), []byte(secret)) != 1 {
		s.log.LogSecurity("SESSION_REJECTED", fmt.Sprintf("Secret mismatch for session %s", sessionID))
		return nil, unauthorized(ErrSessionUnauthorized)
	}
	if session.Status != models.SessionActive || session.Expired(s.now()) {
		s.log.LogSecurity("SESSION_REJECTED", fmt.Sprintf("Session %s is %s or expired", sessionID, session.Status))
		return nil, unauthorized(ErrSessionUnauthorized)
	}
	return session, nil
}

// CloseSession ends every ACTIVE session on the session's table and releases
// the table. It refuses while any of their orders still has unserved items.
func (s *SessionService) CloseSession(ctx context.Context, sessionID, notes string) (*models.TableSession, error) {
	s.log.LogSession("CLOSE", sessionID, "Closing session")

	var (
		closed    *models.TableSession
		closedIDs []string
	)
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		target, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return lookupErr(err, ErrSessionNotFound)
		}
		if target.Status == models.SessionClosed {
			return conflict(ErrSessionClosed)
		}

		active, err := tx.LockActiveSessionsByTable(ctx, target.TableID)
		if err != nil {
			return err
		}
		ids := []string{target.ID}
		for _, other := range active {
			if other.ID != target.ID {
				ids = append(ids, other.ID)
			}
		}

		table, err := tx.LockTable(ctx, target.TableID)
		if err != nil {
			return lookupErr(err, ErrTableNotFound)
		}

		for _, id := range ids {
			if err := ensureSettled(ctx, tx, id); err != nil {
				return err
			}
		}

		now := s.now()
		if err := tx.CloseSessions(ctx, ids, now, notes); err != nil {
			return err
		}
		if _, err := releaseTable(ctx, tx, table, now, s.window); err != nil {
			return err
		}

		closed, err = tx.GetSession(ctx, target.ID)
		closedIDs = ids
		return err
	})
	if err != nil {
		s.log.LogSession("CLOSE_FAILED", sessionID, err.Error())
		return nil, err
	}

	s.log.LogSession("CLOSED", sessionID, fmt.Sprintf("Closed %d session(s) on table %s", len(closedIDs), closed.TableID))
	for _, id := range closedIDs {
		s.emit(models.Event{Type: models.EventSessionClosed, SessionID: id, TableID: closed.TableID})
	}
	return closed, nil
}

// ensureSettled fails when an order of the session still has work in the
// kitchen. Cancelled and paid orders never block.
func ensureSettled(ctx context.Context, q storage.Queries, sessionID string) error {
	orders, err := q.ListOrdersBySession(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, order := range orders {
		if order.Status.Terminal() {
			continue
		}
		items, err := q.ListItemsByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if !item.Status.Settled() {
				return &Error{
					Kind:    KindConflict,
					Message: fmt.Sprintf("order %s has item %s in status %s", order.ID, item.Name, item.Status),
					Err:     ErrSessionHasPendingItems,
				}
			}
		}
	}
	return nil
}

// GetSession returns the session with its table, orders and payment. The read
// takes no locks.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*models.SessionDetail, error) {
	var detail *models.SessionDetail
	err := s.store.View(ctx, func(q storage.Queries) error {
		session, err := q.GetSession(ctx, sessionID)
		if err != nil {
			return lookupErr(err, ErrSessionNotFound)
		}
		detail = &models.SessionDetail{Session: session, Orders: []*models.OrderDetail{}}

		if detail.Table, err = q.GetTable(ctx, session.TableID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		orders, err := q.ListOrdersBySession(ctx, session.ID)
		if err != nil {
			return err
		}
		for _, order := range orders {
			od, err := loadOrderDetail(ctx, q, order)
			if err != nil {
				return err
			}
			detail.Orders = append(detail.Orders, od)
		}

		payment, err := q.GetPaymentBySession(ctx, session.ID)
		switch {
		case err == nil:
			detail.Payment = payment
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func loadOrderDetail(ctx context.Context, q storage.Queries, order *models.Order) (*models.OrderDetail, error) {
	items, err := q.ListItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.OrderItem{}
	}
	return &models.OrderDetail{Order: order, Items: items, Total: models.BillableTotal(order, items)}, nil
}
