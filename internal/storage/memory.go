package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"table-settlement/internal/models"
)

// InMemoryStore serializes transactions behind one mutex. A transaction works
// on a copy of the state which replaces the live state only on success.
type InMemoryStore struct {
	mutex sync.RWMutex
	state *memState
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{state: newMemState()}
}

type memState struct {
	tables       map[string]*models.Table
	menu         map[string]*models.MenuItem
	sessions     map[string]*models.TableSession
	orders       map[string]*models.Order
	items        map[string]*models.OrderItem
	payments     map[string]*models.Payment
	reservations map[string]*models.Reservation

	// insertion order, for stable listings
	sessionOrder []string
	orderOrder   []string
	itemOrder    []string
}

func newMemState() *memState {
	return &memState{
		tables:       make(map[string]*models.Table),
		menu:         make(map[string]*models.MenuItem),
		sessions:     make(map[string]*models.TableSession),
		orders:       make(map[string]*models.Order),
		items:        make(map[string]*models.OrderItem),
		payments:     make(map[string]*models.Payment),
		reservations: make(map[string]*models.Reservation),
	}
}

func cloneMap[T any](src map[string]*T) map[string]*T {
	dst := make(map[string]*T, len(src))
	for k, v := range src {
		c := *v
		dst[k] = &c
	}
	return dst
}

func (st *memState) clone() *memState {
	return &memState{
		tables:       cloneMap(st.tables),
		menu:         cloneMap(st.menu),
		sessions:     cloneMap(st.sessions),
		orders:       cloneMap(st.orders),
		items:        cloneMap(st.items),
		payments:     cloneMap(st.payments),
		reservations: cloneMap(st.reservations),
		sessionOrder: append([]string(nil), st.sessionOrder...),
		orderOrder:   append([]string(nil), st.orderOrder...),
		itemOrder:    append([]string(nil), st.itemOrder...),
	}
}

func (s *InMemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	working := s.state.clone()
	if err := fn(&memTx{memQueries{st: working}}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *InMemoryStore) View(ctx context.Context, fn func(q Queries) error) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memQueries{st: s.state})
}

func (s *InMemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

func get[T any](m map[string]*T, id, what string) (*T, error) {
	v, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	c := *v
	return &c, nil
}

type memQueries struct {
	st *memState
}

func (q *memQueries) GetTable(ctx context.Context, id string) (*models.Table, error) {
	return get(q.st.tables, id, "table")
}

func (q *memQueries) ListTablesByStatus(ctx context.Context, status models.TableStatus) ([]*models.Table, error) {
	var out []*models.Table
	for _, t := range q.st.tables {
		if t.Status == status {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (q *memQueries) GetMenuItem(ctx context.Context, id string) (*models.MenuItem, error) {
	return get(q.st.menu, id, "menu item")
}

func (q *memQueries) GetSession(ctx context.Context, id string) (*models.TableSession, error) {
	return get(q.st.sessions, id, "session")
}

func (q *memQueries) ListLiveSessionsByTable(ctx context.Context, tableID string) ([]*models.TableSession, error) {
	var out []*models.TableSession
	for _, id := range q.st.sessionOrder {
		s := q.st.sessions[id]
		if s.TableID == tableID && s.Status.Live() {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (q *memQueries) CountLiveSessions(ctx context.Context, tableID string) (int, error) {
	live, _ := q.ListLiveSessionsByTable(ctx, tableID)
	return len(live), nil
}

func (q *memQueries) CountSessionsStarted(ctx context.Context, tableID string, from, to time.Time) (int, error) {
	n := 0
	for _, s := range q.st.sessions {
		if s.TableID == tableID && !s.StartTime.Before(from) && !s.StartTime.After(to) {
			n++
		}
	}
	return n, nil
}

func (q *memQueries) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return get(q.st.orders, id, "order")
}

func (q *memQueries) ListOrdersBySession(ctx context.Context, sessionID string) ([]*models.Order, error) {
	var out []*models.Order
	for _, id := range q.st.orderOrder {
		o := q.st.orders[id]
		if o.SessionID != nil && *o.SessionID == sessionID {
			c := *o
			out = append(out, &c)
		}
	}
	return out, nil
}

func (q *memQueries) ListItemsByOrder(ctx context.Context, orderID string) ([]*models.OrderItem, error) {
	var out []*models.OrderItem
	for _, id := range q.st.itemOrder {
		it, ok := q.st.items[id]
		if ok && it.OrderID == orderID {
			c := *it
			out = append(out, &c)
		}
	}
	return out, nil
}

func (q *memQueries) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	return get(q.st.payments, id, "payment")
}

func (q *memQueries) findPayment(match func(p *models.Payment) bool) (*models.Payment, error) {
	for _, p := range q.st.payments {
		if match(p) {
			c := *p
			return &c, nil
		}
	}
	return nil, fmt.Errorf("payment: %w", ErrNotFound)
}

func (q *memQueries) GetPaymentBySession(ctx context.Context, sessionID string) (*models.Payment, error) {
	return q.findPayment(func(p *models.Payment) bool { return p.SessionID != nil && *p.SessionID == sessionID })
}

func (q *memQueries) GetPaymentByOrder(ctx context.Context, orderID string) (*models.Payment, error) {
	return q.findPayment(func(p *models.Payment) bool { return p.OrderID != nil && *p.OrderID == orderID })
}

func (q *memQueries) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return q.findPayment(func(p *models.Payment) bool { return p.TransactionID == transactionID })
}

func (q *memQueries) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	return get(q.st.reservations, id, "reservation")
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func (q *memQueries) ListReservations(ctx context.Context, status models.ReservationStatus, from, to time.Time) ([]*models.Reservation, error) {
	var out []*models.Reservation
	for _, r := range q.st.reservations {
		if r.Status == status && inWindow(r.ReservationTime, from, to) {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReservationTime.Equal(out[j].ReservationTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].ReservationTime.Before(out[j].ReservationTime)
	})
	return out, nil
}

func (q *memQueries) CountReservations(ctx context.Context, tableID string, statuses []models.ReservationStatus, from, to time.Time, excludeID string) (int, error) {
	n := 0
	for _, r := range q.st.reservations {
		if r.TableID != tableID || r.ID == excludeID || !inWindow(r.ReservationTime, from, to) {
			continue
		}
		for _, st := range statuses {
			if r.Status == st {
				n++
				break
			}
		}
	}
	return n, nil
}

type memTx struct {
	memQueries
}

// The whole store is locked for the duration of a transaction, so the Lock*
// methods are plain reads.

func (t *memTx) LockPayment(ctx context.Context, id string) (*models.Payment, error) {
	return t.GetPayment(ctx, id)
}

func (t *memTx) LockSession(ctx context.Context, id string) (*models.TableSession, error) {
	return t.GetSession(ctx, id)
}

func (t *memTx) LockActiveSessionsByTable(ctx context.Context, tableID string) ([]*models.TableSession, error) {
	var out []*models.TableSession
	for _, id := range t.st.sessionOrder {
		s := t.st.sessions[id]
		if s.TableID == tableID && s.Status == models.SessionActive {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (t *memTx) LockTable(ctx context.Context, id string) (*models.Table, error) {
	return t.GetTable(ctx, id)
}

func (t *memTx) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *memTx) LockReservation(ctx context.Context, id string) (*models.Reservation, error) {
	return t.GetReservation(ctx, id)
}

func (t *memTx) InsertTable(ctx context.Context, tb *models.Table) error {
	if _, exists := t.st.tables[tb.ID]; exists {
		return fmt.Errorf("table %s: %w", tb.ID, ErrDuplicate)
	}
	for _, other := range t.st.tables {
		if other.Number == tb.Number {
			return fmt.Errorf("table number %d: %w", tb.Number, ErrDuplicate)
		}
	}
	c := *tb
	t.st.tables[tb.ID] = &c
	return nil
}

func (t *memTx) UpdateTableStatus(ctx context.Context, id string, status models.TableStatus, now time.Time) error {
	tb, ok := t.st.tables[id]
	if !ok {
		return fmt.Errorf("table: %w", ErrNotFound)
	}
	tb.Status = status
	tb.UpdatedAt = now
	return nil
}

func (t *memTx) InsertMenuItem(ctx context.Context, m *models.MenuItem) error {
	if _, exists := t.st.menu[m.ID]; exists {
		return fmt.Errorf("menu item %s: %w", m.ID, ErrDuplicate)
	}
	c := *m
	t.st.menu[m.ID] = &c
	return nil
}

func (t *memTx) UpdateMenuItemPrice(ctx context.Context, m *models.MenuItem) error {
	existing, ok := t.st.menu[m.ID]
	if !ok {
		return fmt.Errorf("menu item: %w", ErrNotFound)
	}
	existing.Price = m.Price
	existing.Available = m.Available
	return nil
}

func (t *memTx) InsertSession(ctx context.Context, s *models.TableSession) error {
	if _, exists := t.st.sessions[s.ID]; exists {
		return fmt.Errorf("session %s: %w", s.ID, ErrDuplicate)
	}
	if s.Status.Live() {
		for _, other := range t.st.sessions {
			if other.TableID == s.TableID && other.Status.Live() {
				return fmt.Errorf("live session for table %s: %w", s.TableID, ErrDuplicate)
			}
		}
	}
	c := *s
	t.st.sessions[s.ID] = &c
	t.st.sessionOrder = append(t.st.sessionOrder, s.ID)
	return nil
}

func (t *memTx) CloseSessions(ctx context.Context, ids []string, endTime time.Time, notes string) error {
	for _, id := range ids {
		s, ok := t.st.sessions[id]
		if !ok {
			continue
		}
		end := endTime
		s.Status = models.SessionClosed
		s.EndTime = &end
		if notes != "" {
			s.Notes = notes
		}
	}
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *models.Order) error {
	if _, exists := t.st.orders[o.ID]; exists {
		return fmt.Errorf("order %s: %w", o.ID, ErrDuplicate)
	}
	c := *o
	t.st.orders[o.ID] = &c
	t.st.orderOrder = append(t.st.orderOrder, o.ID)
	return nil
}

func (t *memTx) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, now time.Time) error {
	o, ok := t.st.orders[id]
	if !ok {
		return fmt.Errorf("order: %w", ErrNotFound)
	}
	o.Status = status
	o.UpdatedAt = now
	return nil
}

func (t *memTx) MarkSessionOrdersPaid(ctx context.Context, sessionID string, now time.Time) ([]string, error) {
	var ids []string
	for _, id := range t.st.orderOrder {
		o := t.st.orders[id]
		if o.SessionID == nil || *o.SessionID != sessionID || o.Status == models.OrderCancelled {
			continue
		}
		o.Status = models.OrderPaid
		o.UpdatedAt = now
		ids = append(ids, id)
	}
	return ids, nil
}

func (t *memTx) InsertItems(ctx context.Context, items []*models.OrderItem) error {
	for _, it := range items {
		if _, exists := t.st.items[it.ID]; exists {
			return fmt.Errorf("order item %s: %w", it.ID, ErrDuplicate)
		}
	}
	for _, it := range items {
		c := *it
		t.st.items[it.ID] = &c
		t.st.itemOrder = append(t.st.itemOrder, it.ID)
	}
	return nil
}

func (t *memTx) UpdateItem(ctx context.Context, item *models.OrderItem) error {
	existing, ok := t.st.items[item.ID]
	if !ok {
		return fmt.Errorf("order item: %w", ErrNotFound)
	}
	existing.Quantity = item.Quantity
	existing.Status = item.Status
	existing.Notes = item.Notes
	existing.UpdatedAt = item.UpdatedAt
	return nil
}

func (t *memTx) DeleteItem(ctx context.Context, id string) error {
	if _, ok := t.st.items[id]; !ok {
		return fmt.Errorf("order item: %w", ErrNotFound)
	}
	delete(t.st.items, id)
	for i, itemID := range t.st.itemOrder {
		if itemID == id {
			t.st.itemOrder = append(t.st.itemOrder[:i], t.st.itemOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (t *memTx) CascadeItemStatus(ctx context.Context, orderIDs []string, status models.ItemStatus, skip []models.ItemStatus, now time.Time) (int64, error) {
	targets := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		targets[id] = true
	}
	var n int64
	for _, it := range t.st.items {
		if !targets[it.OrderID] || containsStatus(skip, it.Status) {
			continue
		}
		it.Status = status
		it.UpdatedAt = now
		n++
	}
	return n, nil
}

func containsStatus(list []models.ItemStatus, s models.ItemStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (t *memTx) InsertPayment(ctx context.Context, p *models.Payment) error {
	if _, exists := t.st.payments[p.ID]; exists {
		return fmt.Errorf("payment %s: %w", p.ID, ErrDuplicate)
	}
	for _, other := range t.st.payments {
		switch {
		case p.SessionID != nil && other.SessionID != nil && *p.SessionID == *other.SessionID,
			p.OrderID != nil && other.OrderID != nil && *p.OrderID == *other.OrderID,
			p.TransactionID == other.TransactionID:
			return fmt.Errorf("payment for target: %w", ErrDuplicate)
		}
	}
	c := *p
	t.st.payments[p.ID] = &c
	return nil
}

func (t *memTx) UpdatePayment(ctx context.Context, p *models.Payment) error {
	if _, ok := t.st.payments[p.ID]; !ok {
		return fmt.Errorf("payment: %w", ErrNotFound)
	}
	c := *p
	t.st.payments[p.ID] = &c
	return nil
}

func (t *memTx) InsertReservation(ctx context.Context, r *models.Reservation) error {
	if _, exists := t.st.reservations[r.ID]; exists {
		return fmt.Errorf("reservation %s: %w", r.ID, ErrDuplicate)
	}
	c := *r
	t.st.reservations[r.ID] = &c
	return nil
}

func (t *memTx) UpdateReservationStatus(ctx context.Context, id string, status models.ReservationStatus, now time.Time) error {
	r, ok := t.st.reservations[id]
	if !ok {
		return fmt.Errorf("reservation: %w", ErrNotFound)
	}
	r.Status = status
	r.UpdatedAt = now
	return nil
}
