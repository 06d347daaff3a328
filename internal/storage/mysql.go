package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"table-settlement/internal/config"
	"table-settlement/internal/logger"
	"table-settlement/internal/models"
)

type MySQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

func NewMySQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*MySQLStore, error) {
	log.LogDatabase("CONNECT", "mysql", fmt.Sprintf("Connecting to MySQL at %s:%s", cfg.Host, cfg.Port))

	dsnCfg := mysql.NewConfig()
	dsnCfg.User = cfg.Username
	dsnCfg.Passwd = cfg.Password
	dsnCfg.Net = "tcp"
	dsnCfg.Addr = cfg.Host + ":" + cfg.Port
	dsnCfg.DBName = cfg.Database
	dsnCfg.ParseTime = true
	dsnCfg.Loc = time.UTC
	dsnCfg.Params = map[string]string{"charset": "utf8mb4"}

	db, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		log.Error("DATABASE", "Failed to open MySQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping MySQL: "+err.Error())
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewMySQLStoreWithDB(db, log)
	if err := store.Migrate(context.Background()); err != nil {
		log.Error("DATABASE", "Failed to initialize tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "mysql", "MySQL connection established and tables initialized")
	return store, nil
}

// NewMySQLStoreWithDB wraps an already opened handle.
func NewMySQLStoreWithDB(db *sql.DB, log *logger.Logger) *MySQLStore {
	return &MySQLStore{db: db, log: log}
}

func (s *MySQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	s.log.LogDatabase("MIGRATE", "mysql", fmt.Sprintf("%d tables ready", len(schema)))
	return nil
}

func (s *MySQLStore) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Error("DATABASE", "Rollback failed: "+rbErr.Error())
			}
		}
	}()

	if err = fn(&mysqlTx{mysqlQueries: mysqlQueries{q: sqlTx}}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *MySQLStore) View(ctx context.Context, fn func(q Queries) error) error {
	return fn(&mysqlQueries{q: s.db})
}

func (s *MySQLStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *MySQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "mysql", "Closing MySQL connection")
	return s.db.Close()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const (
	tableColumns       = `id, number, capacity, status, updated_at`
	menuColumns        = `id, name, price, available`
	sessionColumns     = `id, table_id, secret, status, customer_count, notes, start_time, end_time, expires_at`
	orderColumns       = `id, session_id, order_type, status, customer_name, customer_phone, notes, created_at, updated_at`
	itemColumns        = `id, order_id, menu_item_id, name, quantity, price_at_order, status, notes, created_at, updated_at`
	paymentColumns     = `id, session_id, order_id, total_amount, sub_total, tax, discount, payment_method, status, transaction_id, gateway_ref, payment_time, refund_reason, created_at, updated_at`
	reservationColumns = `id, table_id, reservation_time, party_size, customer_name, customer_phone, status, created_at, updated_at`
)

type mysqlQueries struct {
	q querier
}

func scanTable(row scanner) (*models.Table, error) {
	t := &models.Table{}
	err := row.Scan(&t.ID, &t.Number, &t.Capacity, &t.Status, &t.UpdatedAt)
	return t, err
}

func scanMenuItem(row scanner) (*models.MenuItem, error) {
	m := &models.MenuItem{}
	err := row.Scan(&m.ID, &m.Name, &m.Price, &m.Available)
	return m, err
}

func scanSession(row scanner) (*models.TableSession, error) {
	s := &models.TableSession{}
	err := row.Scan(&s.ID, &s.TableID, &s.Secret, &s.Status, &s.CustomerCount, &s.Notes, &s.StartTime, &s.EndTime, &s.ExpiresAt)
	return s, err
}

func scanOrder(row scanner) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(&o.ID, &o.SessionID, &o.OrderType, &o.Status, &o.CustomerName, &o.CustomerPhone, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func scanItem(row scanner) (*models.OrderItem, error) {
	i := &models.OrderItem{}
	err := row.Scan(&i.ID, &i.OrderID, &i.MenuItemID, &i.Name, &i.Quantity, &i.PriceAtOrder, &i.Status, &i.Notes, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

func scanPayment(row scanner) (*models.Payment, error) {
	p := &models.Payment{}
	err := row.Scan(&p.ID, &p.SessionID, &p.OrderID, &p.TotalAmount, &p.SubTotal, &p.Tax, &p.Discount,
		&p.PaymentMethod, &p.Status, &p.TransactionID, &p.GatewayRef, &p.PaymentTime, &p.RefundReason,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanReservation(row scanner) (*models.Reservation, error) {
	r := &models.Reservation{}
	err := row.Scan(&r.ID, &r.TableID, &r.ReservationTime, &r.PartySize, &r.CustomerName, &r.CustomerPhone, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// one runs a single-row query and maps sql.ErrNoRows to ErrNotFound.
func one[T any](ctx context.Context, q querier, scan func(scanner) (T, error), what, query string, args ...any) (T, error) {
	v, err := scan(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		var zero T
		if errors.Is(err, sql.ErrNoRows) {
			return zero, fmt.Errorf("%s: %w", what, ErrNotFound)
		}
		return zero, fmt.Errorf("failed to get %s: %w", what, err)
	}
	return v, nil
}

func many[T any](ctx context.Context, q querier, scan func(scanner) (T, error), what, query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", what, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", what, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func count(ctx context.Context, q querier, query string, args ...any) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (m *mysqlQueries) GetTable(ctx context.Context, id string) (*models.Table, error) {
	return one(ctx, m.q, scanTable, "table", `SELECT `+tableColumns+` FROM restaurant_tables WHERE id = ?`, id)
}

func (m *mysqlQueries) ListTablesByStatus(ctx context.Context, status models.TableStatus) ([]*models.Table, error) {
	return many(ctx, m.q, scanTable, "tables", `SELECT `+tableColumns+` FROM restaurant_tables WHERE status = ? ORDER BY number`, status)
}

func (m *mysqlQueries) GetMenuItem(ctx context.Context, id string) (*models.MenuItem, error) {
	return one(ctx, m.q, scanMenuItem, "menu item", `SELECT `+menuColumns+` FROM menu_items WHERE id = ?`, id)
}

func (m *mysqlQueries) GetSession(ctx context.Context, id string) (*models.TableSession, error) {
	return one(ctx, m.q, scanSession, "session", `SELECT `+sessionColumns+` FROM table_sessions WHERE id = ?`, id)
}

func (m *mysqlQueries) ListLiveSessionsByTable(ctx context.Context, tableID string) ([]*models.TableSession, error) {
	return many(ctx, m.q, scanSession, "sessions",
		`SELECT `+sessionColumns+` FROM table_sessions WHERE table_id = ? AND status IN ('ACTIVE', 'PAID') ORDER BY start_time`, tableID)
}

func (m *mysqlQueries) CountLiveSessions(ctx context.Context, tableID string) (int, error) {
	return count(ctx, m.q, `SELECT COUNT(*) FROM table_sessions WHERE table_id = ? AND status IN ('ACTIVE', 'PAID')`, tableID)
}

func (m *mysqlQueries) CountSessionsStarted(ctx context.Context, tableID string, from, to time.Time) (int, error) {
	return count(ctx, m.q, `SELECT COUNT(*) FROM table_sessions WHERE table_id = ? AND start_time BETWEEN ? AND ?`, tableID, from, to)
}

func (m *mysqlQueries) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return one(ctx, m.q, scanOrder, "order", `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

func (m *mysqlQueries) ListOrdersBySession(ctx context.Context, sessionID string) ([]*models.Order, error) {
	return many(ctx, m.q, scanOrder, "orders", `SELECT `+orderColumns+` FROM orders WHERE session_id = ? ORDER BY created_at, id`, sessionID)
}

func (m *mysqlQueries) ListItemsByOrder(ctx context.Context, orderID string) ([]*models.OrderItem, error) {
	return many(ctx, m.q, scanItem, "order items", `SELECT `+itemColumns+` FROM order_items WHERE order_id = ? ORDER BY created_at, id`, orderID)
}

func (m *mysqlQueries) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	return one(ctx, m.q, scanPayment, "payment", `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
}

func (m *mysqlQueries) GetPaymentBySession(ctx context.Context, sessionID string) (*models.Payment, error) {
	return one(ctx, m.q, scanPayment, "payment", `SELECT `+paymentColumns+` FROM payments WHERE session_id = ?`, sessionID)
}

func (m *mysqlQueries) GetPaymentByOrder(ctx context.Context, orderID string) (*models.Payment, error) {
	return one(ctx, m.q, scanPayment, "payment", `SELECT `+paymentColumns+` FROM payments WHERE order_id = ?`, orderID)
}

func (m *mysqlQueries) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return one(ctx, m.q, scanPayment, "payment", `SELECT `+paymentColumns+` FROM payments WHERE transaction_id = ?`, transactionID)
}

func (m *mysqlQueries) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	return one(ctx, m.q, scanReservation, "reservation", `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
}

func (m *mysqlQueries) ListReservations(ctx context.Context, status models.ReservationStatus, from, to time.Time) ([]*models.Reservation, error) {
	return many(ctx, m.q, scanReservation, "reservations",
		`SELECT `+reservationColumns+` FROM reservations WHERE status = ? AND reservation_time BETWEEN ? AND ? ORDER BY reservation_time, id`,
		status, from, to)
}

func (m *mysqlQueries) CountReservations(ctx context.Context, tableID string, statuses []models.ReservationStatus, from, to time.Time, excludeID string) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	args := []any{tableID, from, to, excludeID}
	for _, st := range statuses {
		args = append(args, st)
	}
	return count(ctx, m.q,
		`SELECT COUNT(*) FROM reservations WHERE table_id = ? AND reservation_time BETWEEN ? AND ? AND id <> ? AND status IN (`+placeholders(len(statuses))+`)`,
		args...)
}

type mysqlTx struct {
	mysqlQueries
}

func (t *mysqlTx) LockPayment(ctx context.Context, id string) (*models.Payment, error) {
	return one(ctx, t.q, scanPayment, "payment", `SELECT `+paymentColumns+` FROM payments WHERE id = ? FOR UPDATE`, id)
}

func (t *mysqlTx) LockSession(ctx context.Context, id string) (*models.TableSession, error) {
	return one(ctx, t.q, scanSession, "session", `SELECT `+sessionColumns+` FROM table_sessions WHERE id = ? FOR UPDATE`, id)
}

func (t *mysqlTx) LockActiveSessionsByTable(ctx context.Context, tableID string) ([]*models.TableSession, error) {
	return many(ctx, t.q, scanSession, "sessions",
		`SELECT `+sessionColumns+` FROM table_sessions WHERE table_id = ? AND status = 'ACTIVE' ORDER BY id FOR UPDATE`, tableID)
}

func (t *mysqlTx) LockTable(ctx context.Context, id string) (*models.Table, error) {
	return one(ctx, t.q, scanTable, "table", `SELECT `+tableColumns+` FROM restaurant_tables WHERE id = ? FOR UPDATE`, id)
}

func (t *mysqlTx) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	return one(ctx, t.q, scanOrder, "order", `SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, id)
}

func (t *mysqlTx) LockReservation(ctx context.Context, id string) (*models.Reservation, error) {
	return one(ctx, t.q, scanReservation, "reservation", `SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, id)
}

func (t *mysqlTx) exec(ctx context.Context, what, query string, args ...any) (sql.Result, error) {
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == 1062 {
			return nil, fmt.Errorf("%s: %w", what, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}
	return res, nil
}

// execOne is exec for statements that must touch exactly one existing row.
func (t *mysqlTx) execOne(ctx context.Context, what, query string, args ...any) error {
	res, err := t.exec(ctx, what, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func (t *mysqlTx) InsertTable(ctx context.Context, tb *models.Table) error {
	_, err := t.exec(ctx, "insert table",
		`INSERT INTO restaurant_tables (`+tableColumns+`) VALUES (?, ?, ?, ?, ?)`,
		tb.ID, tb.Number, tb.Capacity, tb.Status, tb.UpdatedAt)
	return err
}

// UpdateTableStatus does not use execOne: MySQL reports zero affected rows
// when the status is unchanged.
func (t *mysqlTx) UpdateTableStatus(ctx context.Context, id string, status models.TableStatus, now time.Time) error {
	_, err := t.exec(ctx, "update table status", `UPDATE restaurant_tables SET status = ?, updated_at = ? WHERE id = ?`, status, now, id)
	return err
}

func (t *mysqlTx) InsertMenuItem(ctx context.Context, m *models.MenuItem) error {
	_, err := t.exec(ctx, "insert menu item", `INSERT INTO menu_items (`+menuColumns+`) VALUES (?, ?, ?, ?)`,
		m.ID, m.Name, m.Price, m.Available)
	return err
}

func (t *mysqlTx) UpdateMenuItemPrice(ctx context.Context, m *models.MenuItem) error {
	_, err := t.exec(ctx, "update menu item", `UPDATE menu_items SET price = ?, available = ? WHERE id = ?`, m.Price, m.Available, m.ID)
	return err
}

func (t *mysqlTx) InsertSession(ctx context.Context, s *models.TableSession) error {
	_, err := t.exec(ctx, "insert session",
		`INSERT INTO table_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.TableID, s.Secret, s.Status, s.CustomerCount, s.Notes, s.StartTime, s.EndTime, s.ExpiresAt)
	return err
}

func (t *mysqlTx) CloseSessions(ctx context.Context, ids []string, endTime time.Time, notes string) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{models.SessionClosed, endTime, notes, notes}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := t.exec(ctx, "close sessions",
		`UPDATE table_sessions SET status = ?, end_time = ?, notes = IF(? = '', notes, ?) WHERE id IN (`+placeholders(len(ids))+`)`,
		args...)
	return err
}

func (t *mysqlTx) InsertOrder(ctx context.Context, o *models.Order) error {
	_, err := t.exec(ctx, "insert order",
		`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.SessionID, o.OrderType, o.Status, o.CustomerName, o.CustomerPhone, o.Notes, o.CreatedAt, o.UpdatedAt)
	return err
}

func (t *mysqlTx) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, now time.Time) error {
	return t.execOne(ctx, "update order status", `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`, status, now, id)
}

func (t *mysqlTx) MarkSessionOrdersPaid(ctx context.Context, sessionID string, now time.Time) ([]string, error) {
	ids, err := many(ctx, t.q, func(row scanner) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	}, "orders", `SELECT id FROM orders WHERE session_id = ? AND status <> 'CANCELLED' ORDER BY id FOR UPDATE`, sessionID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	_, err = t.exec(ctx, "mark orders paid",
		`UPDATE orders SET status = 'PAID', updated_at = ? WHERE session_id = ? AND status <> 'CANCELLED'`, now, sessionID)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (t *mysqlTx) InsertItems(ctx context.Context, items []*models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO order_items (` + itemColumns + `) VALUES `)
	args := make([]any, 0, len(items)*10)
	for i, it := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(" + placeholders(10) + ")")
		args = append(args, it.ID, it.OrderID, it.MenuItemID, it.Name, it.Quantity, it.PriceAtOrder, it.Status, it.Notes, it.CreatedAt, it.UpdatedAt)
	}
	_, err := t.exec(ctx, "insert order items", sb.String(), args...)
	return err
}

func (t *mysqlTx) UpdateItem(ctx context.Context, it *models.OrderItem) error {
	return t.execOne(ctx, "update order item",
		`UPDATE order_items SET quantity = ?, status = ?, notes = ?, updated_at = ? WHERE id = ?`,
		it.Quantity, it.Status, it.Notes, it.UpdatedAt, it.ID)
}

func (t *mysqlTx) DeleteItem(ctx context.Context, id string) error {
	return t.execOne(ctx, "delete order item", `DELETE FROM order_items WHERE id = ?`, id)
}

func (t *mysqlTx) CascadeItemStatus(ctx context.Context, orderIDs []string, status models.ItemStatus, skip []models.ItemStatus, now time.Time) (int64, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	query := `UPDATE order_items SET status = ?, updated_at = ? WHERE order_id IN (` + placeholders(len(orderIDs)) + `)`
	args := []any{status, now}
	for _, id := range orderIDs {
		args = append(args, id)
	}
	if len(skip) > 0 {
		query += ` AND status NOT IN (` + placeholders(len(skip)) + `)`
		for _, st := range skip {
			args = append(args, st)
		}
	}
	res, err := t.exec(ctx, "cascade item status", query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *mysqlTx) InsertPayment(ctx context.Context, p *models.Payment) error {
	_, err := t.exec(ctx, "insert payment",
		`INSERT INTO payments (`+paymentColumns+`) VALUES (`+placeholders(15)+`)`,
		p.ID, p.SessionID, p.OrderID, p.TotalAmount, p.SubTotal, p.Tax, p.Discount, p.PaymentMethod, p.Status,
		p.TransactionID, p.GatewayRef, p.PaymentTime, p.RefundReason, p.CreatedAt, p.UpdatedAt)
	return err
}

func (t *mysqlTx) UpdatePayment(ctx context.Context, p *models.Payment) error {
	return t.execOne(ctx, "update payment",
		`UPDATE payments SET total_amount = ?, sub_total = ?, tax = ?, discount = ?, payment_method = ?, status = ?,
            gateway_ref = ?, payment_time = ?, refund_reason = ?, updated_at = ? WHERE id = ?`,
		p.TotalAmount, p.SubTotal, p.Tax, p.Discount, p.PaymentMethod, p.Status,
		p.GatewayRef, p.PaymentTime, p.RefundReason, p.UpdatedAt, p.ID)
}

func (t *mysqlTx) InsertReservation(ctx context.Context, r *models.Reservation) error {
	_, err := t.exec(ctx, "insert reservation",
		`INSERT INTO reservations (`+reservationColumns+`) VALUES (`+placeholders(9)+`)`,
		r.ID, r.TableID, r.ReservationTime, r.PartySize, r.CustomerName, r.CustomerPhone, r.Status, r.CreatedAt, r.UpdatedAt)
	return err
}

func (t *mysqlTx) UpdateReservationStatus(ctx context.Context, id string, status models.ReservationStatus, now time.Time) error {
	return t.execOne(ctx, "update reservation status", `UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`, status, now, id)
}
