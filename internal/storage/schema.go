package storage

// schema is applied by initTables at startup and by the migrate command.
// live_table_id is non-null only while a session holds its table, which lets
// the unique index enforce one ACTIVE/PAID session per table.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS restaurant_tables (
        id VARCHAR(36) PRIMARY KEY,
        number INT NOT NULL,
        capacity INT NOT NULL,
        status VARCHAR(20) NOT NULL DEFAULT 'AVAILABLE',
        updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
        UNIQUE KEY uq_tables_number (number),
        INDEX idx_tables_status (status)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS menu_items (
        id VARCHAR(36) PRIMARY KEY,
        name VARCHAR(255) NOT NULL,
        price DECIMAL(12,2) NOT NULL,
        available BOOLEAN NOT NULL DEFAULT TRUE
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS table_sessions (
        id VARCHAR(36) PRIMARY KEY,
        table_id VARCHAR(36) NOT NULL,
        secret VARCHAR(64) NOT NULL,
        status VARCHAR(20) NOT NULL,
        customer_count INT NOT NULL,
        notes TEXT NOT NULL,
        start_time TIMESTAMP(6) NOT NULL,
        end_time TIMESTAMP(6) NULL,
        expires_at TIMESTAMP(6) NOT NULL,
        live_table_id VARCHAR(36) AS (IF(status IN ('ACTIVE','PAID'), table_id, NULL)) STORED,
        UNIQUE KEY uq_sessions_live_table (live_table_id),
        INDEX idx_sessions_table_status (table_id, status),
        CONSTRAINT fk_sessions_table FOREIGN KEY (table_id) REFERENCES restaurant_tables(id)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS orders (
        id VARCHAR(36) PRIMARY KEY,
        session_id VARCHAR(36) NULL,
        order_type VARCHAR(20) NOT NULL,
        status VARCHAR(20) NOT NULL,
        customer_name VARCHAR(255) NOT NULL DEFAULT '',
        customer_phone VARCHAR(32) NOT NULL DEFAULT '',
        notes TEXT NOT NULL,
        created_at TIMESTAMP(6) NOT NULL,
        updated_at TIMESTAMP(6) NOT NULL,
        INDEX idx_orders_session (session_id, status),
        CONSTRAINT fk_orders_session FOREIGN KEY (session_id) REFERENCES table_sessions(id)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS order_items (
        id VARCHAR(36) PRIMARY KEY,
        order_id VARCHAR(36) NOT NULL,
        menu_item_id VARCHAR(36) NOT NULL,
        name VARCHAR(255) NOT NULL,
        quantity INT NOT NULL,
        price_at_order DECIMAL(12,2) NOT NULL,
        status VARCHAR(20) NOT NULL,
        notes TEXT NOT NULL,
        created_at TIMESTAMP(6) NOT NULL,
        updated_at TIMESTAMP(6) NOT NULL,
        INDEX idx_items_order (order_id, status),
        CONSTRAINT fk_items_order FOREIGN KEY (order_id) REFERENCES orders(id)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS payments (
        id VARCHAR(36) PRIMARY KEY,
        session_id VARCHAR(36) NULL,
        order_id VARCHAR(36) NULL,
        total_amount DECIMAL(12,2) NOT NULL,
        sub_total DECIMAL(12,2) NOT NULL,
        tax DECIMAL(12,2) NOT NULL,
        discount DECIMAL(12,2) NOT NULL DEFAULT 0,
        payment_method VARCHAR(20) NOT NULL,
        status VARCHAR(20) NOT NULL,
        transaction_id VARCHAR(32) NOT NULL,
        gateway_ref VARCHAR(255) NOT NULL DEFAULT '',
        payment_time TIMESTAMP(6) NULL,
        refund_reason TEXT NOT NULL,
        created_at TIMESTAMP(6) NOT NULL,
        updated_at TIMESTAMP(6) NOT NULL,
        UNIQUE KEY uq_payments_session (session_id),
        UNIQUE KEY uq_payments_order (order_id),
        UNIQUE KEY uq_payments_transaction (transaction_id),
        INDEX idx_payments_status (status),
        CONSTRAINT chk_payments_target CHECK ((session_id IS NULL) <> (order_id IS NULL))
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS reservations (
        id VARCHAR(36) PRIMARY KEY,
        table_id VARCHAR(36) NOT NULL,
        reservation_time TIMESTAMP(6) NOT NULL,
        party_size INT NOT NULL,
        customer_name VARCHAR(255) NOT NULL DEFAULT '',
        customer_phone VARCHAR(32) NOT NULL DEFAULT '',
        status VARCHAR(20) NOT NULL,
        created_at TIMESTAMP(6) NOT NULL,
        updated_at TIMESTAMP(6) NOT NULL,
        INDEX idx_reservations_status_time (status, reservation_time),
        INDEX idx_reservations_table_time (table_id, reservation_time),
        CONSTRAINT fk_reservations_table FOREIGN KEY (table_id) REFERENCES restaurant_tables(id)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}
