package database

import (
	"context"
	"database/sql"
)

// Migrate creates the storefront schema. Statements are idempotent so boot
// and tests can run it unconditionally.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS goods (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(200) NOT NULL,
		price NUMERIC(10,2) NOT NULL,
		buy_limit INT NOT NULL DEFAULT 0,
		status SMALLINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS cards (
		id BIGSERIAL PRIMARY KEY,
		good_id BIGINT NOT NULL REFERENCES goods(id),
		card_info TEXT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'unused',
		order_id BIGINT,
		used_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// the reservation hot path counts and selects on (good_id, status)
	`CREATE INDEX IF NOT EXISTS idx_cards_good_status ON cards (good_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_cards_order ON cards (order_id)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		order_no VARCHAR(50) NOT NULL UNIQUE,
		user_id BIGINT,
		good_id BIGINT NOT NULL REFERENCES goods(id),
		good_name VARCHAR(200) NOT NULL,
		good_price NUMERIC(10,2) NOT NULL,
		quantity INT NOT NULL,
		total_amount NUMERIC(10,2) NOT NULL,
		contact_info VARCHAR(200),
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		paid_at TIMESTAMPTZ,
		delivered_at TIMESTAMPTZ,
		trade_no VARCHAR(100),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders (status, created_at)`,

	`CREATE TABLE IF NOT EXISTS order_details (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL REFERENCES orders(id),
		card_id BIGINT NOT NULL REFERENCES cards(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (order_id, card_id)
	)`,

	`CREATE TABLE IF NOT EXISTS payments (
		id BIGSERIAL PRIMARY KEY,
		payment_no VARCHAR(50) NOT NULL UNIQUE,
		order_id BIGINT NOT NULL REFERENCES orders(id),
		method VARCHAR(50) NOT NULL,
		amount NUMERIC(10,2) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		trade_no VARCHAR(100),
		intent_data TEXT,
		paid_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_order ON payments (order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_status_expires ON payments (status, expires_at)`,

	`CREATE TABLE IF NOT EXISTS payment_methods (
		id BIGSERIAL PRIMARY KEY,
		code VARCHAR(50) NOT NULL UNIQUE,
		name VARCHAR(100) NOT NULL,
		provider VARCHAR(50) NOT NULL,
		min_amount NUMERIC(10,2) NOT NULL DEFAULT 0,
		max_amount NUMERIC(10,2) NOT NULL DEFAULT 0,
		fee_rate NUMERIC(6,4) NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(200) NOT NULL UNIQUE,
		balance NUMERIC(10,2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS balance_records (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		type VARCHAR(20) NOT NULL,
		amount NUMERIC(10,2) NOT NULL,
		balance_before NUMERIC(10,2) NOT NULL,
		balance_after NUMERIC(10,2) NOT NULL,
		description VARCHAR(255),
		related_id BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_balance_records_user ON balance_records (user_id)`,
}
