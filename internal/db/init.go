package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Every record table carries the same sync envelope: a client-minted id,
// an owner scope, a soft-delete flag and a server-stamped updated_at.
// device.receipt_id is deliberately not a foreign key so batch items can be
// applied in any order and a soft-deleted receipt keeps its device references.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    login TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS receipts (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL REFERENCES users(login),
    merchant TEXT,
    total NUMERIC(12,2),
    currency TEXT,
    purchase_date DATE,
    category TEXT,
    notes TEXT,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS devices (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL REFERENCES users(login),
    name TEXT,
    brand TEXT,
    model TEXT,
    receipt_id TEXT,
    warranty_until DATE,
    notes TEXT,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reminders (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL REFERENCES users(login),
    title TEXT,
    due_at TIMESTAMPTZ,
    done BOOLEAN,
    notes TEXT,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS household_bills (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL REFERENCES users(login),
    provider TEXT,
    amount NUMERIC(12,2),
    currency TEXT,
    due_date DATE,
    period TEXT,
    paid BOOLEAN,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL REFERENCES users(login),
    name TEXT,
    amount NUMERIC(12,2),
    currency TEXT,
    billing_cycle TEXT,
    next_renewal DATE,
    active BOOLEAN,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL REFERENCES users(login),
    title TEXT,
    file_name TEXT,
    mime_type TEXT,
    size_bytes BIGINT,
    notes TEXT,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS settings (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL REFERENCES users(login),
    currency TEXT,
    locale TEXT,
    remind_days_before INTEGER,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_receipts_owner ON receipts(owner_id);
CREATE INDEX IF NOT EXISTS idx_devices_owner ON devices(owner_id);
CREATE INDEX IF NOT EXISTS idx_reminders_owner ON reminders(owner_id);
CREATE INDEX IF NOT EXISTS idx_household_bills_owner ON household_bills(owner_id);
CREATE INDEX IF NOT EXISTS idx_subscriptions_owner ON subscriptions(owner_id);
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);
CREATE INDEX IF NOT EXISTS idx_settings_owner ON settings(owner_id);
`

func InitPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}
