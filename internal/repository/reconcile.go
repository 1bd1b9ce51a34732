package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paperkeep/paperkeep/internal/models"
)

// ErrNotOwned is returned when an upsert targets a record id that exists but
// belongs to a different owner. The conflicting row is left untouched.
var ErrNotOwned = errors.New("record belongs to another owner")

// tableForType maps entity types to their authoritative tables.
var tableForType = map[models.EntityType]string{
	models.EntityReceipt:       "receipts",
	models.EntityDevice:        "devices",
	models.EntityReminder:      "reminders",
	models.EntityHouseholdBill: "household_bills",
	models.EntitySubscription:  "subscriptions",
	models.EntityDocument:      "documents",
	models.EntitySettings:      "settings",
}

// TableFor returns the table storing the given entity type, and whether the
// type is known at all.
func TableFor(t models.EntityType) (string, bool) {
	table, ok := tableForType[t]
	return table, ok
}

// PostgresReconcileRepository applies idempotent upserts and soft deletes
// against the authoritative PostgreSQL store.
//
// Every upsert follows the same authority rule: insert-or-replace keyed by
// id, applied only when the row's owner matches, with updated_at stamped by
// the server clock. On conflict, optional fields coalesce with the existing
// row so an update never clobbers a stored value with NULL. Calendar-day
// columns cast their incoming value to date, truncating any time component.
type PostgresReconcileRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresReconcileRepository creates a PostgresReconcileRepository using
// the provided *sql.DB.
func NewPostgresReconcileRepository(db *sql.DB) *PostgresReconcileRepository {
	return &PostgresReconcileRepository{DB: db}
}

// exec runs an upsert and enforces the owner scope: zero affected rows means
// the conflicting row belongs to someone else.
func (r *PostgresReconcileRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotOwned
	}
	return nil
}

// UpsertReceipt inserts or replaces a receipt for the owner.
func (r *PostgresReconcileRepository) UpsertReceipt(ctx context.Context, ownerID string, rec models.Receipt) error {
	return r.exec(ctx, `
		INSERT INTO receipts (id, owner_id, merchant, total, currency, purchase_date, category, notes, is_deleted, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, false, now())
		ON CONFLICT (id) DO UPDATE SET
			merchant = COALESCE(EXCLUDED.merchant, receipts.merchant),
			total = COALESCE(EXCLUDED.total, receipts.total),
			currency = COALESCE(EXCLUDED.currency, receipts.currency),
			purchase_date = COALESCE(EXCLUDED.purchase_date, receipts.purchase_date),
			category = COALESCE(EXCLUDED.category, receipts.category),
			notes = COALESCE(EXCLUDED.notes, receipts.notes),
			is_deleted = false,
			updated_at = now()
		WHERE receipts.owner_id = EXCLUDED.owner_id
	`, rec.ID, ownerID, rec.Merchant, rec.Total, rec.Currency, rec.PurchaseDate, rec.Category, rec.Notes)
}

// UpsertDevice inserts or replaces a device for the owner.
func (r *PostgresReconcileRepository) UpsertDevice(ctx context.Context, ownerID string, d models.Device) error {
	return r.exec(ctx, `
		INSERT INTO devices (id, owner_id, name, brand, model, receipt_id, warranty_until, notes, is_deleted, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8, false, now())
		ON CONFLICT (id) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, devices.name),
			brand = COALESCE(EXCLUDED.brand, devices.brand),
			model = COALESCE(EXCLUDED.model, devices.model),
			receipt_id = COALESCE(EXCLUDED.receipt_id, devices.receipt_id),
			warranty_until = COALESCE(EXCLUDED.warranty_until, devices.warranty_until),
			notes = COALESCE(EXCLUDED.notes, devices.notes),
			is_deleted = false,
			updated_at = now()
		WHERE devices.owner_id = EXCLUDED.owner_id
	`, d.ID, ownerID, d.Name, d.Brand, d.Model, d.ReceiptID, d.WarrantyUntil, d.Notes)
}

// UpsertReminder inserts or replaces a reminder for the owner.
func (r *PostgresReconcileRepository) UpsertReminder(ctx context.Context, ownerID string, rem models.Reminder) error {
	return r.exec(ctx, `
		INSERT INTO reminders (id, owner_id, title, due_at, done, notes, is_deleted, updated_at)
		VALUES ($1, $2, $3, $4::timestamptz, $5, $6, false, now())
		ON CONFLICT (id) DO UPDATE SET
			title = COALESCE(EXCLUDED.title, reminders.title),
			due_at = COALESCE(EXCLUDED.due_at, reminders.due_at),
			done = COALESCE(EXCLUDED.done, reminders.done),
			notes = COALESCE(EXCLUDED.notes, reminders.notes),
			is_deleted = false,
			updated_at = now()
		WHERE reminders.owner_id = EXCLUDED.owner_id
	`, rem.ID, ownerID, rem.Title, rem.DueAt, rem.Done, rem.Notes)
}

// UpsertHouseholdBill inserts or replaces a household bill for the owner.
func (r *PostgresReconcileRepository) UpsertHouseholdBill(ctx context.Context, ownerID string, b models.HouseholdBill) error {
	return r.exec(ctx, `
		INSERT INTO household_bills (id, owner_id, provider, amount, currency, due_date, period, paid, is_deleted, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, false, now())
		ON CONFLICT (id) DO UPDATE SET
			provider = COALESCE(EXCLUDED.provider, household_bills.provider),
			amount = COALESCE(EXCLUDED.amount, household_bills.amount),
			currency = COALESCE(EXCLUDED.currency, household_bills.currency),
			due_date = COALESCE(EXCLUDED.due_date, household_bills.due_date),
			period = COALESCE(EXCLUDED.period, household_bills.period),
			paid = COALESCE(EXCLUDED.paid, household_bills.paid),
			is_deleted = false,
			updated_at = now()
		WHERE household_bills.owner_id = EXCLUDED.owner_id
	`, b.ID, ownerID, b.Provider, b.Amount, b.Currency, b.DueDate, b.Period, b.Paid)
}

// UpsertSubscription inserts or replaces a subscription for the owner.
func (r *PostgresReconcileRepository) UpsertSubscription(ctx context.Context, ownerID string, s models.Subscription) error {
	return r.exec(ctx, `
		INSERT INTO subscriptions (id, owner_id, name, amount, currency, billing_cycle, next_renewal, active, is_deleted, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8, false, now())
		ON CONFLICT (id) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, subscriptions.name),
			amount = COALESCE(EXCLUDED.amount, subscriptions.amount),
			currency = COALESCE(EXCLUDED.currency, subscriptions.currency),
			billing_cycle = COALESCE(EXCLUDED.billing_cycle, subscriptions.billing_cycle),
			next_renewal = COALESCE(EXCLUDED.next_renewal, subscriptions.next_renewal),
			active = COALESCE(EXCLUDED.active, subscriptions.active),
			is_deleted = false,
			updated_at = now()
		WHERE subscriptions.owner_id = EXCLUDED.owner_id
	`, s.ID, ownerID, s.Name, s.Amount, s.Currency, s.BillingCycle, s.NextRenewal, s.Active)
}

// UpsertDocument inserts or replaces document metadata for the owner.
func (r *PostgresReconcileRepository) UpsertDocument(ctx context.Context, ownerID string, d models.Document) error {
	return r.exec(ctx, `
		INSERT INTO documents (id, owner_id, title, file_name, mime_type, size_bytes, notes, is_deleted, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, now())
		ON CONFLICT (id) DO UPDATE SET
			title = COALESCE(EXCLUDED.title, documents.title),
			file_name = COALESCE(EXCLUDED.file_name, documents.file_name),
			mime_type = COALESCE(EXCLUDED.mime_type, documents.mime_type),
			size_bytes = COALESCE(EXCLUDED.size_bytes, documents.size_bytes),
			notes = COALESCE(EXCLUDED.notes, documents.notes),
			is_deleted = false,
			updated_at = now()
		WHERE documents.owner_id = EXCLUDED.owner_id
	`, d.ID, ownerID, d.Title, d.FileName, d.MimeType, d.Size, d.Notes)
}

// UpsertSettings inserts or replaces the settings record for the owner.
func (r *PostgresReconcileRepository) UpsertSettings(ctx context.Context, ownerID string, s models.Settings) error {
	return r.exec(ctx, `
		INSERT INTO settings (id, owner_id, currency, locale, remind_days_before, is_deleted, updated_at)
		VALUES ($1, $2, $3, $4, $5, false, now())
		ON CONFLICT (id) DO UPDATE SET
			currency = COALESCE(EXCLUDED.currency, settings.currency),
			locale = COALESCE(EXCLUDED.locale, settings.locale),
			remind_days_before = COALESCE(EXCLUDED.remind_days_before, settings.remind_days_before),
			is_deleted = false,
			updated_at = now()
		WHERE settings.owner_id = EXCLUDED.owner_id
	`, s.ID, ownerID, s.Currency, s.Locale, s.RemindDaysBefore)
}

// SoftDelete flags the record as deleted and stamps updated_at. The row is
// kept so dependent records can still resolve their references. Deleting an
// id that does not exist (or was already deleted) is a no-op, so replays are
// harmless. table must come from TableFor.
func (r *PostgresReconcileRepository) SoftDelete(ctx context.Context, ownerID, id, table string) error {
	_, err := r.DB.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET is_deleted = true, updated_at = now()
		 WHERE owner_id = $1 AND id = $2
	`, table), ownerID, id)
	if err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}
	return nil
}

// ListActive returns all non-deleted records of one table for the owner as
// raw JSON rows. table must come from TableFor.
func (r *PostgresReconcileRepository) ListActive(ctx context.Context, ownerID, table string) ([]json.RawMessage, error) {
	rows, err := r.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT row_to_json(t) FROM %s t
		 WHERE owner_id = $1 AND is_deleted = false
		 ORDER BY updated_at DESC
	`, table), ownerID)
	if err != nil {
		return nil, fmt.Errorf("ListActive: %w", err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		var raw json.RawMessage
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		records = append(records, raw)
	}
	return records, rows.Err()
}
