package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paperkeep/paperkeep/internal/models"
)

// ErrNotFound is returned when a read or delete targets an unknown entity.
var ErrNotFound = errors.New("entity not found")

// Add writes a new entity optimistically and queues its create mutation in
// the same transaction, so a crash never leaves one without the other.
func (s *Store) Add(ctx context.Context, t models.EntityType, id string, payload []byte) error {
	return s.save(ctx, t, id, payload, models.OpCreate)
}

// Update overwrites the local entity and queues an update mutation
// atomically with it.
func (s *Store) Update(ctx context.Context, t models.EntityType, id string, payload []byte) error {
	return s.save(ctx, t, id, payload, models.OpUpdate)
}

func (s *Store) save(ctx context.Context, t models.EntityType, id string, payload []byte, op models.Operation) error {
	if !t.Valid() {
		return fmt.Errorf("unsupported entity type: %s", t)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (entity_type, id, payload, is_deleted, updated_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT (entity_type, id) DO UPDATE SET
			payload = excluded.payload,
			is_deleted = 0,
			updated_at = excluded.updated_at
	`, string(t), id, string(payload), nowString())
	if err != nil {
		return fmt.Errorf("save entity: %w", err)
	}

	if _, err := enqueueTx(ctx, tx, t, id, op, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete soft-deletes the local entity and queues a delete mutation
// atomically. If the entity was created offline and never synced, both the
// entity row and the queue entry vanish instead: the server never saw it.
func (s *Store) Delete(ctx context.Context, t models.EntityType, id string) error {
	if !t.Valid() {
		return fmt.Errorf("unsupported entity type: %s", t)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE entities SET is_deleted = 1, updated_at = ?
		 WHERE entity_type = ? AND id = ? AND is_deleted = 0
	`, nowString(), string(t), id)
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}

	dropped, err := enqueueTx(ctx, tx, t, id, models.OpDelete, nil)
	if err != nil {
		return err
	}
	if dropped {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM entities WHERE entity_type = ? AND id = ?
		`, string(t), id); err != nil {
			return fmt.Errorf("remove unsynced entity: %w", err)
		}
	}
	return tx.Commit()
}

// ApplyRemote upserts an entity fetched from the server without queuing a
// mutation. Used when hydrating a fresh local store.
func (s *Store) ApplyRemote(ctx context.Context, t models.EntityType, id string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (entity_type, id, payload, is_deleted, updated_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT (entity_type, id) DO UPDATE SET
			payload = excluded.payload,
			is_deleted = 0,
			updated_at = excluded.updated_at
	`, string(t), id, string(payload), nowString())
	if err != nil {
		return fmt.Errorf("apply remote: %w", err)
	}
	return nil
}

// Get returns the payload of one active entity.
func (s *Store) Get(ctx context.Context, t models.EntityType, id string) (json.RawMessage, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM entities
		 WHERE entity_type = ? AND id = ? AND is_deleted = 0
	`, string(t), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	return json.RawMessage(payload), nil
}

// ListActive returns the payloads of all non-deleted entities of one type,
// most recently updated first.
func (s *Store) ListActive(ctx context.Context, t models.EntityType) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM entities
		 WHERE entity_type = ? AND is_deleted = 0
		 ORDER BY updated_at DESC
	`, string(t))
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var payloads []json.RawMessage
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		payloads = append(payloads, json.RawMessage(payload))
	}
	return payloads, rows.Err()
}

// Typed write helpers the UI layer calls; each marshals its record and
// stores it under the matching entity type.

// AddReceipt queues the creation of a receipt.
func (s *Store) AddReceipt(ctx context.Context, r models.Receipt) error {
	return s.addTyped(ctx, models.EntityReceipt, r.ID, r)
}

// UpdateReceipt queues an update of a receipt.
func (s *Store) UpdateReceipt(ctx context.Context, r models.Receipt) error {
	return s.updateTyped(ctx, models.EntityReceipt, r.ID, r)
}

// AddDevice queues the creation of a device.
func (s *Store) AddDevice(ctx context.Context, d models.Device) error {
	return s.addTyped(ctx, models.EntityDevice, d.ID, d)
}

// UpdateDevice queues an update of a device.
func (s *Store) UpdateDevice(ctx context.Context, d models.Device) error {
	return s.updateTyped(ctx, models.EntityDevice, d.ID, d)
}

// AddReminder queues the creation of a reminder.
func (s *Store) AddReminder(ctx context.Context, r models.Reminder) error {
	return s.addTyped(ctx, models.EntityReminder, r.ID, r)
}

// UpdateReminder queues an update of a reminder.
func (s *Store) UpdateReminder(ctx context.Context, r models.Reminder) error {
	return s.updateTyped(ctx, models.EntityReminder, r.ID, r)
}

// AddHouseholdBill queues the creation of a household bill.
func (s *Store) AddHouseholdBill(ctx context.Context, b models.HouseholdBill) error {
	return s.addTyped(ctx, models.EntityHouseholdBill, b.ID, b)
}

// UpdateHouseholdBill queues an update of a household bill.
func (s *Store) UpdateHouseholdBill(ctx context.Context, b models.HouseholdBill) error {
	return s.updateTyped(ctx, models.EntityHouseholdBill, b.ID, b)
}

// AddSubscription queues the creation of a subscription.
func (s *Store) AddSubscription(ctx context.Context, sub models.Subscription) error {
	return s.addTyped(ctx, models.EntitySubscription, sub.ID, sub)
}

// UpdateSubscription queues an update of a subscription.
func (s *Store) UpdateSubscription(ctx context.Context, sub models.Subscription) error {
	return s.updateTyped(ctx, models.EntitySubscription, sub.ID, sub)
}

// AddDocument queues the creation of document metadata.
func (s *Store) AddDocument(ctx context.Context, d models.Document) error {
	return s.addTyped(ctx, models.EntityDocument, d.ID, d)
}

// UpdateDocument queues an update of document metadata.
func (s *Store) UpdateDocument(ctx context.Context, d models.Document) error {
	return s.updateTyped(ctx, models.EntityDocument, d.ID, d)
}

// SaveSettings creates or updates the settings record.
func (s *Store) SaveSettings(ctx context.Context, set models.Settings) error {
	if _, err := s.Get(ctx, models.EntitySettings, set.ID); errors.Is(err, ErrNotFound) {
		return s.addTyped(ctx, models.EntitySettings, set.ID, set)
	}
	return s.updateTyped(ctx, models.EntitySettings, set.ID, set)
}

func (s *Store) addTyped(ctx context.Context, t models.EntityType, id string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", t, err)
	}
	return s.Add(ctx, t, id, payload)
}

func (s *Store) updateTyped(ctx context.Context, t models.EntityType, id string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", t, err)
	}
	return s.Update(ctx, t, id, payload)
}
