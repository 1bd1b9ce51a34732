package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/paperkeep/paperkeep/internal/models"
	"github.com/paperkeep/paperkeep/internal/repository"
)

// itemConcurrency bounds how many items of one batch are applied in parallel.
// Items are scoped to independent rows, so parallel application is safe.
const itemConcurrency = 4

// ReconcileRepository defines the persistence operations needed by the
// SyncService. One upsert per entity type, one shared soft delete.
type ReconcileRepository interface {
	UpsertReceipt(ctx context.Context, ownerID string, r models.Receipt) error
	UpsertDevice(ctx context.Context, ownerID string, d models.Device) error
	UpsertReminder(ctx context.Context, ownerID string, r models.Reminder) error
	UpsertHouseholdBill(ctx context.Context, ownerID string, b models.HouseholdBill) error
	UpsertSubscription(ctx context.Context, ownerID string, s models.Subscription) error
	UpsertDocument(ctx context.Context, ownerID string, d models.Document) error
	UpsertSettings(ctx context.Context, ownerID string, s models.Settings) error
	SoftDelete(ctx context.Context, ownerID, id, table string) error
	ListActive(ctx context.Context, ownerID, table string) ([]json.RawMessage, error)
}

// SyncService reconciles batches of client mutations against the
// authoritative store.
type SyncService struct {
	repo ReconcileRepository
}

// NewSyncService constructs a SyncService with the provided repository.
func NewSyncService(repo ReconcileRepository) *SyncService {
	return &SyncService{repo: repo}
}

// ProcessBatch applies every item of the batch independently: one item's
// failure never skips or rolls back the others. It returns per-batch counts
// and up to models.MaxBatchErrors error strings in item order.
func (s *SyncService) ProcessBatch(ctx context.Context, ownerID string, items []models.BatchItem) models.BatchResponse {
	itemErrs := make([]error, len(items))

	var wg sync.WaitGroup
	sem := make(chan struct{}, itemConcurrency)
	for i := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			itemErrs[i] = s.applyItem(ctx, ownerID, items[i])
		}(i)
	}
	wg.Wait()

	resp := models.BatchResponse{Total: len(items), Errors: []string{}}
	for i, err := range itemErrs {
		if err == nil {
			resp.Success++
			continue
		}
		resp.Failed++
		if len(resp.Errors) < models.MaxBatchErrors {
			resp.Errors = append(resp.Errors,
				fmt.Sprintf("%s/%s: %s", items[i].EntityType, items[i].EntityID, err))
		}
	}
	return resp
}

// applyItem maps one mutation descriptor onto an idempotent upsert or soft
// delete scoped to the owner.
func (s *SyncService) applyItem(ctx context.Context, ownerID string, item models.BatchItem) error {
	table, known := repository.TableFor(item.EntityType)
	if !known {
		return fmt.Errorf("Unsupported entity type: %s", item.EntityType)
	}
	if item.EntityID == "" {
		return fmt.Errorf("missing entity id")
	}

	switch item.Operation {
	case models.OpDelete:
		return s.repo.SoftDelete(ctx, ownerID, item.EntityID, table)
	case models.OpCreate, models.OpUpdate:
		return s.upsert(ctx, ownerID, item)
	default:
		return fmt.Errorf("Unsupported operation: %s", item.Operation)
	}
}

func (s *SyncService) upsert(ctx context.Context, ownerID string, item models.BatchItem) error {
	if len(item.Data) == 0 {
		return fmt.Errorf("missing payload")
	}

	// The id in the descriptor is authoritative; the server never mints its
	// own ids for client-created records.
	switch item.EntityType {
	case models.EntityReceipt:
		var rec models.Receipt
		if err := json.Unmarshal(item.Data, &rec); err != nil {
			return fmt.Errorf("invalid payload: %v", err)
		}
		rec.ID = item.EntityID
		return s.repo.UpsertReceipt(ctx, ownerID, rec)
	case models.EntityDevice:
		var d models.Device
		if err := json.Unmarshal(item.Data, &d); err != nil {
			return fmt.Errorf("invalid payload: %v", err)
		}
		d.ID = item.EntityID
		return s.repo.UpsertDevice(ctx, ownerID, d)
	case models.EntityReminder:
		var rem models.Reminder
		if err := json.Unmarshal(item.Data, &rem); err != nil {
			return fmt.Errorf("invalid payload: %v", err)
		}
		rem.ID = item.EntityID
		return s.repo.UpsertReminder(ctx, ownerID, rem)
	case models.EntityHouseholdBill:
		var b models.HouseholdBill
		if err := json.Unmarshal(item.Data, &b); err != nil {
			return fmt.Errorf("invalid payload: %v", err)
		}
		b.ID = item.EntityID
		return s.repo.UpsertHouseholdBill(ctx, ownerID, b)
	case models.EntitySubscription:
		var sub models.Subscription
		if err := json.Unmarshal(item.Data, &sub); err != nil {
			return fmt.Errorf("invalid payload: %v", err)
		}
		sub.ID = item.EntityID
		return s.repo.UpsertSubscription(ctx, ownerID, sub)
	case models.EntityDocument:
		var doc models.Document
		if err := json.Unmarshal(item.Data, &doc); err != nil {
			return fmt.Errorf("invalid payload: %v", err)
		}
		doc.ID = item.EntityID
		return s.repo.UpsertDocument(ctx, ownerID, doc)
	case models.EntitySettings:
		var set models.Settings
		if err := json.Unmarshal(item.Data, &set); err != nil {
			return fmt.Errorf("invalid payload: %v", err)
		}
		set.ID = item.EntityID
		return s.repo.UpsertSettings(ctx, ownerID, set)
	}
	return fmt.Errorf("Unsupported entity type: %s", item.EntityType)
}

// ListRecords returns all active records of one entity type for the owner.
func (s *SyncService) ListRecords(ctx context.Context, ownerID string, t models.EntityType) ([]json.RawMessage, error) {
	table, known := repository.TableFor(t)
	if !known {
		return nil, fmt.Errorf("Unsupported entity type: %s", t)
	}
	return s.repo.ListActive(ctx, ownerID, table)
}
