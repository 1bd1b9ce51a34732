// Package models defines the core data structures for household records,
// pending sync mutations, and the batch sync wire contract.
package models

import (
	"encoding/json"
	"time"
)

// EntityType identifies one of the fixed record kinds the sync engine moves
// between the client store and the authoritative server.
type EntityType string

const (
	// EntityReceipt is a purchase receipt.
	EntityReceipt EntityType = "receipt"
	// EntityDevice is a device or appliance, optionally linked to a receipt.
	EntityDevice EntityType = "device"
	// EntityReminder is a warranty or bill reminder.
	EntityReminder EntityType = "reminder"
	// EntityHouseholdBill is a recurring household bill.
	EntityHouseholdBill EntityType = "householdBill"
	// EntitySubscription is a paid subscription.
	EntitySubscription EntityType = "subscription"
	// EntityDocument is a stored document's metadata.
	EntityDocument EntityType = "document"
	// EntitySettings is the per-user settings record.
	EntitySettings EntityType = "settings"
)

// EntityTypes lists every supported entity type.
var EntityTypes = []EntityType{
	EntityReceipt,
	EntityDevice,
	EntityReminder,
	EntityHouseholdBill,
	EntitySubscription,
	EntityDocument,
	EntitySettings,
}

// Valid reports whether t is one of the supported entity types.
func (t EntityType) Valid() bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Operation is the kind of mutation a queue entry carries.
type Operation string

const (
	// OpCreate records a new entity.
	OpCreate Operation = "create"
	// OpUpdate overwrites an existing entity.
	OpUpdate Operation = "update"
	// OpDelete soft-deletes an entity.
	OpDelete Operation = "delete"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	return op == OpCreate || op == OpUpdate || op == OpDelete
}

// Receipt is a purchase receipt. Optional fields are pointers so an update
// can leave a stored value untouched by omitting the field.
type Receipt struct {
	ID           string   `json:"id"`
	Merchant     *string  `json:"merchant,omitempty"`
	Total        *float64 `json:"total,omitempty"`
	Currency     *string  `json:"currency,omitempty"`
	PurchaseDate *string  `json:"purchaseDate,omitempty"`
	Category     *string  `json:"category,omitempty"`
	Notes        *string  `json:"notes,omitempty"`
}

// Device is a household device, optionally referencing the receipt it was
// bought with. The reference survives the receipt's soft deletion.
type Device struct {
	ID            string  `json:"id"`
	Name          *string `json:"name,omitempty"`
	Brand         *string `json:"brand,omitempty"`
	Model         *string `json:"model,omitempty"`
	ReceiptID     *string `json:"receiptId,omitempty"`
	WarrantyUntil *string `json:"warrantyUntil,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

// Reminder is a dated reminder, e.g. for a warranty expiry or a due bill.
type Reminder struct {
	ID    string  `json:"id"`
	Title *string `json:"title,omitempty"`
	DueAt *string `json:"dueAt,omitempty"`
	Done  *bool   `json:"done,omitempty"`
	Notes *string `json:"notes,omitempty"`
}

// HouseholdBill is a household bill for one billing period.
type HouseholdBill struct {
	ID       string   `json:"id"`
	Provider *string  `json:"provider,omitempty"`
	Amount   *float64 `json:"amount,omitempty"`
	Currency *string  `json:"currency,omitempty"`
	DueDate  *string  `json:"dueDate,omitempty"`
	Period   *string  `json:"period,omitempty"`
	Paid     *bool    `json:"paid,omitempty"`
}

// Subscription is a paid recurring subscription.
type Subscription struct {
	ID           string   `json:"id"`
	Name         *string  `json:"name,omitempty"`
	Amount       *float64 `json:"amount,omitempty"`
	Currency     *string  `json:"currency,omitempty"`
	BillingCycle *string  `json:"billingCycle,omitempty"`
	NextRenewal  *string  `json:"nextRenewal,omitempty"`
	Active       *bool    `json:"active,omitempty"`
}

// Document holds metadata for a stored document.
type Document struct {
	ID       string  `json:"id"`
	Title    *string `json:"title,omitempty"`
	FileName *string `json:"fileName,omitempty"`
	MimeType *string `json:"mimeType,omitempty"`
	Size     *int64  `json:"size,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// Settings is the per-user settings record. There is one per owner; its id is
// still client-minted like every other entity.
type Settings struct {
	ID               string  `json:"id"`
	Currency         *string `json:"currency,omitempty"`
	Locale           *string `json:"locale,omitempty"`
	RemindDaysBefore *int    `json:"remindDaysBefore,omitempty"`
}

// QueueEntry is one pending mutation awaiting transfer to the server.
// The queue keeps at most one entry per (EntityType, EntityID) pair;
// redundant local mutations are coalesced on enqueue.
type QueueEntry struct {
	EntityType EntityType
	EntityID   string
	Operation  Operation
	// Payload is the entity snapshot at enqueue time, nil for deletes.
	Payload json.RawMessage
	// CreatedAt is when the mutation was first queued.
	CreatedAt time.Time
	// RetryCount is the number of failed transfer attempts so far.
	RetryCount int
	// LastError is the most recent failure reason, empty if none.
	LastError string
}

// BatchItem is one mutation descriptor inside a batch sync request.
type BatchItem struct {
	EntityType EntityType      `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Operation  Operation       `json:"operation"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// BatchRequest is the body of POST /sync/batch.
type BatchRequest struct {
	Items []BatchItem `json:"items"`
}

// BatchResponse reports per-item outcomes of a processed batch. Errors holds
// at most MaxBatchErrors entries of the form "<entityType>/<entityId>: <msg>".
type BatchResponse struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Total   int      `json:"total"`
	Errors  []string `json:"errors"`
}

// MaxBatchErrors caps the number of error strings a BatchResponse carries.
const MaxBatchErrors = 10
