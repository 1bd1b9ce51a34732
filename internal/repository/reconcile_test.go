package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/paperkeep/paperkeep/internal/models"
)

func setupReconcileMock(t *testing.T) (*PostgresReconcileRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	repo := NewPostgresReconcileRepository(db)
	cleanup := func() { db.Close() }
	return repo, mock, cleanup
}

func TestTableFor(t *testing.T) {
	for _, et := range models.EntityTypes {
		if _, ok := TableFor(et); !ok {
			t.Errorf("no table mapped for %s", et)
		}
	}
	if _, ok := TableFor("bogus"); ok {
		t.Error("unknown entity type must not map to a table")
	}
}

func TestUpsertReceipt(t *testing.T) {
	repo, mock, cleanup := setupReconcileMock(t)
	defer cleanup()

	merchant := "Acme"
	total := 100.0
	date := "2025-01-15"
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO receipts`)).
		WithArgs("r1", "alice", merchant, total, nil, date, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertReceipt(context.Background(), "alice", models.Receipt{
		ID:           "r1",
		Merchant:     &merchant,
		Total:        &total,
		PurchaseDate: &date,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpsertReceipt_NotOwned(t *testing.T) {
	repo, mock, cleanup := setupReconcileMock(t)
	defer cleanup()

	// The conflicting id belongs to another owner: the guarded upsert
	// touches zero rows.
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO receipts`)).
		WithArgs("r1", "mallory", nil, nil, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpsertReceipt(context.Background(), "mallory", models.Receipt{ID: "r1"})
	if !errors.Is(err, ErrNotOwned) {
		t.Errorf("error = %v, want ErrNotOwned", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpsertDevice(t *testing.T) {
	repo, mock, cleanup := setupReconcileMock(t)
	defer cleanup()

	name := "Washing machine"
	receiptID := "r1"
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO devices`)).
		WithArgs("d1", "alice", name, nil, nil, receiptID, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertDevice(context.Background(), "alice", models.Device{
		ID:        "d1",
		Name:      &name,
		ReceiptID: &receiptID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpsertSettings(t *testing.T) {
	repo, mock, cleanup := setupReconcileMock(t)
	defer cleanup()

	currency := "EUR"
	remind := 7
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO settings`)).
		WithArgs("s1", "alice", currency, nil, remind).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertSettings(context.Background(), "alice", models.Settings{
		ID:               "s1",
		Currency:         &currency,
		RemindDaysBefore: &remind,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSoftDelete(t *testing.T) {
	repo, mock, cleanup := setupReconcileMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE receipts SET is_deleted = true, updated_at = now()`)).
		WithArgs("alice", "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SoftDelete(context.Background(), "alice", "r1", "receipts"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSoftDelete_MissingRowIsNoop(t *testing.T) {
	repo, mock, cleanup := setupReconcileMock(t)
	defer cleanup()

	// Deleting an unknown or already deleted id succeeds so that replayed
	// delete mutations stay harmless.
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE receipts SET is_deleted = true, updated_at = now()`)).
		WithArgs("alice", "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SoftDelete(context.Background(), "alice", "gone", "receipts"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSoftDelete_QueryError(t *testing.T) {
	repo, mock, cleanup := setupReconcileMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE receipts SET is_deleted = true, updated_at = now()`)).
		WithArgs("alice", "r1").
		WillReturnError(errors.New("connection reset"))

	if err := repo.SoftDelete(context.Background(), "alice", "r1", "receipts"); err == nil {
		t.Error("expected query error to surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestListActive(t *testing.T) {
	repo, mock, cleanup := setupReconcileMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"row_to_json"}).
		AddRow([]byte(`{"id":"r2","merchant":"Acme"}`)).
		AddRow([]byte(`{"id":"r1","merchant":"Bolt"}`))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT row_to_json(t) FROM receipts t`)).
		WithArgs("alice").
		WillReturnRows(rows)

	records, err := repo.ListActive(context.Background(), "alice", "receipts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if string(records[0]) != `{"id":"r2","merchant":"Acme"}` {
		t.Errorf("first record = %s", records[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestListActive_Empty(t *testing.T) {
	repo, mock, cleanup := setupReconcileMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT row_to_json(t) FROM documents t`)).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"row_to_json"}))

	records, err := repo.ListActive(context.Background(), "alice", "documents")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %v, want none", records)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
