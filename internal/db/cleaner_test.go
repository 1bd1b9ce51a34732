package db

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"
)

func TestSoftDeleteCleanerSweepsEveryTable(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	defer mockDB.Close()

	for _, table := range recordTables {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM "+table)).
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartSoftDeleteCleaner(ctx, mockDB, 10*time.Millisecond, time.Hour, zap.NewNop())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mock.ExpectationsWereMet() == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("sweep never completed: %v", mock.ExpectationsWereMet())
}
