package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// recordTables lists every table the cleaner sweeps.
var recordTables = []string{
	"receipts",
	"devices",
	"reminders",
	"household_bills",
	"subscriptions",
	"documents",
	"settings",
}

// StartSoftDeleteCleaner purges soft-deleted records older than retention
// on the given interval. Rows stay retrievable for referential integrity
// checks until the retention window has passed.
func StartSoftDeleteCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-retention)
				for _, table := range recordTables {
					res, err := db.ExecContext(ctx, fmt.Sprintf(`
                        DELETE FROM %s
                         WHERE is_deleted = true
                           AND updated_at < $1
                    `, table), cutoff)
					if err != nil {
						log.Error("failed to clean soft-deleted records",
							zap.String("table", table), zap.Error(err))
						continue
					}
					if rows, _ := res.RowsAffected(); rows > 0 {
						log.Info("cleaned soft-deleted records",
							zap.String("table", table), zap.Int64("removed", rows))
					}
				}
			}
		}
	}()
}
