package repositories

import (
	"context"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

// RecordRepository persists validated rows by natural key.
type RecordRepository interface {
	// UpsertRows writes rows into table in one transaction. A failure rolls
	// back only this call's rows.
	UpsertRows(ctx context.Context, table string, rows []entities.Row) (int, error)
}
