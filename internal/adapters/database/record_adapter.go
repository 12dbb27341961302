package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/repositories"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/medical-mirrors/internal/validation"
	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
)

// maxBindParams stays under PostgreSQL's 65535 bind parameter limit.
const maxBindParams = 60000

// RecordAdapter implements RecordRepository with natural-key upserts.
type RecordAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewRecordAdapter creates a new record adapter
func NewRecordAdapter(client *postgres.Client) repositories.RecordRepository {
	return &RecordAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// UpsertRows inserts rows, updating existing keys. Non-key columns keep
// their stored value when the incoming one is NULL. Rows repeating a key
// within the call collapse to the last one.
func (a *RecordAdapter) UpsertRows(ctx context.Context, table string, rows []entities.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	schema, ok := validation.SchemaFor(table)
	key, known := entities.KeyColumns[table]
	if !ok || !known {
		return 0, apperrors.NewValidationError(fmt.Sprintf("unknown table %q", table))
	}

	rows = dedupeByKey(rows, key)
	statements, err := a.upsertStatements(table, key, schema.Fields, rows)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build upsert query", err)
	}

	err = a.client.WithTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.NewPersistenceError(fmt.Sprintf("failed to upsert %d rows into %s", len(rows), table), err)
	}
	return len(rows), nil
}

type statement struct {
	query string
	args  []any
}

func (a *RecordAdapter) upsertStatements(table, key string, fields []validation.Field, rows []entities.Row) ([]statement, error) {
	update := goqu.Record{"updated_at": goqu.L("NOW()")}
	for _, f := range fields {
		if f.Name == key {
			continue
		}
		update[f.Name] = goqu.COALESCE(goqu.I("excluded."+f.Name), goqu.I(table+"."+f.Name))
	}
	conflict := goqu.DoUpdate(key, update)

	perStatement := maxBindParams / len(fields)
	var stmts []statement
	for start := 0; start < len(rows); start += perStatement {
		end := min(start+perStatement, len(rows))
		records := make([]any, 0, end-start)
		for _, row := range rows[start:end] {
			records = append(records, toRecord(fields, row))
		}
		query, args, err := a.db.Insert(table).
			Rows(records...).
			OnConflict(conflict).
			Prepared(true).
			ToSQL()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, statement{query: query, args: args})
	}
	return stmts, nil
}

func toRecord(fields []validation.Field, row entities.Row) goqu.Record {
	rec := make(goqu.Record, len(fields))
	for _, f := range fields {
		rec[f.Name] = dbValue(f.Kind, row[f.Name])
	}
	return rec
}

func dedupeByKey(rows []entities.Row, key string) []entities.Row {
	index := make(map[any]int, len(rows))
	out := make([]entities.Row, 0, len(rows))
	for _, row := range rows {
		k := row[key]
		if i, ok := index[k]; ok {
			out[i] = row
			continue
		}
		index[k] = len(out)
		out = append(out, row)
	}
	return out
}
