package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/medical-mirrors/internal/validation"
	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
)

type weightedColumn struct {
	column string
	weight string
}

// searchColumns feeds each table's generated search_vector. Only scalar text
// columns qualify: generated expressions must be immutable.
var searchColumns = map[string][]weightedColumn{
	entities.TablePubmedArticles:    {{"title", "A"}, {"abstract", "B"}, {"journal", "C"}},
	entities.TableClinicalTrials:    {{"title", "A"}, {"brief_summary", "B"}, {"study_type", "C"}, {"phase", "D"}},
	entities.TableDrugInformation:   {{"generic_name", "A"}, {"brand_name", "A"}, {"indications_and_usage", "B"}, {"mechanism_of_action", "C"}, {"manufacturer", "D"}},
	entities.TableConsolidatedDrugs: {{"generic_name", "A"}, {"therapeutic_class", "B"}, {"indications_and_usage", "B"}, {"mechanism_of_action", "C"}},
	entities.TableIcd10Codes:        {{"code", "A"}, {"description", "A"}, {"category", "B"}, {"chapter", "C"}},
	entities.TableBillingCodes:      {{"code", "A"}, {"short_description", "A"}, {"long_description", "B"}, {"category", "C"}},
	entities.TableHealthTopics:      {{"title", "A"}, {"summary", "B"}, {"category", "C"}},
	entities.TableExercises:         {{"name", "A"}, {"target", "B"}, {"body_part", "B"}, {"equipment", "C"}},
	entities.TableFoodItems:         {{"description", "A"}, {"food_category", "B"}, {"brand_owner", "C"}, {"ingredients", "D"}},
}

var columnTypeOverrides = map[string]string{
	"enhanced_at": "TIMESTAMPTZ",
}

func columnType(f validation.Field) string {
	if t, ok := columnTypeOverrides[f.Name]; ok {
		return t
	}
	switch f.Kind {
	case validation.KindArray:
		return "TEXT[]"
	case validation.KindInt:
		return "INTEGER"
	case validation.KindFloat:
		return "DOUBLE PRECISION"
	case validation.KindBool:
		return "BOOLEAN"
	case validation.KindJSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

func searchVectorExpr(table string) string {
	parts := make([]string, 0, len(searchColumns[table]))
	for _, c := range searchColumns[table] {
		parts = append(parts, fmt.Sprintf("setweight(to_tsvector('english'::regconfig, coalesce(%s, '')), '%s')", c.column, c.weight))
	}
	return strings.Join(parts, " || ")
}

// CreateTableSQL returns the DDL of one storage table.
func CreateTableSQL(table string) (string, error) {
	fields, ok := tableFields(table)
	if !ok {
		return "", apperrors.NewValidationError(fmt.Sprintf("unknown table %q", table))
	}
	key := entities.KeyColumns[table]

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	for _, f := range fields {
		fmt.Fprintf(&b, "\t%s %s", f.Name, columnType(f))
		if f.Name == key {
			b.WriteString(" PRIMARY KEY")
		}
		b.WriteString(",\n")
	}
	b.WriteString("\tcreated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),\n")
	b.WriteString("\tupdated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),\n")
	fmt.Fprintf(&b, "\tsearch_vector tsvector GENERATED ALWAYS AS (%s) STORED\n)", searchVectorExpr(table))
	return b.String(), nil
}

// SchemaStatements returns the full DDL in a stable order.
func SchemaStatements() []string {
	tables := make([]string, 0, len(entities.KeyColumns))
	for table := range entities.KeyColumns {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	var stmts []string
	for _, table := range tables {
		ddl, err := CreateTableSQL(table)
		if err != nil {
			continue
		}
		stmts = append(stmts, ddl,
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_search ON %s USING GIN (search_vector)", table, table))
	}
	return append(stmts,
		"CREATE INDEX IF NOT EXISTS idx_drug_information_generic_name ON drug_information (lower(generic_name))",
		"CREATE INDEX IF NOT EXISTS idx_consolidated_drugs_confidence ON consolidated_drugs (confidence_score DESC)",
		"CREATE INDEX IF NOT EXISTS idx_health_topics_enhanced_at ON health_topics (enhanced_at)",
	)
}

// Migrate applies the schema in one transaction. Every statement is idempotent.
func Migrate(ctx context.Context, client *postgres.Client) error {
	stmts := SchemaStatements()
	err := client.WithTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%s: %w", firstLine(stmt), err)
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.NewPersistenceError("failed to apply schema", err)
	}
	log.Info().Int("statements", len(stmts)).Msg("schema applied")
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
