package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/lib/pq"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/repositories"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
)

var drugColumns = []any{
	"ndc", "generic_name", "brand_name", "manufacturer", "strength", "dosage_form", "route",
	"application_number", "approval_date", "orange_book_code", "therapeutic_class", "data_source",
	"indications_and_usage", "mechanism_of_action", "dosage_and_administration",
	"clinical_pharmacology", "pharmacokinetics", "boxed_warning",
	"contraindications", "warnings", "adverse_reactions", "precautions", "drug_interactions",
}

// DrugAdapter implements DrugRepository
type DrugAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewDrugAdapter creates a new drug adapter
func NewDrugAdapter(client *postgres.Client) repositories.DrugRepository {
	return &DrugAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// ListGenericNames returns the distinct raw generic names.
func (a *DrugAdapter) ListGenericNames(ctx context.Context) ([]string, error) {
	query, args, err := a.db.From(entities.TableDrugInformation).
		SelectDistinct("generic_name").
		Where(goqu.C("generic_name").IsNotNull(), goqu.C("generic_name").Neq("")).
		Order(goqu.C("generic_name").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list generic names", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.NewInternalError("failed to scan generic name", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GetRowsByGenericNames returns the raw rows of the given generic names.
func (a *DrugAdapter) GetRowsByGenericNames(ctx context.Context, names []string) ([]*entities.DrugInformation, error) {
	if len(names) == 0 {
		return []*entities.DrugInformation{}, nil
	}
	query, args, err := a.db.From(entities.TableDrugInformation).
		Select(drugColumns...).
		Where(goqu.Ex{"generic_name": names}).
		Order(goqu.C("generic_name").Asc(), goqu.C("ndc").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get drug rows", err)
	}
	defer rows.Close()

	var drugs []*entities.DrugInformation
	for rows.Next() {
		d, err := scanDrug(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan drug row", err)
		}
		drugs = append(drugs, d)
	}
	return drugs, rows.Err()
}

func scanDrug(rows *sql.Rows) (*entities.DrugInformation, error) {
	var (
		d            entities.DrugInformation
		text         [17]sql.NullString
		interactions []byte
	)
	err := rows.Scan(
		&d.NDC, &text[0], &text[1], &text[2], &text[3], &text[4], &text[5],
		&text[6], &text[7], &text[8], &text[9], &text[10],
		&text[11], &text[12], &text[13], &text[14], &text[15], &text[16],
		pq.Array(&d.Contraindications), pq.Array(&d.Warnings), pq.Array(&d.AdverseReactions),
		pq.Array(&d.Precautions), &interactions,
	)
	if err != nil {
		return nil, err
	}
	d.GenericName = text[0].String
	d.BrandName = text[1].String
	d.Manufacturer = text[2].String
	d.Strength = text[3].String
	d.DosageForm = text[4].String
	d.Route = text[5].String
	d.ApplicationNumber = text[6].String
	d.ApprovalDate = text[7].String
	d.OrangeBookCode = text[8].String
	d.TherapeuticClass = text[9].String
	d.DataSource = text[10].String
	d.IndicationsAndUsage = text[11].String
	d.MechanismOfAction = text[12].String
	d.DosageAndAdministration = text[13].String
	d.ClinicalPharmacology = text[14].String
	d.Pharmacokinetics = text[15].String
	d.BoxedWarning = text[16].String
	if len(interactions) > 0 {
		_ = json.Unmarshal(interactions, &d.DrugInteractions)
	}
	return &d, nil
}

// ExistingConsolidated reports which names already have a consolidated row.
func (a *DrugAdapter) ExistingConsolidated(ctx context.Context, names []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(names))
	if len(names) == 0 {
		return existing, nil
	}
	query, args, err := a.db.From(entities.TableConsolidatedDrugs).
		Select("generic_name").
		Where(goqu.Ex{"generic_name": names}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to check consolidated drugs", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.NewInternalError("failed to scan generic name", err)
		}
		existing[name] = true
	}
	return existing, rows.Err()
}

// UpsertConsolidated replaces the consolidated rows of drugs in one transaction.
func (a *DrugAdapter) UpsertConsolidated(ctx context.Context, drugs []*entities.ConsolidatedDrug) error {
	if len(drugs) == 0 {
		return nil
	}
	update := goqu.Record{"updated_at": goqu.L("NOW()")}
	for _, f := range consolidatedFields {
		if f.Name != "generic_name" {
			update[f.Name] = goqu.I("excluded." + f.Name)
		}
	}

	perStatement := maxBindParams / len(consolidatedFields)
	err := a.client.WithTx(ctx, func(tx *sql.Tx) error {
		for start := 0; start < len(drugs); start += perStatement {
			end := min(start+perStatement, len(drugs))
			records := make([]any, 0, end-start)
			for _, d := range drugs[start:end] {
				records = append(records, consolidatedRecord(d))
			}
			query, args, err := a.db.Insert(entities.TableConsolidatedDrugs).
				Rows(records...).
				OnConflict(goqu.DoUpdate("generic_name", update)).
				Prepared(true).
				ToSQL()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.NewPersistenceError(fmt.Sprintf("failed to upsert %d consolidated drugs", len(drugs)), err)
	}
	return nil
}

func consolidatedRecord(d *entities.ConsolidatedDrug) goqu.Record {
	formulations, _ := json.Marshal(nonNilFormulations(d.Formulations))
	interactions, _ := json.Marshal(nonNilMap(d.DrugInteractions))
	return goqu.Record{
		"generic_name":              d.GenericName,
		"brand_names":               pq.Array(nonNilStrings(d.BrandNames)),
		"manufacturers":             pq.Array(nonNilStrings(d.Manufacturers)),
		"approval_dates":            pq.Array(nonNilStrings(d.ApprovalDates)),
		"orange_book_codes":         pq.Array(nonNilStrings(d.OrangeBookCodes)),
		"application_numbers":       pq.Array(nonNilStrings(d.ApplicationNumbers)),
		"data_sources":              pq.Array(nonNilStrings(d.DataSources)),
		"indications_and_usage":     nullString(d.IndicationsAndUsage),
		"mechanism_of_action":       nullString(d.MechanismOfAction),
		"dosage_and_administration": nullString(d.DosageAndAdministration),
		"clinical_pharmacology":     nullString(d.ClinicalPharmacology),
		"pharmacokinetics":          nullString(d.Pharmacokinetics),
		"boxed_warning":             nullString(d.BoxedWarning),
		"therapeutic_class":         nullString(d.TherapeuticClass),
		"contraindications":         pq.Array(nonNilStrings(d.Contraindications)),
		"warnings":                  pq.Array(nonNilStrings(d.Warnings)),
		"adverse_reactions":         pq.Array(nonNilStrings(d.AdverseReactions)),
		"precautions":               pq.Array(nonNilStrings(d.Precautions)),
		"formulations":              string(formulations),
		"drug_interactions":         string(interactions),
		"total_formulations":        d.TotalFormulations,
		"has_clinical_data":         d.HasClinicalData,
		"confidence_score":          d.ConfidenceScore,
		"source_row_count":          d.SourceRowCount,
	}
}

// ListConsolidated pages consolidated drugs ordered by generic name.
func (a *DrugAdapter) ListConsolidated(ctx context.Context, after string, limit int) ([]*entities.ConsolidatedDrug, error) {
	if limit <= 0 {
		limit = 1000
	}
	cols := make([]any, 0, len(consolidatedFields)+1)
	for _, name := range fieldNames(consolidatedFields) {
		cols = append(cols, name)
	}
	cols = append(cols, "updated_at")

	query, args, err := a.db.From(entities.TableConsolidatedDrugs).
		Select(cols...).
		Where(goqu.C("generic_name").Gt(after)).
		Order(goqu.C("generic_name").Asc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list consolidated drugs", err)
	}
	defer rows.Close()

	var drugs []*entities.ConsolidatedDrug
	for rows.Next() {
		var updatedAt time.Time
		record, err := scanRecord(rows.Scan, consolidatedFields, &updatedAt)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan consolidated drug", err)
		}
		d, err := consolidatedFromRecord(record)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to decode consolidated drug", err)
		}
		d.UpdatedAt = updatedAt
		drugs = append(drugs, d)
	}
	return drugs, rows.Err()
}

// consolidatedFromRecord round-trips a scanned record through JSON; the
// record keys match the entity's json tags.
func consolidatedFromRecord(record map[string]any) (*entities.ConsolidatedDrug, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var d entities.ConsolidatedDrug
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateScores rewrites confidence_score and has_clinical_data only.
func (a *DrugAdapter) UpdateScores(ctx context.Context, updates []repositories.ScoreUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	err := a.client.WithTx(ctx, func(tx *sql.Tx) error {
		for _, u := range updates {
			query, args, err := a.db.Update(entities.TableConsolidatedDrugs).
				Set(goqu.Record{
					"confidence_score":  u.ConfidenceScore,
					"has_clinical_data": u.HasClinicalData,
					"updated_at":        goqu.L("NOW()"),
				}).
				Where(goqu.Ex{"generic_name": u.GenericName}).
				Prepared(true).
				ToSQL()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.NewPersistenceError(fmt.Sprintf("failed to update %d confidence scores", len(updates)), err)
	}
	return nil
}

// ApplyDrugClasses fills empty therapeutic classes from classes, keyed by
// lowercased generic name. Returns the number of rows changed.
func (a *DrugAdapter) ApplyDrugClasses(ctx context.Context, classes map[string]string) (int, error) {
	if len(classes) == 0 {
		return 0, nil
	}
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)

	var changed int64
	err := a.client.WithTx(ctx, func(tx *sql.Tx) error {
		for _, name := range names {
			query, args, err := a.db.Update(entities.TableDrugInformation).
				Set(goqu.Record{"therapeutic_class": classes[name], "updated_at": goqu.L("NOW()")}).
				Where(
					goqu.L("lower(generic_name) = ?", name),
					goqu.Or(goqu.C("therapeutic_class").IsNull(), goqu.C("therapeutic_class").Eq("")),
				).
				Prepared(true).
				ToSQL()
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			changed += n
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.NewPersistenceError("failed to apply drug classes", err)
	}
	return int(changed), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilFormulations(f []entities.Formulation) []entities.Formulation {
	if f == nil {
		return []entities.Formulation{}
	}
	return f
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
