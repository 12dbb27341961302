package database

import (
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/validation"
)

var consolidatedFields = []validation.Field{
	{Name: "generic_name", Kind: validation.KindString},
	{Name: "brand_names", Kind: validation.KindArray},
	{Name: "manufacturers", Kind: validation.KindArray},
	{Name: "approval_dates", Kind: validation.KindArray},
	{Name: "orange_book_codes", Kind: validation.KindArray},
	{Name: "application_numbers", Kind: validation.KindArray},
	{Name: "data_sources", Kind: validation.KindArray},
	{Name: "indications_and_usage", Kind: validation.KindString},
	{Name: "mechanism_of_action", Kind: validation.KindString},
	{Name: "dosage_and_administration", Kind: validation.KindString},
	{Name: "clinical_pharmacology", Kind: validation.KindString},
	{Name: "pharmacokinetics", Kind: validation.KindString},
	{Name: "boxed_warning", Kind: validation.KindString},
	{Name: "therapeutic_class", Kind: validation.KindString},
	{Name: "contraindications", Kind: validation.KindArray},
	{Name: "warnings", Kind: validation.KindArray},
	{Name: "adverse_reactions", Kind: validation.KindArray},
	{Name: "precautions", Kind: validation.KindArray},
	{Name: "formulations", Kind: validation.KindJSON},
	{Name: "drug_interactions", Kind: validation.KindJSON},
	{Name: "total_formulations", Kind: validation.KindInt},
	{Name: "has_clinical_data", Kind: validation.KindBool},
	{Name: "confidence_score", Kind: validation.KindFloat},
	{Name: "source_row_count", Kind: validation.KindInt},
}

// Cross reference columns carried by health_topics beside the parsed ones.
var topicEnrichmentFields = []validation.Field{
	{Name: "search_terms", Kind: validation.KindArray},
	{Name: "medical_entities", Kind: validation.KindArray},
	{Name: "related_drugs", Kind: validation.KindJSON},
	{Name: "related_trials", Kind: validation.KindJSON},
	{Name: "related_papers", Kind: validation.KindJSON},
	{Name: "related_foods", Kind: validation.KindJSON},
	{Name: "related_exercises", Kind: validation.KindJSON},
	{Name: "monitoring_parameters", Kind: validation.KindArray},
	{Name: "patient_resources", Kind: validation.KindArray},
	{Name: "provider_notes", Kind: validation.KindString},
	{Name: "evidence_level", Kind: validation.KindString},
	{Name: "enhanced_at", Kind: validation.KindDate},
}

// tableFields returns every stored column of a storage table.
func tableFields(table string) ([]validation.Field, bool) {
	if !entities.IsKnownTable(table) {
		return nil, false
	}
	switch table {
	case entities.TableConsolidatedDrugs:
		return consolidatedFields, true
	case entities.TableHealthTopics:
		s, _ := validation.SchemaFor(table)
		fields := make([]validation.Field, 0, len(s.Fields)+len(topicEnrichmentFields))
		fields = append(fields, s.Fields...)
		return append(fields, topicEnrichmentFields...), true
	}
	s, ok := validation.SchemaFor(table)
	return s.Fields, ok
}

func fieldNames(fields []validation.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func fieldByName(fields []validation.Field, name string) (validation.Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return validation.Field{}, false
}

func hasField(fields []validation.Field, name string) bool {
	_, ok := fieldByName(fields, name)
	return ok
}

// dbValue converts a validated value into a driver argument. Empty strings
// become NULL so an upsert never blanks a populated column.
func dbValue(kind validation.Kind, v any) any {
	if v == nil {
		return nil
	}
	switch kind {
	case validation.KindArray:
		if items, ok := v.([]string); ok {
			return pq.Array(items)
		}
		return nil
	case validation.KindJSON:
		switch val := v.(type) {
		case string:
			return val
		case []byte:
			return string(val)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(data)
	case validation.KindString, validation.KindDate:
		if s, ok := v.(string); ok && s == "" {
			return nil
		}
	}
	return v
}

// scanTarget allocates a destination for a column of kind.
func scanTarget(kind validation.Kind) any {
	switch kind {
	case validation.KindArray:
		return &pq.StringArray{}
	case validation.KindInt:
		return &sql.NullInt64{}
	case validation.KindFloat:
		return &sql.NullFloat64{}
	case validation.KindBool:
		return &sql.NullBool{}
	case validation.KindJSON:
		return &[]byte{}
	default:
		return &sql.NullString{}
	}
}

// scannedValue unwraps a scanTarget into a plain value; NULL becomes nil.
func scannedValue(target any) any {
	switch t := target.(type) {
	case *pq.StringArray:
		if *t == nil {
			return []string{}
		}
		return []string(*t)
	case *sql.NullInt64:
		if !t.Valid {
			return nil
		}
		return t.Int64
	case *sql.NullFloat64:
		if !t.Valid {
			return nil
		}
		return t.Float64
	case *sql.NullBool:
		if !t.Valid {
			return nil
		}
		return t.Bool
	case *[]byte:
		if len(*t) == 0 {
			return nil
		}
		var v any
		if err := json.Unmarshal(*t, &v); err != nil {
			return string(*t)
		}
		return v
	case *sql.NullString:
		if !t.Valid {
			return nil
		}
		return t.String
	}
	return nil
}

// scanRecord scans one row of fields (plus trailing extras) into a map.
func scanRecord(scan func(dest ...any) error, fields []validation.Field, extras ...any) (map[string]any, error) {
	targets := make([]any, 0, len(fields)+len(extras))
	for _, f := range fields {
		targets = append(targets, scanTarget(f.Kind))
	}
	targets = append(targets, extras...)
	if err := scan(targets...); err != nil {
		return nil, err
	}
	record := make(map[string]any, len(fields))
	for i, f := range fields {
		record[f.Name] = scannedValue(targets[i])
	}
	return record, nil
}
