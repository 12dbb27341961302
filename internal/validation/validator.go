package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	apperrors "github.com/zatekoja/medical-mirrors/pkg/errors"
)

// Validator enforces per-table storage contracts before persistence.
// Length overruns are truncated and logged, non-conforming identifiers are
// passed through with a warning, and only a missing required field fails a record.
type Validator struct {
	logger zerolog.Logger
}

// NewValidator creates a validator that logs warnings to logger.
func NewValidator(logger zerolog.Logger) *Validator {
	return &Validator{logger: logger.With().Str("component", "validator").Logger()}
}

// BatchValidate converts records into storage rows for table. Records that
// fail validation are reported by natural key (or position when the key is
// empty) and the rest of the batch continues.
func (v *Validator) BatchValidate(records []entities.Record, table string) ([]entities.Row, []string) {
	rows := make([]entities.Row, 0, len(records))
	failed := []string{}
	for i, rec := range records {
		if rec == nil {
			failed = append(failed, fmt.Sprintf("#%d", i))
			continue
		}
		row, err := v.ValidateRecord(rec, table)
		if err != nil {
			id := rec.Key()
			if strings.TrimSpace(id) == "" {
				id = fmt.Sprintf("#%d", i)
			}
			v.logger.Warn().Err(err).Str("table", table).Str("record_id", id).Msg("record failed validation")
			failed = append(failed, id)
			continue
		}
		rows = append(rows, row)
	}
	return rows, failed
}

// ValidateRecord converts one record into a storage row.
func (v *Validator) ValidateRecord(rec entities.Record, table string) (entities.Row, error) {
	schema, ok := SchemaFor(table)
	if !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown table %q", table))
	}
	if rec.Table() != table {
		return nil, apperrors.NewValidationError(fmt.Sprintf("record for %q offered to %q", rec.Table(), table))
	}
	return v.ValidateColumns(rec.Columns(), schema, rec.Key())
}

// ValidateColumns applies schema to raw column values.
func (v *Validator) ValidateColumns(cols map[string]any, schema Schema, recordID string) (entities.Row, error) {
	row := make(entities.Row, len(schema.Fields))
	for _, field := range schema.Fields {
		raw, present := cols[field.Name]
		value, ok := v.coerce(raw, field, schema.Table, recordID)
		if !ok || isEmpty(value) {
			if field.Required {
				return nil, apperrors.NewValidationError(fmt.Sprintf("missing required field %s", field.Name))
			}
			if present && field.Kind == KindArray {
				row[field.Name] = []string{}
			}
			continue
		}
		row[field.Name] = value
	}
	return row, nil
}

func (v *Validator) coerce(raw any, field Field, table, recordID string) (any, bool) {
	if raw == nil {
		return nil, false
	}
	switch field.Kind {
	case KindString:
		s, ok := asString(raw)
		if !ok {
			return nil, false
		}
		s = strings.TrimSpace(s)
		if field.ID != IDNone && s != "" {
			s = v.checkIdentifier(s, field, table)
		}
		return v.truncate(s, field, table, recordID), true
	case KindDate:
		s, ok := asString(raw)
		if !ok {
			return nil, false
		}
		s = strings.TrimSpace(s)
		if s != "" && !IsKnownDate(s) {
			v.logger.Warn().Str("table", table).Str("field", field.Name).Str("record_id", recordID).
				Str("value", s).Msg("unrecognized date format, passing through")
		}
		return v.truncate(s, field, table, recordID), true
	case KindArray:
		items := NormalizeArray(raw)
		for i, item := range items {
			items[i] = v.truncate(item, field, table, recordID)
		}
		return items, true
	case KindInt:
		return asInt(raw)
	case KindFloat:
		return asFloat(raw)
	case KindBool:
		return asBool(raw)
	case KindJSON:
		return raw, true
	}
	return nil, false
}

func (v *Validator) checkIdentifier(id string, field Field, table string) string {
	var (
		normalized string
		ok         bool
	)
	switch field.ID {
	case IDPMID:
		normalized, ok = ValidatePMID(id)
	case IDNCT:
		normalized, ok = ValidateNCTID(id)
	case IDICD10:
		normalized, ok = ValidateICD10(id)
	case IDNDC:
		normalized, ok = ValidateNDC(id)
	default:
		return id
	}
	if !ok {
		v.logger.Warn().Str("table", table).Str("field", field.Name).Str("record_id", id).
			Msg("identifier does not match expected format, passing through")
		return id
	}
	return normalized
}

func (v *Validator) truncate(s string, field Field, table, recordID string) string {
	if field.MaxLen <= 0 || utf8.RuneCountInString(s) <= field.MaxLen {
		return s
	}
	v.logger.Warn().Str("table", table).Str("field", field.Name).Str("record_id", recordID).
		Int("length", utf8.RuneCountInString(s)).Int("max_length", field.MaxLen).Msg("truncating over-length value")
	return TruncateRunes(s, field.MaxLen)
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// NormalizeArray accepts a delimited string or a list and returns trimmed,
// deduplicated items in first-occurrence order, capped at MaxArrayItems.
func NormalizeArray(raw any) []string {
	var items []string
	switch val := raw.(type) {
	case nil:
		return []string{}
	case string:
		items = strings.FieldsFunc(val, func(r rune) bool {
			return r == ',' || r == ';' || r == '|'
		})
	case []string:
		items = val
	case []any:
		for _, item := range val {
			if s, ok := asString(item); ok {
				items = append(items, s)
			}
		}
	default:
		if s, ok := asString(val); ok {
			items = []string{s}
		}
	}

	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
		if len(out) == MaxArrayItems {
			break
		}
	}
	return out
}

func isEmpty(value any) bool {
	switch val := value.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []string:
		return len(val) == 0
	}
	return false
}

func asString(raw any) (string, bool) {
	switch val := raw.(type) {
	case string:
		return val, true
	case fmt.Stringer:
		return val.String(), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		if val == math.Trunc(val) {
			return strconv.FormatInt(int64(val), 10), true
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	}
	return "", false
}

func asInt(raw any) (any, bool) {
	switch val := raw.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return nil, false
		}
		return n, true
	}
	return nil, false
}

func asFloat(raw any) (any, bool) {
	switch val := raw.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	}
	return nil, false
}

func asBool(raw any) (any, bool) {
	switch val := raw.(type) {
	case bool:
		return val, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return nil, false
		}
		return b, true
	}
	return nil, false
}
