package validation

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

func TestValidatePMID(t *testing.T) {
	got, ok := ValidatePMID("1234567")
	assert.True(t, ok)
	assert.Equal(t, "1234567", got)

	got, ok = ValidatePMID("abc")
	assert.False(t, ok)
	assert.Empty(t, got)

	got, ok = ValidatePMID(" 42 ")
	assert.True(t, ok)
	assert.Equal(t, "42", got)
}

func TestValidateNCTID(t *testing.T) {
	got, ok := ValidateNCTID("NCT01234567")
	assert.True(t, ok)
	assert.Equal(t, "NCT01234567", got)

	_, ok = ValidateNCTID("NCT123")
	assert.False(t, ok)

	got, ok = ValidateNCTID("nct01234567")
	assert.True(t, ok)
	assert.Equal(t, "NCT01234567", got)
}

func TestValidateICD10(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"E11", "E11", true},
		{"e11.65", "E11.65", true},
		{"I10", "I10", true},
		{"11.6", "", false},
		{"E1", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ValidateICD10(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateNDC(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"0002-3227-30", true},
		{"00023227301", true},
		{"12345-678", false},
		{"OB_N012345_001", true},
		{"DF_ANDA070025", true},
		{"DL_5f1c0e9a", true},
		{"OB_", false},
		{"ABCDE-FGHIJ", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ValidateNDC(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.in, got)
			}
		})
	}
}

func TestIsKnownDate(t *testing.T) {
	for _, d := range []string{"2023-05-14", "2023-05", "2023", "2023 Mar 15", "2023 Mar", "May 2023", "20200115", "March 5, 2021"} {
		assert.True(t, IsKnownDate(d), d)
	}
	for _, d := range []string{"Spring 2023", "15.03.2023", "n/a"} {
		assert.False(t, IsKnownDate(d), d)
	}
}

func TestNormalizeArray(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"comma string", "a, b,a", []string{"a", "b"}},
		{"mixed delimiters", "x; y| z ,x", []string{"x", "y", "z"}},
		{"string list", []string{" b", "a", "b", ""}, []string{"b", "a"}},
		{"any list", []any{"one", 2, "one"}, []string{"one", "2"}},
		{"nil", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeArray(tt.in))
		})
	}
}

func TestNormalizeArray_Capped(t *testing.T) {
	items := make([]string, 0, 150)
	for i := 0; i < 150; i++ {
		items = append(items, strings.Repeat("x", i+1))
	}
	out := NormalizeArray(items)
	assert.Len(t, out, MaxArrayItems)
	assert.Equal(t, "x", out[0])
}

func TestBatchValidate_RequiredFieldFailsOnlyThatRecord(t *testing.T) {
	v := NewValidator(zerolog.Nop())
	records := []entities.Record{
		&entities.PubmedArticle{PMID: "1", Title: "First"},
		&entities.PubmedArticle{PMID: "2"},
		&entities.PubmedArticle{PMID: "3", Title: "Third", Authors: []string{"Doe J", "Doe J"}},
	}

	rows, failed := v.BatchValidate(records, entities.TablePubmedArticles)

	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2"}, failed)
	assert.Equal(t, "1", rows[0]["pmid"])
	assert.Equal(t, []string{"Doe J"}, rows[1]["authors"])
}

func TestBatchValidate_MissingKeyReportedByPosition(t *testing.T) {
	v := NewValidator(zerolog.Nop())
	rows, failed := v.BatchValidate([]entities.Record{
		&entities.ClinicalTrial{Title: "No id"},
	}, entities.TableClinicalTrials)

	assert.Empty(t, rows)
	assert.Equal(t, []string{"#0"}, failed)
}

func TestBatchValidate_TruncatesAndWarns(t *testing.T) {
	var buf bytes.Buffer
	v := NewValidator(zerolog.New(&buf))

	long := strings.Repeat("é", 3000)
	rows, failed := v.BatchValidate([]entities.Record{
		&entities.PubmedArticle{PMID: "99", Title: long},
	}, entities.TablePubmedArticles)

	require.Empty(t, failed)
	require.Len(t, rows, 1)
	title := rows[0]["title"].(string)
	assert.Equal(t, 2000, utf8.RuneCountInString(title))
	assert.True(t, utf8.ValidString(title))
	assert.Contains(t, buf.String(), "truncating over-length value")
}

func TestBatchValidate_NoFieldExceedsItsMaxLength(t *testing.T) {
	v := NewValidator(zerolog.Nop())
	big := strings.Repeat("a", 60000)
	rec := &entities.DrugInformation{
		NDC: "0002-3227-30", GenericName: big, BrandName: big, Manufacturer: big, Strength: big,
		DosageForm: big, Route: big, ApplicationNumber: big, OrangeBookCode: big, TherapeuticClass: big,
		DataSource: big, IndicationsAndUsage: big, MechanismOfAction: big, BoxedWarning: big,
		Warnings: []string{big},
	}

	rows, failed := v.BatchValidate([]entities.Record{rec}, entities.TableDrugInformation)
	require.Empty(t, failed)
	schema, _ := SchemaFor(entities.TableDrugInformation)
	for _, f := range schema.Fields {
		if f.MaxLen == 0 {
			continue
		}
		switch val := rows[0][f.Name].(type) {
		case string:
			assert.LessOrEqual(t, utf8.RuneCountInString(val), f.MaxLen, f.Name)
		case []string:
			for _, item := range val {
				assert.LessOrEqual(t, utf8.RuneCountInString(item), f.MaxLen, f.Name)
			}
		}
	}
}

func TestBatchValidate_NonConformingIdentifierPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	v := NewValidator(zerolog.New(&buf))

	rows, failed := v.BatchValidate([]entities.Record{
		&entities.Icd10Code{Code: "S52.521A", Description: "Torus fracture"},
		&entities.Icd10Code{Code: "e11.9", Description: "Type 2 diabetes"},
	}, entities.TableIcd10Codes)

	require.Empty(t, failed)
	require.Len(t, rows, 2)
	assert.Equal(t, "S52.521A", rows[0]["code"])
	assert.Equal(t, "E11.9", rows[1]["code"])
	assert.Contains(t, buf.String(), "identifier does not match expected format")
}

func TestBatchValidate_DatesPassedThroughUnmodified(t *testing.T) {
	var buf bytes.Buffer
	v := NewValidator(zerolog.New(&buf))

	rows, _ := v.BatchValidate([]entities.Record{
		&entities.ClinicalTrial{NCTID: "NCT00000001", Title: "A", StartDate: "May 2023", CompletionDate: "Q3 2025"},
	}, entities.TableClinicalTrials)

	require.Len(t, rows, 1)
	assert.Equal(t, "May 2023", rows[0]["start_date"])
	assert.Equal(t, "Q3 2025", rows[0]["completion_date"])
	assert.Contains(t, buf.String(), "unrecognized date format")
}

func TestBatchValidate_WrongTableRejected(t *testing.T) {
	v := NewValidator(zerolog.Nop())
	rows, failed := v.BatchValidate([]entities.Record{
		&entities.PubmedArticle{PMID: "1", Title: "x"},
	}, entities.TableClinicalTrials)
	assert.Empty(t, rows)
	assert.Equal(t, []string{"1"}, failed)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "ab", TruncateRunes("abc", 2))
	assert.Equal(t, "abc", TruncateRunes("abc", 5))
	assert.Equal(t, "", TruncateRunes("abc", 0))
}
