package validation

import "github.com/zatekoja/medical-mirrors/internal/domain/entities"

// Kind is the storage shape of a column.
type Kind int

const (
	KindString Kind = iota
	KindArray
	KindDate
	KindInt
	KindFloat
	KindBool
	KindJSON
)

// IDFormat selects the identifier rule applied to a column.
type IDFormat int

const (
	IDNone IDFormat = iota
	IDPMID
	IDNCT
	IDICD10
	IDNDC
)

// Field is the storage contract for one column.
type Field struct {
	Name     string
	Kind     Kind
	MaxLen   int // runes; 0 means unbounded. For arrays it bounds each item.
	Required bool
	ID       IDFormat
}

// Schema is the ordered column contract of one table.
type Schema struct {
	Table  string
	Fields []Field
}

// MaxArrayItems caps every array column.
const MaxArrayItems = 100

var schemas = map[string]Schema{
	entities.TablePubmedArticles: {Table: entities.TablePubmedArticles, Fields: []Field{
		{Name: "pmid", Kind: KindString, MaxLen: 20, Required: true, ID: IDPMID},
		{Name: "title", Kind: KindString, MaxLen: 2000, Required: true},
		{Name: "abstract", Kind: KindString, MaxLen: 20000},
		{Name: "authors", Kind: KindArray, MaxLen: 255},
		{Name: "journal", Kind: KindString, MaxLen: 500},
		{Name: "pub_date", Kind: KindDate, MaxLen: 50},
		{Name: "doi", Kind: KindString, MaxLen: 255},
		{Name: "mesh_terms", Kind: KindArray, MaxLen: 255},
	}},
	entities.TableClinicalTrials: {Table: entities.TableClinicalTrials, Fields: []Field{
		{Name: "nct_id", Kind: KindString, MaxLen: 20, Required: true, ID: IDNCT},
		{Name: "title", Kind: KindString, MaxLen: 2000, Required: true},
		{Name: "status", Kind: KindString, MaxLen: 100},
		{Name: "phase", Kind: KindString, MaxLen: 100},
		{Name: "study_type", Kind: KindString, MaxLen: 100},
		{Name: "conditions", Kind: KindArray, MaxLen: 500},
		{Name: "interventions", Kind: KindArray, MaxLen: 500},
		{Name: "locations", Kind: KindArray, MaxLen: 500},
		{Name: "sponsors", Kind: KindArray, MaxLen: 500},
		{Name: "start_date", Kind: KindDate, MaxLen: 50},
		{Name: "completion_date", Kind: KindDate, MaxLen: 50},
		{Name: "enrollment_count", Kind: KindInt},
		{Name: "brief_summary", Kind: KindString, MaxLen: 10000},
	}},
	entities.TableDrugInformation: {Table: entities.TableDrugInformation, Fields: []Field{
		{Name: "ndc", Kind: KindString, MaxLen: 50, Required: true, ID: IDNDC},
		{Name: "generic_name", Kind: KindString, MaxLen: 500, Required: true},
		{Name: "brand_name", Kind: KindString, MaxLen: 500},
		{Name: "manufacturer", Kind: KindString, MaxLen: 500},
		{Name: "strength", Kind: KindString, MaxLen: 500},
		{Name: "dosage_form", Kind: KindString, MaxLen: 200},
		{Name: "route", Kind: KindString, MaxLen: 200},
		{Name: "application_number", Kind: KindString, MaxLen: 50},
		{Name: "approval_date", Kind: KindDate, MaxLen: 50},
		{Name: "orange_book_code", Kind: KindString, MaxLen: 20},
		{Name: "therapeutic_class", Kind: KindString, MaxLen: 500},
		{Name: "data_source", Kind: KindString, MaxLen: 50},
		{Name: "indications_and_usage", Kind: KindString, MaxLen: 50000},
		{Name: "mechanism_of_action", Kind: KindString, MaxLen: 50000},
		{Name: "dosage_and_administration", Kind: KindString, MaxLen: 50000},
		{Name: "clinical_pharmacology", Kind: KindString, MaxLen: 50000},
		{Name: "pharmacokinetics", Kind: KindString, MaxLen: 50000},
		{Name: "boxed_warning", Kind: KindString, MaxLen: 50000},
		{Name: "contraindications", Kind: KindArray, MaxLen: 5000},
		{Name: "warnings", Kind: KindArray, MaxLen: 5000},
		{Name: "adverse_reactions", Kind: KindArray, MaxLen: 5000},
		{Name: "precautions", Kind: KindArray, MaxLen: 5000},
		{Name: "drug_interactions", Kind: KindJSON},
	}},
	entities.TableIcd10Codes: {Table: entities.TableIcd10Codes, Fields: []Field{
		{Name: "code", Kind: KindString, MaxLen: 10, Required: true, ID: IDICD10},
		{Name: "description", Kind: KindString, MaxLen: 1000, Required: true},
		{Name: "category", Kind: KindString, MaxLen: 255},
		{Name: "chapter", Kind: KindString, MaxLen: 255},
		{Name: "parent_code", Kind: KindString, MaxLen: 10},
		{Name: "is_billable", Kind: KindBool},
		{Name: "synonyms", Kind: KindArray, MaxLen: 500},
		{Name: "inclusion_terms", Kind: KindArray, MaxLen: 500},
		{Name: "exclusions", Kind: KindArray, MaxLen: 500},
	}},
	entities.TableBillingCodes: {Table: entities.TableBillingCodes, Fields: []Field{
		{Name: "code", Kind: KindString, MaxLen: 10, Required: true},
		{Name: "short_description", Kind: KindString, MaxLen: 255},
		{Name: "long_description", Kind: KindString, MaxLen: 2000},
		{Name: "code_type", Kind: KindString, MaxLen: 20},
		{Name: "category", Kind: KindString, MaxLen: 255},
		{Name: "effective_date", Kind: KindDate, MaxLen: 50},
		{Name: "termination_date", Kind: KindDate, MaxLen: 50},
		{Name: "is_active", Kind: KindBool},
	}},
	entities.TableHealthTopics: {Table: entities.TableHealthTopics, Fields: []Field{
		{Name: "topic_id", Kind: KindString, MaxLen: 50, Required: true},
		{Name: "title", Kind: KindString, MaxLen: 500, Required: true},
		{Name: "category", Kind: KindString, MaxLen: 255},
		{Name: "url", Kind: KindString, MaxLen: 1000},
		{Name: "summary", Kind: KindString, MaxLen: 20000},
		{Name: "keywords", Kind: KindArray, MaxLen: 255},
		{Name: "last_updated", Kind: KindDate, MaxLen: 50},
	}},
	entities.TableExercises: {Table: entities.TableExercises, Fields: []Field{
		{Name: "exercise_id", Kind: KindString, MaxLen: 50, Required: true},
		{Name: "name", Kind: KindString, MaxLen: 255, Required: true},
		{Name: "body_part", Kind: KindString, MaxLen: 100},
		{Name: "equipment", Kind: KindString, MaxLen: 100},
		{Name: "target", Kind: KindString, MaxLen: 100},
		{Name: "secondary_muscles", Kind: KindArray, MaxLen: 100},
		{Name: "instructions", Kind: KindArray, MaxLen: 2000},
		{Name: "gif_url", Kind: KindString, MaxLen: 1000},
	}},
	entities.TableFoodItems: {Table: entities.TableFoodItems, Fields: []Field{
		{Name: "fdc_id", Kind: KindString, MaxLen: 20, Required: true},
		{Name: "description", Kind: KindString, MaxLen: 1000, Required: true},
		{Name: "data_type", Kind: KindString, MaxLen: 50},
		{Name: "brand_owner", Kind: KindString, MaxLen: 255},
		{Name: "food_category", Kind: KindString, MaxLen: 255},
		{Name: "ingredients", Kind: KindString, MaxLen: 10000},
		{Name: "serving_size", Kind: KindFloat},
		{Name: "serving_size_unit", Kind: KindString, MaxLen: 20},
		{Name: "nutrients", Kind: KindJSON},
		{Name: "publication_date", Kind: KindDate, MaxLen: 50},
	}},
	entities.TableDrugClasses: {Table: entities.TableDrugClasses, Fields: []Field{
		{Name: "generic_name", Kind: KindString, MaxLen: 500, Required: true},
		{Name: "class_id", Kind: KindString, MaxLen: 50},
		{Name: "class_name", Kind: KindString, MaxLen: 500, Required: true},
		{Name: "class_type", Kind: KindString, MaxLen: 50},
	}},
}

// SchemaFor returns the column contract for table.
func SchemaFor(table string) (Schema, bool) {
	s, ok := schemas[table]
	return s, ok
}

// Columns returns the ordered column names of table.
func Columns(table string) []string {
	s, ok := schemas[table]
	if !ok {
		return nil
	}
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Name
	}
	return cols
}
