package entities

import "sort"

// Storage tables, one per entity. Each has a natural key column and a
// generated search_vector column.
const (
	TablePubmedArticles    = "pubmed_articles"
	TableClinicalTrials    = "clinical_trials"
	TableDrugInformation   = "drug_information"
	TableConsolidatedDrugs = "consolidated_drugs"
	TableIcd10Codes        = "icd10_codes"
	TableBillingCodes      = "billing_codes"
	TableHealthTopics      = "health_topics"
	TableExercises         = "exercises"
	TableFoodItems         = "food_items"
)

// Record is a normalized intermediate record produced by a parser.
// Columns returns raw, unvalidated column values; only the validator turns
// them into storage rows.
type Record interface {
	Table() string
	Key() string
	Columns() map[string]any
}

// Row is a validated storage row keyed by column name.
type Row map[string]any

// KeyColumns maps each table to its natural key column.
var KeyColumns = map[string]string{
	TablePubmedArticles:    "pmid",
	TableClinicalTrials:    "nct_id",
	TableDrugInformation:   "ndc",
	TableConsolidatedDrugs: "generic_name",
	TableIcd10Codes:        "code",
	TableBillingCodes:      "code",
	TableHealthTopics:      "topic_id",
	TableExercises:         "exercise_id",
	TableFoodItems:         "fdc_id",
}

// TitleColumns is the human-readable column each table is sorted by after rank.
var TitleColumns = map[string]string{
	TablePubmedArticles:    "title",
	TableClinicalTrials:    "title",
	TableDrugInformation:   "generic_name",
	TableConsolidatedDrugs: "generic_name",
	TableIcd10Codes:        "code",
	TableBillingCodes:      "code",
	TableHealthTopics:      "title",
	TableExercises:         "name",
	TableFoodItems:         "description",
}

// IsKnownTable reports whether table is one of the storage tables.
func IsKnownTable(table string) bool {
	_, ok := KeyColumns[table]
	return ok
}

// KnownTables returns the storage tables in name order.
func KnownTables() []string {
	tables := make([]string, 0, len(KeyColumns))
	for t := range KeyColumns {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}
