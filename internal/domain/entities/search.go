package entities

import "time"

// SearchResult is one ranked hit from a full-text search.
type SearchResult struct {
	Table  string         `json:"table"`
	ID     string         `json:"id"`
	Title  string         `json:"title"`
	Rank   float64        `json:"rank"`
	Record map[string]any `json:"record"`
}

// RelatedItem is a compact reference to a row in another table.
type RelatedItem struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Rank  float64 `json:"rank,omitempty"`
}

// EvidenceLevel grades how much trial and literature support a topic has.
type EvidenceLevel string

const (
	EvidenceLevelI   EvidenceLevel = "Level I"
	EvidenceLevelII  EvidenceLevel = "Level II"
	EvidenceLevelIII EvidenceLevel = "Level III"
	EvidenceLevelIV  EvidenceLevel = "Level IV"
	EvidenceLevelV   EvidenceLevel = "Level V"
)

// CrossReference is the enrichment attached to a health topic.
type CrossReference struct {
	TopicID              string        `json:"topic_id"`
	SearchTerms          []string      `json:"search_terms"`
	MedicalEntities      []string      `json:"medical_entities"`
	RelatedDrugs         []RelatedItem `json:"related_drugs"`
	RelatedTrials        []RelatedItem `json:"related_trials"`
	RelatedPapers        []RelatedItem `json:"related_papers"`
	RelatedFoods         []RelatedItem `json:"related_foods"`
	RelatedExercises     []RelatedItem `json:"related_exercises"`
	MonitoringParameters []string      `json:"monitoring_parameters"`
	PatientResources     []string      `json:"patient_resources"`
	ProviderNotes        string        `json:"provider_notes"`
	EvidenceLevel        EvidenceLevel `json:"evidence_level"`
	EnhancedAt           time.Time     `json:"enhanced_at"`
}

// Search limits.
const (
	DefaultSearchResults = 10
	MaxSearchResults     = 50
)

// SearchQuery is a full-text query against one table. Filters are equality
// predicates on columns; a min_ or max_ prefix makes an inclusive range bound.
type SearchQuery struct {
	Table      string            `json:"table"`
	Query      string            `json:"query"`
	Filters    map[string]string `json:"filters,omitempty"`
	MaxResults int               `json:"max_results"`
}

// Limit clamps MaxResults to (0, MaxSearchResults], defaulting to DefaultSearchResults.
func (q SearchQuery) Limit() int {
	switch {
	case q.MaxResults <= 0:
		return DefaultSearchResults
	case q.MaxResults > MaxSearchResults:
		return MaxSearchResults
	}
	return q.MaxResults
}
