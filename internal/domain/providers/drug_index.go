package providers

import (
	"context"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

// DrugSuggestion is one hit from the drug name suggest index.
type DrugSuggestion struct {
	GenericName      string   `json:"generic_name"`
	BrandNames       []string `json:"brand_names"`
	TherapeuticClass string   `json:"therapeutic_class,omitempty"`
	ConfidenceScore  float64  `json:"confidence_score"`
}

// DrugIndex is a typo-tolerant prefix index over consolidated drugs.
type DrugIndex interface {
	EnsureCollection(ctx context.Context) error
	IndexDrugs(ctx context.Context, drugs []*entities.ConsolidatedDrug) (int, error)
	Suggest(ctx context.Context, prefix string, limit int) ([]DrugSuggestion, error)
}
