package repositories

import (
	"context"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

// ScoreUpdate is a recomputed confidence for one consolidated drug.
type ScoreUpdate struct {
	GenericName     string
	ConfidenceScore float64
	HasClinicalData bool
}

// DrugRepository reads raw drug rows and stores consolidated drugs.
type DrugRepository interface {
	// ListGenericNames returns the distinct raw generic names, sorted.
	ListGenericNames(ctx context.Context) ([]string, error)
	// GetRowsByGenericNames returns raw rows ordered by generic name then ndc.
	GetRowsByGenericNames(ctx context.Context, names []string) ([]*entities.DrugInformation, error)
	// ExistingConsolidated reports which of names already have a consolidated row.
	ExistingConsolidated(ctx context.Context, names []string) (map[string]bool, error)
	// UpsertConsolidated writes drugs in one transaction.
	UpsertConsolidated(ctx context.Context, drugs []*entities.ConsolidatedDrug) error
	// ListConsolidated pages consolidated drugs by generic name after the given name.
	ListConsolidated(ctx context.Context, after string, limit int) ([]*entities.ConsolidatedDrug, error)
	// UpdateScores rewrites only confidence_score and has_clinical_data.
	UpdateScores(ctx context.Context, updates []ScoreUpdate) error
	// ApplyDrugClasses fills therapeutic_class on raw rows whose generic name
	// (lowercased) is a key of classes and whose class is empty.
	ApplyDrugClasses(ctx context.Context, classes map[string]string) (int, error)
}
