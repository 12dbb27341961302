package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"
	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
	tsclient "github.com/zatekoja/medical-mirrors/internal/infrastructure/clients/typesense"
)

const collectionName = "drugs"

// TypesenseAdapter keeps a suggest index of consolidated drugs in Typesense
type TypesenseAdapter struct {
	client *tsclient.Client
}

var _ providers.DrugIndex = (*TypesenseAdapter)(nil)

// NewTypesenseAdapter creates a new Typesense adapter
func NewTypesenseAdapter(client *tsclient.Client) *TypesenseAdapter {
	return &TypesenseAdapter{client: client}
}

// EnsureCollection creates the drugs collection when it is missing
func (a *TypesenseAdapter) EnsureCollection(ctx context.Context) error {
	_, err := a.client.Client().Collection(collectionName).Retrieve(ctx)
	if err == nil {
		return nil
	}

	schema := &api.CollectionSchema{
		Name: collectionName,
		Fields: []api.Field{
			{Name: "id", Type: "string"},
			{Name: "generic_name", Type: "string"},
			{Name: "brand_names", Type: "string[]", Optional: pointer.True()},
			{Name: "therapeutic_class", Type: "string", Facet: pointer.True(), Optional: pointer.True()},
			{Name: "data_sources", Type: "string[]", Facet: pointer.True(), Optional: pointer.True()},
			{Name: "has_clinical_data", Type: "bool", Facet: pointer.True()},
			{Name: "confidence_score", Type: "float"},
		},
		DefaultSortingField: pointer.String("confidence_score"),
	}

	if _, err := a.client.Client().Collections().Create(ctx, schema); err != nil {
		return fmt.Errorf("failed to create typesense collection: %w", err)
	}
	log.Info().Str("collection", collectionName).Msg("created Typesense collection")
	return nil
}

// IndexDrugs upserts one document per consolidated drug, continuing past
// individual failures. It returns how many documents were written.
func (a *TypesenseAdapter) IndexDrugs(ctx context.Context, drugs []*entities.ConsolidatedDrug) (int, error) {
	indexed := 0
	var firstErr error
	for _, drug := range drugs {
		if drug == nil || drug.GenericName == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		_, err := a.client.Client().Collection(collectionName).Documents().Upsert(ctx, drugDocument(drug))
		if err != nil {
			log.Warn().Err(err).Str("generic_name", drug.GenericName).Msg("failed to index drug")
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to index drug %q: %w", drug.GenericName, err)
			}
			continue
		}
		indexed++
	}
	if indexed == 0 && firstErr != nil {
		return 0, firstErr
	}
	return indexed, nil
}

// Suggest returns drugs whose generic or brand names match prefix
func (a *TypesenseAdapter) Suggest(ctx context.Context, prefix string, limit int) ([]providers.DrugSuggestion, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return []providers.DrugSuggestion{}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	params := &api.SearchCollectionParams{
		Q:       pointer.String(prefix),
		QueryBy: pointer.String("generic_name,brand_names"),
		SortBy:  pointer.String("_text_match:desc,confidence_score:desc"),
		PerPage: pointer.Int(limit),
	}
	result, err := a.client.Client().Collection(collectionName).Documents().Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search drugs: %w", err)
	}

	suggestions := []providers.DrugSuggestion{}
	if result.Hits == nil {
		return suggestions, nil
	}
	for _, hit := range *result.Hits {
		if hit.Document == nil {
			continue
		}
		suggestions = append(suggestions, suggestionFromDocument(*hit.Document))
	}
	return suggestions, nil
}

// documentID makes generic names safe for Typesense ids.
func documentID(genericName string) string {
	return strings.NewReplacer(" ", "-", "/", "_").Replace(genericName)
}

func drugDocument(drug *entities.ConsolidatedDrug) map[string]interface{} {
	doc := map[string]interface{}{
		"id":                documentID(drug.GenericName),
		"generic_name":      drug.GenericName,
		"brand_names":       nonNil(drug.BrandNames),
		"data_sources":      nonNil(drug.DataSources),
		"has_clinical_data": drug.HasClinicalData,
		"confidence_score":  drug.ConfidenceScore,
	}
	if drug.TherapeuticClass != "" {
		doc["therapeutic_class"] = drug.TherapeuticClass
	}
	return doc
}

func suggestionFromDocument(doc map[string]interface{}) providers.DrugSuggestion {
	s := providers.DrugSuggestion{}
	s.GenericName, _ = doc["generic_name"].(string)
	s.TherapeuticClass, _ = doc["therapeutic_class"].(string)
	s.ConfidenceScore, _ = doc["confidence_score"].(float64)
	if names, ok := doc["brand_names"].([]interface{}); ok {
		for _, n := range names {
			if name, ok := n.(string); ok {
				s.BrandNames = append(s.BrandNames, name)
			}
		}
	}
	return s
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
