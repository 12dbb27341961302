package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

func TestDrugDocument(t *testing.T) {
	drug := &entities.ConsolidatedDrug{
		GenericName:      "amoxicillin clavulanate",
		BrandNames:       []string{"Augmentin"},
		TherapeuticClass: "Penicillins",
		HasClinicalData:  true,
		ConfidenceScore:  0.8,
	}

	doc := drugDocument(drug)

	assert.Equal(t, "amoxicillin-clavulanate", doc["id"])
	assert.Equal(t, []string{"Augmentin"}, doc["brand_names"])
	assert.Equal(t, []string{}, doc["data_sources"])
	assert.Equal(t, "Penicillins", doc["therapeutic_class"])
}

func TestDrugDocumentOmitsEmptyClass(t *testing.T) {
	doc := drugDocument(&entities.ConsolidatedDrug{GenericName: "aspirin"})
	_, ok := doc["therapeutic_class"]
	assert.False(t, ok)
}

func TestSuggestionFromDocument(t *testing.T) {
	doc := map[string]interface{}{
		"generic_name":      "aspirin",
		"brand_names":       []interface{}{"Bayer", "Ecotrin"},
		"therapeutic_class": "NSAID",
		"confidence_score":  0.65,
	}

	s := suggestionFromDocument(doc)

	assert.Equal(t, "aspirin", s.GenericName)
	assert.Equal(t, []string{"Bayer", "Ecotrin"}, s.BrandNames)
	assert.Equal(t, "NSAID", s.TherapeuticClass)
	assert.InDelta(t, 0.65, s.ConfidenceScore, 1e-9)
}
