package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeGenericName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"padded", " Aspirin ", "aspirin"},
		{"already normal", "aspirin", "aspirin"},
		{"internal whitespace", "Acetaminophen   and\tCodeine", "acetaminophen and codeine"},
		{"dosage parenthetical", "Amoxicillin (500mg)", "amoxicillin"},
		{"spaced dosage", "Ibuprofen ( 200 mg )", "ibuprofen"},
		{"non dosage parenthetical kept", "Insulin (human)", "insulin (human)"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeGenericName(tt.input))
		})
	}
}

func TestSortedUnion(t *testing.T) {
	got := SortedUnion([]string{"Bayer", " Ecotrin "}, []string{"Bayer", "", "Anacin"})
	assert.Equal(t, []string{"Anacin", "Bayer", "Ecotrin"}, got)
}

func TestCleanListItems_DropsNullish(t *testing.T) {
	got := CleanListItems([]string{"Bleeding", "null", "N/A"}, []string{"none", "Rash", "bleeding", ""})
	assert.Equal(t, []string{"Bleeding", "Rash", "bleeding"}, got)
}

func TestDedupeOrdered(t *testing.T) {
	assert.Equal(t, []string{"b", "a"}, DedupeOrdered([]string{"b", " a", "b", "", "a"}))
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Take Steps to Prevent Type 2 Diabetes", 3)
	assert.Equal(t, []string{"prevent", "type", "diabetes"}, got)
}

func TestIsSingleWord(t *testing.T) {
	assert.True(t, IsSingleWord("diabetes"))
	assert.False(t, IsSingleWord("high blood pressure"))
	assert.False(t, IsSingleWord("covid-19"))
	assert.False(t, IsSingleWord(""))
}
