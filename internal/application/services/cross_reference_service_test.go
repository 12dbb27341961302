package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/medical-mirrors/internal/application/services"
	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
)

type stubExtractor struct {
	found []providers.Entity
	err   error
}

func (s stubExtractor) Analyze(ctx context.Context, text string) ([]providers.Entity, error) {
	return s.found, s.err
}

type stubGenerator struct {
	text string
	err  error
}

func (s stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return s.text, s.err
}

func relatedItems(prefix string, n int) []entities.RelatedItem {
	items := make([]entities.RelatedItem, n)
	for i := range items {
		items[i] = entities.RelatedItem{ID: fmt.Sprintf("%s%d", prefix, i+1), Title: fmt.Sprintf("%s title %d", prefix, i+1)}
	}
	return items
}

func TestEvidenceLevelFor(t *testing.T) {
	tests := []struct {
		trials, papers int
		want           entities.EvidenceLevel
	}{
		{trials: 5, papers: 0, want: entities.EvidenceLevelI},
		{trials: 3, papers: 5, want: entities.EvidenceLevelI},
		{trials: 1, papers: 5, want: entities.EvidenceLevelII},
		{trials: 0, papers: 3, want: entities.EvidenceLevelIII},
		{trials: 0, papers: 1, want: entities.EvidenceLevelIV},
		{trials: 0, papers: 0, want: entities.EvidenceLevelV},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d trials %d papers", tt.trials, tt.papers), func(t *testing.T) {
			assert.Equal(t, tt.want, services.EvidenceLevelFor(tt.trials, tt.papers))
		})
	}
}

func TestBuildSearchTerms(t *testing.T) {
	terms := services.BuildSearchTerms(
		"Take Steps to Lower Your Blood Pressure",
		[]string{"Hypertension", "blood pressure"},
		[]string{"hypertension", "salt", "of"},
	)
	assert.Equal(t, []string{"lower", "blood", "pressure", "hypertension", "blood pressure", "salt"}, terms)
}

func TestBuildTSQuery(t *testing.T) {
	tests := []struct {
		name  string
		terms []string
		want  string
	}{
		{name: "single words joined with or", terms: []string{"blood", "pressure"}, want: "blood | pressure"},
		{name: "phrases dropped", terms: []string{"blood pressure", "salt"}, want: "salt"},
		{name: "empty", terms: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, services.BuildTSQuery(tt.terms))
		})
	}
}

func TestMonitoringParameters(t *testing.T) {
	params := services.MonitoringParameters([]string{"hypertension", "heart"})
	assert.Equal(t, []string{"Blood pressure", "Heart rate"}, params)
	assert.Empty(t, services.MonitoringParameters([]string{"sunscreen"}))
}

func TestCrossReferenceService_Enhance(t *testing.T) {
	search := &fakeSearchRepository{related: map[string][]entities.RelatedItem{
		entities.TableConsolidatedDrugs: relatedItems("drug", 12),
		entities.TableClinicalTrials:    {{ID: "NCT00000001", Title: "Trial"}},
		entities.TablePubmedArticles:    relatedItems("", 4),
	}}
	svc := services.NewCrossReferenceService(&fakeTopicRepository{}, search,
		stubExtractor{found: []providers.Entity{{Text: "Hypertension", Label: "DISEASE"}}}, nil)

	topic := &entities.HealthTopic{
		TopicID: "30", Title: "Lower Your Blood Pressure", URL: "https://health.gov/topics/30",
		Keywords: []string{"salt"},
	}
	ref, err := svc.Enhance(context.Background(), topic)
	require.NoError(t, err)

	assert.Equal(t, "30", ref.TopicID)
	assert.Equal(t, []string{"hypertension"}, ref.MedicalEntities)
	assert.Len(t, ref.RelatedDrugs, services.MaxRelatedDrugs)
	assert.Len(t, ref.RelatedTrials, 1)
	assert.Len(t, ref.RelatedPapers, 4)
	assert.Empty(t, ref.RelatedFoods)
	assert.Equal(t, entities.EvidenceLevelII, ref.EvidenceLevel)
	assert.Contains(t, ref.MonitoringParameters, "Blood pressure")
	assert.Equal(t, []string{
		"https://health.gov/topics/30",
		"https://clinicaltrials.gov/study/NCT00000001",
		"https://pubmed.ncbi.nlm.nih.gov/1/",
		"https://pubmed.ncbi.nlm.nih.gov/2/",
		"https://pubmed.ncbi.nlm.nih.gov/3/",
	}, ref.PatientResources)
	assert.Contains(t, ref.ProviderNotes, "Level II")
	assert.False(t, ref.EnhancedAt.IsZero())
	assert.Contains(t, search.tsqueries, "lower | blood | pressure | hypertension | salt")
}

func TestCrossReferenceService_ProviderNotes(t *testing.T) {
	topic := &entities.HealthTopic{TopicID: "1", Title: "Get Active"}
	tests := []struct {
		name      string
		generator providers.TextGenerator
		want      string
	}{
		{name: "generated", generator: stubGenerator{text: "  Encourage daily activity.  "}, want: "Encourage daily activity."},
		{name: "generator error falls back", generator: stubGenerator{err: errors.New("timeout")}, want: "Evidence: Level V (0 related trials, 0 related papers)."},
		{name: "blank output falls back", generator: stubGenerator{text: " "}, want: "Evidence: Level V (0 related trials, 0 related papers)."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := services.NewCrossReferenceService(&fakeTopicRepository{}, &fakeSearchRepository{}, nil, tt.generator)
			ref, err := svc.Enhance(context.Background(), topic)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref.ProviderNotes)
		})
	}
}

func TestCrossReferenceService_ExtractorFailureIsNotFatal(t *testing.T) {
	svc := services.NewCrossReferenceService(&fakeTopicRepository{}, &fakeSearchRepository{},
		stubExtractor{err: errors.New("nlp down")}, nil)

	ref, err := svc.Enhance(context.Background(), &entities.HealthTopic{TopicID: "1", Title: "Sleep"})
	require.NoError(t, err)
	assert.Empty(t, ref.MedicalEntities)
}

func TestCrossReferenceService_EnhanceAll(t *testing.T) {
	topics := &fakeTopicRepository{topics: []*entities.HealthTopic{
		{TopicID: "1", Title: "Quit Smoking"},
		{TopicID: "2", Title: "Eat Healthy"},
	}}
	svc := services.NewCrossReferenceService(topics, &fakeSearchRepository{}, nil, nil)

	summary, err := svc.EnhanceAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Enhanced)
	assert.Len(t, topics.saved, 2)

	summary, err = svc.EnhanceAll(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, summary.Topics)

	summary, err = svc.EnhanceAll(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Enhanced)
}

func TestCrossReferenceService_SearchFailureCountsTopic(t *testing.T) {
	topics := &fakeTopicRepository{topics: []*entities.HealthTopic{{TopicID: "1", Title: "Flu Shots"}}}
	svc := services.NewCrossReferenceService(topics, &fakeSearchRepository{err: errors.New("db down")}, nil, nil)

	summary, err := svc.EnhanceAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, topics.saved)
}
