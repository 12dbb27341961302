package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/internal/domain/providers"
	"github.com/zatekoja/medical-mirrors/internal/domain/repositories"
	"github.com/zatekoja/medical-mirrors/internal/infrastructure/observability"
	"github.com/zatekoja/medical-mirrors/pkg/utils"
)

// Per category caps on related items.
const (
	MaxRelatedDrugs     = 10
	MaxRelatedTrials    = 5
	MaxRelatedPapers    = 5
	MaxRelatedFoods     = 5
	MaxRelatedExercises = 5

	// maxQueryTerms bounds the OR-combined tsquery.
	maxQueryTerms    = 12
	minTermLength    = 3
	maxLinkResources = 3
	topicPageSize    = 100
)

// monitoringRule maps topic vocabulary to what a clinician would track.
type monitoringRule struct {
	match      []string
	parameters []string
}

var monitoringRules = []monitoringRule{
	{[]string{"blood pressure", "hypertension"}, []string{"Blood pressure"}},
	{[]string{"diabetes", "glucose", "insulin", "prediabetes"}, []string{"Blood glucose", "HbA1c"}},
	{[]string{"cholesterol", "lipid", "statin"}, []string{"Lipid panel"}},
	{[]string{"weight", "obesity", "overweight", "bmi"}, []string{"Body mass index", "Waist circumference"}},
	{[]string{"heart", "cardiac", "cardiovascular", "stroke"}, []string{"Heart rate", "Blood pressure"}},
	{[]string{"kidney", "renal"}, []string{"Kidney function (eGFR)"}},
	{[]string{"pregnan", "prenatal"}, []string{"Prenatal visits", "Blood pressure"}},
	{[]string{"depression", "anxiety", "mental"}, []string{"Depression screening (PHQ-9)"}},
	{[]string{"cancer", "screening", "mammogram", "colonoscopy"}, []string{"Screening schedule adherence"}},
	{[]string{"vaccin", "immuniz", "flu", "shot"}, []string{"Immunization record"}},
	{[]string{"bone", "osteoporosis", "calcium"}, []string{"Bone density"}},
}

// CrossReferenceService links health topics to drugs, trials, papers, foods
// and exercises through full-text search.
type CrossReferenceService struct {
	topics    repositories.TopicRepository
	search    repositories.SearchRepository
	extractor providers.EntityExtractor
	generator providers.TextGenerator
	now       func() time.Time
	logger    zerolog.Logger
}

// EnhanceSummary reports one enhancement pass.
type EnhanceSummary struct {
	Topics   int `json:"topics"`
	Enhanced int `json:"enhanced"`
	Failed   int `json:"failed"`
}

// NewCrossReferenceService creates the enhancer. extractor and generator are
// optional collaborators and may be nil.
func NewCrossReferenceService(
	topics repositories.TopicRepository,
	search repositories.SearchRepository,
	extractor providers.EntityExtractor,
	generator providers.TextGenerator,
) *CrossReferenceService {
	return &CrossReferenceService{
		topics:    topics,
		search:    search,
		extractor: extractor,
		generator: generator,
		now:       time.Now,
		logger:    observability.Component("cross_reference"),
	}
}

// EnhanceAll enhances every topic that has no cross reference yet, or every
// topic when force is set. A failing topic is logged and skipped.
func (s *CrossReferenceService) EnhanceAll(ctx context.Context, force bool) (*EnhanceSummary, error) {
	summary := &EnhanceSummary{}
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		topics, err := s.topics.ListTopics(ctx, after, topicPageSize, !force)
		if err != nil {
			return summary, err
		}
		for _, topic := range topics {
			summary.Topics++
			ref, err := s.Enhance(ctx, topic)
			if err == nil {
				err = s.topics.SaveCrossReference(ctx, ref)
			}
			if err != nil {
				s.logger.Warn().Err(err).Str("record_id", topic.TopicID).Msg("failed to enhance topic")
				summary.Failed++
				continue
			}
			summary.Enhanced++
		}
		if len(topics) < topicPageSize {
			break
		}
		after = topics[len(topics)-1].TopicID
	}
	s.logger.Info().Int("topics", summary.Topics).Int("enhanced", summary.Enhanced).Int("failed", summary.Failed).Msg("enhancement finished")
	return summary, nil
}

// Enhance builds the cross reference of one topic without storing it.
func (s *CrossReferenceService) Enhance(ctx context.Context, topic *entities.HealthTopic) (*entities.CrossReference, error) {
	medical := s.medicalEntities(ctx, topic)
	terms := BuildSearchTerms(topic.Title, medical, topic.Keywords)
	tsquery := BuildTSQuery(terms)

	ref := &entities.CrossReference{
		TopicID:         topic.TopicID,
		SearchTerms:     terms,
		MedicalEntities: medical,
		EnhancedAt:      s.now().UTC(),
	}
	lookups := []struct {
		table string
		limit int
		dst   *[]entities.RelatedItem
	}{
		{entities.TableConsolidatedDrugs, MaxRelatedDrugs, &ref.RelatedDrugs},
		{entities.TableClinicalTrials, MaxRelatedTrials, &ref.RelatedTrials},
		{entities.TablePubmedArticles, MaxRelatedPapers, &ref.RelatedPapers},
		{entities.TableFoodItems, MaxRelatedFoods, &ref.RelatedFoods},
		{entities.TableExercises, MaxRelatedExercises, &ref.RelatedExercises},
	}
	for _, l := range lookups {
		items, err := s.search.SearchTerms(ctx, l.table, tsquery, l.limit)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", l.table, err)
		}
		if len(items) > l.limit {
			items = items[:l.limit]
		}
		*l.dst = items
	}

	ref.EvidenceLevel = EvidenceLevelFor(len(ref.RelatedTrials), len(ref.RelatedPapers))
	ref.MonitoringParameters = MonitoringParameters(terms)
	ref.PatientResources = patientResources(topic, ref)
	ref.ProviderNotes = s.providerNotes(ctx, topic, ref)
	return ref, nil
}

func (s *CrossReferenceService) medicalEntities(ctx context.Context, topic *entities.HealthTopic) []string {
	if s.extractor == nil {
		return []string{}
	}
	found, err := s.extractor.Analyze(ctx, strings.TrimSpace(topic.Title+". "+topic.Summary))
	if err != nil {
		s.logger.Warn().Err(err).Str("record_id", topic.TopicID).Msg("entity extraction failed, continuing without entities")
		return []string{}
	}
	names := make([]string, 0, len(found))
	for _, e := range found {
		names = append(names, strings.ToLower(utils.CollapseWhitespace(e.Text)))
	}
	return utils.DedupeOrdered(names)
}

// BuildSearchTerms merges title tokens, extracted entities and keywords into
// a lowercased, deduplicated term list without stopwords.
func BuildSearchTerms(title string, medical, keywords []string) []string {
	terms := utils.Tokenize(title, minTermLength)
	for _, list := range [][]string{medical, keywords} {
		for _, t := range list {
			t = strings.ToLower(utils.CollapseWhitespace(t))
			if len([]rune(t)) < minTermLength || utils.IsStopword(t) {
				continue
			}
			terms = append(terms, t)
		}
	}
	return utils.DedupeOrdered(terms)
}

// BuildTSQuery OR-combines the single-word terms. Phrases are left out
// because they are not valid to_tsquery operands.
func BuildTSQuery(terms []string) string {
	var words []string
	for _, t := range terms {
		if !utils.IsSingleWord(t) {
			continue
		}
		words = append(words, t)
		if len(words) == maxQueryTerms {
			break
		}
	}
	return strings.Join(words, " | ")
}

// EvidenceLevelFor grades a topic by how many trials and papers matched.
func EvidenceLevelFor(trials, papers int) entities.EvidenceLevel {
	switch {
	case trials >= 3:
		return entities.EvidenceLevelI
	case trials >= 1:
		return entities.EvidenceLevelII
	case papers >= 3:
		return entities.EvidenceLevelIII
	case papers >= 1:
		return entities.EvidenceLevelIV
	default:
		return entities.EvidenceLevelV
	}
}

// MonitoringParameters derives what to track from the topic's terms.
func MonitoringParameters(terms []string) []string {
	joined := " " + strings.Join(terms, " ") + " "
	var params []string
	for _, rule := range monitoringRules {
		for _, m := range rule.match {
			if strings.Contains(joined, m) {
				params = append(params, rule.parameters...)
				break
			}
		}
	}
	return utils.DedupeOrdered(params)
}

func patientResources(topic *entities.HealthTopic, ref *entities.CrossReference) []string {
	var resources []string
	if topic.URL != "" {
		resources = append(resources, topic.URL)
	}
	for i, t := range ref.RelatedTrials {
		if i == maxLinkResources {
			break
		}
		resources = append(resources, "https://clinicaltrials.gov/study/"+t.ID)
	}
	for i, p := range ref.RelatedPapers {
		if i == maxLinkResources {
			break
		}
		resources = append(resources, "https://pubmed.ncbi.nlm.nih.gov/"+p.ID+"/")
	}
	return resources
}

func titles(items []entities.RelatedItem, n int) []string {
	var out []string
	for _, it := range items {
		if len(out) == n {
			break
		}
		if it.Title != "" {
			out = append(out, it.Title)
		}
	}
	return out
}

// providerNotes writes a short factual note, rephrased by the generator
// when one is configured.
func (s *CrossReferenceService) providerNotes(ctx context.Context, topic *entities.HealthTopic, ref *entities.CrossReference) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Evidence: %s (%d related trials, %d related papers).", ref.EvidenceLevel, len(ref.RelatedTrials), len(ref.RelatedPapers))
	if drugs := titles(ref.RelatedDrugs, 5); len(drugs) > 0 {
		fmt.Fprintf(&b, " Related drugs: %s.", strings.Join(drugs, ", "))
	}
	if len(ref.MonitoringParameters) > 0 {
		fmt.Fprintf(&b, " Monitor: %s.", strings.Join(ref.MonitoringParameters, ", "))
	}
	note := b.String()
	if s.generator == nil {
		return note
	}

	prompt := fmt.Sprintf("Rewrite as two sentences of guidance for a clinician about %q. Use only these facts.\nTopic summary: %s\nFacts: %s",
		topic.Title, topic.Summary, note)
	generated, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn().Err(err).Str("record_id", topic.TopicID).Msg("provider note generation failed, using template")
		return note
	}
	if generated = strings.TrimSpace(generated); generated != "" {
		return generated
	}
	return note
}
