package parser

import "github.com/zatekoja/medical-mirrors/internal/domain/entities"

// FormatClinicalTrials parses ClinicalTrials.gov studies in both the v2 API
// nested shape and the legacy flat export.
const FormatClinicalTrials = "clinicaltrials"

var (
	nctIDExtractors = []StringExtractor{
		Path("nct_id"),
		Path("protocolSection", "identificationModule", "nctId"),
		Path("id"),
	}
	trialTitleExtractors = []StringExtractor{
		Path("title"),
		Path("brief_title"),
		Path("protocolSection", "identificationModule", "briefTitle"),
		Path("protocolSection", "identificationModule", "officialTitle"),
	}
	trialStatusExtractors = []StringExtractor{
		Path("status"),
		Path("overall_status"),
		Path("protocolSection", "statusModule", "overallStatus"),
	}
	trialPhaseExtractors = []StringExtractor{
		JoinedPath(", ", "phase"),
		JoinedPath(", ", "phases"),
		JoinedPath(", ", "protocolSection", "designModule", "phases"),
	}
	trialTypeExtractors = []StringExtractor{
		Path("study_type"),
		Path("protocolSection", "designModule", "studyType"),
	}
	trialStartExtractors = []StringExtractor{
		Path("start_date"),
		Path("protocolSection", "statusModule", "startDateStruct", "date"),
	}
	trialCompletionExtractors = []StringExtractor{
		Path("completion_date"),
		Path("protocolSection", "statusModule", "completionDateStruct", "date"),
		Path("protocolSection", "statusModule", "primaryCompletionDateStruct", "date"),
	}
	trialSummaryExtractors = []StringExtractor{
		Path("brief_summary"),
		Path("protocolSection", "descriptionModule", "briefSummary"),
	}
	trialConditionExtractors = []ListExtractor{
		ListPath("conditions"),
		ListPath("protocolSection", "conditionsModule", "conditions"),
	}
	trialInterventionExtractors = []ListExtractor{
		ListPath("interventions"),
		Pluck([]string{"protocolSection", "armsInterventionsModule", "interventions"}, "name"),
	}
	trialLocationExtractors = []ListExtractor{
		ListPath("locations"),
		Pluck([]string{"protocolSection", "contactsLocationsModule", "locations"}, "facility", "city", "country"),
	}
)

func init() {
	register(&Format{
		Name:       FormatClinicalTrials,
		Entry:      parseClinicalTrial,
		ArrayPaths: [][]string{{"studies"}},
	})
}

func parseClinicalTrial(doc Doc) ([]entities.Record, error) {
	nctID := FirstString(doc, nctIDExtractors...)
	if nctID == "" {
		return nil, nil
	}

	trial := &entities.ClinicalTrial{
		NCTID:          nctID,
		Title:          FirstString(doc, trialTitleExtractors...),
		Status:         FirstString(doc, trialStatusExtractors...),
		Phase:          FirstString(doc, trialPhaseExtractors...),
		StudyType:      FirstString(doc, trialTypeExtractors...),
		Conditions:     FirstList(doc, trialConditionExtractors...),
		Interventions:  FirstList(doc, trialInterventionExtractors...),
		Locations:      FirstList(doc, trialLocationExtractors...),
		Sponsors:       trialSponsors(doc),
		StartDate:      FirstString(doc, trialStartExtractors...),
		CompletionDate: FirstString(doc, trialCompletionExtractors...),
		BriefSummary:   FirstString(doc, trialSummaryExtractors...),
	}

	for _, keys := range [][]string{
		{"enrollment"},
		{"enrollment_count"},
		{"protocolSection", "designModule", "enrollmentInfo", "count"},
	} {
		if n, ok := IntAt(doc, keys...); ok {
			trial.EnrollmentCount = &n
			break
		}
	}
	return []entities.Record{trial}, nil
}

func trialSponsors(doc Doc) []string {
	if flat := FirstList(doc, ListPath("sponsors"), ListPath("lead_sponsor")); len(flat) > 0 {
		return flat
	}
	module := ObjectAt(doc, "protocolSection", "sponsorCollaboratorsModule")
	if module == nil {
		return nil
	}
	var out []string
	if lead := Path("leadSponsor", "name")(module); lead != "" {
		out = append(out, lead)
	}
	return append(out, Pluck([]string{"collaborators"}, "name")(module)...)
}
