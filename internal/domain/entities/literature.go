package entities

// PubmedArticle is one MEDLINE citation.
type PubmedArticle struct {
	PMID      string   `json:"pmid"`
	Title     string   `json:"title"`
	Abstract  string   `json:"abstract"`
	Authors   []string `json:"authors"`
	Journal   string   `json:"journal"`
	PubDate   string   `json:"pub_date"`
	DOI       string   `json:"doi"`
	MeshTerms []string `json:"mesh_terms"`
}

func (a *PubmedArticle) Table() string { return TablePubmedArticles }
func (a *PubmedArticle) Key() string   { return a.PMID }

func (a *PubmedArticle) Columns() map[string]any {
	return map[string]any{
		"pmid":       a.PMID,
		"title":      a.Title,
		"abstract":   a.Abstract,
		"authors":    a.Authors,
		"journal":    a.Journal,
		"pub_date":   a.PubDate,
		"doi":        a.DOI,
		"mesh_terms": a.MeshTerms,
	}
}

// ClinicalTrial is one ClinicalTrials.gov study.
type ClinicalTrial struct {
	NCTID           string   `json:"nct_id"`
	Title           string   `json:"title"`
	Status          string   `json:"status"`
	Phase           string   `json:"phase"`
	StudyType       string   `json:"study_type"`
	Conditions      []string `json:"conditions"`
	Interventions   []string `json:"interventions"`
	Locations       []string `json:"locations"`
	Sponsors        []string `json:"sponsors"`
	StartDate       string   `json:"start_date"`
	CompletionDate  string   `json:"completion_date"`
	EnrollmentCount *int     `json:"enrollment_count,omitempty"`
	BriefSummary    string   `json:"brief_summary"`
}

func (c *ClinicalTrial) Table() string { return TableClinicalTrials }
func (c *ClinicalTrial) Key() string   { return c.NCTID }

func (c *ClinicalTrial) Columns() map[string]any {
	cols := map[string]any{
		"nct_id":          c.NCTID,
		"title":           c.Title,
		"status":          c.Status,
		"phase":           c.Phase,
		"study_type":      c.StudyType,
		"conditions":      c.Conditions,
		"interventions":   c.Interventions,
		"locations":       c.Locations,
		"sponsors":        c.Sponsors,
		"start_date":      c.StartDate,
		"completion_date": c.CompletionDate,
		"brief_summary":   c.BriefSummary,
	}
	if c.EnrollmentCount != nil {
		cols["enrollment_count"] = *c.EnrollmentCount
	}
	return cols
}
