package entities

// Icd10Code is one ICD-10-CM diagnosis code.
type Icd10Code struct {
	Code           string   `json:"code"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	Chapter        string   `json:"chapter"`
	ParentCode     string   `json:"parent_code"`
	IsBillable     bool     `json:"is_billable"`
	Synonyms       []string `json:"synonyms"`
	InclusionTerms []string `json:"inclusion_terms"`
	Exclusions     []string `json:"exclusions"`
}

func (c *Icd10Code) Table() string { return TableIcd10Codes }
func (c *Icd10Code) Key() string   { return c.Code }

func (c *Icd10Code) Columns() map[string]any {
	return map[string]any{
		"code":            c.Code,
		"description":     c.Description,
		"category":        c.Category,
		"chapter":         c.Chapter,
		"parent_code":     c.ParentCode,
		"is_billable":     c.IsBillable,
		"synonyms":        c.Synonyms,
		"inclusion_terms": c.InclusionTerms,
		"exclusions":      c.Exclusions,
	}
}

// BillingCode is one HCPCS Level II code.
type BillingCode struct {
	Code             string `json:"code"`
	ShortDescription string `json:"short_description"`
	LongDescription  string `json:"long_description"`
	CodeType         string `json:"code_type"`
	Category         string `json:"category"`
	EffectiveDate    string `json:"effective_date"`
	TerminationDate  string `json:"termination_date"`
	IsActive         bool   `json:"is_active"`
}

func (b *BillingCode) Table() string { return TableBillingCodes }
func (b *BillingCode) Key() string   { return b.Code }

func (b *BillingCode) Columns() map[string]any {
	return map[string]any{
		"code":              b.Code,
		"short_description": b.ShortDescription,
		"long_description":  b.LongDescription,
		"code_type":         b.CodeType,
		"category":          b.Category,
		"effective_date":    b.EffectiveDate,
		"termination_date":  b.TerminationDate,
		"is_active":         b.IsActive,
	}
}

// HealthTopic is one consumer health topic (MyHealthfinder).
type HealthTopic struct {
	TopicID     string   `json:"topic_id"`
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	URL         string   `json:"url"`
	Summary     string   `json:"summary"`
	Keywords    []string `json:"keywords"`
	LastUpdated string   `json:"last_updated"`
}

func (h *HealthTopic) Table() string { return TableHealthTopics }
func (h *HealthTopic) Key() string   { return h.TopicID }

func (h *HealthTopic) Columns() map[string]any {
	return map[string]any{
		"topic_id":     h.TopicID,
		"title":        h.Title,
		"category":     h.Category,
		"url":          h.URL,
		"summary":      h.Summary,
		"keywords":     h.Keywords,
		"last_updated": h.LastUpdated,
	}
}

// Exercise is one ExerciseDB entry.
type Exercise struct {
	ExerciseID       string   `json:"exercise_id"`
	Name             string   `json:"name"`
	BodyPart         string   `json:"body_part"`
	Equipment        string   `json:"equipment"`
	Target           string   `json:"target"`
	SecondaryMuscles []string `json:"secondary_muscles"`
	Instructions     []string `json:"instructions"`
	GifURL           string   `json:"gif_url"`
}

func (e *Exercise) Table() string { return TableExercises }
func (e *Exercise) Key() string   { return e.ExerciseID }

func (e *Exercise) Columns() map[string]any {
	return map[string]any{
		"exercise_id":       e.ExerciseID,
		"name":              e.Name,
		"body_part":         e.BodyPart,
		"equipment":         e.Equipment,
		"target":            e.Target,
		"secondary_muscles": e.SecondaryMuscles,
		"instructions":      e.Instructions,
		"gif_url":           e.GifURL,
	}
}

// FoodItem is one USDA FoodData Central food.
type FoodItem struct {
	FdcID           string             `json:"fdc_id"`
	Description     string             `json:"description"`
	DataType        string             `json:"data_type"`
	BrandOwner      string             `json:"brand_owner"`
	FoodCategory    string             `json:"food_category"`
	Ingredients     string             `json:"ingredients"`
	ServingSize     *float64           `json:"serving_size,omitempty"`
	ServingSizeUnit string             `json:"serving_size_unit"`
	Nutrients       map[string]float64 `json:"nutrients"`
	PublicationDate string             `json:"publication_date"`
}

func (f *FoodItem) Table() string { return TableFoodItems }
func (f *FoodItem) Key() string   { return f.FdcID }

func (f *FoodItem) Columns() map[string]any {
	cols := map[string]any{
		"fdc_id":            f.FdcID,
		"description":       f.Description,
		"data_type":         f.DataType,
		"brand_owner":       f.BrandOwner,
		"food_category":     f.FoodCategory,
		"ingredients":       f.Ingredients,
		"serving_size_unit": f.ServingSizeUnit,
		"nutrients":         f.Nutrients,
		"publication_date":  f.PublicationDate,
	}
	if f.ServingSize != nil {
		cols["serving_size"] = *f.ServingSize
	}
	return cols
}
