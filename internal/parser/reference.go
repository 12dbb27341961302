package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

// Reference dataset formats.
const (
	FormatICD10        = "icd10"
	FormatHCPCS        = "hcpcs"
	FormatHealthTopics = "health_topics"
	FormatExercises    = "exercises"
	FormatFoods        = "foods"
)

func init() {
	register(&Format{Name: FormatICD10, Entry: parseICD10Entry, ArrayPaths: [][]string{{"codes"}, {"results"}}})
	register(&Format{Name: FormatHCPCS, Entry: parseHCPCSEntry, ArrayPaths: [][]string{{"codes"}, {"results"}}})
	register(&Format{
		Name:       FormatHealthTopics,
		Entry:      parseHealthTopicEntry,
		ArrayPaths: [][]string{{"Result", "Resources", "Resource"}, {"topics"}},
	})
	register(&Format{Name: FormatExercises, Entry: parseExerciseEntry, ArrayPaths: [][]string{{"exercises"}, {"data"}}})
	register(&Format{
		Name:  FormatFoods,
		Entry: parseFoodEntry,
		ArrayPaths: [][]string{
			{"FoundationFoods"}, {"SRLegacyFoods"}, {"BrandedFoods"}, {"SurveyFoods"}, {"foods"},
		},
	})
}

// icd10Chapters maps the first letter of a code to its ICD-10-CM chapter.
// D and H are split across two chapters by the numeric part.
var icd10Chapters = map[byte]string{
	'A': "Certain infectious and parasitic diseases",
	'B': "Certain infectious and parasitic diseases",
	'C': "Neoplasms",
	'E': "Endocrine, nutritional and metabolic diseases",
	'F': "Mental, behavioral and neurodevelopmental disorders",
	'G': "Diseases of the nervous system",
	'I': "Diseases of the circulatory system",
	'J': "Diseases of the respiratory system",
	'K': "Diseases of the digestive system",
	'L': "Diseases of the skin and subcutaneous tissue",
	'M': "Diseases of the musculoskeletal system and connective tissue",
	'N': "Diseases of the genitourinary system",
	'O': "Pregnancy, childbirth and the puerperium",
	'P': "Certain conditions originating in the perinatal period",
	'Q': "Congenital malformations, deformations and chromosomal abnormalities",
	'R': "Symptoms, signs and abnormal clinical and laboratory findings",
	'S': "Injury, poisoning and certain other consequences of external causes",
	'T': "Injury, poisoning and certain other consequences of external causes",
	'V': "External causes of morbidity",
	'W': "External causes of morbidity",
	'X': "External causes of morbidity",
	'Y': "External causes of morbidity",
	'Z': "Factors influencing health status and contact with health services",
	'U': "Codes for special purposes",
}

// ICD10Chapter returns the chapter title for code.
func ICD10Chapter(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	n, _ := strconv.Atoi(strings.SplitN(code[1:], ".", 2)[0])
	switch code[0] {
	case 'D':
		if n < 50 {
			return "Neoplasms"
		}
		return "Diseases of the blood and blood-forming organs"
	case 'H':
		if n < 60 {
			return "Diseases of the eye and adnexa"
		}
		return "Diseases of the ear and mastoid process"
	}
	return icd10Chapters[code[0]]
}

func parseICD10Entry(doc Doc) ([]entities.Record, error) {
	code := FirstString(doc, Path("code"), Path("icd10_code"), Path("Code"))
	if code == "" {
		return nil, nil
	}
	code = strings.ToUpper(code)
	if len(code) > 3 && !strings.Contains(code, ".") {
		code = code[:3] + "." + code[3:]
	}

	rec := &entities.Icd10Code{
		Code:           code,
		Description:    FirstString(doc, Path("description"), Path("long_description"), Path("desc"), Path("name")),
		Category:       FirstString(doc, Path("category")),
		Chapter:        FirstString(doc, Path("chapter")),
		ParentCode:     FirstString(doc, Path("parent_code"), Path("parent")),
		Synonyms:       FirstList(doc, ListPath("synonyms")),
		InclusionTerms: FirstList(doc, ListPath("inclusion_terms"), ListPath("includes")),
		Exclusions:     FirstList(doc, ListPath("exclusions"), ListPath("excludes1")),
	}
	if rec.Category == "" {
		rec.Category = code[:min(3, len(code))]
	}
	if rec.Chapter == "" {
		rec.Chapter = ICD10Chapter(code)
	}
	if rec.ParentCode == "" && strings.Contains(code, ".") {
		parent := code[:len(code)-1]
		rec.ParentCode = strings.TrimSuffix(parent, ".")
	}
	if billable, ok := BoolAt(doc, "is_billable"); ok {
		rec.IsBillable = billable
	} else if billable, ok := BoolAt(doc, "billable"); ok {
		rec.IsBillable = billable
	}
	return []entities.Record{rec}, nil
}

func parseHCPCSEntry(doc Doc) ([]entities.Record, error) {
	code := strings.ToUpper(FirstString(doc, Path("code"), Path("hcpc"), Path("HCPC")))
	if code == "" {
		return nil, nil
	}
	rec := &entities.BillingCode{
		Code:             code,
		ShortDescription: FirstString(doc, Path("short_description"), Path("short_desc"), Path("SHORT DESCRIPTION")),
		LongDescription:  FirstString(doc, Path("long_description"), Path("long_desc"), Path("LONG DESCRIPTION")),
		CodeType:         FirstString(doc, Path("code_type")),
		Category:         FirstString(doc, Path("category"), Path("betos")),
		EffectiveDate:    FirstString(doc, Path("effective_date"), Path("add_date"), Path("ADD DT")),
		TerminationDate:  FirstString(doc, Path("termination_date"), Path("term_date"), Path("TERM DT")),
	}
	if rec.CodeType == "" {
		rec.CodeType = "HCPCS"
	}
	if active, ok := BoolAt(doc, "is_active"); ok {
		rec.IsActive = active
	} else {
		rec.IsActive = rec.TerminationDate == ""
	}
	return []entities.Record{rec}, nil
}

func parseHealthTopicEntry(doc Doc) ([]entities.Record, error) {
	id := FirstString(doc, Path("Id"), Path("topic_id"), Path("id"))
	if id == "" {
		return nil, nil
	}
	rec := &entities.HealthTopic{
		TopicID:  id,
		Title:    FirstString(doc, Path("Title"), Path("title")),
		Category: FirstString(doc, Path("Categories"), Path("category")),
		URL:      FirstString(doc, Path("AccessibleVersion"), Path("url")),
		Keywords: FirstList(doc, ListPath("keywords")),
	}

	var sections []string
	for _, s := range FirstListOfObjects(doc, []string{"Sections", "section"}, []string{"sections"}) {
		if content := StripMarkup(FirstString(s, Path("Content"), Path("content"))); content != "" {
			sections = append(sections, content)
		}
	}
	rec.Summary = strings.Join(sections, "\n")
	if rec.Summary == "" {
		rec.Summary = StripMarkup(FirstString(doc, Path("summary"), Path("MyHFDescription")))
	}

	if len(rec.Keywords) == 0 && rec.Category != "" {
		for _, c := range strings.Split(rec.Category, ",") {
			if c = strings.TrimSpace(c); c != "" {
				rec.Keywords = append(rec.Keywords, c)
			}
		}
	}

	rec.LastUpdated = FirstString(doc, Path("last_updated"))
	if rec.LastUpdated == "" {
		if ts, ok := IntAt(doc, "LastUpdate"); ok && ts > 0 {
			rec.LastUpdated = time.Unix(int64(ts), 0).UTC().Format("2006-01-02")
		}
	}
	return []entities.Record{rec}, nil
}

// FirstListOfObjects returns the objects of the first non-empty list found at paths.
func FirstListOfObjects(doc Doc, paths ...[]string) []Doc {
	for _, p := range paths {
		list := ListAt(doc, p...)
		if len(list) == 0 {
			continue
		}
		out := make([]Doc, 0, len(list))
		for _, item := range list {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		return out
	}
	return nil
}

func parseExerciseEntry(doc Doc) ([]entities.Record, error) {
	id := FirstString(doc, Path("id"), Path("exercise_id"), Path("exerciseId"))
	name := FirstString(doc, Path("name"))
	if id == "" {
		return nil, nil
	}
	return []entities.Record{&entities.Exercise{
		ExerciseID:       id,
		Name:             name,
		BodyPart:         FirstString(doc, Path("bodyPart"), Path("body_part"), Path("bodyParts")),
		Equipment:        FirstString(doc, Path("equipment"), Path("equipments")),
		Target:           FirstString(doc, Path("target"), Path("targetMuscles")),
		SecondaryMuscles: FirstList(doc, ListPath("secondaryMuscles"), ListPath("secondary_muscles")),
		Instructions:     FirstList(doc, ListPath("instructions")),
		GifURL:           FirstString(doc, Path("gifUrl"), Path("gif_url")),
	}}, nil
}

func parseFoodEntry(doc Doc) ([]entities.Record, error) {
	id := FirstString(doc, Path("fdcId"), Path("fdc_id"))
	if id == "" {
		return nil, nil
	}
	rec := &entities.FoodItem{
		FdcID:           id,
		Description:     FirstString(doc, Path("description")),
		DataType:        FirstString(doc, Path("dataType"), Path("data_type")),
		BrandOwner:      FirstString(doc, Path("brandOwner"), Path("brand_owner")),
		FoodCategory:    FirstString(doc, Path("foodCategory", "description"), Path("brandedFoodCategory"), Path("foodCategory"), Path("food_category")),
		Ingredients:     FirstString(doc, Path("ingredients")),
		ServingSizeUnit: FirstString(doc, Path("servingSizeUnit"), Path("serving_size_unit")),
		PublicationDate: FirstString(doc, Path("publicationDate"), Path("publication_date")),
	}
	if size, ok := FloatAt(doc, "servingSize"); ok {
		rec.ServingSize = &size
	}

	nutrients := map[string]float64{}
	for _, n := range FirstListOfObjects(doc, []string{"foodNutrients"}) {
		name := FirstString(n, Path("nutrient", "name"), Path("nutrientName"))
		if name == "" {
			continue
		}
		amount, ok := FloatAt(n, "amount")
		if !ok {
			amount, ok = FloatAt(n, "value")
		}
		if !ok {
			continue
		}
		if unit := FirstString(n, Path("nutrient", "unitName"), Path("unitName")); unit != "" {
			name += " (" + strings.ToLower(unit) + ")"
		}
		nutrients[name] = amount
	}
	if len(nutrients) > 0 {
		rec.Nutrients = nutrients
	}
	return []entities.Record{rec}, nil
}
