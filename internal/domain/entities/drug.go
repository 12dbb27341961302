package entities

import "time"

// DrugInformation is one raw per-source drug row (NDC product, Drugs@FDA
// application, Orange Book product or label). Many rows share a generic name.
type DrugInformation struct {
	NDC               string `json:"ndc"`
	GenericName       string `json:"generic_name"`
	BrandName         string `json:"brand_name"`
	Manufacturer      string `json:"manufacturer"`
	Strength          string `json:"strength"`
	DosageForm        string `json:"dosage_form"`
	Route             string `json:"route"`
	ApplicationNumber string `json:"application_number"`
	ApprovalDate      string `json:"approval_date"`
	OrangeBookCode    string `json:"orange_book_code"`
	TherapeuticClass  string `json:"therapeutic_class"`
	DataSource        string `json:"data_source"`

	IndicationsAndUsage     string `json:"indications_and_usage"`
	MechanismOfAction       string `json:"mechanism_of_action"`
	DosageAndAdministration string `json:"dosage_and_administration"`
	ClinicalPharmacology    string `json:"clinical_pharmacology"`
	Pharmacokinetics        string `json:"pharmacokinetics"`
	BoxedWarning            string `json:"boxed_warning"`

	Contraindications []string          `json:"contraindications"`
	Warnings          []string          `json:"warnings"`
	AdverseReactions  []string          `json:"adverse_reactions"`
	Precautions       []string          `json:"precautions"`
	DrugInteractions  map[string]string `json:"drug_interactions"`
}

func (d *DrugInformation) Table() string { return TableDrugInformation }
func (d *DrugInformation) Key() string   { return d.NDC }

func (d *DrugInformation) Columns() map[string]any {
	return map[string]any{
		"ndc":                       d.NDC,
		"generic_name":              d.GenericName,
		"brand_name":                d.BrandName,
		"manufacturer":              d.Manufacturer,
		"strength":                  d.Strength,
		"dosage_form":               d.DosageForm,
		"route":                     d.Route,
		"application_number":        d.ApplicationNumber,
		"approval_date":             d.ApprovalDate,
		"orange_book_code":          d.OrangeBookCode,
		"therapeutic_class":         d.TherapeuticClass,
		"data_source":               d.DataSource,
		"indications_and_usage":     d.IndicationsAndUsage,
		"mechanism_of_action":       d.MechanismOfAction,
		"dosage_and_administration": d.DosageAndAdministration,
		"clinical_pharmacology":     d.ClinicalPharmacology,
		"pharmacokinetics":          d.Pharmacokinetics,
		"boxed_warning":             d.BoxedWarning,
		"contraindications":         d.Contraindications,
		"warnings":                  d.Warnings,
		"adverse_reactions":         d.AdverseReactions,
		"precautions":               d.Precautions,
		"drug_interactions":         d.DrugInteractions,
	}
}

// Formulation is one distinct marketed product of a generic drug.
type Formulation struct {
	NDC          string `json:"ndc"`
	Strength     string `json:"strength"`
	DosageForm   string `json:"dosage_form"`
	Route        string `json:"route"`
	BrandName    string `json:"brand_name"`
	Manufacturer string `json:"manufacturer"`
}

// ConsolidatedDrug aggregates every raw row sharing a normalized generic name.
type ConsolidatedDrug struct {
	GenericName        string   `json:"generic_name"`
	BrandNames         []string `json:"brand_names"`
	Manufacturers      []string `json:"manufacturers"`
	ApprovalDates      []string `json:"approval_dates"`
	OrangeBookCodes    []string `json:"orange_book_codes"`
	ApplicationNumbers []string `json:"application_numbers"`
	DataSources        []string `json:"data_sources"`

	IndicationsAndUsage     string `json:"indications_and_usage"`
	MechanismOfAction       string `json:"mechanism_of_action"`
	DosageAndAdministration string `json:"dosage_and_administration"`
	ClinicalPharmacology    string `json:"clinical_pharmacology"`
	Pharmacokinetics        string `json:"pharmacokinetics"`
	BoxedWarning            string `json:"boxed_warning"`

	TherapeuticClass string `json:"therapeutic_class"`

	Contraindications []string `json:"contraindications"`
	Warnings          []string `json:"warnings"`
	AdverseReactions  []string `json:"adverse_reactions"`
	Precautions       []string `json:"precautions"`

	Formulations     []Formulation     `json:"formulations"`
	DrugInteractions map[string]string `json:"drug_interactions"`

	TotalFormulations int       `json:"total_formulations"`
	HasClinicalData   bool      `json:"has_clinical_data"`
	ConfidenceScore   float64   `json:"confidence_score"`
	SourceRowCount    int       `json:"source_row_count"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableDrugClasses is not a storage table: its rows are applied to
// drug_information.therapeutic_class.
const TableDrugClasses = "drug_classes"

// DrugClass is one RxClass classification of a drug by generic name.
type DrugClass struct {
	GenericName string `json:"generic_name"`
	ClassID     string `json:"class_id"`
	ClassName   string `json:"class_name"`
	ClassType   string `json:"class_type"`
}

func (c *DrugClass) Table() string { return TableDrugClasses }
func (c *DrugClass) Key() string   { return c.GenericName }

func (c *DrugClass) Columns() map[string]any {
	return map[string]any{
		"generic_name": c.GenericName,
		"class_id":     c.ClassID,
		"class_name":   c.ClassName,
		"class_type":   c.ClassType,
	}
}
