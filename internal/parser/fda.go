package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

// openFDA bulk formats.
const (
	FormatFDANDC    = "fda_ndc"
	FormatDrugsFDA  = "drugsfda"
	FormatFDALabels = "fda_labels"
)

// Data source tags written to drug_information.data_source.
const (
	SourceNDC        = "ndc"
	SourceDrugsFDA   = "drugsfda"
	SourceLabels     = "labels"
	SourceOrangeBook = "orangebook"
)

var openFDAResults = [][]string{{"results"}}

func init() {
	register(&Format{Name: FormatFDANDC, Entry: parseNDCProduct, ArrayPaths: openFDAResults})
	register(&Format{Name: FormatDrugsFDA, Entry: parseDrugsFDAApplication, ArrayPaths: openFDAResults})
	register(&Format{Name: FormatFDALabels, Entry: parseDrugLabel, ArrayPaths: openFDAResults})
}

var (
	ndcKeyExtractors = []StringExtractor{
		Path("product_ndc"),
		Path("ndc"),
		Path("packaging", "package_ndc"),
		Path("openfda", "product_ndc"),
	}
	ndcGenericExtractors = []StringExtractor{
		Path("generic_name"),
		Path("openfda", "generic_name"),
		func(doc Doc) string {
			return strings.Join(Pluck([]string{"active_ingredients"}, "name")(doc), " and ")
		},
	}
	ndcBrandExtractors = []StringExtractor{
		Path("brand_name"),
		Path("openfda", "brand_name"),
	}
	manufacturerExtractors = []StringExtractor{
		Path("labeler_name"),
		Path("manufacturer_name"),
		Path("openfda", "manufacturer_name"),
		Path("sponsor_name"),
	}
	routeExtractors = []StringExtractor{
		JoinedPath(", ", "route"),
		JoinedPath(", ", "openfda", "route"),
	}
)

func parseNDCProduct(doc Doc) ([]entities.Record, error) {
	ndc := FirstString(doc, ndcKeyExtractors...)
	generic := FirstString(doc, ndcGenericExtractors...)
	if ndc == "" || generic == "" {
		return nil, nil
	}
	return []entities.Record{&entities.DrugInformation{
		NDC:               ndc,
		GenericName:       generic,
		BrandName:         FirstString(doc, ndcBrandExtractors...),
		Manufacturer:      FirstString(doc, manufacturerExtractors...),
		Strength:          strings.Join(Pluck([]string{"active_ingredients"}, "strength")(doc), "; "),
		DosageForm:        Path("dosage_form")(doc),
		Route:             FirstString(doc, routeExtractors...),
		ApplicationNumber: FirstString(doc, Path("application_number"), Path("openfda", "application_number")),
		ApprovalDate:      Path("marketing_start_date")(doc),
		TherapeuticClass:  establishedPharmClass(doc),
		DataSource:        SourceNDC,
	}}, nil
}

// establishedPharmClass returns the first "[EPC]" class, which openFDA uses
// for the established pharmacologic class.
func establishedPharmClass(doc Doc) string {
	for _, c := range FirstList(doc, ListPath("pharm_class"), ListPath("openfda", "pharm_class_epc")) {
		if strings.HasSuffix(c, "[EPC]") {
			return strings.TrimSpace(strings.TrimSuffix(c, "[EPC]"))
		}
	}
	if epc := Path("openfda", "pharm_class_epc")(doc); epc != "" {
		return strings.TrimSpace(strings.TrimSuffix(epc, "[EPC]"))
	}
	return ""
}

// parseDrugsFDAApplication emits one row per marketed product of an application.
func parseDrugsFDAApplication(doc Doc) ([]entities.Record, error) {
	appNo := Path("application_number")(doc)
	if appNo == "" {
		return nil, nil
	}

	base := entities.DrugInformation{
		GenericName:       Path("openfda", "generic_name")(doc),
		BrandName:         Path("openfda", "brand_name")(doc),
		Manufacturer:      FirstString(doc, Path("sponsor_name"), Path("openfda", "manufacturer_name")),
		Route:             Path("openfda", "route")(doc),
		ApplicationNumber: appNo,
		ApprovalDate:      originalApprovalDate(doc),
		TherapeuticClass:  establishedPharmClass(doc),
		DataSource:        SourceDrugsFDA,
	}

	products := ListAt(doc, "products")
	if len(products) == 0 {
		if base.GenericName == "" {
			return nil, nil
		}
		drug := base
		drug.NDC = "DF_" + appNo
		return []entities.Record{&drug}, nil
	}

	records := make([]entities.Record, 0, len(products))
	for i, p := range products {
		product, ok := p.(map[string]any)
		if !ok {
			continue
		}
		drug := base
		productNo := Path("product_number")(product)
		if productNo == "" {
			productNo = fmt.Sprintf("%03d", i+1)
		}
		drug.NDC = "DF_" + appNo + "_" + productNo
		if drug.GenericName == "" {
			drug.GenericName = strings.Join(Pluck([]string{"active_ingredients"}, "name")(product), " and ")
		}
		if drug.GenericName == "" {
			continue
		}
		if b := Path("brand_name")(product); b != "" {
			drug.BrandName = b
		}
		if r := Path("route")(product); r != "" {
			drug.Route = r
		}
		drug.DosageForm = Path("dosage_form")(product)
		drug.Strength = strings.Join(Pluck([]string{"active_ingredients"}, "strength")(product), "; ")
		records = append(records, &drug)
	}
	return records, nil
}

// originalApprovalDate is the earliest ORIG submission status date.
func originalApprovalDate(doc Doc) string {
	var dates []string
	for _, s := range ListAt(doc, "submissions") {
		sub, ok := s.(map[string]any)
		if !ok {
			continue
		}
		if !strings.EqualFold(Path("submission_type")(sub), "ORIG") {
			continue
		}
		if d := Path("submission_status_date")(sub); d != "" {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		return ""
	}
	sort.Strings(dates)
	return dates[0]
}

func parseDrugLabel(doc Doc) ([]entities.Record, error) {
	generic := FirstString(doc, Path("openfda", "generic_name"), Path("generic_name"))
	if generic == "" {
		return nil, nil
	}
	key := Path("openfda", "product_ndc")(doc)
	if key == "" {
		id := FirstString(doc, Path("set_id"), Path("id"))
		if id == "" {
			return nil, nil
		}
		key = "DL_" + id
	}

	drug := &entities.DrugInformation{
		NDC:                     key,
		GenericName:             generic,
		BrandName:               Path("openfda", "brand_name")(doc),
		Manufacturer:            Path("openfda", "manufacturer_name")(doc),
		Route:                   Path("openfda", "route")(doc),
		ApplicationNumber:       Path("openfda", "application_number")(doc),
		TherapeuticClass:        establishedPharmClass(doc),
		DataSource:              SourceLabels,
		IndicationsAndUsage:     labelText(doc, "indications_and_usage"),
		MechanismOfAction:       labelText(doc, "mechanism_of_action"),
		DosageAndAdministration: labelText(doc, "dosage_and_administration"),
		ClinicalPharmacology:    labelText(doc, "clinical_pharmacology"),
		Pharmacokinetics:        labelText(doc, "pharmacokinetics"),
		BoxedWarning:            labelText(doc, "boxed_warning"),
		Contraindications:       ListPath("contraindications")(doc),
		Warnings:                FirstList(doc, ListPath("warnings"), ListPath("warnings_and_cautions")),
		AdverseReactions:        ListPath("adverse_reactions")(doc),
		Precautions:             ListPath("precautions")(doc),
	}
	if interactions := labelText(doc, "drug_interactions"); interactions != "" {
		drug.DrugInteractions = map[string]string{"label": interactions}
	}
	if dosage := ListPath("dosage_forms_and_strengths")(doc); len(dosage) > 0 {
		drug.Strength = dosage[0]
	}
	return []entities.Record{drug}, nil
}

// labelText joins the paragraphs of a label section.
func labelText(doc Doc, field string) string {
	return strings.Join(ListPath(field)(doc), "\n")
}

// OrangeBookKey builds the synthetic NDC used for Orange Book products.
func OrangeBookKey(applType, applNo, productNo string) string {
	return fmt.Sprintf("OB_%s%s_%s", strings.TrimSpace(applType), strings.TrimSpace(applNo), strings.TrimSpace(productNo))
}
