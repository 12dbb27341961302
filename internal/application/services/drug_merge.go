package services

import (
	"math"
	"strings"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
	"github.com/zatekoja/medical-mirrors/pkg/utils"
)

// Confidence weights. They sum to 1.
const (
	clinicalWeight    = 0.4
	formulationWeight = 0.3
	sourceWeight      = 0.2
	classWeight       = 0.1

	formulationTarget = 5
	sourceTarget      = 4

	// Free text shorter than this is a stub, not clinical content.
	substantiveTextLen = 20
)

// MergeDrugGroup folds the raw rows of one normalized generic name into a
// consolidated drug. The result depends only on the rows and their order.
func MergeDrugGroup(key string, rows []*entities.DrugInformation) *entities.ConsolidatedDrug {
	d := &entities.ConsolidatedDrug{GenericName: key, SourceRowCount: len(rows)}

	var (
		brands, manufacturers, approvals, obCodes, appNumbers, sources []string
		contraindications, warnings, adverse, precautions              [][]string
		classes                                                         []string
	)
	interactions := map[string]string{}
	seenFormulation := map[entities.Formulation]struct{}{}

	for _, r := range rows {
		brands = append(brands, r.BrandName)
		manufacturers = append(manufacturers, r.Manufacturer)
		approvals = append(approvals, r.ApprovalDate)
		obCodes = append(obCodes, r.OrangeBookCode)
		appNumbers = append(appNumbers, r.ApplicationNumber)
		sources = append(sources, r.DataSource)
		classes = append(classes, r.TherapeuticClass)

		d.IndicationsAndUsage = longer(d.IndicationsAndUsage, r.IndicationsAndUsage)
		d.MechanismOfAction = longer(d.MechanismOfAction, r.MechanismOfAction)
		d.DosageAndAdministration = longer(d.DosageAndAdministration, r.DosageAndAdministration)
		d.ClinicalPharmacology = longer(d.ClinicalPharmacology, r.ClinicalPharmacology)
		d.Pharmacokinetics = longer(d.Pharmacokinetics, r.Pharmacokinetics)
		d.BoxedWarning = longer(d.BoxedWarning, r.BoxedWarning)

		contraindications = append(contraindications, r.Contraindications)
		warnings = append(warnings, r.Warnings)
		adverse = append(adverse, r.AdverseReactions)
		precautions = append(precautions, r.Precautions)

		f := entities.Formulation{
			NDC:          strings.TrimSpace(r.NDC),
			Strength:     strings.TrimSpace(r.Strength),
			DosageForm:   strings.TrimSpace(r.DosageForm),
			Route:        strings.TrimSpace(r.Route),
			BrandName:    strings.TrimSpace(r.BrandName),
			Manufacturer: strings.TrimSpace(r.Manufacturer),
		}
		if _, dup := seenFormulation[f]; !dup && f != (entities.Formulation{}) {
			seenFormulation[f] = struct{}{}
			d.Formulations = append(d.Formulations, f)
		}

		for k, v := range r.DrugInteractions {
			interactions[k] = v
		}
	}

	d.BrandNames = utils.SortedUnion(brands)
	d.Manufacturers = utils.SortedUnion(manufacturers)
	d.ApprovalDates = utils.SortedUnion(approvals)
	d.OrangeBookCodes = utils.SortedUnion(obCodes)
	d.ApplicationNumbers = utils.SortedUnion(appNumbers)
	d.DataSources = utils.SortedUnion(sources)
	d.TherapeuticClass = mostFrequent(classes)

	d.Contraindications = utils.CleanListItems(contraindications...)
	d.Warnings = utils.CleanListItems(warnings...)
	d.AdverseReactions = utils.CleanListItems(adverse...)
	d.Precautions = utils.CleanListItems(precautions...)

	if d.Formulations == nil {
		d.Formulations = []entities.Formulation{}
	}
	d.DrugInteractions = interactions
	d.TotalFormulations = len(d.Formulations)
	d.HasClinicalData = HasClinicalData(d)
	d.ConfidenceScore = ConfidenceScore(d)
	return d
}

// longer keeps current unless candidate is strictly longer, so ties go to
// the first row seen.
func longer(current, candidate string) string {
	candidate = strings.TrimSpace(candidate)
	if utils.IsNullish(candidate) {
		return current
	}
	if len([]rune(candidate)) > len([]rune(current)) {
		return candidate
	}
	return current
}

// mostFrequent returns the most common non-placeholder value, breaking ties
// by first appearance.
func mostFrequent(values []string) string {
	counts := map[string]int{}
	var order []string
	for _, v := range values {
		v = utils.CollapseWhitespace(v)
		if utils.IsNullish(v) {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	best := ""
	for _, v := range order {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best
}

// HasClinicalData reports whether any core clinical field survived the merge.
func HasClinicalData(d *entities.ConsolidatedDrug) bool {
	return strings.TrimSpace(d.IndicationsAndUsage) != "" ||
		strings.TrimSpace(d.MechanismOfAction) != "" ||
		len(d.Contraindications) > 0 ||
		len(d.Warnings) > 0
}

// ConfidenceScore rates how complete a consolidated drug is, in [0, 1].
func ConfidenceScore(d *entities.ConsolidatedDrug) float64 {
	tracked := []bool{
		substantive(d.IndicationsAndUsage),
		substantive(d.MechanismOfAction),
		substantive(d.DosageAndAdministration),
		len(d.Contraindications) > 0,
		len(d.Warnings) > 0,
		len(d.AdverseReactions) > 0,
	}
	populated := 0
	for _, ok := range tracked {
		if ok {
			populated++
		}
	}

	formulations := d.TotalFormulations
	if formulations < len(d.Formulations) {
		formulations = len(d.Formulations)
	}

	score := clinicalWeight*float64(populated)/float64(len(tracked)) +
		formulationWeight*math.Min(float64(formulations)/formulationTarget, 1) +
		sourceWeight*math.Min(float64(len(d.DataSources))/sourceTarget, 1)
	if !utils.IsNullish(d.TherapeuticClass) {
		score += classWeight
	}
	return math.Max(0, math.Min(1, score))
}

func substantive(text string) bool {
	text = strings.TrimSpace(text)
	return !utils.IsNullish(text) && len([]rune(text)) >= substantiveTextLen
}
