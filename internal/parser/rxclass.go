package parser

import (
	"strings"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

// FormatRxClass parses RxClass class-by-drug responses. Records update the
// therapeutic class of existing drug rows rather than adding drugs.
const FormatRxClass = "rxclass"

// preferredClassTypes orders RxClass class types by usefulness as a therapeutic class.
var preferredClassTypes = map[string]int{
	"EPC":     0,
	"ATC1-4":  1,
	"VA":      2,
	"MOA":     3,
	"PE":      4,
	"DISEASE": 5,
}

func init() {
	register(&Format{
		Name:       FormatRxClass,
		Entry:      parseRxClassEntry,
		ArrayPaths: [][]string{{"rxclassDrugInfoList", "rxclassDrugInfo"}, {"results"}},
	})
}

func parseRxClassEntry(doc Doc) ([]entities.Record, error) {
	name := FirstString(doc,
		Path("minConcept", "name"),
		Path("drug_name"),
		Path("generic_name"),
	)
	className := FirstString(doc,
		Path("rxclassMinConceptItem", "className"),
		Path("class_name"),
	)
	if name == "" || className == "" {
		return nil, nil
	}
	return []entities.Record{&entities.DrugClass{
		GenericName: strings.ToLower(name),
		ClassID:     FirstString(doc, Path("rxclassMinConceptItem", "classId"), Path("class_id")),
		ClassName:   className,
		ClassType:   FirstString(doc, Path("rxclassMinConceptItem", "classType"), Path("class_type")),
	}}, nil
}

// ClassRank orders a class type for choosing one class per drug; lower is better.
func ClassRank(classType string) int {
	if rank, ok := preferredClassTypes[strings.ToUpper(classType)]; ok {
		return rank
	}
	return len(preferredClassTypes)
}
