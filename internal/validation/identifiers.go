package validation

import (
	"regexp"
	"strings"
	"time"
)

var (
	pmidPattern  = regexp.MustCompile(`^\d+$`)
	nctPattern   = regexp.MustCompile(`^NCT\d{8}$`)
	icd10Pattern = regexp.MustCompile(`^[A-Z]\d{2}(\.\d+)?$`)
)

// syntheticNDCPrefixes mark drug rows keyed by Orange Book, Drugs@FDA or
// label identifiers instead of a real NDC.
var syntheticNDCPrefixes = []string{"OB_", "DF_", "DL_"}

// ValidatePMID returns the trimmed PMID and whether it is numeric.
func ValidatePMID(pmid string) (string, bool) {
	pmid = strings.TrimSpace(pmid)
	if !pmidPattern.MatchString(pmid) {
		return "", false
	}
	return pmid, true
}

// ValidateNCTID returns the upper-cased NCT id and whether it is NCT plus 8 digits.
func ValidateNCTID(nctID string) (string, bool) {
	nctID = strings.ToUpper(strings.TrimSpace(nctID))
	if !nctPattern.MatchString(nctID) {
		return "", false
	}
	return nctID, true
}

// ValidateICD10 returns the upper-cased code and whether it matches the ICD-10 shape.
func ValidateICD10(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !icd10Pattern.MatchString(code) {
		return "", false
	}
	return code, true
}

// ValidateNDC accepts an NDC with at least 10 digits once hyphens are removed,
// or a synthetic key with an allowed prefix.
func ValidateNDC(ndc string) (string, bool) {
	ndc = strings.TrimSpace(ndc)
	if ndc == "" {
		return "", false
	}
	for _, prefix := range syntheticNDCPrefixes {
		if strings.HasPrefix(ndc, prefix) && len(ndc) > len(prefix) {
			return ndc, true
		}
	}
	digits := strings.ReplaceAll(ndc, "-", "")
	if len(digits) < 10 {
		return "", false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return ndc, true
}

// dateLayouts are the date shapes the upstream datasets use.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01",
	"2006",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"20060102",
	"January 2, 2006",
	"January 2006",
	"Jan 2, 2006",
	"Jan 2006",
	"2006 Jan 2",
	"2006 Jan",
	"Jan 02, 2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// IsKnownDate reports whether value matches one of the known date layouts.
func IsKnownDate(value string) bool {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}
	return false
}
