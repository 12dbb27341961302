package utils

import (
	"regexp"
	"sort"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)

	// A trailing parenthetical that starts with a number, e.g. "(500mg)" or "(10 mg/5 ml)".
	trailingDosage = regexp.MustCompile(`\s*\(\s*\d[^()]*\)\s*$`)
)

// nullishValues are placeholders upstream datasets use for "no value".
var nullishValues = map[string]struct{}{
	"":        {},
	"null":    {},
	"none":    {},
	"n/a":     {},
	"na":      {},
	"unknown": {},
}

// NormalizeGenericName builds the consolidation key for a generic drug name:
// lowercase, whitespace collapsed, trailing dosage parenthetical removed.
func NormalizeGenericName(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = whitespaceRun.ReplaceAllString(key, " ")
	for {
		stripped := trailingDosage.ReplaceAllString(key, "")
		if stripped == key {
			break
		}
		key = stripped
	}
	return strings.TrimSpace(key)
}

// CollapseWhitespace trims and collapses internal whitespace runs.
func CollapseWhitespace(value string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(value), " ")
}

// IsNullish reports whether value is a "no data" placeholder.
func IsNullish(value string) bool {
	_, ok := nullishValues[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// SortedUnion returns the sorted set of non-empty trimmed values across all inputs.
func SortedUnion(lists ...[]string) []string {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, v := range list {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// CleanListItems unions list items, dropping null-ish placeholders. Output is sorted.
func CleanListItems(lists ...[]string) []string {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, v := range list {
			v = CollapseWhitespace(v)
			if IsNullish(v) {
				continue
			}
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// DedupeOrdered removes duplicates and empty values while keeping first-seen order.
func DedupeOrdered(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
