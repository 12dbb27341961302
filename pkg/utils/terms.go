package utils

import (
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"can": {}, "do": {}, "for": {}, "from": {}, "get": {}, "has": {}, "have": {}, "how": {},
	"if": {}, "in": {}, "is": {}, "it": {}, "its": {}, "may": {}, "more": {}, "not": {},
	"of": {}, "on": {}, "or": {}, "our": {}, "should": {}, "that": {}, "the": {}, "their": {},
	"this": {}, "to": {}, "too": {}, "was": {}, "what": {}, "when": {}, "which": {}, "who": {},
	"why": {}, "will": {}, "with": {}, "you": {}, "your": {}, "about": {}, "health": {},
	"healthy": {}, "take": {}, "steps": {}, "talk": {}, "doctor": {}, "know": {}, "need": {},
}

// IsStopword reports whether word is filtered out of search term sets.
func IsStopword(word string) bool {
	_, ok := stopwords[strings.ToLower(word)]
	return ok
}

// Tokenize splits text into lowercase alphanumeric words of at least minLen runes,
// dropping stopwords.
func Tokenize(text string, minLen int) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if len([]rune(f)) < minLen || IsStopword(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// IsSingleWord reports whether term is one token usable directly in a tsquery.
func IsSingleWord(term string) bool {
	term = strings.TrimSpace(term)
	if term == "" {
		return false
	}
	for _, r := range term {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
