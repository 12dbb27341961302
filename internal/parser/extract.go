package parser

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

// Doc is one decoded JSON object from an upstream dataset.
type Doc = map[string]any

// StringExtractor pulls one candidate value for a field out of a document.
type StringExtractor func(doc Doc) string

// ListExtractor pulls one candidate list for a field out of a document.
type ListExtractor func(doc Doc) []string

// FirstString tries extractors in order and returns the first non-empty value.
func FirstString(doc Doc, extractors ...StringExtractor) string {
	for _, ex := range extractors {
		if v := ex(doc); v != "" {
			return v
		}
	}
	return ""
}

// FirstList tries extractors in order and returns the first non-empty list.
func FirstList(doc Doc, extractors ...ListExtractor) []string {
	for _, ex := range extractors {
		if v := ex(doc); len(v) > 0 {
			return v
		}
	}
	return nil
}

// Path extracts a scalar at a nested key path. A list at the leaf yields its
// first scalar element.
func Path(keys ...string) StringExtractor {
	return func(doc Doc) string {
		return scalarString(walk(doc, keys))
	}
}

// JoinedPath extracts a list at a nested key path and joins it with sep.
func JoinedPath(sep string, keys ...string) StringExtractor {
	return func(doc Doc) string {
		return strings.Join(toStrings(walk(doc, keys)), sep)
	}
}

// ListPath extracts a list of scalars at a nested key path. A scalar at the
// leaf yields a one-element list.
func ListPath(keys ...string) ListExtractor {
	return func(doc Doc) []string {
		return toStrings(walk(doc, keys))
	}
}

// Pluck walks to a list of objects and collects, for each object, the
// non-empty values of fields joined with ", ".
func Pluck(path []string, fields ...string) ListExtractor {
	return func(doc Doc) []string {
		items, ok := walk(doc, path).([]any)
		if !ok {
			return nil
		}
		var out []string
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			parts := make([]string, 0, len(fields))
			for _, f := range fields {
				if v := scalarString(obj[f]); v != "" {
					parts = append(parts, v)
				}
			}
			if len(parts) > 0 {
				out = append(out, strings.Join(parts, ", "))
			}
		}
		return out
	}
}

// ObjectAt returns the nested object at keys, if any.
func ObjectAt(doc Doc, keys ...string) Doc {
	obj, _ := walk(doc, keys).(map[string]any)
	return obj
}

// ListAt returns the nested list at keys, if any.
func ListAt(doc Doc, keys ...string) []any {
	list, _ := walk(doc, keys).([]any)
	return list
}

func walk(doc Doc, keys []string) any {
	var cur any = doc
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = obj[k]
		if !ok {
			return nil
		}
	}
	return cur
}

func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		for _, item := range val {
			if s := scalarString(item); s != "" {
				return s
			}
		}
	}
	return ""
}

func toStrings(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if _, nested := item.([]any); nested {
				continue
			}
			if s := scalarString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := scalarString(val); s != "" {
			return []string{s}
		}
	}
	return nil
}

// IntAt returns a number at keys, accepting numeric strings.
func IntAt(doc Doc, keys ...string) (int, bool) {
	switch val := walk(doc, keys).(type) {
	case float64:
		return int(val), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		return n, err == nil
	}
	return 0, false
}

// FloatAt returns a number at keys, accepting numeric strings.
func FloatAt(doc Doc, keys ...string) (float64, bool) {
	switch val := walk(doc, keys).(type) {
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

// BoolAt returns a boolean at keys, accepting "true"/"Y"/"1" style strings.
func BoolAt(doc Doc, keys ...string) (bool, bool) {
	switch val := walk(doc, keys).(type) {
	case bool:
		return val, true
	case float64:
		return val != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "y", "yes", "1":
			return true, true
		case "false", "n", "no", "0":
			return false, true
		}
	}
	return false, false
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// StripMarkup removes HTML/XML tags, unescapes entities and collapses whitespace.
func StripMarkup(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
