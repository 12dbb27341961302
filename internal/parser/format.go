package parser

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

// EntryFunc converts one JSON array entry into records. No records and a nil
// error means the entry lacked its natural key and is skipped.
type EntryFunc func(doc Doc) ([]entities.Record, error)

// FileFunc parses a whole file that is not a JSON record array.
type FileFunc func(path string) ([]entities.Record, int, error)

// Format describes how to parse one upstream dataset.
type Format struct {
	Name string

	// Entry parses one element of a JSON record array. ArrayPaths lists
	// where the array may sit when the root is an object.
	Entry      EntryFunc
	ArrayPaths [][]string

	// File parses formats that are not JSON arrays (XML, delimited text).
	File FileFunc
}

var formats = map[string]*Format{}

func register(f *Format) {
	if _, dup := formats[f.Name]; dup {
		panic("parser: duplicate format " + f.Name)
	}
	formats[f.Name] = f
}

// Lookup returns the named format.
func Lookup(name string) (*Format, bool) {
	f, ok := formats[name]
	return f, ok
}

// Formats lists the registered format names.
func Formats() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *Format) parseUnit(u Unit) ([]entities.Record, int, error) {
	if f.Entry == nil {
		return f.File(u.Path)
	}
	entries := u.Entries
	if entries == nil {
		var err error
		entries, err = readEntries(u.Path, f.ArrayPaths)
		if err != nil {
			return nil, 0, err
		}
	}
	return parseEntries(f.Entry, entries)
}

// parseEntries applies entry to every element. A malformed element fails the
// whole unit so that it is attributed and retried as one piece.
func parseEntries(entry EntryFunc, entries []json.RawMessage) ([]entities.Record, int, error) {
	records := make([]entities.Record, 0, len(entries))
	skipped := 0
	for i, raw := range entries {
		doc, err := decodeDoc(raw)
		if err != nil {
			return records, skipped, fmt.Errorf("entry %d: %w", i, err)
		}
		if doc == nil {
			skipped++
			continue
		}
		recs, err := entry(doc)
		if err != nil {
			return records, skipped, fmt.Errorf("entry %d: %w", i, err)
		}
		if len(recs) == 0 {
			skipped++
			continue
		}
		for _, rec := range recs {
			if rec.Key() == "" {
				skipped++
				continue
			}
			records = append(records, rec)
		}
	}
	return records, skipped, nil
}
