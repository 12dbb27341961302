package evaluation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

// LoadGoldenQueries reads a golden set. Files ending in .yaml or .yml are
// parsed as YAML, anything else as JSON.
func LoadGoldenQueries(path string) ([]GoldenQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read golden queries file: %w", err)
	}

	var queries []GoldenQuery
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &queries)
	default:
		err = json.Unmarshal(data, &queries)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse golden queries: %w", err)
	}
	return queries, nil
}

var validDifficulties = map[string]bool{
	"easy":   true,
	"medium": true,
	"hard":   true,
}

// ValidateGoldenQueries checks ids are unique and every query names a known
// table, has text and at least one expected id.
func ValidateGoldenQueries(queries []GoldenQuery) error {
	seen := make(map[string]struct{}, len(queries))

	for i, q := range queries {
		if q.ID == "" {
			return fmt.Errorf("query at index %d: missing id", i)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("query at index %d: duplicate id %q", i, q.ID)
		}
		seen[q.ID] = struct{}{}

		if !entities.IsKnownTable(q.Table) {
			return fmt.Errorf("query %q: unknown table %q", q.ID, q.Table)
		}
		if strings.TrimSpace(q.Query) == "" {
			return fmt.Errorf("query %q: missing query text", q.ID)
		}
		if len(q.ExpectedIDs) == 0 {
			return fmt.Errorf("query %q: no expected_ids", q.ID)
		}
		if q.Difficulty != "" && !validDifficulties[q.Difficulty] {
			return fmt.Errorf("query %q: invalid difficulty %q (must be easy/medium/hard)", q.ID, q.Difficulty)
		}
	}

	return nil
}
