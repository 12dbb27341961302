package evaluation

import (
	"math"
	"testing"
)

const floatTolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

func TestRecallAtK(t *testing.T) {
	tests := []struct {
		name      string
		relevant  []string
		retrieved []string
		k         int
		want      float64
	}{
		{name: "all found", relevant: []string{"a", "b"}, retrieved: []string{"b", "x", "a"}, k: 10, want: 1},
		{name: "half found", relevant: []string{"a", "b", "c", "d"}, retrieved: []string{"a", "x", "b"}, k: 10, want: 0.5},
		{name: "relevant beyond cutoff", relevant: []string{"a"}, retrieved: []string{"x", "y", "a"}, k: 2, want: 0},
		{name: "duplicates counted once", relevant: []string{"a", "b"}, retrieved: []string{"a", "a"}, k: 10, want: 0.5},
		{name: "no relevant", relevant: nil, retrieved: []string{"a"}, k: 10, want: 0},
		{name: "no results", relevant: []string{"a"}, retrieved: nil, k: 10, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecallAtK(tt.relevant, tt.retrieved, tt.k); !almostEqual(got, tt.want) {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestMRRAtK(t *testing.T) {
	tests := []struct {
		name      string
		relevant  []string
		retrieved []string
		k         int
		want      float64
	}{
		{name: "first position", relevant: []string{"a"}, retrieved: []string{"a", "b"}, k: 10, want: 1},
		{name: "third position", relevant: []string{"c", "z"}, retrieved: []string{"a", "b", "c", "z"}, k: 10, want: 1.0 / 3},
		{name: "beyond cutoff", relevant: []string{"c"}, retrieved: []string{"a", "b", "c"}, k: 2, want: 0},
		{name: "none relevant", relevant: []string{"q"}, retrieved: []string{"a"}, k: 10, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MRRAtK(tt.relevant, tt.retrieved, tt.k); !almostEqual(got, tt.want) {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestPrecisionAtK(t *testing.T) {
	if got := PrecisionAtK([]string{"a", "c"}, []string{"a", "b", "c", "d"}, 10); !almostEqual(got, 0.5) {
		t.Errorf("expected 0.5, got %f", got)
	}
	if got := PrecisionAtK([]string{"a"}, []string{"a", "b", "c"}, 1); !almostEqual(got, 1) {
		t.Errorf("expected 1, got %f", got)
	}
	if got := PrecisionAtK([]string{"a"}, nil, 10); got != 0 {
		t.Errorf("expected 0 for empty results, got %f", got)
	}
}
