package evaluation

func topK(retrieved []string, k int) []string {
	if k > 0 && k < len(retrieved) {
		return retrieved[:k]
	}
	return retrieved
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// RecallAtK is the fraction of relevant ids found in the top k. Empty
// relevant sets score 0.
func RecallAtK(relevant, retrieved []string, k int) float64 {
	if len(relevant) == 0 {
		return 0
	}
	want := toSet(relevant)
	found := 0
	for _, id := range topK(retrieved, k) {
		if _, ok := want[id]; ok {
			found++
			delete(want, id)
		}
	}
	return float64(found) / float64(len(relevant))
}

// PrecisionAtK is the fraction of the top k that is relevant.
func PrecisionAtK(relevant, retrieved []string, k int) float64 {
	top := topK(retrieved, k)
	if len(top) == 0 {
		return 0
	}
	want := toSet(relevant)
	hits := 0
	for _, id := range top {
		if _, ok := want[id]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(top))
}

// MRRAtK is the reciprocal rank of the first relevant id in the top k, or 0.
func MRRAtK(relevant, retrieved []string, k int) float64 {
	want := toSet(relevant)
	for i, id := range topK(retrieved, k) {
		if _, ok := want[id]; ok {
			return 1 / float64(i+1)
		}
	}
	return 0
}
