package mcmcda

import (
	"cmp"
	"slices"
)

// Candidate is a detection together with log-probability of being the next point of a growing track
type Candidate[D any] struct {
	Ref     Ref[D]
	LogProb float64
}

// ProbabilityMap holds growth candidates of one frame in two indices built together:
// candidates sorted by log-probability (descending, ties by detection index) and
// a lookup by detection identity.
type ProbabilityMap[D any] struct {
	sorted []Candidate[D]
	index  map[RefKey]int
}

func newProbabilityMap[D any](candidates []Candidate[D]) *ProbabilityMap[D] {
	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b Candidate[D]) int {
		if c := cmp.Compare(b.LogProb, a.LogProb); c != 0 {
			return c
		}
		return compareRefs(a.Ref, b.Ref)
	})
	index := make(map[RefKey]int, len(sorted))
	for i, cand := range sorted {
		index[cand.Ref.Key()] = i
	}
	return &ProbabilityMap[D]{
		sorted: sorted,
		index:  index,
	}
}

// Len returns number of candidates
func (pm *ProbabilityMap[D]) Len() int {
	return len(pm.sorted)
}

// At returns i-th most probable candidate
func (pm *ProbabilityMap[D]) At(i int) Candidate[D] {
	return pm.sorted[i]
}

// Candidates returns candidates from the most probable to the least one
func (pm *ProbabilityMap[D]) Candidates() []Candidate[D] {
	return slices.Clone(pm.sorted)
}

// LogProb returns log-probability of given detection. Second value is false when it is not a candidate.
func (pm *ProbabilityMap[D]) LogProb(ref Ref[D]) (float64, bool) {
	i, ok := pm.index[ref.Key()]
	if !ok {
		return Impossible, false
	}
	return pm.sorted[i].LogProb, true
}

// Has reports whether detection is a candidate
func (pm *ProbabilityMap[D]) Has(ref Ref[D]) bool {
	_, ok := pm.index[ref.Key()]
	return ok
}
