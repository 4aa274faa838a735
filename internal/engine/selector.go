package engine

import "github.com/pavelanni/examgen/internal/model"

// pickVariation returns one variation of q chosen with intn, which must
// return a value in [0, n). A question without variations yields the zero
// Variation.
func pickVariation(q model.Question, intn func(n int) int) model.Variation {
	switch len(q.Variations) {
	case 0:
		return model.Variation{}
	case 1:
		return q.Variations[0]
	}
	return q.Variations[intn(len(q.Variations))]
}

// ResolveVariation returns the variation a stored answer was most likely
// rendered from: the first one whose options contain every selected option.
// With no selections, or no such variation, it returns the first variation.
// Only used for display; grading never depends on it.
func ResolveVariation(q model.Question, selected []string) model.Variation {
	if len(q.Variations) == 0 {
		return model.Variation{}
	}
	if len(selected) > 0 {
		for _, v := range q.Variations {
			if containsAll(v.Options, selected) {
				return v
			}
		}
	}
	return q.Variations[0]
}

func containsAll(have, want []string) bool {
	set := toSet(have)
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}
