package policy

import "math/rand/v2"

// RuleBased scores each target as (confirmed + accepted/2) / (rejected+1) / (distance²+1)
// and draws one in proportion to its score. With nothing positive it explores.
type RuleBased struct{}

func Score(c Candidate) float64 {
	if c.Kind != KindTarget {
		return 0
	}
	n := float64(c.Counts.Confirmed) + 0.5*float64(c.Counts.Accepted)
	return n / (float64(c.Counts.Rejected) + 1) / (c.Distance*c.Distance + 1)
}

func (RuleBased) Choose(_ int, _ State, cands []Candidate, rng *rand.Rand) (int, Token) {
	total := 0.0
	for _, c := range cands {
		if s := Score(c); s > 0 {
			total += s
		}
	}
	if total <= 0 {
		return exploreIndex(cands), Token{}
	}

	u := rng.Float64() * total
	cum := 0.0
	last := -1
	for i, c := range cands {
		s := Score(c)
		if s <= 0 {
			continue
		}
		cum += s
		last = i
		if u <= cum {
			return i, Token{}
		}
	}
	// Rounding can leave u a hair above the final cumulative sum.
	return last, Token{}
}

func (RuleBased) AttributeCredit(int, Token, float64) {}
