package decision

import (
	"slices"

	"github.com/alanyoungcy/carbitrage/internal/domain"
	"github.com/alanyoungcy/carbitrage/internal/matching"
)

// Rank orders candidates by decision bucket, then ascending price with
// unknown prices last, then earliest first sighting. RankPosition is the
// 1-based position inside the bucket and exactly one row of every
// non-IGNORE bucket is flagged cheapest. The input slice is not modified.
func Rank(cands []domain.MatchCandidate) []domain.MatchCandidate {
	out := slices.Clone(cands)
	slices.SortStableFunc(out, func(a, b domain.MatchCandidate) int {
		if a.Decision.Order() != b.Decision.Order() {
			return a.Decision.Order() - b.Decision.Order()
		}
		return matching.ComparePrice(a.Listing, b.Listing)
	})

	pos := 0
	for i := range out {
		if i == 0 || out[i].Decision != out[i-1].Decision {
			pos = 0
		}
		pos++
		out[i].RankPosition = pos
		out[i].IsCheapest = pos == 1 && out[i].Decision != domain.DecisionIgnore
	}
	return out
}

// Counts tallies candidates per decision with every bucket present.
func Counts(cands []domain.MatchCandidate) map[domain.Decision]int {
	counts := map[domain.Decision]int{
		domain.DecisionBuy:        0,
		domain.DecisionWatch:      0,
		domain.DecisionUnverified: 0,
		domain.DecisionIgnore:     0,
	}
	for _, c := range cands {
		counts[c.Decision]++
	}
	return counts
}
