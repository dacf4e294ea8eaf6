// Package scoring computes bounded opportunity scores and price gaps against
// proven exit values.
package scoring

import (
	"cmp"
	"math"
	"slices"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

const (
	maxScore = 10.0

	// LowSampleCap is the highest score a result with fewer than
	// LowSampleSize sales may present.
	LowSampleCap  = 6.0
	LowSampleSize = 3

	// ProfitDenseScore is the individual score at which an event member
	// counts as profit-dense.
	ProfitDenseScore = 6.0
)

// Params holds the scoring targets.
type Params struct {
	GPTarget       float64
	ExitTargetDays float64
	// GapPctTarget is the gap percentage that earns a full price score.
	GapPctTarget float64
	// EventTopN is how many member scores an event aggregate averages.
	EventTopN int
}

// DefaultParams returns the standard targets.
func DefaultParams() Params {
	return Params{GPTarget: 4000, ExitTargetDays: 21, GapPctTarget: 25, EventTopN: 10}
}

// Inputs are the fingerprint-derived factors of one opportunity.
type Inputs struct {
	MedianGP float64
	WinRate  float64
	// MedianDaysToExit is nil when no clearance data exists.
	MedianDaysToExit  *float64
	SampleSize        int
	VariantConfidence float64
	GeoMultiplier     float64
}

// Scorer is a pure function of its params and inputs.
type Scorer struct {
	p Params
}

// New creates a Scorer. Non-positive targets fall back to the defaults.
func New(p Params) *Scorer {
	d := DefaultParams()
	if !(p.GPTarget > 0) {
		p.GPTarget = d.GPTarget
	}
	if !(p.ExitTargetDays > 0) {
		p.ExitTargetDays = d.ExitTargetDays
	}
	if !(p.GapPctTarget > 0) {
		p.GapPctTarget = d.GapPctTarget
	}
	if p.EventTopN <= 0 {
		p.EventTopN = d.EventTopN
	}
	return &Scorer{p: p}
}

// Params returns the effective parameters.
func (s *Scorer) Params() Params { return s.p }

// Score returns the weighted composite in [0,10], rounded to one decimal.
// Fewer than three sales cap the result at 6.0.
func (s *Scorer) Score(in Inputs) float64 {
	p := unit(in.MedianGP / s.p.GPTarget)
	w := unit(in.WinRate)
	d := 0.5
	if in.MedianDaysToExit != nil {
		d = unit(1 - *in.MedianDaysToExit/s.p.ExitTargetDays)
	}
	n := max(in.SampleSize, 0)
	sz := unit(math.Log10(float64(n)+1) / math.Log10(21))
	c := clamp(0.5+0.5*unit(in.VariantConfidence)*recordConfidence(n), 0.5, 1)

	geo := in.GeoMultiplier
	if math.IsNaN(geo) || geo < 0 {
		geo = 0
	}
	raw := maxScore * (0.45*p + 0.25*w + 0.15*d + 0.10*sz + 0.05*c) * geo
	return capLowSample(round1(clamp(raw, 0, maxScore)), n)
}

// PriceScore maps a gap percentage onto [0,10]. An unknown gap scores zero.
func (s *Scorer) PriceScore(gapPct *float64) float64 {
	if gapPct == nil {
		return 0
	}
	return round1(maxScore * unit(*gapPct/s.p.GapPctTarget))
}

// Final blends the fingerprint score, the price score and the km score into
// the ranking score, honouring the low-sample cap.
func (s *Scorer) Final(dna, price, km float64, sampleSize int) float64 {
	raw := 0.6*safe(dna) + 0.25*safe(price) + 0.15*maxScore*unit(km)
	return capLowSample(round1(clamp(raw, 0, maxScore)), sampleSize)
}

// Confidence labels a raw sample size. It is independent of the score.
func Confidence(sampleSize int) domain.ConfidenceLabel {
	switch {
	case sampleSize >= 10:
		return domain.ConfidenceHigh
	case sampleSize >= 5:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// ProvenExit picks the exit value a gap is measured against: the best
// historical sale when present, else the fingerprint's last sale price.
func ProvenExit(best *domain.BestSale, fp domain.WinnerFingerprint) (*float64, domain.ExitAnchor) {
	if best != nil && best.SalePrice > 0 {
		v := best.SalePrice
		return &v, domain.ExitAnchorBestSale
	}
	if fp.LastSalePrice != nil && *fp.LastSalePrice > 0 {
		v := *fp.LastSalePrice
		return &v, domain.ExitAnchorLastSale
	}
	return nil, domain.ExitAnchorNone
}

// Gap returns exit - asking and the gap as a percentage of exit. Both are
// nil unless both prices are known and exit is positive.
func Gap(exit, asking *float64) (dollars, pct *float64) {
	if exit == nil || asking == nil || *exit <= 0 {
		return nil, nil
	}
	g := *exit - *asking
	pc := g / *exit * 100
	return &g, &pc
}

// Aggregate returns the mean of the top n scores and the number of
// profit-dense scores. An empty input yields zeros.
func Aggregate(scores []float64, n int) (mean float64, profitDense int) {
	if len(scores) == 0 {
		return 0, 0
	}
	s := slices.Clone(scores)
	slices.SortFunc(s, func(a, b float64) int { return cmp.Compare(b, a) })
	for _, v := range s {
		if v >= ProfitDenseScore {
			profitDense++
		}
	}
	if n > 0 && len(s) > n {
		s = s[:n]
	}
	var sum float64
	for _, v := range s {
		sum += v
	}
	return round1(sum / float64(len(s))), profitDense
}

// EventScores aggregates candidate scores per auction event. IGNORE
// candidates and listings without an event key are skipped. The result is
// ordered by score descending, then event key.
func (s *Scorer) EventScores(cands []domain.MatchCandidate) []domain.EventScore {
	byEvent := map[string][]float64{}
	for _, c := range cands {
		if c.Decision == domain.DecisionIgnore || c.Listing.EventKey == "" {
			continue
		}
		byEvent[c.Listing.EventKey] = append(byEvent[c.Listing.EventKey], c.FinalScore)
	}
	out := make([]domain.EventScore, 0, len(byEvent))
	for key, scores := range byEvent {
		mean, dense := Aggregate(scores, s.p.EventTopN)
		out = append(out, domain.EventScore{EventKey: key, Score: mean, Members: len(scores), ProfitDense: dense})
	}
	slices.SortFunc(out, func(a, b domain.EventScore) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.EventKey, b.EventKey)
	})
	return out
}

func recordConfidence(n int) float64 {
	switch {
	case n >= 5:
		return 1.0
	case n >= 3:
		return 0.8
	default:
		return 0.5
	}
}

func capLowSample(score float64, n int) float64 {
	if n < LowSampleSize && score > LowSampleCap {
		return LowSampleCap
	}
	return score
}

func unit(v float64) float64 { return clamp(v, 0, 1) }

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

func safe(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
