package scoring

import (
	"math"
	"testing"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

func fptr(v float64) *float64 { return &v }

func TestScoreLowSampleCap(t *testing.T) {
	s := New(DefaultParams())
	in := Inputs{
		MedianGP:          6000,
		WinRate:           0.8,
		MedianDaysToExit:  fptr(10),
		SampleSize:        2,
		VariantConfidence: 1,
		GeoMultiplier:     1,
	}
	if got := s.Score(in); got != 6.0 {
		t.Fatalf("score = %v, want exactly 6.0", got)
	}

	in.SampleSize = 5
	if got := s.Score(in); got <= 6.0 {
		t.Fatalf("uncapped score = %v, expected above 6.0", got)
	}
}

func TestScoreBoundsAndCapProperty(t *testing.T) {
	s := New(DefaultParams())
	gps := []float64{-5000, 0, 1500, 4000, 1e9, math.NaN(), math.Inf(1)}
	wins := []float64{-1, 0, 0.5, 1, 3}
	days := []*float64{nil, fptr(0), fptr(14), fptr(400), fptr(-3)}
	samples := []int{-1, 0, 1, 2, 3, 5, 20, 1000}
	geos := []float64{0, 0.8, 1, 1.5, 100}

	for _, gp := range gps {
		for _, w := range wins {
			for _, d := range days {
				for _, n := range samples {
					for _, g := range geos {
						got := s.Score(Inputs{MedianGP: gp, WinRate: w, MedianDaysToExit: d, SampleSize: n, VariantConfidence: 1, GeoMultiplier: g})
						if got < 0 || got > 10 || math.IsNaN(got) {
							t.Fatalf("score %v out of bounds for gp=%v w=%v n=%d geo=%v", got, gp, w, n, g)
						}
						if n < 3 && got > 6.0 {
							t.Fatalf("score %v exceeds low-sample cap for n=%d", got, n)
						}
					}
				}
			}
		}
	}
}

func TestScoreNeutralExitSpeed(t *testing.T) {
	s := New(DefaultParams())
	// P=0.5, W=0.6, D=0.5 (neutral), S=1, C=1
	got := s.Score(Inputs{MedianGP: 2000, WinRate: 0.6, SampleSize: 20, VariantConfidence: 1, GeoMultiplier: 1})
	if got != 6.0 {
		t.Fatalf("score = %v, want 6.0", got)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		n    int
		want domain.ConfidenceLabel
	}{
		{0, domain.ConfidenceLow},
		{4, domain.ConfidenceLow},
		{5, domain.ConfidenceMedium},
		{9, domain.ConfidenceMedium},
		{10, domain.ConfidenceHigh},
	}
	for _, tt := range tests {
		if got := Confidence(tt.n); got != tt.want {
			t.Errorf("Confidence(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestGap(t *testing.T) {
	g, pct := Gap(fptr(28000), fptr(22000))
	if g == nil || *g != 6000 {
		t.Fatalf("gap = %v, want 6000", g)
	}
	if math.Abs(*pct-21.43) > 0.01 {
		t.Fatalf("gap pct = %v, want ~21.4", *pct)
	}
	if g, pct := Gap(nil, fptr(1)); g != nil || pct != nil {
		t.Fatal("unknown exit must yield nil gap")
	}
	if g, _ := Gap(fptr(0), fptr(1)); g != nil {
		t.Fatal("zero exit must yield nil gap")
	}
}

func TestProvenExit(t *testing.T) {
	fp := domain.WinnerFingerprint{LastSalePrice: fptr(27000)}
	v, anchor := ProvenExit(&domain.BestSale{SalePrice: 31000}, fp)
	if *v != 31000 || anchor != domain.ExitAnchorBestSale {
		t.Fatalf("best sale should anchor: %v %q", *v, anchor)
	}
	v, anchor = ProvenExit(nil, fp)
	if *v != 27000 || anchor != domain.ExitAnchorLastSale {
		t.Fatalf("last sale fallback: %v %q", *v, anchor)
	}
	if v, anchor := ProvenExit(nil, domain.WinnerFingerprint{}); v != nil || anchor != domain.ExitAnchorNone {
		t.Fatal("expected no exit value")
	}
}

func TestAggregate(t *testing.T) {
	mean, dense := Aggregate([]float64{9, 7, 6, 2, 1}, 3)
	if mean != 7.3 || dense != 3 {
		t.Fatalf("aggregate = %v/%d, want 7.3/3", mean, dense)
	}
	if mean, dense := Aggregate(nil, 10); mean != 0 || dense != 0 {
		t.Fatal("empty aggregate should be zero")
	}
}

func TestEventScores(t *testing.T) {
	s := New(DefaultParams())
	cand := func(event string, score float64, d domain.Decision) domain.MatchCandidate {
		return domain.MatchCandidate{Listing: domain.ListingRecord{EventKey: event}, FinalScore: score, Decision: d}
	}
	got := s.EventScores([]domain.MatchCandidate{
		cand("A", 4, domain.DecisionWatch),
		cand("B", 8, domain.DecisionBuy),
		cand("B", 6, domain.DecisionWatch),
		cand("A", 9, domain.DecisionIgnore),
		cand("", 9, domain.DecisionBuy),
	})
	if len(got) != 2 || got[0].EventKey != "B" || got[0].Score != 7 || got[0].ProfitDense != 2 {
		t.Fatalf("unexpected event scores: %+v", got)
	}
	if got[1].EventKey != "A" || got[1].Members != 1 {
		t.Fatalf("ignored members should not count: %+v", got[1])
	}
}

func TestFinalHonoursCap(t *testing.T) {
	s := New(DefaultParams())
	if got := s.Final(10, 10, 1, 2); got != 6.0 {
		t.Fatalf("final = %v, want 6.0", got)
	}
	if got := s.Final(10, 10, 1, 10); got != 10 {
		t.Fatalf("final = %v, want 10", got)
	}
	if got := s.PriceScore(fptr(12.5)); got != 5 {
		t.Fatalf("price score = %v, want 5", got)
	}
}
