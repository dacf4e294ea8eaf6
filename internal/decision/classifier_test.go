package decision

import (
	"reflect"
	"testing"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
	"github.com/alanyoungcy/carbitrage/internal/matching"
)

func fptr(v float64) *float64 { return &v }

func candidate(asking, exit float64, conf domain.ConfidenceLabel) domain.MatchCandidate {
	gap := exit - asking
	pct := gap / exit * 100
	return domain.MatchCandidate{
		Listing: domain.ListingRecord{
			Source:      "pickles",
			AskingPrice: fptr(asking),
			Status:      domain.ListingActive,
		},
		ProvenExitValue: fptr(exit),
		ExitAnchor:      domain.ExitAnchorBestSale,
		GapDollars:      &gap,
		GapPct:          &pct,
		Confidence:      conf,
		SampleSize:      6,
		KmScore:         0.7,
	}
}

func TestClassifyBuy(t *testing.T) {
	c := NewClassifier(DefaultPolicy())
	res := c.Classify(Input{Candidate: candidate(22000, 28000, domain.ConfidenceMedium), MedianDaysToClear: fptr(9)})
	if res.Decision != domain.DecisionBuy {
		t.Fatalf("decision = %s, want BUY", res.Decision)
	}
	want := []string{"$6,000 below proven exit", "21.4% under best sale", "fast clearance precedent"}
	if !reflect.DeepEqual(res.Reasons, want) {
		t.Fatalf("reasons = %q, want %q", res.Reasons, want)
	}
}

func TestClassifyDecisions(t *testing.T) {
	pol := DefaultPolicy()
	pol.UnverifiedSources = []string{"facebook"}
	c := NewClassifier(pol)

	tests := []struct {
		name   string
		in     func() Input
		want   domain.Decision
		reason string
	}{
		{"small gap is watch", func() Input {
			return Input{Candidate: candidate(26000, 28000, domain.ConfidenceHigh)}
		}, domain.DecisionWatch, "$2,000 below proven exit"},
		{"low confidence caps at watch", func() Input {
			cand := candidate(20000, 28000, domain.ConfidenceLow)
			cand.SampleSize = 2
			return Input{Candidate: cand}
		}, domain.DecisionWatch, "low sample (2 sales)"},
		{"negative gap ignored", func() Input {
			return Input{Candidate: candidate(30000, 28000, domain.ConfidenceHigh)}
		}, domain.DecisionIgnore, "$2,000 above proven exit"},
		{"hard filter ignored", func() Input {
			return Input{Candidate: candidate(20000, 28000, domain.ConfidenceHigh), Rejection: matching.RejectDrivetrain}
		}, domain.DecisionIgnore, "failed drivetrain downgrade"},
		{"partial identity unverified", func() Input {
			cand := candidate(20000, 28000, domain.ConfidenceHigh)
			cand.Listing.IdentityPartial = true
			return Input{Candidate: cand}
		}, domain.DecisionUnverified, "identity needs manual confirmation"},
		{"unverified source", func() Input {
			cand := candidate(20000, 28000, domain.ConfidenceHigh)
			cand.Listing.Source = "facebook"
			return Input{Candidate: cand}
		}, domain.DecisionUnverified, "identity needs manual confirmation"},
		{"missing pending demoted", func() Input {
			cand := candidate(20000, 28000, domain.ConfidenceHigh)
			cand.Listing.Status = domain.ListingMissingPending
			return Input{Candidate: cand}
		}, domain.DecisionWatch, "missing from latest crawl"},
		{"unknown price watch", func() Input {
			cand := candidate(20000, 28000, domain.ConfidenceHigh)
			cand.Listing.AskingPrice = nil
			cand.GapDollars, cand.GapPct = nil, nil
			return Input{Candidate: cand}
		}, domain.DecisionWatch, "no asking price"},
		{"verified sold ignored", func() Input {
			cand := candidate(20000, 28000, domain.ConfidenceHigh)
			cand.Listing.LifecycleStatus = domain.LifecycleSold
			return Input{Candidate: cand}
		}, domain.DecisionIgnore, "verified sold"},
		{"delisted ignored", func() Input {
			cand := candidate(20000, 28000, domain.ConfidenceHigh)
			cand.Listing.Status = domain.ListingDelisted
			return Input{Candidate: cand}
		}, domain.DecisionIgnore, "listing no longer live"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Classify(tt.in())
			if res.Decision != tt.want {
				t.Fatalf("decision = %s, want %s (reasons %q)", res.Decision, tt.want, res.Reasons)
			}
			found := false
			for _, r := range res.Reasons {
				if r == tt.reason {
					found = true
				}
			}
			if !found {
				t.Fatalf("reasons %q missing %q", res.Reasons, tt.reason)
			}
		})
	}
}

func TestClassifyIdempotent(t *testing.T) {
	c := NewClassifier(DefaultPolicy())
	in := Input{Candidate: candidate(21000, 28000, domain.ConfidenceHigh), MedianDaysToClear: fptr(30)}
	first := c.Classify(in)
	for range 5 {
		if again := c.Classify(in); !reflect.DeepEqual(first, again) {
			t.Fatalf("classification changed: %+v vs %+v", first, again)
		}
	}
}

func TestDollars(t *testing.T) {
	tests := map[float64]string{0: "$0", 950: "$950", 4200: "$4,200", 1234567.6: "$1,234,568", -3000: "-$3,000"}
	for in, want := range tests {
		if got := Dollars(in); got != want {
			t.Errorf("Dollars(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestRank(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(id int64, d domain.Decision, price *float64, seen time.Time) domain.MatchCandidate {
		return domain.MatchCandidate{
			Decision: d,
			Listing:  domain.ListingRecord{ID: id, AskingPrice: price, FirstSeenAt: seen},
		}
	}
	in := []domain.MatchCandidate{
		mk(1, domain.DecisionWatch, fptr(20000), t0),
		mk(2, domain.DecisionBuy, fptr(21000), t0.Add(time.Hour)),
		mk(3, domain.DecisionBuy, fptr(21000), t0),
		mk(4, domain.DecisionIgnore, fptr(100), t0),
		mk(5, domain.DecisionWatch, nil, t0),
		mk(6, domain.DecisionUnverified, fptr(5000), t0),
		mk(7, domain.DecisionBuy, fptr(25000), t0),
	}

	out := Rank(in)
	var ids []int64
	cheapest := map[domain.Decision]int{}
	for _, c := range out {
		ids = append(ids, c.Listing.ID)
		if c.IsCheapest {
			cheapest[c.Decision]++
		}
	}
	if want := []int64{3, 2, 7, 1, 5, 6, 4}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("order = %v, want %v", ids, want)
	}
	for _, d := range []domain.Decision{domain.DecisionBuy, domain.DecisionWatch, domain.DecisionUnverified} {
		if cheapest[d] != 1 {
			t.Errorf("bucket %s has %d cheapest rows", d, cheapest[d])
		}
	}
	if cheapest[domain.DecisionIgnore] != 0 {
		t.Error("IGNORE bucket must not carry a cheapest flag")
	}
	if !out[0].IsCheapest || out[0].Listing.ID != 3 {
		t.Error("price tie should break on earliest first sighting")
	}
	if out[2].RankPosition != 3 || out[3].RankPosition != 1 {
		t.Errorf("rank positions = %d, %d", out[2].RankPosition, out[3].RankPosition)
	}
	if in[0].RankPosition != 0 {
		t.Error("input slice was modified")
	}

	counts := Counts(out)
	if counts[domain.DecisionBuy] != 3 || counts[domain.DecisionIgnore] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
