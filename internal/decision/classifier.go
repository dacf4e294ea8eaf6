// Package decision classifies scored candidates into BUY, WATCH, IGNORE or
// UNVERIFIED and ranks them within their decision buckets.
package decision

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/alanyoungcy/carbitrage/internal/domain"
	"github.com/alanyoungcy/carbitrage/internal/matching"
)

// Policy holds the product thresholds that separate decisions.
type Policy struct {
	BuyMinGapDollars float64
	BuyMinGapPct     float64
	// WatchMinGapDollars is the smallest gap still worth watching. Lower
	// gaps are excluded as IGNORE.
	WatchMinGapDollars float64
	// FastClearanceDays is the median days-to-clear at or under which a
	// fingerprint counts as a fast clearance precedent.
	FastClearanceDays float64
	// UnverifiedSources require manual identity confirmation.
	UnverifiedSources []string
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		BuyMinGapDollars:   3000,
		BuyMinGapPct:       10,
		WatchMinGapDollars: 0,
		FastClearanceDays:  14,
	}
}

// Input is the candidate snapshot a decision is derived from.
type Input struct {
	Candidate domain.MatchCandidate
	// Rejection is the hard filter the listing failed, if any.
	Rejection matching.Rejection
	// MedianDaysToClear of the matched fingerprint.
	MedianDaysToClear *float64
}

// Result is a decision and the reasons that drove it.
type Result struct {
	Decision domain.Decision
	Reasons  []string
}

// Classifier applies a Policy. It is a pure function of its inputs.
type Classifier struct {
	policy Policy
}

// NewClassifier creates a Classifier.
func NewClassifier(p Policy) *Classifier {
	return &Classifier{policy: p}
}

// Classify decides one candidate.
func (c *Classifier) Classify(in Input) Result {
	cand := in.Candidate
	l := cand.Listing

	if in.Rejection != matching.RejectNone {
		return Result{Decision: domain.DecisionIgnore, Reasons: []string{"failed " + humanize(string(in.Rejection))}}
	}
	switch {
	case l.LifecycleStatus == domain.LifecycleSold:
		return Result{Decision: domain.DecisionIgnore, Reasons: []string{"verified sold"}}
	case l.LifecycleStatus == domain.LifecycleExpired:
		return Result{Decision: domain.DecisionIgnore, Reasons: []string{"verified expired"}}
	case l.Status != "" && !l.Status.Visible():
		return Result{Decision: domain.DecisionIgnore, Reasons: []string{"listing no longer live"}}
	}

	reasons := c.evidence(in)

	if l.IdentityPartial || slices.Contains(c.policy.UnverifiedSources, l.Source) {
		return Result{
			Decision: domain.DecisionUnverified,
			Reasons:  append([]string{"identity needs manual confirmation"}, reasons...),
		}
	}

	if cand.GapDollars == nil {
		return Result{Decision: domain.DecisionWatch, Reasons: reasons}
	}
	gap := *cand.GapDollars
	if gap < c.policy.WatchMinGapDollars {
		return Result{Decision: domain.DecisionIgnore, Reasons: append(reasons, "gap under watch threshold")}
	}

	pct := 0.0
	if cand.GapPct != nil {
		pct = *cand.GapPct
	}
	buy := gap >= c.policy.BuyMinGapDollars &&
		pct >= c.policy.BuyMinGapPct &&
		cand.Confidence != domain.ConfidenceLow
	if !buy {
		return Result{Decision: domain.DecisionWatch, Reasons: reasons}
	}
	if l.Status == domain.ListingMissingPending {
		return Result{Decision: domain.DecisionWatch, Reasons: append(reasons, "missing from latest crawl")}
	}
	return Result{Decision: domain.DecisionBuy, Reasons: reasons}
}

// evidence renders the numeric causes behind a decision in a fixed order.
func (c *Classifier) evidence(in Input) []string {
	cand := in.Candidate
	var out []string

	switch {
	case cand.Listing.AskingPrice == nil:
		out = append(out, "no asking price")
	case cand.ProvenExitValue == nil:
		out = append(out, "no proven exit value")
	case cand.GapDollars != nil:
		g := *cand.GapDollars
		if g >= 0 {
			out = append(out, Dollars(g)+" below proven exit")
		} else {
			out = append(out, Dollars(-g)+" above proven exit")
		}
		if cand.GapPct != nil && g > 0 {
			out = append(out, fmt.Sprintf("%.1f%% under %s", *cand.GapPct, anchorLabel(cand.ExitAnchor)))
		}
	}
	if in.MedianDaysToClear != nil && *in.MedianDaysToClear <= c.policy.FastClearanceDays {
		out = append(out, "fast clearance precedent")
	}
	if cand.KmScore >= 1 {
		out = append(out, "km within 10,000 of winners")
	}
	switch cand.Confidence {
	case domain.ConfidenceLow:
		out = append(out, fmt.Sprintf("low sample (%d sales)", cand.SampleSize))
	case domain.ConfidenceHigh:
		out = append(out, fmt.Sprintf("strong precedent (%d sales)", cand.SampleSize))
	}
	return out
}

func anchorLabel(a domain.ExitAnchor) string {
	if a == domain.ExitAnchorBestSale {
		return "best sale"
	}
	return "last sale"
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

// Dollars formats a whole-dollar amount with thousands separators.
func Dollars(v float64) string {
	n := int64(math.Round(v))
	neg := n < 0
	if neg {
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
