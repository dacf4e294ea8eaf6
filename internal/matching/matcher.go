// Package matching pairs live listings with winner fingerprints and hunt
// criteria.
package matching

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// Rejection names the hard filter a listing failed. The empty value means
// the listing passed.
type Rejection string

const (
	RejectNone           Rejection = ""
	RejectMake           Rejection = "make_mismatch"
	RejectModel          Rejection = "model_mismatch"
	RejectYear           Rejection = "year_out_of_band"
	RejectDrivetrain     Rejection = "drivetrain_downgrade"
	RejectKmDistance     Rejection = "km_too_far"
	RejectSource         Rejection = "source_disabled"
	RejectVariantFamily  Rejection = "variant_family_mismatch"
	RejectKmRange        Rejection = "km_out_of_range"
	RejectNoFingerprints Rejection = "no_fingerprints"
)

// Variant confidence levels.
const (
	VariantExact    = 1.0
	VariantFamily   = 0.7
	VariantUnknown  = 0.5
	VariantMismatch = 0.3
)

// Result is a listing that passed every hard filter against a fingerprint.
type Result struct {
	Listing           domain.ListingRecord
	Fingerprint       domain.WinnerFingerprint
	KmScore           float64
	KmDistance        *float64
	VariantConfidence float64
	// EstimatedProfit is last_sale_price - asking_price, nil unless both
	// are known.
	EstimatedProfit *float64
}

// Match compares one listing with one fingerprint. It returns nil and the
// failed filter when the listing is rejected.
func Match(l domain.ListingRecord, fp domain.WinnerFingerprint) (*Result, Rejection) {
	id := l.Identity
	if id.Make == "" || id.Make != strings.ToUpper(fp.Make) {
		return nil, RejectMake
	}
	if id.Model == "" || id.Model != strings.ToUpper(fp.Model) {
		return nil, RejectModel
	}
	if id.Year != nil {
		if fp.YearMin != nil && *id.Year < *fp.YearMin {
			return nil, RejectYear
		}
		if fp.YearMax != nil && *id.Year > *fp.YearMax {
			return nil, RejectYear
		}
	}
	if id.Drivetrain.IsTwoWheel() && fp.Drivetrain.IsAllWheel() {
		return nil, RejectDrivetrain
	}

	score, dist := KmScore(id.Km, fp.ReferenceKm())
	if score == 0 {
		return nil, RejectKmDistance
	}

	res := &Result{
		Listing:           l,
		Fingerprint:       fp,
		KmScore:           score,
		KmDistance:        dist,
		VariantConfidence: VariantConfidence(id.Variant, fp.Variant),
	}
	if fp.LastSalePrice != nil && l.AskingPrice != nil {
		p := *fp.LastSalePrice - *l.AskingPrice
		res.EstimatedProfit = &p
	}
	return res, RejectNone
}

// KmScore scores odometer proximity. A zero score means the listing is too
// far from the reference and must be dropped. Unknown km on either side is
// neutral.
func KmScore(listingKm *int, referenceKm *float64) (float64, *float64) {
	if listingKm == nil || referenceKm == nil {
		return 0.5, nil
	}
	d := math.Abs(float64(*listingKm) - *referenceKm)
	switch {
	case d <= 10_000:
		return 1.0, &d
	case d <= 15_000:
		return 0.7, &d
	case d <= 20_000:
		return 0.4, &d
	default:
		return 0, &d
	}
}

// VariantConfidence grades how well a listing variant agrees with a
// fingerprint variant: exact, same family (containment or shared leading
// token), unknown, or mismatch.
func VariantConfidence(listing, fingerprint string) float64 {
	a := compact(listing)
	b := compact(fingerprint)
	switch {
	case a == "" || b == "":
		return VariantUnknown
	case a == b:
		return VariantExact
	case strings.Contains(a, b) || strings.Contains(b, a):
		return VariantFamily
	case firstToken(listing) == firstToken(fingerprint):
		return VariantFamily
	default:
		return VariantMismatch
	}
}

// Best matches a listing against fingerprints and keeps the strongest pass:
// highest km score, then best fingerprint rank. When nothing passes it
// returns the rejection from the best-ranked fingerprint.
func Best(l domain.ListingRecord, fps []domain.WinnerFingerprint) (*Result, Rejection) {
	if len(fps) == 0 {
		return nil, RejectNoFingerprints
	}
	var best *Result
	first := RejectNone
	for _, fp := range fps {
		res, rej := Match(l, fp)
		if res == nil {
			if first == RejectNone {
				first = rej
			}
			continue
		}
		if best == nil || res.KmScore > best.KmScore ||
			(res.KmScore == best.KmScore && res.Fingerprint.Rank < best.Fingerprint.Rank) {
			best = res
		}
	}
	if best == nil {
		return nil, first
	}
	return best, RejectNone
}

// HuntFilter checks a listing against a hunt's criteria. Unknown listing
// fields pass range checks.
func HuntFilter(h domain.Hunt, l domain.ListingRecord) Rejection {
	id := l.Identity
	if !h.SourceEnabled(l.Source) {
		return RejectSource
	}
	if h.Make != "" && id.Make != strings.ToUpper(strings.TrimSpace(h.Make)) {
		return RejectMake
	}
	if h.Model != "" && id.Model != strings.ToUpper(strings.TrimSpace(h.Model)) {
		return RejectModel
	}
	if fam := compact(h.VariantFamily); fam != "" && id.Variant != "" &&
		!strings.Contains(compact(id.Variant), fam) {
		return RejectVariantFamily
	}
	if id.Year != nil {
		if (h.YearMin != nil && *id.Year < *h.YearMin) || (h.YearMax != nil && *id.Year > *h.YearMax) {
			return RejectYear
		}
	}
	if id.Km != nil {
		if (h.KmMin != nil && *id.Km < *h.KmMin) || (h.KmMax != nil && *id.Km > *h.KmMax) {
			return RejectKmRange
		}
	}
	return RejectNone
}

// TruncatePerFingerprint keeps the n cheapest results for each fingerprint
// rank. Results are returned sorted ascending by asking price with unknown
// prices last. n <= 0 keeps everything.
func TruncatePerFingerprint(results []*Result, n int) []*Result {
	sorted := slices.Clone(results)
	slices.SortStableFunc(sorted, func(a, b *Result) int {
		return ComparePrice(a.Listing, b.Listing)
	})
	if n <= 0 {
		return sorted
	}
	kept := make([]*Result, 0, len(sorted))
	per := map[int]int{}
	for _, r := range sorted {
		rank := r.Fingerprint.Rank
		if per[rank] >= n {
			continue
		}
		per[rank]++
		kept = append(kept, r)
	}
	return kept
}

// ComparePrice orders listings by asking price ascending with unknown prices
// last, then earliest first sighting, then id.
func ComparePrice(a, b domain.ListingRecord) int {
	switch {
	case a.AskingPrice == nil && b.AskingPrice != nil:
		return 1
	case a.AskingPrice != nil && b.AskingPrice == nil:
		return -1
	case a.AskingPrice != nil && b.AskingPrice != nil:
		if c := cmp.Compare(*a.AskingPrice, *b.AskingPrice); c != 0 {
			return c
		}
	}
	if c := a.FirstSeenAt.Compare(b.FirstSeenAt); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return cmp.Compare(a.SourceListingID, b.SourceListingID)
}

func compact(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func firstToken(s string) string {
	fields := strings.Fields(strings.ToUpper(s))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
