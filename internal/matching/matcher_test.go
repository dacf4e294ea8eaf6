package matching

import (
	"testing"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int { return &v }

func hilux() domain.WinnerFingerprint {
	return domain.WinnerFingerprint{
		Make:          "TOYOTA",
		Model:         "HILUX",
		Variant:       "SR5",
		Drivetrain:    domain.Drivetrain4WD,
		YearMin:       iptr(2017),
		YearMax:       iptr(2020),
		MedianKm:      fptr(40000),
		TimesSold:     6,
		LastSalePrice: fptr(28000),
		Rank:          1,
	}
}

func listing(km int, price float64) domain.ListingRecord {
	return domain.ListingRecord{
		ID:              1,
		Source:          "pickles",
		SourceListingID: "L1",
		Identity: domain.VehicleIdentity{
			Make:       "TOYOTA",
			Model:      "HILUX",
			Variant:    "SR5",
			Drivetrain: domain.Drivetrain4WD,
			Year:       iptr(2019),
			Km:         iptr(km),
		},
		AskingPrice: fptr(price),
	}
}

func TestMatchKmBand(t *testing.T) {
	res, rej := Match(listing(48000, 22000), hilux())
	if res == nil {
		t.Fatalf("expected match, rejected with %q", rej)
	}
	if res.KmScore != 1.0 {
		t.Errorf("km score = %v, want 1.0 for an 8,000 km distance", res.KmScore)
	}
	if res.KmDistance == nil || *res.KmDistance != 8000 {
		t.Errorf("km distance = %v", res.KmDistance)
	}
	if res.EstimatedProfit == nil || *res.EstimatedProfit != 6000 {
		t.Errorf("estimated profit = %v, want 6000", res.EstimatedProfit)
	}
	if res.VariantConfidence != VariantExact {
		t.Errorf("variant confidence = %v", res.VariantConfidence)
	}
}

func TestKmScore(t *testing.T) {
	tests := []struct {
		name string
		km   *int
		ref  *float64
		want float64
	}{
		{"within 10k", iptr(50000), fptr(40000), 1.0},
		{"within 15k", iptr(25500), fptr(40000), 0.7},
		{"within 20k", iptr(60000), fptr(40000), 0.4},
		{"beyond 20k", iptr(60001), fptr(40000), 0},
		{"listing km unknown", nil, fptr(40000), 0.5},
		{"reference unknown", iptr(1000), nil, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := KmScore(tt.km, tt.ref); got != tt.want {
				t.Errorf("KmScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchHardFilters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.ListingRecord, *domain.WinnerFingerprint)
		want   Rejection
	}{
		{"make", func(l *domain.ListingRecord, _ *domain.WinnerFingerprint) { l.Identity.Make = "FORD" }, RejectMake},
		{"unknown make", func(l *domain.ListingRecord, _ *domain.WinnerFingerprint) { l.Identity.Make = "" }, RejectMake},
		{"model", func(l *domain.ListingRecord, _ *domain.WinnerFingerprint) { l.Identity.Model = "PRADO" }, RejectModel},
		{"year below band", func(l *domain.ListingRecord, _ *domain.WinnerFingerprint) { l.Identity.Year = iptr(2016) }, RejectYear},
		{"year above band", func(l *domain.ListingRecord, _ *domain.WinnerFingerprint) { l.Identity.Year = iptr(2021) }, RejectYear},
		{"2wd against 4wd", func(l *domain.ListingRecord, _ *domain.WinnerFingerprint) {
			l.Identity.Drivetrain = domain.Drivetrain2WD
		}, RejectDrivetrain},
		{"fwd against awd", func(l *domain.ListingRecord, fp *domain.WinnerFingerprint) {
			l.Identity.Drivetrain = domain.DrivetrainFWD
			fp.Drivetrain = domain.DrivetrainAWD
		}, RejectDrivetrain},
		{"km too far", func(l *domain.ListingRecord, _ *domain.WinnerFingerprint) { l.Identity.Km = iptr(90000) }, RejectKmDistance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, fp := listing(40000, 20000), hilux()
			tt.mutate(&l, &fp)
			res, rej := Match(l, fp)
			if res != nil || rej != tt.want {
				t.Fatalf("got (%v, %q), want rejection %q", res, rej, tt.want)
			}
		})
	}
}

func TestMatchAllowsUpgradeAndUnknowns(t *testing.T) {
	l, fp := listing(40000, 20000), hilux()
	fp.Drivetrain = domain.Drivetrain2WD
	if res, rej := Match(l, fp); res == nil {
		t.Fatalf("4WD listing against 2WD fingerprint should pass, got %q", rej)
	}

	l, fp = listing(40000, 20000), hilux()
	l.Identity.Year = nil
	l.Identity.Drivetrain = ""
	fp.YearMax = nil
	if res, rej := Match(l, fp); res == nil {
		t.Fatalf("unknown year and drivetrain should pass, got %q", rej)
	}
}

func TestMatchProfitNeverSynthesized(t *testing.T) {
	l, fp := listing(40000, 20000), hilux()
	l.AskingPrice = nil
	res, _ := Match(l, fp)
	if res == nil || res.EstimatedProfit != nil {
		t.Fatalf("expected nil profit without asking price, got %+v", res)
	}

	l, fp = listing(40000, 20000), hilux()
	fp.LastSalePrice = nil
	res, _ = Match(l, fp)
	if res == nil || res.EstimatedProfit != nil {
		t.Fatalf("expected nil profit without last sale price, got %+v", res)
	}
}

func TestVariantConfidence(t *testing.T) {
	tests := []struct {
		listing, fp string
		want        float64
	}{
		{"SR5", "sr5", VariantExact},
		{"SR5 DOUBLE CAB", "SR5", VariantFamily},
		{"SR-5", "SR5", VariantExact},
		{"GXL 4X4", "GXL AUTO", VariantFamily},
		{"", "SR5", VariantUnknown},
		{"WORKMATE", "SR5", VariantMismatch},
	}
	for _, tt := range tests {
		if got := VariantConfidence(tt.listing, tt.fp); got != tt.want {
			t.Errorf("VariantConfidence(%q, %q) = %v, want %v", tt.listing, tt.fp, got, tt.want)
		}
	}
}

func TestBest(t *testing.T) {
	near := hilux()
	near.Rank = 2
	far := hilux()
	far.Rank = 1
	far.MedianKm = fptr(55000)

	res, _ := Best(listing(42000, 20000), []domain.WinnerFingerprint{far, near})
	if res == nil || res.Fingerprint.Rank != 2 {
		t.Fatalf("expected the closer km fingerprint to win, got %+v", res)
	}

	prado := hilux()
	prado.Model = "PRADO"
	if res, rej := Best(listing(42000, 20000), []domain.WinnerFingerprint{prado}); res != nil || rej != RejectModel {
		t.Fatalf("expected model rejection, got %v %q", res, rej)
	}
	if _, rej := Best(listing(42000, 20000), nil); rej != RejectNoFingerprints {
		t.Fatalf("expected no_fingerprints, got %q", rej)
	}
}

func TestHuntFilter(t *testing.T) {
	h := domain.Hunt{
		Make:           "toyota",
		Model:          "hilux",
		VariantFamily:  "sr",
		YearMin:        iptr(2018),
		KmMax:          iptr(100000),
		SourcesEnabled: []string{"pickles"},
	}
	if rej := HuntFilter(h, listing(40000, 20000)); rej != RejectNone {
		t.Fatalf("expected pass, got %q", rej)
	}

	l := listing(40000, 20000)
	l.Source = "grays"
	if rej := HuntFilter(h, l); rej != RejectSource {
		t.Errorf("source: got %q", rej)
	}
	l = listing(40000, 20000)
	l.Identity.Variant = "WORKMATE"
	if rej := HuntFilter(h, l); rej != RejectVariantFamily {
		t.Errorf("variant: got %q", rej)
	}
	l = listing(140000, 20000)
	if rej := HuntFilter(h, l); rej != RejectKmRange {
		t.Errorf("km: got %q", rej)
	}
	l = listing(40000, 20000)
	l.Identity.Year = iptr(2015)
	if rej := HuntFilter(h, l); rej != RejectYear {
		t.Errorf("year: got %q", rej)
	}
}

func TestTruncatePerFingerprint(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(id int64, rank int, price *float64, seen time.Time) *Result {
		l := listing(40000, 0)
		l.ID = id
		l.AskingPrice = price
		l.FirstSeenAt = seen
		fp := hilux()
		fp.Rank = rank
		return &Result{Listing: l, Fingerprint: fp}
	}
	in := []*Result{
		mk(1, 1, fptr(25000), t0),
		mk(2, 1, nil, t0),
		mk(3, 1, fptr(21000), t0.Add(time.Hour)),
		mk(4, 1, fptr(21000), t0),
		mk(5, 2, fptr(30000), t0),
	}

	got := TruncatePerFingerprint(in, 2)
	var ids []int64
	for _, r := range got {
		ids = append(ids, r.Listing.ID)
	}
	want := []int64{4, 3, 5}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}

	if all := TruncatePerFingerprint(in, 0); len(all) != 5 || all[4].Listing.ID != 2 {
		t.Fatalf("unlimited should keep all with unknown price last")
	}
}
