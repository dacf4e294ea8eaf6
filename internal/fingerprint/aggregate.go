// Package fingerprint aggregates completed sales into winner fingerprints.
package fingerprint

import (
	"cmp"
	"slices"
	"strings"

	"github.com/alanyoungcy/carbitrage/internal/domain"
	"github.com/alanyoungcy/carbitrage/internal/normalize"
)

// Options bounds the aggregation output.
type Options struct {
	// Limit caps the number of fingerprints returned. Zero keeps all.
	Limit int
	// MinTimesSold drops groups with fewer sales.
	MinTimesSold int
}

type groupKey struct {
	make, model, variant string
	drive                domain.Drivetrain
}

type group struct {
	key      groupKey
	sales    []domain.Sale
	profits  []float64
	kms      []float64
	days     []float64
	prices   []float64
	yearMin  *int
	yearMax  *int
	lastSale *domain.Sale
}

// Aggregate groups sales by make, model, variant and canonical drivetrain and returns
// the profitable groups ranked by total profit. Sales without make or model
// are skipped. Groups whose total profit is not positive are not winners.
func Aggregate(accountID string, sales []domain.Sale, opts Options) []domain.WinnerFingerprint {
	groups := map[groupKey]*group{}
	var order []groupKey

	for _, s := range sales {
		k := groupKey{
			make:    norm(s.Make),
			model:   norm(s.Model),
			variant: norm(s.Variant),
			drive:   normalize.Drivetrain(string(s.Drivetrain)),
		}
		if k.make == "" || k.model == "" {
			continue
		}
		g, ok := groups[k]
		if !ok {
			g = &group{key: k}
			groups[k] = g
			order = append(order, k)
		}
		g.add(s)
	}

	out := make([]domain.WinnerFingerprint, 0, len(groups))
	for _, k := range order {
		g := groups[k]
		if len(g.sales) < max(opts.MinTimesSold, 1) {
			continue
		}
		fp, ok := g.fingerprint(accountID)
		if !ok {
			continue
		}
		out = append(out, fp)
	}

	slices.SortStableFunc(out, func(a, b domain.WinnerFingerprint) int {
		if c := cmp.Compare(b.TotalProfit, a.TotalProfit); c != 0 {
			return c
		}
		if c := cmp.Compare(b.TimesSold, a.TimesSold); c != 0 {
			return c
		}
		return cmp.Or(
			strings.Compare(a.Make, b.Make),
			strings.Compare(a.Model, b.Model),
			strings.Compare(a.Variant, b.Variant),
			strings.Compare(string(a.Drivetrain), string(b.Drivetrain)),
		)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func (g *group) add(s domain.Sale) {
	g.sales = append(g.sales, s)
	if p, ok := s.Profit(); ok {
		g.profits = append(g.profits, p)
	}
	if s.Km != nil {
		g.kms = append(g.kms, float64(*s.Km))
	}
	if s.DaysToClear != nil && *s.DaysToClear >= 0 {
		g.days = append(g.days, float64(*s.DaysToClear))
	}
	if s.SalePrice != nil {
		g.prices = append(g.prices, *s.SalePrice)
		if g.lastSale == nil || s.SoldAt.After(g.lastSale.SoldAt) {
			sale := s
			g.lastSale = &sale
		}
	}
	if s.Year != nil {
		y := *s.Year
		if g.yearMin == nil || y < *g.yearMin {
			g.yearMin = &y
		}
		if g.yearMax == nil || y > *g.yearMax {
			yy := y
			g.yearMax = &yy
		}
	}
}

func (g *group) fingerprint(accountID string) (domain.WinnerFingerprint, bool) {
	if len(g.profits) == 0 {
		return domain.WinnerFingerprint{}, false
	}
	var total float64
	wins := 0
	for _, p := range g.profits {
		total += p
		if p > 0 {
			wins++
		}
	}
	if total <= 0 {
		return domain.WinnerFingerprint{}, false
	}

	fp := domain.WinnerFingerprint{
		AccountID:    accountID,
		Make:         g.key.make,
		Model:        g.key.model,
		Variant:      g.key.variant,
		Drivetrain:   g.key.drive,
		YearMin:      g.yearMin,
		YearMax:      g.yearMax,
		TotalProfit:  total,
		AvgProfit:    total / float64(len(g.profits)),
		MedianProfit: Median(g.profits),
		TimesSold:    len(g.sales),
		WinRate:      ptr(float64(wins) / float64(len(g.profits))),
	}
	if len(g.kms) > 0 {
		fp.AvgKm = ptr(mean(g.kms))
		fp.MedianKm = Median(g.kms)
	}
	fp.MedianDaysToClear = Median(g.days)
	fp.MedianSalePrice = Median(g.prices)
	if g.lastSale != nil {
		price := *g.lastSale.SalePrice
		at := g.lastSale.SoldAt
		fp.LastSalePrice = &price
		fp.LastSaleDate = &at
	}
	return fp, true
}

// BestSale returns the highest-profit sale for make/model among sales. Ties
// prefer the most recent sale.
func BestSale(sales []domain.Sale, vehicleMake, model string) (domain.BestSale, bool) {
	vehicleMake, model = norm(vehicleMake), norm(model)
	var best *domain.Sale
	var bestProfit float64
	for i := range sales {
		s := &sales[i]
		if norm(s.Make) != vehicleMake || norm(s.Model) != model {
			continue
		}
		p, ok := s.Profit()
		if !ok {
			continue
		}
		if best == nil || p > bestProfit || (p == bestProfit && s.SoldAt.After(best.SoldAt)) {
			best, bestProfit = s, p
		}
	}
	if best == nil {
		return domain.BestSale{}, false
	}
	return domain.BestSale{
		Make:        vehicleMake,
		Model:       model,
		Variant:     norm(best.Variant),
		Year:        best.Year,
		Km:          best.Km,
		SalePrice:   *best.SalePrice,
		Profit:      bestProfit,
		DaysToClear: best.DaysToClear,
		SoldAt:      best.SoldAt,
	}, true
}

// Median returns the median of xs, or nil when xs is empty. xs is not
// modified.
func Median(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	s := slices.Clone(xs)
	slices.Sort(s)
	mid := len(s) / 2
	m := s[mid]
	if len(s)%2 == 0 {
		m = (s[mid-1] + s[mid]) / 2
	}
	return &m
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func norm(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

func ptr[T any](v T) *T { return &v }
