// Package normalize canonicalizes raw scraped vehicle records into comparable
// identities and listing records. Nothing here fails: unparseable fields are
// treated as absent and propagate as unknown.
package normalize

import (
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

const (
	minYear  = 1950
	maxKm    = 1_500_000
	maxPrice = 10_000_000
)

// Normalizer resolves DMS codes through a code table snapshot. It holds no
// mutable state and is safe for concurrent use.
type Normalizer struct {
	codes domain.CodeTable
	now   func() time.Time
}

// New creates a Normalizer over the given code table.
func New(codes domain.CodeTable) *Normalizer {
	return &Normalizer{codes: codes, now: time.Now}
}

// Identity derives the vehicle identity of a raw record.
func (n *Normalizer) Identity(raw domain.RawListing) domain.VehicleIdentity {
	var id domain.VehicleIdentity

	if s, ok := raw.String(domain.AliasMake...); ok {
		id.Make = n.resolveMake(upper(s))
	}
	if s, ok := raw.String(domain.AliasModel...); ok {
		id.Model = n.resolveModel(id.Make, upper(s))
	}
	if s, ok := raw.String(domain.AliasVariant...); ok {
		id.Variant = upper(s)
	}
	if s, ok := raw.String(domain.AliasDrive...); ok {
		id.Drivetrain = Drivetrain(s)
	}
	if f, ok := raw.Number(domain.AliasYear...); ok {
		y := int(f)
		if float64(y) == f && y >= minYear && y <= n.now().Year()+1 {
			id.Year = &y
		}
	}
	if f, ok := raw.Number(domain.AliasKm...); ok && f >= 0 && f <= maxKm {
		km := int(math.Round(f))
		id.Km = &km
	}
	return id
}

// Listing normalizes a raw record into a listing observed at seenAt. It
// returns false when the record has no natural key.
func (n *Normalizer) Listing(raw domain.RawListing, seenAt time.Time) (domain.ListingRecord, bool) {
	link, _ := raw.String(domain.AliasURL...)
	link = NormalizeURL(link)

	key, ok := raw.String(domain.AliasListingID...)
	if !ok {
		// The detail URL is the source's own identifier when no id is given.
		key = link
	}
	if key == "" || raw.Source == "" {
		return domain.ListingRecord{}, false
	}

	rec := domain.ListingRecord{
		Source:          raw.Source,
		SourceListingID: key,
		URL:             link,
		Identity:        n.Identity(raw),
		FirstSeenAt:     seenAt,
		LastSeenAt:      seenAt,
		Status:          domain.ListingActive,
	}
	if p, ok := raw.Number(domain.AliasPrice...); ok && p > 0 && p < maxPrice {
		rec.AskingPrice = &p
	}
	if s, ok := raw.String(domain.AliasLocation...); ok {
		rec.Location = upper(s)
	}
	if s, ok := raw.String(domain.AliasEventKey...); ok {
		rec.EventKey = s
	}
	rec.IdentityPartial = raw.Bool(domain.AliasPartial...) ||
		rec.Identity.Make == "" || rec.Identity.Model == "" ||
		isDigits(rec.Identity.Make) || isDigits(rec.Identity.Model)
	return rec, true
}

func (n *Normalizer) resolveMake(s string) string {
	if !isDigits(s) {
		return s
	}
	if name, ok := n.codes.Makes[s]; ok {
		return upper(name)
	}
	return s
}

func (n *Normalizer) resolveModel(vehicleMake, s string) string {
	if !isDigits(s) {
		return s
	}
	if scoped, ok := n.codes.ModelsByMake[vehicleMake]; ok {
		if name, ok := scoped[s]; ok {
			return upper(name)
		}
	}
	if name, ok := n.codes.Models[s]; ok {
		return upper(name)
	}
	return s
}

// Drivetrain maps free drivetrain text onto the canonical set by keyword
// containment. Empty text stays absent; unrecognized text is UNKNOWN.
func Drivetrain(text string) domain.Drivetrain {
	s := upper(text)
	if s == "" {
		return ""
	}
	switch {
	case containsAny(s, "4X4", "4WD", "FOUR WHEEL", "4 WHEEL"):
		return domain.Drivetrain4WD
	case containsAny(s, "AWD", "ALL WHEEL"):
		return domain.DrivetrainAWD
	case containsAny(s, "FWD", "FRONT WHEEL"):
		return domain.DrivetrainFWD
	case containsAny(s, "RWD", "REAR WHEEL"):
		return domain.DrivetrainRWD
	case containsAny(s, "2WD", "4X2", "TWO WHEEL"):
		return domain.Drivetrain2WD
	default:
		return domain.DrivetrainUnknown
	}
}

// NormalizeURL lowercases scheme and host and drops the fragment so the same
// detail page compares equal across crawls. Unparseable input is returned
// trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String()
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
