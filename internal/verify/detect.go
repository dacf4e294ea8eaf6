package verify

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/alanyoungcy/carbitrage/internal/domain"
)

// Signal is a detector's verdict on a fetched page.
type Signal struct {
	Status domain.LifecycleStatus
	Reason string
}

// Detector inspects a successfully fetched page for sold or expired signals.
type Detector interface {
	Detect(page Page) (Signal, bool)
}

// SourceRule configures detection for one listing source.
type SourceRule struct {
	Source string
	// DetailURLPattern matches the source's listing detail pages. A 2xx
	// response whose final URL does not match was redirected away.
	DetailURLPattern string
	SoldPhrases      []string
	ExpiredPhrases   []string
}

// PhraseDetector matches lowercased page text against sold and expired
// phrase lists. Sold phrases are checked first.
type PhraseDetector struct {
	sold    []string
	expired []string
}

// NewPhraseDetector creates a PhraseDetector.
func NewPhraseDetector(sold, expired []string) *PhraseDetector {
	return &PhraseDetector{sold: lower(sold), expired: lower(expired)}
}

// Detect implements Detector.
func (d *PhraseDetector) Detect(page Page) (Signal, bool) {
	if p, ok := firstMatch(page.Text, d.sold); ok {
		return Signal{Status: domain.LifecycleSold, Reason: "sold_phrase: " + p}, true
	}
	if p, ok := firstMatch(page.Text, d.expired); ok {
		return Signal{Status: domain.LifecycleExpired, Reason: "expired_phrase: " + p}, true
	}
	return Signal{}, false
}

// Generic phrases recognised on any source.
var (
	genericSoldPhrases = []string{
		"this vehicle has been sold",
		"this car has been sold",
		"vehicle sold",
		"sold - thank you",
		"no longer available - sold",
	}
	genericExpiredPhrases = []string{
		"listing has expired",
		"this listing has ended",
		"auction has closed",
		"bidding has closed",
		"no longer available",
		"listing not found",
		"lot withdrawn",
	}
	// challengePhrases only appear on bot challenge interstitials.
	challengePhrases = []string{
		"verify you are human",
		"checking your browser",
		"cf-browser-verification",
		"please complete the security check",
	}
	// blockHints also show up in footers and help text of ordinary pages,
	// so they only count on pages too short to be a listing.
	blockHints = []string{
		"attention required",
		"access denied",
		"just a moment",
		"captcha",
		"too many requests",
		"request blocked",
		"temporarily unavailable",
	}
)

// maxChallengeText is the visible text length above which a page is treated
// as real content rather than an interstitial.
const maxChallengeText = 600

// NewGenericDetector returns the fallback detector used after any
// source-specific one.
func NewGenericDetector() *PhraseDetector {
	return NewPhraseDetector(genericSoldPhrases, genericExpiredPhrases)
}

// IsBlockPage reports whether page text looks like a WAF or bot challenge.
func IsBlockPage(text string) bool {
	if _, ok := firstMatch(text, challengePhrases); ok {
		return true
	}
	if len(text) > maxChallengeText {
		return false
	}
	_, ok := firstMatch(text, blockHints)
	return ok
}

// rules is the compiled per-source configuration.
type rules struct {
	detail    map[string]*regexp.Regexp
	detectors map[string]Detector
	generic   Detector
}

func compileRules(srcs []SourceRule) (*rules, error) {
	r := &rules{
		detail:    map[string]*regexp.Regexp{},
		detectors: map[string]Detector{},
		generic:   NewGenericDetector(),
	}
	for _, s := range srcs {
		if s.DetailURLPattern != "" {
			re, err := regexp.Compile(s.DetailURLPattern)
			if err != nil {
				return nil, fmt.Errorf("verify: source %s detail pattern: %w", s.Source, err)
			}
			r.detail[s.Source] = re
		}
		if len(s.SoldPhrases) > 0 || len(s.ExpiredPhrases) > 0 {
			r.detectors[s.Source] = NewPhraseDetector(s.SoldPhrases, s.ExpiredPhrases)
		}
	}
	return r, nil
}

// detect runs the source's detector before the generic one.
func (r *rules) detect(source string, page Page) (Signal, bool) {
	if d, ok := r.detectors[source]; ok {
		if sig, ok := d.Detect(page); ok {
			return sig, true
		}
	}
	return r.generic.Detect(page)
}

// leftDetail reports whether a page was redirected away from the listing's
// detail page. Without a configured pattern, only a redirect to another
// host or to the site root counts.
func (r *rules) leftDetail(source, requested, final string) bool {
	if final == "" || final == requested {
		return false
	}
	if re, ok := r.detail[source]; ok {
		return !re.MatchString(final)
	}
	req, err1 := url.Parse(requested)
	fin, err2 := url.Parse(final)
	if err1 != nil || err2 != nil {
		return false
	}
	if !strings.EqualFold(req.Host, fin.Host) {
		return true
	}
	return strings.Trim(fin.Path, "/") == "" && strings.Trim(req.Path, "/") != ""
}

func firstMatch(text string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if p != "" && strings.Contains(text, p) {
			return p, true
		}
	}
	return "", false
}

func lower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
