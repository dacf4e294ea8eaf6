package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawListing is a scraped record as produced by a crawler. Every field is
// optional and untyped; accessors coerce what they can and report absence for
// anything missing or unparseable.
type RawListing struct {
	Source string
	Fields map[string]any
}

// UnmarshalJSON decodes a flat JSON object into Fields, keeping numbers as
// json.Number so large ids survive intact.
func (r *RawListing) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil {
		return err
	}
	r.Fields = fields
	return nil
}

// MarshalJSON encodes Fields as a flat JSON object.
func (r RawListing) MarshalJSON() ([]byte, error) {
	if r.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Fields)
}

// Field name aliases seen across crawlers, in lookup order.
var (
	AliasListingID = []string{"source_listing_id", "listing_id", "lot_id", "stock_id", "id"}
	AliasURL       = []string{"url", "listing_url", "detail_url", "link"}
	AliasMake      = []string{"make", "make_id", "vehicle_make", "manufacturer"}
	AliasModel     = []string{"model", "model_id", "vehicle_model"}
	AliasVariant   = []string{"variant", "series", "badge", "trim", "grade"}
	AliasDrive     = []string{"drivetrain", "drive_type", "drive", "driveline"}
	AliasYear      = []string{"year", "build_year", "model_year", "compliance_year"}
	AliasKm        = []string{"km", "kms", "odometer", "mileage", "odometer_km"}
	AliasPrice     = []string{"asking_price", "price", "buy_now_price", "current_bid", "guide_price"}
	AliasLocation  = []string{"location", "state", "yard", "suburb"}
	AliasEventKey  = []string{"event_key", "auction_event", "sale_id", "event_id"}
	AliasPartial   = []string{"identity_partial", "partial", "blocked"}
)

// String returns the first non-empty alias value rendered as trimmed text.
func (r RawListing) String(aliases ...string) (string, bool) {
	for _, k := range aliases {
		v, ok := r.Fields[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case json.Number:
			s = t.String()
		case float64:
			if t == math.Trunc(t) && math.Abs(t) < 1e15 {
				s = strconv.FormatInt(int64(t), 10)
			} else {
				s = strconv.FormatFloat(t, 'f', -1, 64)
			}
		case int:
			s = strconv.Itoa(t)
		case int64:
			s = strconv.FormatInt(t, 10)
		case bool:
			s = strconv.FormatBool(t)
		default:
			continue
		}
		s = strings.TrimSpace(s)
		if s != "" {
			return s, true
		}
	}
	return "", false
}

// Number returns the first alias value that parses as a finite number.
// Currency symbols, thousands separators and unit suffixes are tolerated
// ("$22,500", "48,000 km").
func (r RawListing) Number(aliases ...string) (float64, bool) {
	for _, k := range aliases {
		v, ok := r.Fields[k]
		if !ok || v == nil {
			continue
		}
		var f float64
		switch t := v.(type) {
		case float64:
			f = t
		case float32:
			f = float64(t)
		case int:
			f = float64(t)
		case int64:
			f = float64(t)
		case json.Number:
			n, err := t.Float64()
			if err != nil {
				continue
			}
			f = n
		case string:
			n, ok := ParseLooseNumber(t)
			if !ok {
				continue
			}
			f = n
		default:
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		return f, true
	}
	return 0, false
}

// Bool returns the first alias value that reads as a boolean.
func (r RawListing) Bool(aliases ...string) bool {
	s, ok := r.String(aliases...)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(strings.ToLower(s))
	return err == nil && b
}

// Time returns the first alias value that parses as an RFC3339 or date-only
// timestamp.
func (r RawListing) Time(aliases ...string) (time.Time, bool) {
	s, ok := r.String(aliases...)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseLooseNumber extracts the leading numeric value from free text,
// ignoring currency symbols, spaces and thousands separators. "12k" style
// suffixes are expanded.
func ParseLooseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, false
	}
	var b strings.Builder
	started := false
	seenDot := false
	mult := 1.0
scan:
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			started = true
		case r == ',' && started:
		case r == '.' && !seenDot:
			seenDot = true
			b.WriteRune(r)
		case r == '-' && !started && b.Len() == 0:
			b.WriteRune(r)
		case !started:
			// skip prefix such as "$" or "AUD "
		default:
			if r == 'k' && (i+1 == len(s) || s[i+1] == ' ') {
				mult = 1000
			}
			break scan
		}
	}
	if !started {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(b.String(), "."), 64)
	if err != nil {
		return 0, false
	}
	return f * mult, true
}
