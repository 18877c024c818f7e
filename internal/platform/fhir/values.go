package fhir

import (
	"strconv"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

type tokenValue struct {
	System string
	Code   string
}

// tokensOf converts an element to tokens. Handles CodeableConcept, Coding,
// Identifier, ContactPoint and primitive code/boolean/string values. A
// CodeableConcept without codings falls back to its text with no system.
func tokensOf(v interface{}, systemFilter string) []tokenValue {
	var out []tokenValue
	switch val := v.(type) {
	case string:
		if val != "" {
			out = append(out, tokenValue{Code: val})
		}
	case bool:
		out = append(out, tokenValue{Code: strconv.FormatBool(val)})
	case map[string]interface{}:
		if codings, ok := val["coding"].([]interface{}); ok && len(codings) > 0 {
			for _, c := range codings {
				if cm, ok := c.(map[string]interface{}); ok {
					out = append(out, codingToken(cm)...)
				}
			}
			break
		}
		if _, hasCoding := val["coding"]; hasCoding || isConceptText(val) {
			if text, _ := val["text"].(string); text != "" {
				out = append(out, tokenValue{Code: text})
			}
			break
		}
		if value, ok := val["value"].(string); ok && value != "" {
			system, _ := val["system"].(string)
			out = append(out, tokenValue{System: system, Code: value})
			break
		}
		out = append(out, codingToken(val)...)
	default:
		if f, ok := toFloat(val); ok {
			out = append(out, tokenValue{Code: strconv.FormatFloat(f, 'f', -1, 64)})
		}
	}
	if systemFilter == "" {
		return out
	}
	filtered := out[:0]
	for _, t := range out {
		if strings.Contains(t.System, systemFilter) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// isConceptText reports a CodeableConcept that carries only text.
func isConceptText(m map[string]interface{}) bool {
	if _, ok := m["text"].(string); !ok {
		return false
	}
	for k := range m {
		switch k {
		case "text", "coding", "id", "extension":
		default:
			return false
		}
	}
	return true
}

func codingToken(m map[string]interface{}) []tokenValue {
	code, _ := m["code"].(string)
	system, _ := m["system"].(string)
	if code == "" {
		return nil
	}
	return []tokenValue{{System: system, Code: code}}
}

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

// stringParts lists the string-valued elements of HumanName and Address.
var stringParts = []string{"text", "family", "given", "prefix", "suffix", "line", "city", "district", "state", "postalCode", "country"}

// stringsOf returns the normalized (trimmed, lower-cased) strings of an
// element. HumanName and Address expand to one value per part.
func stringsOf(v interface{}) []string {
	switch val := v.(type) {
	case string:
		if s := NormalizeString(val); s != "" {
			return []string{s}
		}
	case map[string]interface{}:
		var out []string
		for _, part := range stringParts {
			switch pv := val[part].(type) {
			case string:
				if s := NormalizeString(pv); s != "" {
					out = append(out, s)
				}
			case []interface{}:
				for _, item := range pv {
					if is, ok := item.(string); ok {
						if s := NormalizeString(is); s != "" {
							out = append(out, s)
						}
					}
				}
			}
		}
		return out
	}
	return nil
}

// NormalizeString is the normalization applied to string parameters on both
// the index and the query side.
func NormalizeString(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ---------------------------------------------------------------------------
// Dates
// ---------------------------------------------------------------------------

type dateRange struct {
	Start *time.Time
	End   *time.Time
}

// ParseDateRange converts a FHIR date, dateTime or instant into the time
// range its precision covers. Values with a time component are points.
func ParseDateRange(s string) (start, end time.Time, ok bool) {
	s = strings.TrimSpace(s)
	switch len(s) {
	case 4:
		t, err := time.Parse("2006", s)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		return t, t.AddDate(1, 0, 0).Add(-time.Nanosecond), true
	case 7:
		t, err := time.Parse("2006-01", s)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		return t, t.AddDate(0, 1, 0).Add(-time.Nanosecond), true
	case 10:
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		return t, t.AddDate(0, 0, 1).Add(-time.Nanosecond), true
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return t, t, true
		}
	}
	return time.Time{}, time.Time{}, false
}

// datesOf converts date primitives, Period and Timing elements to ranges.
// Open Period ends are left nil.
func datesOf(v interface{}) []dateRange {
	switch val := v.(type) {
	case string:
		start, end, ok := ParseDateRange(val)
		if !ok {
			return nil
		}
		return []dateRange{{Start: &start, End: &end}}
	case map[string]interface{}:
		if events, ok := val["event"].([]interface{}); ok {
			var out []dateRange
			for _, e := range events {
				out = append(out, datesOf(e)...)
			}
			if repeat, ok := val["repeat"].(map[string]interface{}); ok {
				out = append(out, datesOf(repeat["boundsPeriod"])...)
			}
			return out
		}
		if repeat, ok := val["repeat"].(map[string]interface{}); ok {
			return datesOf(repeat["boundsPeriod"])
		}
		return periodOf(val)
	}
	return nil
}

func periodOf(m map[string]interface{}) []dateRange {
	var r dateRange
	if s, ok := m["start"].(string); ok {
		if start, _, ok := ParseDateRange(s); ok {
			r.Start = &start
		}
	}
	if s, ok := m["end"].(string); ok {
		if _, end, ok := ParseDateRange(s); ok {
			r.End = &end
		}
	}
	if r.Start == nil && r.End == nil {
		return nil
	}
	return []dateRange{r}
}

// ---------------------------------------------------------------------------
// Quantities and numbers
// ---------------------------------------------------------------------------

type quantityValue struct {
	Value  float64
	Unit   string
	System string
}

const currencySystem = "urn:iso:std:iso:4217"

// quantityOf handles Quantity, SimpleQuantity, Age, Duration and Money.
// Units are stored as given; no conversion is attempted.
func quantityOf(v interface{}) (quantityValue, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return quantityValue{}, false
	}
	f, ok := toFloat(m["value"])
	if !ok {
		return quantityValue{}, false
	}
	q := quantityValue{Value: f}
	if cur, ok := m["currency"].(string); ok {
		q.Unit, q.System = cur, currencySystem
		return q, true
	}
	q.System, _ = m["system"].(string)
	if code, ok := m["code"].(string); ok && code != "" {
		q.Unit = code
	} else {
		q.Unit, _ = m["unit"].(string)
	}
	return q, true
}

// toFloat accepts decoded JSON numbers in any of the forms decoders produce.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// References
// ---------------------------------------------------------------------------

// referenceOf returns the literal reference and the Reference.type element.
// Canonical strings are accepted as literal references.
func referenceOf(v interface{}) (literal, typ string) {
	switch val := v.(type) {
	case string:
		return val, ""
	case map[string]interface{}:
		literal, _ = val["reference"].(string)
		typ, _ = val["type"].(string)
		return literal, typ
	}
	return "", ""
}
