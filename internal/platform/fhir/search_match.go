package fhir

import (
	"math"
	"strings"
	"time"
)

// MatchParams reports whether a resource with the given indexed parameters
// satisfies every query.
func MatchParams(params []SearchParam, queries []ParamQuery) bool {
	for _, q := range queries {
		if !q.MatchParams(params) {
			return false
		}
	}
	return true
}

// MatchParams reports whether a resource's indexed parameters satisfy q.
func (q ParamQuery) MatchParams(params []SearchParam) bool {
	present := false
	matched := false
	for _, p := range params {
		if p.ParamName != q.Name {
			continue
		}
		present = true
		if q.Missing == nil && q.matchRecord(p) {
			matched = true
			break
		}
	}
	switch {
	case q.Missing != nil:
		return present != *q.Missing
	case q.Modifier == ModifierNot:
		// The record-level test is positive; :not excludes resources with
		// any matching record, including those where the param is absent.
		return !matched
	default:
		return matched
	}
}

// matchRecord reports whether any OR-value of q matches a single record.
func (q ParamQuery) matchRecord(p SearchParam) bool {
	for _, v := range q.Values {
		if q.matchValue(p, v) {
			return true
		}
	}
	return false
}

func (q ParamQuery) matchValue(p SearchParam, v QueryValue) bool {
	switch q.Type {
	case SearchParamToken:
		return matchToken(p, v)
	case SearchParamString:
		switch q.Modifier {
		case ModifierExact:
			return p.String == v.Text
		case ModifierContains:
			return strings.Contains(p.String, v.Text)
		default:
			return strings.HasPrefix(p.String, v.Text)
		}
	case SearchParamURI:
		if q.Modifier == ModifierBelow {
			return strings.HasPrefix(p.URI, v.Text)
		}
		return p.URI == v.Text
	case SearchParamDate:
		return matchDate(p.DateStart, p.DateEnd, v)
	case SearchParamNumber:
		return p.Number != nil && compareNumber(*p.Number, v)
	case SearchParamQuantity:
		if p.QuantityValue == nil || !compareNumber(*p.QuantityValue, v) {
			return false
		}
		if v.UnitSys != "" && p.QuantitySystem != v.UnitSys {
			return false
		}
		return v.Unit == "" || strings.EqualFold(p.QuantityUnit, v.Unit)
	case SearchParamReference:
		return matchReference(p, v, q.TargetType)
	}
	return false
}

func matchToken(p SearchParam, v QueryValue) bool {
	if !v.HasSystem {
		return p.TokenCode == v.Code
	}
	if p.TokenSystem != v.System {
		return false
	}
	return v.Code == "" || p.TokenCode == v.Code
}

// matchReference compares a query reference with a stored record across
// addressing schemes. Typed queries compare canonical forms when the stored
// type is known and fall back to the id when it is not.
func matchReference(p SearchParam, v QueryValue, targetType string) bool {
	storedType, _, _ := strings.Cut(p.ReferenceCanonical, "/")
	if targetType != "" && storedType != "" && storedType != targetType {
		return false
	}
	if v.Ref.TypeHint != "" && storedType != "" {
		return p.ReferenceCanonical == v.Ref.Canonical()
	}
	return p.ReferenceID == v.Ref.ID
}

var (
	minTime = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	maxTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
)

// matchDate applies FHIR range semantics. Open ends of a stored Period are
// treated as unbounded.
func matchDate(start, end *time.Time, v QueryValue) bool {
	ps, pe := minTime, maxTime
	if start != nil {
		ps = *start
	}
	if end != nil {
		pe = *end
	}
	qs, qe := v.Start, v.End

	switch v.Prefix {
	case PrefixNe:
		return !(!ps.Before(qs) && !pe.After(qe))
	case PrefixGt:
		return pe.After(qe)
	case PrefixLt:
		return ps.Before(qs)
	case PrefixGe:
		return !pe.Before(qs)
	case PrefixLe:
		return !ps.After(qe)
	case PrefixSa:
		return ps.After(qe)
	case PrefixEb:
		return pe.Before(qs)
	case PrefixAp:
		day := 24 * time.Hour
		return !pe.Before(qs.Add(-day)) && !ps.After(qe.Add(day))
	default:
		return !ps.Before(qs) && !pe.After(qe)
	}
}

func compareNumber(stored float64, v QueryValue) bool {
	switch v.Prefix {
	case PrefixNe:
		return math.Abs(stored-v.Number) >= v.Tolerance
	case PrefixGt, PrefixSa:
		return stored > v.Number
	case PrefixLt, PrefixEb:
		return stored < v.Number
	case PrefixGe:
		return stored >= v.Number
	case PrefixLe:
		return stored <= v.Number
	case PrefixAp:
		return math.Abs(stored-v.Number) <= math.Abs(v.Number)*0.1
	default:
		return math.Abs(stored-v.Number) < v.Tolerance
	}
}
