package fhir

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// SearchPrefix represents a FHIR search prefix for ordered values.
type SearchPrefix string

const (
	PrefixEq SearchPrefix = "eq"
	PrefixNe SearchPrefix = "ne"
	PrefixGt SearchPrefix = "gt"
	PrefixLt SearchPrefix = "lt"
	PrefixGe SearchPrefix = "ge"
	PrefixLe SearchPrefix = "le"
	PrefixSa SearchPrefix = "sa" // starts after
	PrefixEb SearchPrefix = "eb" // ends before
	PrefixAp SearchPrefix = "ap" // approximately
)

// SearchModifier represents a FHIR search modifier.
type SearchModifier string

const (
	ModifierExact    SearchModifier = "exact"
	ModifierContains SearchModifier = "contains"
	ModifierNot      SearchModifier = "not"
	ModifierBelow    SearchModifier = "below"
	ModifierMissing  SearchModifier = "missing"
	// ModifierType marks a reference restricted to one target type,
	// e.g. "subject:Patient".
	ModifierType SearchModifier = "type"
)

var (
	// ErrUnsupportedModifier is returned for modifiers the index cannot answer.
	ErrUnsupportedModifier = errors.New("unsupported search modifier")
	// ErrUnknownParameter is returned for parameters the registry does not define.
	ErrUnknownParameter = errors.New("unknown search parameter")
	// ErrInvalidSearchValue is returned for values that do not parse for the
	// parameter's type.
	ErrInvalidSearchValue = errors.New("invalid search value")
)

// ParsedSearch holds a parsed search parameter value with its prefix.
type ParsedSearch struct {
	Prefix SearchPrefix
	Value  string
}

// ParseSearchValue extracts the prefix from a FHIR search value.
// Examples: "gt2023-01-01" -> (gt, "2023-01-01"), "100" -> (eq, "100")
func ParseSearchValue(raw string) ParsedSearch {
	if len(raw) >= 2 {
		prefix := SearchPrefix(strings.ToLower(raw[:2]))
		switch prefix {
		case PrefixEq, PrefixNe, PrefixGt, PrefixLt, PrefixGe, PrefixLe, PrefixSa, PrefixEb, PrefixAp:
			return ParsedSearch{Prefix: prefix, Value: raw[2:]}
		}
	}
	return ParsedSearch{Prefix: PrefixEq, Value: raw}
}

// ParseParamModifier splits a parameter name from its modifier.
// Examples: "name:exact" -> ("name", "exact"), "code" -> ("code", "")
func ParseParamModifier(paramName string) (string, SearchModifier) {
	parts := strings.SplitN(paramName, ":", 2)
	if len(parts) == 2 {
		return parts[0], SearchModifier(parts[1])
	}
	return parts[0], ""
}

// ---------------------------------------------------------------------------
// Parsed queries
// ---------------------------------------------------------------------------

// QueryValue is one OR-alternative of a parameter query, parsed according to
// the parameter type.
type QueryValue struct {
	Raw    string
	Prefix SearchPrefix

	// token
	System    string
	Code      string
	HasSystem bool

	// string (normalized), uri
	Text string

	// date
	Start time.Time
	End   time.Time

	// number, quantity
	Number    float64
	Tolerance float64
	Unit      string
	UnitSys   string

	// reference
	Ref NormalizedRef
}

// ParamQuery is one parameter of a search: values are ORed, separate
// ParamQuery values are ANDed.
type ParamQuery struct {
	Name     string
	Type     SearchParamType
	Modifier SearchModifier
	// TargetType is set by the reference type modifier.
	TargetType string
	// Missing is set by the :missing modifier.
	Missing *bool
	Values  []QueryValue
}

// ParseQuery resolves the parameter type from the registry and parses the
// raw name/value pair.
func (r *Registry) ParseQuery(resourceType, name, value string) (ParamQuery, error) {
	base, _ := ParseParamModifier(name)
	t, ok := r.ParamType(resourceType, base)
	if !ok {
		return ParamQuery{}, fmt.Errorf("%w: %s.%s", ErrUnknownParameter, resourceType, base)
	}
	return ParseParamQuery(t, name, value)
}

// ParseParamQuery parses "name[:modifier]" and a comma-separated value list
// for a parameter of type t.
func ParseParamQuery(t SearchParamType, name, value string) (ParamQuery, error) {
	base, mod := ParseParamModifier(name)
	q := ParamQuery{Name: base, Type: t}

	switch {
	case mod == "":
	case mod == ModifierMissing:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true":
			v := true
			q.Missing = &v
		case "false":
			v := false
			q.Missing = &v
		default:
			return ParamQuery{}, fmt.Errorf("%w: %s:missing expects true or false", ErrInvalidSearchValue, base)
		}
		q.Modifier = mod
		return q, nil
	case t == SearchParamString && (mod == ModifierExact || mod == ModifierContains),
		t == SearchParamToken && mod == ModifierNot,
		t == SearchParamURI && mod == ModifierBelow:
		q.Modifier = mod
	case t == SearchParamReference && isResourceTypeName(string(mod)):
		q.Modifier = ModifierType
		q.TargetType = string(mod)
	default:
		return ParamQuery{}, fmt.Errorf("%w: %s:%s", ErrUnsupportedModifier, base, mod)
	}

	for _, raw := range splitValues(value) {
		v, err := parseQueryValue(t, q.TargetType, raw)
		if err != nil {
			return ParamQuery{}, fmt.Errorf("%s=%s: %w", base, raw, err)
		}
		q.Values = append(q.Values, v)
	}
	if len(q.Values) == 0 {
		return ParamQuery{}, fmt.Errorf("%w: %s has no value", ErrInvalidSearchValue, base)
	}
	return q, nil
}

func parseQueryValue(t SearchParamType, targetType, raw string) (QueryValue, error) {
	v := QueryValue{Raw: raw, Prefix: PrefixEq}
	switch t {
	case SearchParamToken:
		if i := strings.Index(raw, "|"); i >= 0 {
			v.HasSystem = true
			v.System, v.Code = raw[:i], raw[i+1:]
		} else {
			v.Code = raw
		}
		if !v.HasSystem && v.Code == "" {
			return v, ErrInvalidSearchValue
		}

	case SearchParamString:
		v.Text = NormalizeString(raw)

	case SearchParamURI:
		v.Text = strings.TrimSpace(raw)

	case SearchParamDate:
		parsed := ParseSearchValue(raw)
		start, end, ok := ParseDateRange(parsed.Value)
		if !ok {
			return v, ErrInvalidSearchValue
		}
		v.Prefix, v.Start, v.End = parsed.Prefix, start, end

	case SearchParamNumber, SearchParamQuantity:
		parsed := ParseSearchValue(raw)
		v.Prefix = parsed.Prefix
		numPart := parsed.Value
		if t == SearchParamQuantity {
			parts := strings.SplitN(parsed.Value, "|", 3)
			numPart = parts[0]
			if len(parts) == 3 {
				v.UnitSys, v.Unit = parts[1], parts[2]
			} else if len(parts) == 2 {
				v.Unit = parts[1]
			}
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(numPart), 64)
		if err != nil {
			return v, ErrInvalidSearchValue
		}
		v.Number = f
		v.Tolerance = impliedTolerance(numPart)

	case SearchParamReference:
		n, ok := NormalizeReference(raw)
		if !ok || n.Scheme == RefContained {
			return v, ErrInvalidSearchValue
		}
		if n.TypeHint != "" && targetType != "" && n.TypeHint != targetType {
			return v, ErrInvalidSearchValue
		}
		if n.TypeHint == "" && n.Scheme == RefRelative {
			n.TypeHint = targetType
		}
		v.Ref = n
	}
	return v, nil
}

// impliedTolerance is half a unit in the last significant digit, so "100"
// matches [99.5, 100.5) and "100.0" matches [99.95, 100.05).
func impliedTolerance(s string) float64 {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		s = s[:i]
	}
	decimals := 0
	if i := strings.Index(s, "."); i >= 0 {
		decimals = len(s) - i - 1
	}
	return 0.5 * math.Pow(10, -float64(decimals))
}

// splitValues splits an OR list on unescaped commas.
func splitValues(value string) []string {
	var out []string
	var cur strings.Builder
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == '\\' && i+1 < len(value) && value[i+1] == ',' {
			cur.WriteByte(',')
			i++
			continue
		}
		if c == ',' {
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}
