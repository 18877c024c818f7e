package fhir

import (
	"sort"
	"strings"
)

// RegistryVersion identifies the rule set. Bump it whenever default rules
// change so unchanged-content skips do not keep stale parameters.
const RegistryVersion = "r4-2026.10"

// ExtractionRule tells the extractor how to produce one search parameter.
type ExtractionRule struct {
	// ParamName is the canonical search parameter code, e.g. "patient".
	ParamName string
	Type      SearchParamType
	// Paths are dotted element paths from the resource root. A trailing
	// "[x]" on a segment expands to the FHIR choice-type variants.
	Paths []string
	// SystemFilter, when set, keeps only codings whose system contains it.
	SystemFilter string
	// Targets restricts reference parameters to these resource types.
	Targets []string
}

// AllowsTarget reports whether a reference of resourceType satisfies the
// rule. An unknown type is allowed; it is decided at resolution time.
func (r ExtractionRule) AllowsTarget(resourceType string) bool {
	if len(r.Targets) == 0 || resourceType == "" {
		return true
	}
	for _, t := range r.Targets {
		if t == resourceType {
			return true
		}
	}
	return false
}

// Registry is the static mapping from resource type to extraction rules.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	version   string
	universal []ExtractionRule
	rules     map[string][]ExtractionRule
}

// NewRegistry builds a registry from explicit rule tables.
func NewRegistry(version string, universal []ExtractionRule, rules map[string][]ExtractionRule) *Registry {
	r := &Registry{
		version:   version,
		universal: append([]ExtractionRule(nil), universal...),
		rules:     make(map[string][]ExtractionRule, len(rules)),
	}
	for rt, rs := range rules {
		r.rules[rt] = append([]ExtractionRule(nil), rs...)
	}
	return r
}

// DefaultRegistry returns the FHIR R4 rule set.
func DefaultRegistry() *Registry {
	return NewRegistry(RegistryVersion, universalRules(), defaultRules())
}

// Version returns the rule set version.
func (r *Registry) Version() string { return r.version }

// Universal returns the rules applied to every resource type.
func (r *Registry) Universal() []ExtractionRule {
	return append([]ExtractionRule(nil), r.universal...)
}

// Rules returns the type-specific rules for resourceType. Unknown types yield
// an empty slice, never an error.
func (r *Registry) Rules(resourceType string) []ExtractionRule {
	rs, ok := r.rules[resourceType]
	if !ok {
		return []ExtractionRule{}
	}
	return append([]ExtractionRule(nil), rs...)
}

// IsUniversal reports whether paramName comes from the rules shared by every
// resource type rather than from a type-specific rule.
func (r *Registry) IsUniversal(paramName string) bool {
	for _, rule := range r.universal {
		if rule.ParamName == paramName {
			return true
		}
	}
	return false
}

// Supports reports whether resourceType has type-specific rules.
func (r *Registry) Supports(resourceType string) bool {
	_, ok := r.rules[resourceType]
	return ok
}

// ResourceTypes lists the supported resource types in sorted order.
func (r *Registry) ResourceTypes() []string {
	out := make([]string, 0, len(r.rules))
	for rt := range r.rules {
		out = append(out, rt)
	}
	sort.Strings(out)
	return out
}

// Rule looks up a single rule by resource type and parameter name, falling
// back to the universal rules.
func (r *Registry) Rule(resourceType, paramName string) (ExtractionRule, bool) {
	for _, rule := range r.rules[resourceType] {
		if rule.ParamName == paramName {
			return rule, true
		}
	}
	for _, rule := range r.universal {
		if rule.ParamName == paramName {
			return rule, true
		}
	}
	return ExtractionRule{}, false
}

// ParamType returns the type of a parameter, used by the query layer to
// interpret raw search values.
func (r *Registry) ParamType(resourceType, paramName string) (SearchParamType, bool) {
	rule, ok := r.Rule(resourceType, paramName)
	if !ok {
		return "", false
	}
	return rule.Type, true
}

// SearchParameters renders the registry as FHIR SearchParameter resources,
// one per (resource type, parameter).
func (r *Registry) SearchParameters() []*SearchParameterResource {
	var out []*SearchParameterResource
	for _, rule := range r.universal {
		out = append(out, ruleToSearchParameter("Resource", rule))
	}
	for _, rt := range r.ResourceTypes() {
		for _, rule := range r.rules[rt] {
			out = append(out, ruleToSearchParameter(rt, rule))
		}
	}
	return out
}

func ruleToSearchParameter(base string, rule ExtractionRule) *SearchParameterResource {
	exprs := make([]string, 0, len(rule.Paths))
	for _, p := range rule.Paths {
		exprs = append(exprs, base+"."+strings.ReplaceAll(p, "[x]", ""))
	}
	sp := &SearchParameterResource{
		ResourceType: "SearchParameter",
		ID:           base + "-" + strings.TrimPrefix(rule.ParamName, "_"),
		URL:          "http://hl7.org/fhir/SearchParameter/" + base + "-" + strings.TrimPrefix(rule.ParamName, "_"),
		Name:         rule.ParamName,
		Status:       "active",
		Code:         rule.ParamName,
		Base:         []string{base},
		Type:         string(rule.Type),
		Expression:   strings.Join(exprs, " | "),
		Target:       rule.Targets,
		Modifier:     modifiersFor(rule.Type),
	}
	if rule.Type == SearchParamDate || rule.Type == SearchParamQuantity || rule.Type == SearchParamNumber {
		sp.Comparator = []string{"eq", "ne", "gt", "lt", "ge", "le", "sa", "eb", "ap"}
	}
	return sp
}

func modifiersFor(t SearchParamType) []string {
	switch t {
	case SearchParamString:
		return []string{"missing", "exact", "contains"}
	case SearchParamToken:
		return []string{"missing", "not"}
	case SearchParamReference:
		return []string{"missing", "type"}
	case SearchParamURI:
		return []string{"missing", "below"}
	default:
		return []string{"missing"}
	}
}
