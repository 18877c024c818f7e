package fhir

import (
	"testing"
	"time"
)

func tp(t time.Time) *time.Time { return &t }

func dateParam(name string, start, end *time.Time) SearchParam {
	return SearchParam{ParamName: name, ParamType: SearchParamDate, DateStart: start, DateEnd: end}
}

func TestMatchDate_Prefixes(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	stored := []SearchParam{dateParam("date", tp(day.Add(10*time.Hour)), tp(day.Add(10*time.Hour)))}

	tests := []struct {
		value string
		want  bool
	}{
		{"2024-01-15", true},
		{"eq2024-01-15", true},
		{"2024-01", true},
		{"2024", true},
		{"2024-01-16", false},
		{"ne2024-01-16", true},
		{"ne2024-01-15", false},
		{"gt2024-01-14", true},
		{"gt2024-01-15", false},
		{"lt2024-01-16", true},
		{"lt2024-01-15", false},
		{"ge2024-01-15", true},
		{"le2024-01-15", true},
		{"sa2024-01-14", true},
		{"eb2024-01-16", true},
		{"eb2024-01-15", false},
		{"ap2024-01-16", true},
		{"ap2024-01-20", false},
		{"2024-01-15T10:00:00Z", true},
		{"2024-01-15T10:00:01Z", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			q, err := ParseParamQuery(SearchParamDate, "date", tt.value)
			if err != nil {
				t.Fatalf("ParseParamQuery: %v", err)
			}
			if got := q.MatchParams(stored); got != tt.want {
				t.Errorf("date=%s matched = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestMatch_MissingModifier(t *testing.T) {
	withFamily := []SearchParam{{ParamName: "family", ParamType: SearchParamString, String: "smith"}}
	without := []SearchParam{{ParamName: "_id", ParamType: SearchParamToken, TokenCode: "x"}}

	missingTrue, _ := ParseParamQuery(SearchParamString, "family:missing", "true")
	missingFalse, _ := ParseParamQuery(SearchParamString, "family:missing", "false")

	if missingTrue.MatchParams(withFamily) || !missingTrue.MatchParams(without) {
		t.Error("family:missing=true wrong")
	}
	if !missingFalse.MatchParams(withFamily) || missingFalse.MatchParams(without) {
		t.Error("family:missing=false wrong")
	}
}

func TestMatch_TokenNot(t *testing.T) {
	final := []SearchParam{{ParamName: "status", ParamType: SearchParamToken, TokenCode: "final"}}
	prelim := []SearchParam{{ParamName: "status", ParamType: SearchParamToken, TokenCode: "preliminary"}}
	q, _ := ParseParamQuery(SearchParamToken, "status:not", "final")
	if q.MatchParams(final) {
		t.Error("status:not=final matched a final resource")
	}
	if !q.MatchParams(prelim) || !q.MatchParams(nil) {
		t.Error("status:not=final should match other and absent statuses")
	}
}

func TestMatch_TokenSystemForms(t *testing.T) {
	params := []SearchParam{
		{ParamName: "code", ParamType: SearchParamToken, TokenSystem: "http://loinc.org", TokenCode: "1234-5"},
		{ParamName: "code", ParamType: SearchParamToken, TokenCode: "local"},
	}
	tests := []struct {
		value string
		want  bool
	}{
		{"http://loinc.org|1234-5", true},
		{"http://loinc.org|", true},
		{"|local", true},
		{"|1234-5", false},
		{"http://snomed.info/sct|1234-5", false},
		{"1234-5", true},
		{"other,local", true},
	}
	for _, tt := range tests {
		q, _ := ParseParamQuery(SearchParamToken, "code", tt.value)
		if got := q.MatchParams(params); got != tt.want {
			t.Errorf("code=%s matched = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestMatch_ReferenceSchemes(t *testing.T) {
	resolved := []SearchParam{{
		ParamName: "subject", ParamType: SearchParamReference,
		Reference: "urn:uuid:P1", ReferenceCanonical: "Patient/P1", ReferenceID: "P1",
	}}
	unresolved := []SearchParam{{
		ParamName: "subject", ParamType: SearchParamReference,
		Reference: "urn:uuid:P2", ReferenceID: "P2",
	}}
	tests := []struct {
		name   string
		param  string
		value  string
		params []SearchParam
		want   bool
	}{
		{"typed vs resolved", "subject", "Patient/P1", resolved, true},
		{"urn vs resolved", "subject", "urn:uuid:P1", resolved, true},
		{"absolute vs resolved", "subject", "https://example.org/fhir/Patient/P1", resolved, true},
		{"bare vs resolved", "subject", "P1", resolved, true},
		{"wrong type vs resolved", "subject", "Group/P1", resolved, false},
		{"type modifier", "subject:Patient", "P1", resolved, true},
		{"type modifier mismatch", "subject:Group", "P1", resolved, false},
		{"typed vs unresolved", "subject", "Patient/P2", unresolved, true},
		{"type modifier vs unresolved", "subject:Group", "P2", unresolved, true},
		{"other id", "subject", "Patient/P3", unresolved, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseParamQuery(SearchParamReference, tt.param, tt.value)
			if err != nil {
				t.Fatalf("ParseParamQuery: %v", err)
			}
			if got := q.MatchParams(tt.params); got != tt.want {
				t.Errorf("%s=%s matched = %v, want %v", tt.param, tt.value, got, tt.want)
			}
		})
	}
}

func TestMatch_URIBelow(t *testing.T) {
	params := []SearchParam{{ParamName: "_profile", ParamType: SearchParamURI, URI: "http://hl7.org/fhir/us/core/StructureDefinition/us-core-patient"}}
	below, _ := ParseParamQuery(SearchParamURI, "_profile:below", "http://hl7.org/fhir/us/core")
	exact, _ := ParseParamQuery(SearchParamURI, "_profile", "http://hl7.org/fhir/us/core")
	if !below.MatchParams(params) {
		t.Error(":below did not match")
	}
	if exact.MatchParams(params) {
		t.Error("exact uri matched a longer value")
	}
}

func TestMatchParams_AndAcrossParams(t *testing.T) {
	params := []SearchParam{
		{ParamName: "status", ParamType: SearchParamToken, TokenCode: "final"},
		{ParamName: "code", ParamType: SearchParamToken, TokenCode: "x"},
	}
	status, _ := ParseParamQuery(SearchParamToken, "status", "final")
	codeX, _ := ParseParamQuery(SearchParamToken, "code", "x")
	codeY, _ := ParseParamQuery(SearchParamToken, "code", "y")

	if !MatchParams(params, []ParamQuery{status, codeX}) {
		t.Error("status AND code=x should match")
	}
	if MatchParams(params, []ParamQuery{status, codeY}) {
		t.Error("status AND code=y should not match")
	}
	if !MatchParams(params, nil) {
		t.Error("no queries should match everything")
	}
}
