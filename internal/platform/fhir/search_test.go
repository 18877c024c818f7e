package fhir

import (
	"errors"
	"math"
	"testing"
)

func TestParseSearchValue(t *testing.T) {
	tests := []struct {
		input  string
		prefix SearchPrefix
		value  string
	}{
		{"2023-01-01", PrefixEq, "2023-01-01"},
		{"gt2023-01-01", PrefixGt, "2023-01-01"},
		{"lt2023-12-31", PrefixLt, "2023-12-31"},
		{"ge100", PrefixGe, "100"},
		{"le200", PrefixLe, "200"},
		{"ne50", PrefixNe, "50"},
		{"sa2023-06-01", PrefixSa, "2023-06-01"},
		{"eb2023-06-30", PrefixEb, "2023-06-30"},
		{"ap2023-06-15", PrefixAp, "2023-06-15"},
		{"eq2023-01-01", PrefixEq, "2023-01-01"},
		{"abc", PrefixEq, "abc"},
		{"", PrefixEq, ""},
		{"g", PrefixEq, "g"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseSearchValue(tt.input)
			if result.Prefix != tt.prefix {
				t.Errorf("ParseSearchValue(%q).Prefix = %q, want %q", tt.input, result.Prefix, tt.prefix)
			}
			if result.Value != tt.value {
				t.Errorf("ParseSearchValue(%q).Value = %q, want %q", tt.input, result.Value, tt.value)
			}
		})
	}
}

func TestParseParamModifier(t *testing.T) {
	tests := []struct {
		input    string
		param    string
		modifier SearchModifier
	}{
		{"name:exact", "name", ModifierExact},
		{"name:contains", "name", ModifierContains},
		{"code:not", "code", ModifierNot},
		{"subject:Patient", "subject", "Patient"},
		{"name", "name", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			param, mod := ParseParamModifier(tt.input)
			if param != tt.param {
				t.Errorf("ParseParamModifier(%q) param = %q, want %q", tt.input, param, tt.param)
			}
			if mod != tt.modifier {
				t.Errorf("ParseParamModifier(%q) modifier = %q, want %q", tt.input, mod, tt.modifier)
			}
		})
	}
}

func TestParseParamQuery_Modifiers(t *testing.T) {
	tests := []struct {
		name    string
		typ     SearchParamType
		param   string
		value   string
		wantErr error
	}{
		{"string exact", SearchParamString, "name:exact", "Smith", nil},
		{"string contains", SearchParamString, "name:contains", "mit", nil},
		{"string missing", SearchParamString, "name:missing", "true", nil},
		{"token not", SearchParamToken, "status:not", "final", nil},
		{"reference type", SearchParamReference, "subject:Patient", "123", nil},
		{"uri below", SearchParamURI, "url:below", "http://example.org", nil},
		{"string text", SearchParamString, "name:text", "x", ErrUnsupportedModifier},
		{"token above", SearchParamToken, "code:above", "x", ErrUnsupportedModifier},
		{"token in", SearchParamToken, "code:in", "http://vs", ErrUnsupportedModifier},
		{"token exact", SearchParamToken, "code:exact", "x", ErrUnsupportedModifier},
		{"reference identifier", SearchParamReference, "subject:identifier", "x", ErrUnsupportedModifier},
		{"missing bad value", SearchParamDate, "date:missing", "maybe", ErrInvalidSearchValue},
		{"bad date", SearchParamDate, "date", "yesterday", ErrInvalidSearchValue},
		{"bad number", SearchParamNumber, "probability", "lots", ErrInvalidSearchValue},
		{"empty value", SearchParamToken, "code", " , ", ErrInvalidSearchValue},
		{"contained reference", SearchParamReference, "subject", "#x", ErrInvalidSearchValue},
		{"typed mismatch", SearchParamReference, "subject:Patient", "Group/1", ErrInvalidSearchValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseParamQuery(tt.typ, tt.param, tt.value)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseParamQuery_Values(t *testing.T) {
	q, err := ParseParamQuery(SearchParamToken, "code", `http://loinc.org|8867-4,|nosystem,http://snomed.info/sct|,plain`)
	if err != nil {
		t.Fatalf("ParseParamQuery: %v", err)
	}
	if len(q.Values) != 4 {
		t.Fatalf("values = %d, want 4", len(q.Values))
	}
	want := []QueryValue{
		{System: "http://loinc.org", Code: "8867-4", HasSystem: true},
		{System: "", Code: "nosystem", HasSystem: true},
		{System: "http://snomed.info/sct", Code: "", HasSystem: true},
		{Code: "plain"},
	}
	for i, w := range want {
		got := q.Values[i]
		if got.System != w.System || got.Code != w.Code || got.HasSystem != w.HasSystem {
			t.Errorf("value %d = %+v, want %+v", i, got, w)
		}
	}

	ref, err := ParseParamQuery(SearchParamReference, "subject:Patient", "123")
	if err != nil {
		t.Fatalf("ParseParamQuery: %v", err)
	}
	if ref.TargetType != "Patient" || ref.Values[0].Ref.Canonical() != "Patient/123" {
		t.Errorf("typed reference = %+v", ref)
	}

	missing, err := ParseParamQuery(SearchParamString, "family:missing", "TRUE")
	if err != nil || missing.Missing == nil || !*missing.Missing {
		t.Errorf("missing = %+v, %v", missing, err)
	}
}

func TestRegistry_ParseQueryUnknownParam(t *testing.T) {
	_, err := DefaultRegistry().ParseQuery("Patient", "favourite-colour", "blue")
	if !errors.Is(err, ErrUnknownParameter) {
		t.Fatalf("err = %v, want ErrUnknownParameter", err)
	}
}

func TestSplitValues(t *testing.T) {
	got := splitValues(`a,b\,c, ,d`)
	want := []string{"a", "b,c", "d"}
	if len(got) != len(want) {
		t.Fatalf("splitValues = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitValues[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestImpliedTolerance(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"100", 0.5},
		{"100.0", 0.05},
		{"0.25", 0.005},
		{"1e3", 0.5},
	}
	for _, tt := range tests {
		if got := impliedTolerance(tt.in); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("impliedTolerance(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
