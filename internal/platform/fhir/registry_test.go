package fhir

import "testing"

func TestDefaultRegistry_Coverage(t *testing.T) {
	reg := DefaultRegistry()
	if got := len(reg.ResourceTypes()); got < 30 {
		t.Fatalf("resource types = %d, want at least 30", got)
	}
	for _, rt := range []string{
		"Patient", "Practitioner", "PractitionerRole", "Organization", "Location", "RelatedPerson",
		"Condition", "Observation", "MedicationRequest", "MedicationAdministration",
		"MedicationStatement", "MedicationDispense", "Medication", "Encounter", "DiagnosticReport",
		"ServiceRequest", "Task", "DocumentReference", "ImagingStudy", "AllergyIntolerance",
		"Procedure", "Immunization", "CarePlan", "CareTeam", "Goal", "Claim",
		"ExplanationOfBenefit", "Coverage", "Device", "Appointment", "Provenance", "Specimen",
		"FamilyMemberHistory", "QuestionnaireResponse", "Composition",
	} {
		if !reg.Supports(rt) {
			t.Errorf("registry does not support %s", rt)
		}
	}
}

func TestDefaultRegistry_RulesAreWellFormed(t *testing.T) {
	reg := DefaultRegistry()
	check := func(rt string, rules []ExtractionRule) {
		seen := make(map[string]bool)
		for _, r := range rules {
			if r.ParamName == "" || len(r.Paths) == 0 || !r.Type.Valid() {
				t.Errorf("%s: malformed rule %+v", rt, r)
			}
			if seen[r.ParamName] {
				t.Errorf("%s: duplicate param %s", rt, r.ParamName)
			}
			seen[r.ParamName] = true
			if len(r.Targets) > 0 && r.Type != SearchParamReference {
				t.Errorf("%s.%s: targets on non-reference rule", rt, r.ParamName)
			}
		}
	}
	check("Resource", reg.Universal())
	for _, rt := range reg.ResourceTypes() {
		check(rt, reg.Rules(rt))
	}
}

func TestDefaultRegistry_CompartmentLinksExist(t *testing.T) {
	reg := DefaultRegistry()
	for rt, params := range PatientCompartment.Resources {
		for _, name := range params {
			rule, ok := reg.Rule(rt, name)
			if !ok {
				t.Errorf("%s.%s: compartment link param not in registry", rt, name)
				continue
			}
			if rule.Type != SearchParamReference {
				t.Errorf("%s.%s: link param type = %s, want reference", rt, name, rule.Type)
			}
		}
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	reg := DefaultRegistry()
	rules := reg.Rules("NoSuchType")
	if rules == nil || len(rules) != 0 {
		t.Errorf("Rules(unknown) = %v, want empty non-nil slice", rules)
	}
	if reg.Supports("NoSuchType") {
		t.Error("Supports(unknown) = true")
	}
}

func TestRegistry_RuleFallsBackToUniversal(t *testing.T) {
	reg := DefaultRegistry()
	if typ, ok := reg.ParamType("Observation", "_lastUpdated"); !ok || typ != SearchParamDate {
		t.Errorf("ParamType(_lastUpdated) = %s, %v", typ, ok)
	}
	if typ, ok := reg.ParamType("Observation", "code"); !ok || typ != SearchParamToken {
		t.Errorf("ParamType(code) = %s, %v", typ, ok)
	}
	if _, ok := reg.ParamType("Observation", "nope"); ok {
		t.Error("ParamType(nope) ok")
	}
}

func TestRegistry_RulesReturnsCopy(t *testing.T) {
	reg := DefaultRegistry()
	rules := reg.Rules("Patient")
	rules[0].ParamName = "mutated"
	if reg.Rules("Patient")[0].ParamName == "mutated" {
		t.Error("Rules exposed internal slice")
	}
}

func TestExtractionRule_AllowsTarget(t *testing.T) {
	r := ref("patient", tPatient, "subject")
	if !r.AllowsTarget("Patient") || !r.AllowsTarget("") {
		t.Error("expected Patient and unknown to be allowed")
	}
	if r.AllowsTarget("Group") {
		t.Error("Group allowed")
	}
	if !ref("focus", nil, "focus").AllowsTarget("Anything") {
		t.Error("untargeted rule rejected a type")
	}
}

func TestRegistry_SearchParameters(t *testing.T) {
	reg := DefaultRegistry()
	sps := reg.SearchParameters()
	ids := make(map[string]bool)
	for _, sp := range sps {
		if ids[sp.ID] {
			t.Errorf("duplicate SearchParameter id %s", sp.ID)
		}
		ids[sp.ID] = true
	}
	if !ids["Condition-patient"] || !ids["Resource-id"] {
		t.Error("expected Condition-patient and Resource-id")
	}
	for _, sp := range sps {
		if sp.ID == "Observation-date" {
			if sp.Expression != "Observation.effective" || len(sp.Comparator) == 0 {
				t.Errorf("Observation-date = %+v", sp)
			}
		}
	}
}
