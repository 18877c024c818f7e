package fhir

import "sort"

// CompartmentDefinition maps resource types that belong to a compartment
// to the search parameters that link them.
type CompartmentDefinition struct {
	// Type is the compartment type (e.g., "Patient").
	Type string
	// Resources maps resource type -> search parameter names that link to this compartment.
	Resources map[string][]string
}

// PatientCompartment lists the FHIR R4 Patient compartment link parameters
// for the resource types the default registry covers.
var PatientCompartment = CompartmentDefinition{
	Type: "Patient",
	Resources: map[string][]string{
		"AllergyIntolerance":       {"patient", "recorder", "asserter"},
		"Appointment":              {"actor"},
		"CarePlan":                 {"patient", "performer"},
		"CareTeam":                 {"patient", "participant"},
		"Claim":                    {"patient", "payee"},
		"Composition":              {"subject", "author", "attester"},
		"Condition":                {"patient", "asserter"},
		"Coverage":                 {"policy-holder", "subscriber", "beneficiary", "payor"},
		"DiagnosticReport":         {"subject"},
		"DocumentReference":        {"subject", "author"},
		"Encounter":                {"patient"},
		"EpisodeOfCare":            {"patient"},
		"ExplanationOfBenefit":     {"patient", "payee"},
		"FamilyMemberHistory":      {"patient"},
		"Goal":                     {"patient"},
		"ImagingStudy":             {"patient"},
		"Immunization":             {"patient"},
		"Medication":               {},
		"MedicationAdministration": {"patient", "performer", "subject"},
		"MedicationDispense":       {"subject", "patient", "receiver"},
		"MedicationRequest":        {"subject"},
		"MedicationStatement":      {"subject"},
		"Observation":              {"subject", "performer"},
		"Organization":             {},
		"Patient":                  {"link"},
		"Practitioner":             {},
		"Procedure":                {"patient", "performer"},
		"Provenance":               {"patient"},
		"QuestionnaireResponse":    {"subject", "author"},
		"RelatedPerson":            {"patient"},
		"RiskAssessment":           {"subject"},
		"ServiceRequest":           {"subject", "performer"},
		"Specimen":                 {"subject"},
		"Task":                     {"patient"},
	},
}

// IsInCompartment checks if a resource type is part of the given compartment.
func IsInCompartment(compartment *CompartmentDefinition, resourceType string) bool {
	_, ok := compartment.Resources[resourceType]
	return ok
}

// IsLinkParam reports whether paramName links resourceType to the compartment.
func IsLinkParam(compartment *CompartmentDefinition, resourceType, paramName string) bool {
	for _, p := range compartment.Resources[resourceType] {
		if p == paramName {
			return true
		}
	}
	return false
}

// DeriveMemberships returns one membership per distinct compartment owner
// directly referenced through a linking parameter. References whose type is
// still unknown after resolution are ignored; nothing is inferred
// transitively.
func DeriveMemberships(compartment *CompartmentDefinition, ex *Extraction) []CompartmentMembership {
	if ex == nil || !IsInCompartment(compartment, ex.ResourceType) {
		return nil
	}
	seen := make(map[string]bool)
	var out []CompartmentMembership
	for _, p := range ex.Params {
		if p.ParamType != SearchParamReference || !IsLinkParam(compartment, ex.ResourceType, p.ParamName) {
			continue
		}
		n, ok := NormalizeReference(p.ReferenceCanonical)
		if !ok || n.TypeHint != compartment.Type || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		out = append(out, CompartmentMembership{
			CompartmentType: compartment.Type,
			CompartmentID:   n.ID,
			ResourceType:    ex.ResourceType,
			ResourceID:      ex.ResourceID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompartmentID < out[j].CompartmentID })
	return out
}
