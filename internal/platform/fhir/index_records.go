package fhir

import "time"

// SearchParamType is the FHIR search parameter type of an extracted value.
type SearchParamType string

const (
	SearchParamToken     SearchParamType = "token"
	SearchParamString    SearchParamType = "string"
	SearchParamDate      SearchParamType = "date"
	SearchParamReference SearchParamType = "reference"
	SearchParamQuantity  SearchParamType = "quantity"
	SearchParamURI       SearchParamType = "uri"
	SearchParamNumber    SearchParamType = "number"
)

// Valid reports whether t is one of the indexable parameter types.
func (t SearchParamType) Valid() bool {
	switch t {
	case SearchParamToken, SearchParamString, SearchParamDate, SearchParamReference,
		SearchParamQuantity, SearchParamURI, SearchParamNumber:
		return true
	}
	return false
}

// SearchParam is one indexed facet of a resource. Only the value fields that
// belong to ParamType are populated.
type SearchParam struct {
	ResourceID   string          `json:"resource_id"`
	ResourceType string          `json:"resource_type"`
	ParamName    string          `json:"param_name"`
	ParamType    SearchParamType `json:"param_type"`
	SourcePath   string          `json:"source_path,omitempty"`

	TokenSystem string `json:"value_token_system,omitempty"`
	TokenCode   string `json:"value_token_code,omitempty"`

	String string `json:"value_string,omitempty"`

	DateStart *time.Time `json:"value_date_start,omitempty"`
	DateEnd   *time.Time `json:"value_date_end,omitempty"`

	Reference          string `json:"value_reference,omitempty"`
	ReferenceCanonical string `json:"value_reference_canonical,omitempty"`
	ReferenceID        string `json:"value_reference_id,omitempty"`

	QuantityValue  *float64 `json:"value_quantity_value,omitempty"`
	QuantityUnit   string   `json:"value_quantity_unit,omitempty"`
	QuantitySystem string   `json:"value_quantity_system,omitempty"`

	URI    string   `json:"value_uri,omitempty"`
	Number *float64 `json:"value_number,omitempty"`

	// Target is the stored resource a reference resolved to. Not persisted.
	Target *ResolvedTarget `json:"-"`
}

// CompartmentMembership asserts that a resource is visible in a compartment.
type CompartmentMembership struct {
	CompartmentType string `json:"compartment_type"`
	CompartmentID   string `json:"compartment_id"`
	ResourceType    string `json:"resource_type"`
	ResourceID      string `json:"resource_id"`
}

// ReferenceEdge is a resolved "source references target via path" relation.
type ReferenceEdge struct {
	SourceResourceType string `json:"source_resource_type"`
	SourceResourceID   string `json:"source_resource_id"`
	SourcePath         string `json:"source_path"`
	TargetResourceType string `json:"target_resource_type"`
	TargetResourceID   string `json:"target_resource_id"`
	TargetURL          string `json:"target_url"`
}

// DanglingReference records a reference that could not be resolved to a
// stored resource at indexing time.
type DanglingReference struct {
	SourceResourceType string `json:"source_resource_type"`
	SourceResourceID   string `json:"source_resource_id"`
	SourcePath         string `json:"source_path"`
	TargetURL          string `json:"target_url"`
}

// Extraction is everything derived from one document by the extractor.
type Extraction struct {
	ResourceType string
	ResourceID   string
	LogicalID    string
	Params       []SearchParam
	Dangling     []DanglingReference
}

// ReferenceParams returns the reference-typed parameters of the extraction.
func (e *Extraction) ReferenceParams() []SearchParam {
	var out []SearchParam
	for _, p := range e.Params {
		if p.ParamType == SearchParamReference {
			out = append(out, p)
		}
	}
	return out
}
