package graph

import (
	"testing"

	"github.com/ehr/fhirindex/internal/platform/fhir"
)

func TestEdgeRows(t *testing.T) {
	edges := []fhir.ReferenceEdge{
		{SourceResourceType: "Condition", SourceResourceID: "C1", SourcePath: "subject", TargetResourceType: "Patient", TargetResourceID: "P1", TargetURL: "urn:uuid:P1"},
		{SourceResourceType: "Condition", SourceResourceID: "C1", SourcePath: "subject", TargetResourceType: "Patient", TargetResourceID: "P1", TargetURL: "Patient/P1"},
		{SourceResourceType: "Condition", SourceResourceID: "C1", SourcePath: "encounter", TargetResourceType: "Encounter", TargetResourceID: "E1", TargetURL: "Encounter/E1"},
		{SourceResourceType: "Condition", SourceResourceID: "C1", SourcePath: "asserter", TargetURL: "Practitioner/unknown"},
	}

	rows := edgeRows(edges)
	if len(rows) != 2 {
		t.Fatalf("rows = %v, want 2", rows)
	}
	first := rows[0]
	if first["path"] != "subject" || first["target_type"] != "Patient" || first["target_id"] != "P1" || first["url"] != "urn:uuid:P1" {
		t.Errorf("first row = %v", first)
	}
	if rows[1]["target_type"] != "Encounter" {
		t.Errorf("second row = %v", rows[1])
	}
}

func TestEdgeRows_Empty(t *testing.T) {
	if rows := edgeRows(nil); rows == nil || len(rows) != 0 {
		t.Errorf("edgeRows(nil) = %#v, want empty non-nil slice", rows)
	}
}
