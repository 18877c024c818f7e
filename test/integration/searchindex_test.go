package integration

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/fhirindex/internal/domain/resource"
	"github.com/ehr/fhirindex/internal/domain/searchindex"
	"github.com/ehr/fhirindex/internal/platform/fhir"
	"github.com/ehr/fhirindex/pkg/pagination"
)

const (
	patientP1 = `{"resourceType":"Patient","id":"P1","gender":"female","birthDate":"1980-04-02",
		"name":[{"family":"Smith","given":["Ann"]}],
		"identifier":[{"system":"urn:mrn","value":"12345"}]}`
	conditionC1 = `{"resourceType":"Condition","id":"C1","subject":{"reference":"urn:uuid:P1"},
		"code":{"coding":[{"system":"http://snomed.info/sct","code":"44054006"}]},
		"onsetDateTime":"2020-01-15"}`
	observationO1 = `{"resourceType":"Observation","id":"O1","status":"final",
		"subject":{"reference":"Patient/P1"},
		"code":{"coding":[{"system":"http://loinc.org","code":"4548-4"}]},
		"valueQuantity":{"value":7.2,"unit":"%","system":"http://unitsofmeasure.org","code":"%"}}`
)

func seed(t *testing.T) (*searchindex.Service, resource.Source, func(string, map[string][]string) []string) {
	t.Helper()
	pool := newSchema(t)
	storeResource(t, pool, "Patient", "P1", "P1", patientP1)
	storeResource(t, pool, "Condition", "C1", "C1", conditionC1)
	storeResource(t, pool, "Observation", "O1", "O1", observationO1)

	src := resource.NewPGSource(pool)
	svc := searchindex.NewService(searchindex.NewRepo(pool), fhir.DefaultRegistry(), searchindex.Options{
		Index:                resource.NewLiveIndex(src),
		PersistDangling:      true,
		MinParamsPerResource: 1,
	}, zerolog.Nop())

	search := func(resourceType string, params map[string][]string) []string {
		t.Helper()
		queries, err := svc.ParseQueries(resourceType, params)
		if err != nil {
			t.Fatalf("ParseQueries(%v): %v", params, err)
		}
		ids, _, err := svc.Search(context.Background(), resourceType, queries, pagination.Params{Limit: 50})
		if err != nil {
			t.Fatalf("Search(%s %v): %v", resourceType, params, err)
		}
		return ids
	}
	return svc, src, search
}

func TestSearchIndex_ReindexAll(t *testing.T) {
	ctx := context.Background()
	svc, src, search := seed(t)

	result, err := svc.ReindexAll(ctx, src, searchindex.BatchOptions{Workers: 4})
	if err != nil {
		t.Fatalf("ReindexAll: %v", err)
	}
	if result.Indexed != 3 || len(result.Failed) != 0 || !result.Healthy(1) {
		t.Fatalf("result = %+v", result)
	}
	if result.EdgesCreated != 2 || result.DanglingRefs != 0 {
		t.Errorf("edges = %d dangling = %d, want 2/0", result.EdgesCreated, result.DanglingRefs)
	}

	tests := []struct {
		name         string
		resourceType string
		params       map[string][]string
		want         []string
	}{
		{"reference by urn", "Condition", map[string][]string{"patient": {"urn:uuid:P1"}}, []string{"C1"}},
		{"reference by relative url", "Condition", map[string][]string{"subject": {"Patient/P1"}}, []string{"C1"}},
		{"token system|code", "Condition", map[string][]string{"code": {"http://snomed.info/sct|44054006"}}, []string{"C1"}},
		{"date prefix", "Condition", map[string][]string{"onset-date": {"ge2020-01-01"}}, []string{"C1"}},
		{"string prefix, case-insensitive", "Patient", map[string][]string{"family": {"smi"}}, []string{"P1"}},
		{"string exact misses case", "Patient", map[string][]string{"family:exact": {"smith"}}, nil},
		{"identifier", "Patient", map[string][]string{"identifier": {"urn:mrn|12345"}}, []string{"P1"}},
		{"quantity", "Observation", map[string][]string{"value-quantity": {"gt7"}}, []string{"O1"}},
		{"_id", "Observation", map[string][]string{"_id": {"O1"}}, []string{"O1"}},
		{"missing", "Patient", map[string][]string{"birthdate:missing": {"true"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := search(tt.resourceType, tt.params)
			if len(got) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ids = %v, want %v", got, tt.want)
				}
			}
		})
	}

	members, err := svc.CompartmentMembers(ctx, "Patient", "P1", "")
	if err != nil || len(members) != 2 {
		t.Errorf("compartment = %+v, %v; want the condition and the observation", members, err)
	}
	incoming, err := svc.IncomingEdges(ctx, "Patient", "P1")
	if err != nil || len(incoming) != 2 {
		t.Errorf("incoming edges = %+v, %v", incoming, err)
	}
}

func TestSearchIndex_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, src, _ := seed(t)

	first, err := svc.ReindexAll(ctx, src, searchindex.BatchOptions{})
	if err != nil {
		t.Fatalf("first ReindexAll: %v", err)
	}
	second, err := svc.ReindexAll(ctx, src, searchindex.BatchOptions{LiveResolution: true})
	if err != nil {
		t.Fatalf("second ReindexAll: %v", err)
	}
	if first.ParamsCreated != second.ParamsCreated || first.EdgesCreated != second.EdgesCreated {
		t.Errorf("runs differ: %+v vs %+v", first, second)
	}

	report, err := svc.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if report.Resources != 3 || report.Params != first.ParamsCreated || !report.Healthy {
		t.Errorf("report = %+v, want 3 resources and %d params", report, first.ParamsCreated)
	}
}

func TestSearchIndex_DeleteAndSingleIndex(t *testing.T) {
	ctx := context.Background()
	svc, src, search := seed(t)

	if _, err := svc.ReindexOne(ctx, src, "Condition", "C1"); err != nil {
		t.Fatalf("ReindexOne: %v", err)
	}
	if ids := search("Condition", map[string][]string{"patient": {"P1"}}); len(ids) != 1 {
		t.Fatalf("ids = %v, want C1 resolved through the live index", ids)
	}

	if err := svc.DeleteResource(ctx, "Condition", "C1"); err != nil {
		t.Fatalf("DeleteResource: %v", err)
	}
	if ids := search("Condition", map[string][]string{"patient": {"P1"}}); len(ids) != 0 {
		t.Errorf("ids after delete = %v", ids)
	}
	if _, err := svc.Params(ctx, "Condition", "C1"); err == nil {
		t.Error("expected ErrNotIndexed after delete")
	}

	if _, err := svc.ReindexOne(ctx, src, "Condition", "missing"); err == nil {
		t.Error("expected not found for a resource absent from the source")
	}
}
