package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/fhirindex/internal/config"
	"github.com/ehr/fhirindex/internal/domain/resource"
	"github.com/ehr/fhirindex/internal/domain/searchindex"
	"github.com/ehr/fhirindex/internal/platform/fhir"
	"github.com/ehr/fhirindex/internal/platform/metrics"
)

const exportNDJSON = `{"resourceType":"Patient","id":"P1","gender":"female","name":[{"family":"Smith","given":["Ann"]}]}
{"resourceType":"Condition","id":"C1","subject":{"reference":"urn:uuid:P1"},"code":{"coding":[{"system":"http://snomed.info/sct","code":"44054006"}]}}
`

func writeExport(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "export.ndjson"), []byte(exportNDJSON), 0o644); err != nil {
		t.Fatalf("write export: %v", err)
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckCommand_Healthy(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "error")

	out, err := runCLI(t, "check", writeExport(t), "--workers", "2")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	var report checkReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if report.Batch.Indexed != 2 || len(report.Batch.Failed) != 0 || report.Batch.EdgesCreated != 1 {
		t.Errorf("batch = %+v", report.Batch)
	}
	if !report.Health.Healthy || report.Health.Resources != 2 {
		t.Errorf("health = %+v", report.Health)
	}
}

func TestCheckCommand_Unhealthy(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("INDEX_MIN_PARAMS_PER_RESOURCE", "1000")

	out, err := runCLI(t, "check", writeExport(t))
	if !errors.Is(err, errUnhealthy) {
		t.Fatalf("error = %v, want errUnhealthy", err)
	}
	if !strings.Contains(out, `"params_created"`) {
		t.Errorf("report not printed before failing: %q", out)
	}
}

func TestCheckCommand_RequiresArgument(t *testing.T) {
	if _, err := runCLI(t, "check"); err == nil {
		t.Fatal("expected an argument error")
	}
}

func TestNewServer_Routes(t *testing.T) {
	cfg := &config.Config{BodyLimit: "1M", RequestTimeout: 5 * time.Second, IndexWorkers: 1}
	m := metrics.New()
	svc := searchindex.NewService(searchindex.NewMemoryRepo(), fhir.DefaultRegistry(), searchindex.Options{
		MinParamsPerResource: 1,
		Recorder:             searchindex.NewMetricsRecorder(m, 1),
	}, zerolog.Nop())
	a := &app{svc: svc, src: resource.NewNDJSONSource(writeExport(t)), metrics: m}
	e := newServer(cfg, a, searchindex.NewJobManager(svc, a.src), zerolog.Nop())

	do := func(method, target, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, target, nil)
		} else {
			req = httptest.NewRequest(method, target, strings.NewReader(body))
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Header().Get("X-Request-ID") == "" {
		t.Errorf("GET /health = %d, request id %q", rec.Code, rec.Header().Get("X-Request-ID"))
	}

	rec = do(http.MethodGet, "/fhir/SearchParameter?base=Patient&code=gender", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"Patient-gender"`) {
		t.Errorf("GET /fhir/SearchParameter = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(http.MethodPost, "/admin/reindex/Patient/P1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /admin/reindex/Patient/P1 = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(http.MethodGet, "/index/Patient?gender=female", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"P1"`) {
		t.Errorf("GET /index/Patient = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "fhirindex_resources_indexed_total") {
		t.Errorf("GET /metrics = %d, missing index counters", rec.Code)
	}

	rec = do(http.MethodPost, "/admin/index", strings.Repeat(" ", 2<<20))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized POST = %d, want 413", rec.Code)
	}
}
