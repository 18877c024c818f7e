package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "/", DefaultLimit, 0},
		{"limit and offset", "/?limit=50&offset=10", 50, 10},
		{"FHIR parameters", "/?_count=25&_offset=5", 25, 5},
		{"FHIR parameters win", "/?_count=7&limit=50", 7, 0},
		{"capped at maximum", "/?_count=5000", MaxLimit, 0},
		{"negative offset", "/?_offset=-3", DefaultLimit, 0},
		{"garbage", "/?_count=many", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, tt.target, nil), httptest.NewRecorder())
			p := FromContext(c)
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("FromContext(%s) = %+v, want limit %d offset %d", tt.target, p, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestParams_Normalized(t *testing.T) {
	if p := (Params{}).Normalized(); p.Limit != DefaultLimit || p.Offset != 0 {
		t.Errorf("zero params = %+v", p)
	}
	if p := (Params{Limit: 10, Offset: 30}).Normalized(); p.Limit != 10 || p.Offset != 30 {
		t.Errorf("valid params changed: %+v", p)
	}
}

func TestNewResponse(t *testing.T) {
	tests := []struct {
		total, limit, offset int
		hasMore              bool
	}{
		{100, 20, 0, true},
		{100, 20, 80, false},
		{0, 20, 0, false},
	}
	for _, tt := range tests {
		r := NewResponse([]string{}, tt.total, tt.limit, tt.offset)
		if r.HasMore != tt.hasMore {
			t.Errorf("NewResponse(total=%d, limit=%d, offset=%d).HasMore = %v", tt.total, tt.limit, tt.offset, r.HasMore)
		}
		if p := (Params{Limit: tt.limit, Offset: tt.offset}); p.HasNext(tt.total) != tt.hasMore {
			t.Errorf("HasNext disagrees with HasMore for %+v", tt)
		}
	}
}

func TestResponse_WithLinks(t *testing.T) {
	query := url.Values{"patient": {"Patient/P1"}, "_count": {"10"}, "offset": {"99"}}

	r := NewResponse([]string{"C1"}, 25, 10, 10).WithLinks("/index/Condition", query)
	rels := map[string]string{}
	for _, l := range r.Links {
		rels[l.Relation] = l.URL
	}
	if len(rels) != 3 {
		t.Fatalf("links = %+v, want self, next and previous", r.Links)
	}
	if rels["next"] != "/index/Condition?_count=10&_offset=20&patient=Patient%2FP1" {
		t.Errorf("next = %s", rels["next"])
	}
	if !strings.Contains(rels["previous"], "_offset=0") || strings.Contains(rels["self"], "offset=99") {
		t.Errorf("previous = %s self = %s", rels["previous"], rels["self"])
	}

	first := NewResponse([]string{}, 0, 10, 0).WithLinks("/index/Condition", nil)
	if len(first.Links) != 1 || first.Links[0].Relation != "self" {
		t.Errorf("empty first page links = %+v", first.Links)
	}
}
