package fhir

import (
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/fhirindex/pkg/pagination"
)

// SearchParameterResource is the FHIR SearchParameter rendering of one
// extraction rule.
type SearchParameterResource struct {
	ResourceType string   `json:"resourceType"`
	ID           string   `json:"id,omitempty"`
	URL          string   `json:"url"`
	Version      string   `json:"version,omitempty"`
	Name         string   `json:"name"`
	Status       string   `json:"status"`
	Description  string   `json:"description,omitempty"`
	Code         string   `json:"code"`
	Base         []string `json:"base"`
	Type         string   `json:"type"`
	Expression   string   `json:"expression,omitempty"`
	Target       []string `json:"target,omitempty"`
	Comparator   []string `json:"comparator,omitempty"`
	Modifier     []string `json:"modifier,omitempty"`
}

// SearchParameterStore serves a registry's parameters by id and by base. It
// is built once and never mutated.
type SearchParameterStore struct {
	version string
	byID    map[string]*SearchParameterResource
	byBase  map[string][]string
	ids     []string
}

func NewSearchParameterStore(registry *Registry) *SearchParameterStore {
	s := &SearchParameterStore{
		version: registry.Version(),
		byID:    make(map[string]*SearchParameterResource),
		byBase:  make(map[string][]string),
	}
	for _, sp := range registry.SearchParameters() {
		sp.Version = registry.Version()
		s.byID[sp.ID] = sp
		s.ids = append(s.ids, sp.ID)
		for _, b := range sp.Base {
			s.byBase[strings.ToLower(b)] = append(s.byBase[strings.ToLower(b)], sp.ID)
		}
	}
	sort.Strings(s.ids)
	for _, ids := range s.byBase {
		sort.Strings(ids)
	}
	return s
}

// Get returns a copy of the parameter with the given id.
func (s *SearchParameterStore) Get(id string) (*SearchParameterResource, bool) {
	sp, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	cp := *sp
	return &cp, true
}

// Search filters by name, code, url, type, base, target and modifier. A
// comma-separated value matches any of its parts. Results are sorted by id.
func (s *SearchParameterStore) Search(filters url.Values) []*SearchParameterResource {
	candidates := s.ids
	if bases := splitAny(filters["base"]); len(bases) > 0 {
		seen := map[string]bool{}
		candidates = nil
		for _, b := range bases {
			for _, id := range s.byBase[strings.ToLower(b)] {
				if !seen[id] {
					seen[id] = true
					candidates = append(candidates, id)
				}
			}
		}
		sort.Strings(candidates)
	}

	out := make([]*SearchParameterResource, 0, len(candidates))
	for _, id := range candidates {
		sp := s.byID[id]
		if !anyMatch(filters["name"], func(v string) bool { return strings.EqualFold(sp.Name, v) }) ||
			!anyMatch(filters["code"], func(v string) bool { return sp.Code == v }) ||
			!anyMatch(filters["url"], func(v string) bool { return sp.URL == v }) ||
			!anyMatch(filters["type"], func(v string) bool { return sp.Type == v }) ||
			!anyMatch(filters["target"], func(v string) bool { return containsFold(sp.Target, v) }) ||
			!anyMatch(filters["modifier"], func(v string) bool { return containsFold(sp.Modifier, v) }) {
			continue
		}
		cp := *sp
		out = append(out, &cp)
	}
	return out
}

func splitAny(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// anyMatch is true when no filter values are given or one of them matches.
func anyMatch(values []string, match func(string) bool) bool {
	parts := splitAny(values)
	if len(parts) == 0 {
		return true
	}
	for _, p := range parts {
		if match(p) {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// SearchsetBundle is a paged FHIR searchset.
type SearchsetBundle struct {
	ResourceType string            `json:"resourceType"`
	Type         string            `json:"type"`
	Total        int               `json:"total"`
	Link         []pagination.Link `json:"link,omitempty"`
	Entry        []BundleEntry     `json:"entry"`
}

type BundleEntry struct {
	FullURL  string       `json:"fullUrl,omitempty"`
	Resource interface{}  `json:"resource"`
	Search   *EntrySearch `json:"search,omitempty"`
}

type EntrySearch struct {
	Mode string `json:"mode"`
}

// SearchParameterHandler serves the registry under /fhir.
type SearchParameterHandler struct {
	store *SearchParameterStore
}

func NewSearchParameterHandler(store *SearchParameterStore) *SearchParameterHandler {
	return &SearchParameterHandler{store: store}
}

func (h *SearchParameterHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/SearchParameter", h.Search)
	g.GET("/SearchParameter/:id", h.Read)
}

// Search handles GET /fhir/SearchParameter.
func (h *SearchParameterHandler) Search(c echo.Context) error {
	matches := h.store.Search(c.QueryParams())
	pg := pagination.FromContext(c)

	page := matches
	if pg.Offset >= len(page) {
		page = nil
	} else {
		page = page[pg.Offset:]
		if len(page) > pg.Limit {
			page = page[:pg.Limit]
		}
	}

	base := c.Request().URL.Path
	bundle := SearchsetBundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        len(matches),
		Link:         pagination.NewResponse(nil, len(matches), pg.Limit, pg.Offset).WithLinks(base, c.QueryParams()).Links,
		Entry:        make([]BundleEntry, 0, len(page)),
	}
	for _, sp := range page {
		bundle.Entry = append(bundle.Entry, BundleEntry{
			FullURL:  base + "/" + sp.ID,
			Resource: sp,
			Search:   &EntrySearch{Mode: "match"},
		})
	}
	return c.JSON(http.StatusOK, bundle)
}

// Read handles GET /fhir/SearchParameter/:id. The ETag carries the registry
// version the parameter belongs to.
func (h *SearchParameterHandler) Read(c echo.Context) error {
	id := c.Param("id")
	sp, ok := h.store.Get(id)
	if !ok {
		return c.JSON(http.StatusNotFound, NotFoundOutcome("SearchParameter", id))
	}
	c.Response().Header().Set("ETag", "W/"+strconv.Quote(h.store.version))
	return c.JSON(http.StatusOK, sp)
}
