package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads _count/_offset, falling back to limit/offset.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("_count"))
	if limit <= 0 {
		limit, _ = strconv.Atoi(c.QueryParam("limit"))
	}
	offset, _ := strconv.Atoi(c.QueryParam("_offset"))
	if offset <= 0 {
		offset, _ = strconv.Atoi(c.QueryParam("offset"))
	}
	return Params{Limit: limit, Offset: offset}.Normalized()
}

// Normalized applies the default and maximum page size and clamps a negative
// offset to zero.
func (p Params) Normalized() Params {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// Response wraps one page of results.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
	Links   []Link      `json:"links,omitempty"`
}

// Link is a FHIR Bundle style navigation link.
type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}

// WithLinks adds self, next and previous links that keep every filter in
// query and replace the paging parameters.
func (r *Response) WithLinks(basePath string, query url.Values) *Response {
	link := func(rel string, offset int) Link {
		q := url.Values{}
		for k, v := range query {
			switch k {
			case "_count", "_offset", "limit", "offset":
				continue
			}
			q[k] = v
		}
		q.Set("_count", strconv.Itoa(r.Limit))
		q.Set("_offset", strconv.Itoa(offset))
		return Link{Relation: rel, URL: basePath + "?" + q.Encode()}
	}

	r.Links = []Link{link("self", r.Offset)}
	if r.HasMore {
		r.Links = append(r.Links, link("next", r.Offset+r.Limit))
	}
	if r.Offset > 0 {
		prev := r.Offset - r.Limit
		if prev < 0 {
			prev = 0
		}
		r.Links = append(r.Links, link("previous", prev))
	}
	return r
}
