package searchindex

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/fhirindex/internal/domain/resource"
	"github.com/ehr/fhirindex/internal/platform/fhir"
	"github.com/ehr/fhirindex/pkg/pagination"
)

type Handler struct {
	svc      *Service
	jobs     *JobManager
	src      resource.Source
	defaults BatchOptions
}

// NewHandler serves the index over HTTP. src backs single-resource and full
// reindexes; defaults apply to reindex jobs that do not override them.
func NewHandler(svc *Service, jobs *JobManager, src resource.Source, defaults BatchOptions) *Handler {
	return &Handler{svc: svc, jobs: jobs, src: src, defaults: defaults}
}

func (h *Handler) RegisterRoutes(admin *echo.Group, index *echo.Group) {
	admin.POST("/index", h.IndexResource)
	admin.DELETE("/index/:type/:id", h.DeleteResource)
	admin.POST("/reindex/:type/:id", h.ReindexResource)
	admin.POST("/reindex", h.StartReindex)
	admin.GET("/reindex", h.ListReindexJobs)
	admin.GET("/reindex/:job", h.GetReindexJob)
	admin.DELETE("/reindex/:job", h.CancelReindexJob)
	admin.GET("/health/index", h.Health)

	index.GET("/compartment/:ctype/:cid", h.CompartmentMembers)
	index.GET("/:type", h.Search)
	index.GET("/:type/:id/params", h.Params)
	index.GET("/:type/:id/edges", h.Edges)
}

// -- Admin --

func (h *Handler) IndexResource(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("failed to read request body"))
	}
	result, err := h.svc.IndexResource(c.Request().Context(), body, c.QueryParam("storage_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) DeleteResource(c echo.Context) error {
	if err := h.svc.DeleteResource(c.Request().Context(), c.Param("type"), c.Param("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ReindexResource(c echo.Context) error {
	resourceType, id := c.Param("type"), c.Param("id")
	result, err := h.svc.ReindexOne(c.Request().Context(), h.src, resourceType, id)
	if errors.Is(err, resource.ErrNotFound) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome(resourceType, id))
	}
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) StartReindex(c echo.Context) error {
	opts := h.defaults
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&opts); err != nil {
			return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("invalid reindex options: "+err.Error()))
		}
	}
	job, err := h.jobs.Start(opts)
	if err != nil {
		return errorResponse(c, err)
	}
	c.Response().Header().Set("Content-Location", "/admin/reindex/"+job.ID)
	return c.JSON(http.StatusAccepted, job)
}

func (h *Handler) ListReindexJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, h.jobs.List())
}

func (h *Handler) GetReindexJob(c echo.Context) error {
	job, err := h.jobs.Get(c.Param("job"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

func (h *Handler) CancelReindexJob(c echo.Context) error {
	if err := h.jobs.Cancel(c.Param("job")); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) Health(c echo.Context) error {
	report, err := h.svc.Health(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, report)
}

// -- Queries --

// controlParams are query parameters that page results instead of filtering.
var controlParams = map[string]bool{"_count": true, "_offset": true, "limit": true, "offset": true}

func (h *Handler) Search(c echo.Context) error {
	resourceType := c.Param("type")
	raw := make(map[string][]string)
	for name, values := range c.QueryParams() {
		if controlParams[name] {
			continue
		}
		raw[name] = values
	}
	queries, err := h.svc.ParseQueries(resourceType, raw)
	if err != nil {
		return errorResponse(c, err)
	}

	pg := pagination.FromContext(c)
	ids, total, err := h.svc.Search(c.Request().Context(), resourceType, queries, pg)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(ids, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams()))
}

func (h *Handler) Params(c echo.Context) error {
	params, err := h.svc.Params(c.Request().Context(), c.Param("type"), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, params)
}

func (h *Handler) Edges(c echo.Context) error {
	ctx := c.Request().Context()
	resourceType, id := c.Param("type"), c.Param("id")

	var edges []fhir.ReferenceEdge
	var err error
	switch strings.ToLower(c.QueryParam("direction")) {
	case "", "out":
		edges, err = h.svc.OutgoingEdges(ctx, resourceType, id)
	case "in":
		edges, err = h.svc.IncomingEdges(ctx, resourceType, id)
	default:
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("direction must be 'out' or 'in'"))
	}
	if err != nil {
		return errorResponse(c, err)
	}
	if edges == nil {
		edges = []fhir.ReferenceEdge{}
	}
	return c.JSON(http.StatusOK, edges)
}

func (h *Handler) CompartmentMembers(c echo.Context) error {
	members, err := h.svc.CompartmentMembers(c.Request().Context(), c.Param("ctype"), c.Param("cid"), c.QueryParam("type"))
	if err != nil {
		return errorResponse(c, err)
	}
	if members == nil {
		members = []fhir.CompartmentMembership{}
	}
	return c.JSON(http.StatusOK, members)
}

// errorResponse renders err as an OperationOutcome with a status matching its
// class.
func errorResponse(c echo.Context, err error) error {
	var xe *fhir.ExtractionError
	switch {
	case errors.As(err, &xe):
		return c.JSON(http.StatusUnprocessableEntity, fhir.InvalidOutcome(err.Error()))
	case errors.Is(err, fhir.ErrUnsupportedModifier),
		errors.Is(err, fhir.ErrUnknownParameter),
		errors.Is(err, fhir.ErrInvalidSearchValue):
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	case errors.Is(err, ErrJobNotFound), errors.Is(err, ErrNotIndexed):
		return c.JSON(http.StatusNotFound, fhir.NewOperationOutcome("error", "not-found", err.Error()))
	case errors.Is(err, ErrJobRunning):
		return c.JSON(http.StatusConflict, fhir.NewOperationOutcome("error", "conflict", err.Error()))
	default:
		return c.JSON(http.StatusInternalServerError, fhir.InternalErrorOutcome(err.Error()))
	}
}
