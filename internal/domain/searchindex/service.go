package searchindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/ehr/fhirindex/internal/domain/resource"
	"github.com/ehr/fhirindex/internal/platform/fhir"
	"github.com/ehr/fhirindex/pkg/pagination"
)

// Recorder receives indexing measurements.
type Recorder interface {
	ObserveResource(resourceType string, state IndexState, params, dangling int, elapsed time.Duration)
	ObserveBatch(result *BatchResult)
	ObserveHealth(report *HealthReport)
}

// EdgeMirror keeps a copy of the reference graph in an external store.
type EdgeMirror interface {
	SyncEdges(ctx context.Context, resourceType, resourceID string, edges []fhir.ReferenceEdge) error
	DeleteSource(ctx context.Context, resourceType, resourceID string) error
}

// Options configures a Service.
type Options struct {
	// Index resolves references for single-resource indexing and for batches
	// run with LiveResolution. Other batches consult it for targets missing
	// from the batch source. Nil leaves those references unresolved.
	Index                fhir.ResourceIndex
	Compartment          *fhir.CompartmentDefinition
	PersistDangling      bool
	MinParamsPerResource float64
	Recorder             Recorder
	Mirror               EdgeMirror
	Observer             StateObserver
}

// Service derives and stores the search index of FHIR resources.
type Service struct {
	repo        Repository
	extractor   *fhir.Extractor
	index       fhir.ResourceIndex
	compartment *fhir.CompartmentDefinition
	opts        Options
	logger      zerolog.Logger
}

func NewService(repo Repository, registry *fhir.Registry, opts Options, logger zerolog.Logger) *Service {
	if opts.Compartment == nil {
		opts.Compartment = &fhir.PatientCompartment
	}
	return &Service{
		repo:        repo,
		extractor:   fhir.NewExtractor(registry, fhir.NewResolver(opts.Index)),
		index:       opts.Index,
		compartment: opts.Compartment,
		opts:        opts,
		logger:      logger,
	}
}

// Registry returns the rule set the service indexes with.
func (s *Service) Registry() *fhir.Registry { return s.extractor.Registry() }

// IndexResource parses and indexes one raw resource. storageID may be empty
// when the store addresses resources by logical id.
func (s *Service) IndexResource(ctx context.Context, raw []byte, storageID string) (*IndexResult, error) {
	doc, err := fhir.ParseDocument(raw, storageID)
	if err != nil {
		return nil, err
	}
	return s.IndexDocument(ctx, doc)
}

// IndexDocument indexes one parsed resource, replacing whatever was indexed
// for it before.
func (s *Service) IndexDocument(ctx context.Context, doc *fhir.Document) (*IndexResult, error) {
	return s.indexDocument(ctx, s.extractor, doc, false)
}

func (s *Service) indexDocument(ctx context.Context, ex *fhir.Extractor, doc *fhir.Document, skipUnchanged bool) (*IndexResult, error) {
	start := time.Now()
	tr := newStateTracker(doc.Key(), s.opts.Observer)
	result := &IndexResult{ResourceType: doc.ResourceType, ResourceID: doc.StorageID, LogicalID: doc.LogicalID}
	finish := func(err error) (*IndexResult, error) {
		if err != nil {
			tr.fail()
		}
		result.State = tr.state
		if s.opts.Recorder != nil {
			s.opts.Recorder.ObserveResource(doc.ResourceType, tr.state, result.ParamCount, result.DanglingCount, time.Since(start))
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := tr.advance(StateExtracting); err != nil {
		return finish(err)
	}

	hash := contentHash(doc)
	if skipUnchanged {
		prev, err := s.repo.GetIndexedResource(ctx, doc.ResourceType, doc.StorageID)
		switch {
		// A resource that had unresolved references is indexed again: its
		// targets may be known now.
		case err == nil && prev.ContentHash == hash && prev.RegistryVersion == s.Registry().Version() && prev.DanglingCount == 0:
			result.Skipped = true
			result.ParamCount = prev.ParamCount
			result.TypeParamCount = prev.TypeParamCount
			if err := tr.advance(StateDone); err != nil {
				return finish(err)
			}
			return finish(nil)
		case err != nil && !errors.Is(err, ErrNotIndexed):
			return finish(&PersistenceError{Op: "read", ResourceType: doc.ResourceType, ResourceID: doc.StorageID, Err: err})
		}
	}

	extraction, err := ex.Extract(ctx, doc)
	if err != nil {
		var xe *fhir.ExtractionError
		if errors.As(err, &xe) {
			return finish(err)
		}
		return finish(&PersistenceError{Op: "resolve", ResourceType: doc.ResourceType, ResourceID: doc.StorageID, Err: err})
	}

	rec := &IndexRecords{
		Resource: IndexedResource{
			ResourceType:    doc.ResourceType,
			ResourceID:      doc.StorageID,
			LogicalID:       doc.LogicalID,
			ContentHash:     hash,
			RegistryVersion: s.Registry().Version(),
			ParamCount:      len(extraction.Params),
			TypeParamCount:  countTypeParams(s.Registry(), extraction.Params),
			DanglingCount:   len(extraction.Dangling),
			IndexedAt:       time.Now().UTC(),
		},
		Params:      extraction.Params,
		Memberships: fhir.DeriveMemberships(s.compartment, extraction),
		Edges:       fhir.BuildEdges(extraction),
	}
	if s.opts.PersistDangling {
		rec.Dangling = extraction.Dangling
	}
	result.ParamCount = len(rec.Params)
	result.TypeParamCount = rec.Resource.TypeParamCount
	if result.TypeParamCount == 0 && s.Registry().Supports(doc.ResourceType) {
		s.logger.Warn().
			Str("resource_type", doc.ResourceType).
			Str("resource_id", doc.StorageID).
			Msg("no type-specific search parameters extracted")
	}
	result.CompartmentCount = len(rec.Memberships)
	result.EdgeCount = len(rec.Edges)
	result.DanglingCount = len(extraction.Dangling)

	if err := tr.advance(StatePersisting); err != nil {
		return finish(err)
	}
	if err := s.repo.ReplaceResource(ctx, rec); err != nil {
		return finish(&PersistenceError{Op: "replace", ResourceType: doc.ResourceType, ResourceID: doc.StorageID, Err: err})
	}
	if err := tr.advance(StateDone); err != nil {
		return finish(err)
	}

	if s.opts.Mirror != nil {
		if err := s.opts.Mirror.SyncEdges(ctx, doc.ResourceType, doc.StorageID, rec.Edges); err != nil {
			s.logger.Warn().Err(err).
				Str("resource_type", doc.ResourceType).
				Str("resource_id", doc.StorageID).
				Msg("edge mirror sync failed")
		}
	}
	return finish(nil)
}

// DeleteResource removes every derived record of a resource.
func (s *Service) DeleteResource(ctx context.Context, resourceType, resourceID string) error {
	if err := s.repo.DeleteResource(ctx, resourceType, resourceID); err != nil {
		return &PersistenceError{Op: "delete", ResourceType: resourceType, ResourceID: resourceID, Err: err}
	}
	if s.opts.Mirror != nil {
		if err := s.opts.Mirror.DeleteSource(ctx, resourceType, resourceID); err != nil {
			s.logger.Warn().Err(err).
				Str("resource_type", resourceType).
				Str("resource_id", resourceID).
				Msg("edge mirror delete failed")
		}
	}
	return nil
}

// ReindexOne reloads one resource from src and indexes it again. A resource
// that no longer exists in the source is removed from the index.
func (s *Service) ReindexOne(ctx context.Context, src resource.Source, resourceType, id string) (*IndexResult, error) {
	raw, err := src.GetResource(ctx, resourceType, id)
	if errors.Is(err, resource.ErrNotFound) {
		if derr := s.DeleteResource(ctx, resourceType, id); derr != nil {
			return nil, derr
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", resourceType, id, err)
	}
	return s.IndexResource(ctx, raw, id)
}

// Health compares the index output against the configured minimum of
// parameters per resource.
func (s *Service) Health(ctx context.Context) (*HealthReport, error) {
	stats, err := s.repo.Stats(ctx, s.Registry().Version(), s.Registry().ResourceTypes())
	if err != nil {
		return nil, err
	}
	report := &HealthReport{
		IndexStats:           *stats,
		RegistryVersion:      s.Registry().Version(),
		MinParamsPerResource: s.opts.MinParamsPerResource,
		Healthy:              true,
	}
	if stats.Resources > 0 {
		report.ParamsPerResource = float64(stats.TypeParams) / float64(stats.Resources)
		if report.ParamsPerResource < s.opts.MinParamsPerResource {
			report.Healthy = false
			report.Problems = append(report.Problems, fmt.Sprintf(
				"%.2f type-specific params per resource is below the minimum of %.2f", report.ParamsPerResource, s.opts.MinParamsPerResource))
		}
	}
	if stats.ZeroTypeParamResources > 0 {
		report.Healthy = false
		report.Problems = append(report.Problems, fmt.Sprintf(
			"%d resources of supported types have no type-specific params", stats.ZeroTypeParamResources))
	}
	if stats.StaleResources > 0 {
		report.Problems = append(report.Problems, fmt.Sprintf("%d resources were indexed with another registry version", stats.StaleResources))
	}
	if s.opts.Recorder != nil {
		s.opts.Recorder.ObserveHealth(report)
	}
	return report, nil
}

// Search returns the ids of resources of one type matching every query.
func (s *Service) Search(ctx context.Context, resourceType string, queries []fhir.ParamQuery, page pagination.Params) ([]string, int, error) {
	return s.repo.SearchResourceIDs(ctx, resourceType, queries, page)
}

// ParseQueries turns raw search parameters into parameter queries. Repeated
// parameters are ANDed.
func (s *Service) ParseQueries(resourceType string, params map[string][]string) ([]fhir.ParamQuery, error) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []fhir.ParamQuery
	for _, name := range names {
		for _, v := range params[name] {
			pq, err := s.Registry().ParseQuery(resourceType, name, v)
			if err != nil {
				return nil, err
			}
			out = append(out, pq)
		}
	}
	return out, nil
}

func (s *Service) CompartmentMembers(ctx context.Context, compartmentType, compartmentID, resourceType string) ([]fhir.CompartmentMembership, error) {
	return s.repo.CompartmentMembers(ctx, compartmentType, compartmentID, resourceType)
}

func (s *Service) OutgoingEdges(ctx context.Context, resourceType, resourceID string) ([]fhir.ReferenceEdge, error) {
	return s.repo.OutgoingEdges(ctx, resourceType, resourceID)
}

func (s *Service) IncomingEdges(ctx context.Context, resourceType, resourceID string) ([]fhir.ReferenceEdge, error) {
	return s.repo.IncomingEdges(ctx, resourceType, resourceID)
}

func (s *Service) Params(ctx context.Context, resourceType, resourceID string) ([]fhir.SearchParam, error) {
	return s.repo.ParamsFor(ctx, resourceType, resourceID)
}

// contentHash fingerprints the resource. Documents built from decoded maps
// have no raw bytes and are hashed from their canonical re-encoding.
func contentHash(doc *fhir.Document) string {
	raw := doc.Raw
	if len(raw) == 0 {
		raw, _ = json.Marshal(doc.Body)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// countTypeParams counts the params produced by type-specific rules.
func countTypeParams(registry *fhir.Registry, params []fhir.SearchParam) int {
	n := 0
	for _, p := range params {
		if !registry.IsUniversal(p.ParamName) {
			n++
		}
	}
	return n
}
