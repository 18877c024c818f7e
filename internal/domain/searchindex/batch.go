package searchindex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ehr/fhirindex/internal/domain/resource"
	"github.com/ehr/fhirindex/internal/platform/fhir"
)

const defaultWorkers = 4

// ReindexAll rebuilds the index of every resource in src. The first pass
// collects the identity of every resource so references between resources of
// the same batch resolve whatever order they are indexed in; targets outside
// the batch fall back to the service's own index. The second pass
// indexes each resource independently: one failure never affects another.
//
// Cancelling ctx stops the batch between resources; the partial result is
// returned together with ctx's error.
func (s *Service) ReindexAll(ctx context.Context, src resource.Source, opts BatchOptions) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{Failed: []FailedResource{}}

	index := s.index
	if !opts.LiveResolution {
		ids, err := buildIdentityIndex(ctx, src)
		if err != nil {
			result.Duration = time.Since(start)
			if ctx.Err() != nil {
				result.Cancelled = true
				return result, ctx.Err()
			}
			return result, fmt.Errorf("identity pass: %w", err)
		}
		index = fhir.ChainIndex{ids, s.index}
		s.logger.Debug().Int("resources", ids.Len()).Msg("identity index built")
	}
	extractor := s.extractor.WithResolver(fhir.NewResolver(index))

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(workers)

	iterErr := src.Iterate(ctx, func(rec resource.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		mu.Lock()
		result.Total++
		mu.Unlock()

		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				result.Total--
				mu.Unlock()
				return nil
			}
			res, ref, err := s.indexRecord(ctx, extractor, rec, opts.SkipUnchanged)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, FailedResource{Ref: ref, Origin: rec.Origin, Error: err.Error()})
				s.logger.Warn().Err(err).Str("ref", ref).Str("origin", rec.Origin).Msg("resource not indexed")
				return nil
			}
			if res.Skipped {
				result.Skipped++
				return nil
			}
			result.Indexed++
			result.ParamsCreated += res.ParamCount
			result.TypeParamsCreated += res.TypeParamCount
			result.CompartmentsCreated += res.CompartmentCount
			result.EdgesCreated += res.EdgeCount
			result.DanglingRefs += res.DanglingCount
			return nil
		})
		return nil
	})
	_ = g.Wait()
	result.Duration = time.Since(start)

	if s.opts.Recorder != nil {
		s.opts.Recorder.ObserveBatch(result)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.Cancelled = true
		s.logBatch(result, opts)
		return result, ctxErr
	}
	s.logBatch(result, opts)
	if iterErr != nil {
		return result, fmt.Errorf("iterate source: %w", iterErr)
	}
	return result, nil
}

// indexRecord parses and indexes one source record. The returned ref names
// the resource for failure reports, falling back to the record origin when
// the payload could not be parsed.
func (s *Service) indexRecord(ctx context.Context, ex *fhir.Extractor, rec resource.Record, skipUnchanged bool) (*IndexResult, string, error) {
	ref := rec.Origin
	doc, err := fhir.ParseDocument(rec.Raw, rec.StorageID)
	if err != nil {
		return nil, ref, err
	}
	ref = doc.Key()
	res, err := s.indexDocument(ctx, ex, doc, skipUnchanged)
	return res, ref, err
}

func (s *Service) logBatch(result *BatchResult, opts BatchOptions) {
	evt := s.logger.Info()
	if !result.Healthy(s.opts.MinParamsPerResource) {
		evt = s.logger.Warn()
	}
	evt.
		Int("total", result.Total).
		Int("indexed", result.Indexed).
		Int("skipped", result.Skipped).
		Int("failed", len(result.Failed)).
		Int("params_created", result.ParamsCreated).
		Int("type_params_created", result.TypeParamsCreated).
		Float64("params_per_resource", result.ParamsPerResource()).
		Int("edges_created", result.EdgesCreated).
		Int("dangling_refs", result.DanglingRefs).
		Bool("cancelled", result.Cancelled).
		Bool("live_resolution", opts.LiveResolution).
		Dur("duration", result.Duration).
		Msg("reindex finished")
}

// buildIdentityIndex reads the identity of every resource in src. Sources
// that can list identities directly avoid loading resource bodies.
func buildIdentityIndex(ctx context.Context, src resource.Source) (*fhir.IdentityIndex, error) {
	ix := fhir.NewIdentityIndex()
	if lister, ok := src.(resource.IdentityLister); ok {
		err := lister.IterateIdentities(ctx, func(id resource.Identity) error {
			ix.Add(id.ResourceType, id.LogicalID, id.StorageID)
			return nil
		})
		return ix, err
	}
	err := src.Iterate(ctx, func(rec resource.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		// unparseable records are reported by the indexing pass
		if doc, err := fhir.ParseDocument(rec.Raw, rec.StorageID); err == nil {
			ix.AddDocument(doc)
		}
		return nil
	})
	return ix, err
}
