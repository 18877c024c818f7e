package searchindex

import (
	"context"
	"sort"
	"sync"

	"github.com/ehr/fhirindex/internal/platform/fhir"
	"github.com/ehr/fhirindex/pkg/pagination"
)

type resourceKey struct{ resourceType, resourceID string }

// MemoryRepo is an in-process Repository. It backs dry runs over export
// files and the service tests. Queries are evaluated with the same matching
// rules as the SQL builder.
type MemoryRepo struct {
	mu        sync.RWMutex
	resources map[resourceKey]*IndexRecords
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{resources: make(map[resourceKey]*IndexRecords)}
}

func (m *MemoryRepo) ReplaceResource(_ context.Context, rec *IndexRecords) error {
	cp := *rec
	cp.Params = append([]fhir.SearchParam(nil), rec.Params...)
	cp.Memberships = append([]fhir.CompartmentMembership(nil), rec.Memberships...)
	cp.Edges = append([]fhir.ReferenceEdge(nil), rec.Edges...)
	cp.Dangling = append([]fhir.DanglingReference(nil), rec.Dangling...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[resourceKey{rec.Resource.ResourceType, rec.Resource.ResourceID}] = &cp
	return nil
}

func (m *MemoryRepo) DeleteResource(_ context.Context, resourceType, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.resources, resourceKey{resourceType, resourceID})
	return nil
}

func (m *MemoryRepo) GetIndexedResource(_ context.Context, resourceType, resourceID string) (*IndexedResource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.resources[resourceKey{resourceType, resourceID}]
	if !ok {
		return nil, ErrNotIndexed
	}
	r := rec.Resource
	return &r, nil
}

func (m *MemoryRepo) ParamsFor(_ context.Context, resourceType, resourceID string) ([]fhir.SearchParam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.resources[resourceKey{resourceType, resourceID}]
	if !ok {
		return nil, ErrNotIndexed
	}
	return append([]fhir.SearchParam(nil), rec.Params...), nil
}

func (m *MemoryRepo) SearchResourceIDs(_ context.Context, resourceType string, queries []fhir.ParamQuery, page pagination.Params) ([]string, int, error) {
	m.mu.RLock()
	var ids []string
	for k, rec := range m.resources {
		if k.resourceType == resourceType && fhir.MatchParams(rec.Params, queries) {
			ids = append(ids, k.resourceID)
		}
	}
	m.mu.RUnlock()

	sort.Strings(ids)
	total := len(ids)
	if page.Offset >= total {
		return []string{}, total, nil
	}
	end := total
	if page.Limit > 0 && page.Offset+page.Limit < total {
		end = page.Offset + page.Limit
	}
	return ids[page.Offset:end], total, nil
}

func (m *MemoryRepo) CompartmentMembers(_ context.Context, compartmentType, compartmentID, resourceType string) ([]fhir.CompartmentMembership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []fhir.CompartmentMembership
	for _, rec := range m.resources {
		for _, cm := range rec.Memberships {
			if cm.CompartmentType != compartmentType || cm.CompartmentID != compartmentID {
				continue
			}
			if resourceType != "" && cm.ResourceType != resourceType {
				continue
			}
			out = append(out, cm)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ResourceType != out[j].ResourceType {
			return out[i].ResourceType < out[j].ResourceType
		}
		return out[i].ResourceID < out[j].ResourceID
	})
	return out, nil
}

func (m *MemoryRepo) OutgoingEdges(_ context.Context, resourceType, resourceID string) ([]fhir.ReferenceEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.resources[resourceKey{resourceType, resourceID}]
	if !ok {
		return nil, nil
	}
	return append([]fhir.ReferenceEdge(nil), rec.Edges...), nil
}

func (m *MemoryRepo) IncomingEdges(_ context.Context, resourceType, resourceID string) ([]fhir.ReferenceEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []fhir.ReferenceEdge
	for _, rec := range m.resources {
		for _, e := range rec.Edges {
			if e.TargetResourceType == resourceType && e.TargetResourceID == resourceID {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceResourceType != out[j].SourceResourceType {
			return out[i].SourceResourceType < out[j].SourceResourceType
		}
		if out[i].SourceResourceID != out[j].SourceResourceID {
			return out[i].SourceResourceID < out[j].SourceResourceID
		}
		return out[i].SourcePath < out[j].SourcePath
	})
	return out, nil
}

func (m *MemoryRepo) Stats(_ context.Context, registryVersion string, supportedTypes []string) (*IndexStats, error) {
	supported := make(map[string]bool, len(supportedTypes))
	for _, rt := range supportedTypes {
		supported[rt] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	s := &IndexStats{Resources: len(m.resources)}
	for _, rec := range m.resources {
		s.Params += len(rec.Params)
		s.TypeParams += rec.Resource.TypeParamCount
		s.Memberships += len(rec.Memberships)
		s.Edges += len(rec.Edges)
		s.Dangling += len(rec.Dangling)
		if rec.Resource.TypeParamCount == 0 && supported[rec.Resource.ResourceType] {
			s.ZeroTypeParamResources++
		}
		if rec.Resource.RegistryVersion != registryVersion {
			s.StaleResources++
		}
	}
	return s, nil
}
