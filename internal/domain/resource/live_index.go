package resource

import (
	"context"

	"github.com/ehr/fhirindex/internal/platform/fhir"
)

// LiveIndex resolves references by querying the resource store on demand.
// Single-resource indexing uses it where no batch identity index exists.
type LiveIndex struct {
	finder Finder
}

func NewLiveIndex(f Finder) *LiveIndex {
	return &LiveIndex{finder: f}
}

func (l *LiveIndex) LookupTyped(ctx context.Context, resourceType, logicalID string) (*fhir.ResolvedTarget, error) {
	id, err := l.finder.FindTyped(ctx, resourceType, logicalID)
	if err != nil || id == nil {
		return nil, err
	}
	return id.target(), nil
}

// LookupID resolves an untyped id only when exactly one stored resource has it.
func (l *LiveIndex) LookupID(ctx context.Context, logicalID string) (*fhir.ResolvedTarget, error) {
	ids, err := l.finder.FindByLogicalID(ctx, logicalID)
	if err != nil || len(ids) != 1 {
		return nil, err
	}
	return ids[0].target(), nil
}

func (id Identity) target() *fhir.ResolvedTarget {
	storage := id.StorageID
	if storage == "" {
		storage = id.LogicalID
	}
	return &fhir.ResolvedTarget{ResourceType: id.ResourceType, ResourceID: storage, LogicalID: id.LogicalID}
}
