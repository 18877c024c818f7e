package searchindex

import (
	"context"

	"github.com/ehr/fhirindex/internal/platform/fhir"
	"github.com/ehr/fhirindex/pkg/pagination"
)

// Repository stores the derived search index.
type Repository interface {
	// ReplaceResource atomically swaps every derived record of one resource.
	ReplaceResource(ctx context.Context, rec *IndexRecords) error
	// DeleteResource removes every derived record of one resource.
	DeleteResource(ctx context.Context, resourceType, resourceID string) error
	GetIndexedResource(ctx context.Context, resourceType, resourceID string) (*IndexedResource, error)
	ParamsFor(ctx context.Context, resourceType, resourceID string) ([]fhir.SearchParam, error)

	// SearchResourceIDs returns the ids of resources matching every query,
	// in id order, and the total match count.
	SearchResourceIDs(ctx context.Context, resourceType string, queries []fhir.ParamQuery, page pagination.Params) ([]string, int, error)
	// CompartmentMembers lists the resources in a compartment, optionally
	// restricted to one resource type.
	CompartmentMembers(ctx context.Context, compartmentType, compartmentID, resourceType string) ([]fhir.CompartmentMembership, error)
	OutgoingEdges(ctx context.Context, resourceType, resourceID string) ([]fhir.ReferenceEdge, error)
	IncomingEdges(ctx context.Context, resourceType, resourceID string) ([]fhir.ReferenceEdge, error)

	// Stats counts zero-output resources only among supportedTypes.
	Stats(ctx context.Context, registryVersion string, supportedTypes []string) (*IndexStats, error)
}
