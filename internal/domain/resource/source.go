package resource

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a source has no resource for the key.
var ErrNotFound = errors.New("resource not found")

// Record is one raw resource read from a source. StorageID is empty when the
// source has no identity separate from the resource's logical id. Origin
// locates the record for error reports (e.g. "export.ndjson:12").
type Record struct {
	ResourceType string
	StorageID    string
	Raw          []byte
	Origin       string
}

// Identity is the addressing triple of a stored resource.
type Identity struct {
	ResourceType string
	StorageID    string
	LogicalID    string
}

// Source is the read side of the resource store the index is derived from.
type Source interface {
	GetResource(ctx context.Context, resourceType, id string) ([]byte, error)
	// Iterate calls fn for every resource. Iteration stops at the first
	// error returned by fn or when ctx is done.
	Iterate(ctx context.Context, fn func(Record) error) error
}

// IdentityLister is implemented by sources that can enumerate identities
// without loading resource bodies.
type IdentityLister interface {
	IterateIdentities(ctx context.Context, fn func(Identity) error) error
}

// Finder looks up stored identities by logical id.
type Finder interface {
	FindTyped(ctx context.Context, resourceType, logicalID string) (*Identity, error)
	FindByLogicalID(ctx context.Context, logicalID string) ([]Identity, error)
}
