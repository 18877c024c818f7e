package fhir

import (
	"context"
	"net/url"
	"strings"
)

// RefScheme is the addressing scheme a reference string was written in.
type RefScheme string

const (
	RefRelative  RefScheme = "relative"
	RefURN       RefScheme = "urn"
	RefAbsolute  RefScheme = "absolute"
	RefContained RefScheme = "contained"
)

// NormalizedRef is the parsed form of a reference string.
type NormalizedRef struct {
	Scheme RefScheme
	// TypeHint is empty for URN and bare-id references; the type is only
	// known after resolution.
	TypeHint string
	ID       string
	Version  string
	Original string
}

// Canonical returns "Type/id", or "" when the type is unknown.
func (n NormalizedRef) Canonical() string {
	if n.TypeHint == "" || n.ID == "" {
		return ""
	}
	return n.TypeHint + "/" + n.ID
}

// NormalizeReference parses a reference in any of the supported forms:
//
//	Patient/123
//	Patient/123/_history/2
//	urn:uuid:4f1c...
//	https://example.org/fhir/Patient/123
//	#contained-id
//	123 (bare id)
//
// It returns false when no id can be derived.
func NormalizeReference(ref string) (NormalizedRef, bool) {
	ref = strings.TrimSpace(ref)
	n := NormalizedRef{Original: ref}
	if ref == "" {
		return n, false
	}

	if strings.HasPrefix(ref, "#") {
		n.Scheme = RefContained
		n.ID = ref[1:]
		return n, n.ID != ""
	}

	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "urn:uuid:") || strings.HasPrefix(lower, "urn:oid:") {
		n.Scheme = RefURN
		n.ID = ref[strings.LastIndex(ref, ":")+1:]
		return n, n.ID != ""
	}

	if strings.Contains(ref, "://") {
		n.Scheme = RefAbsolute
		u, err := url.Parse(ref)
		if err != nil {
			return n, false
		}
		typ, id, version, ok := splitTypedPath(strings.Trim(u.Path, "/"), true)
		if !ok {
			return n, false
		}
		n.TypeHint, n.ID, n.Version = typ, id, version
		return n, true
	}

	n.Scheme = RefRelative
	if !strings.Contains(ref, "/") {
		n.ID = ref
		return n, true
	}
	typ, id, version, ok := splitTypedPath(ref, false)
	if !ok {
		return n, false
	}
	n.TypeHint, n.ID, n.Version = typ, id, version
	return n, true
}

// splitTypedPath extracts Type/id[/_history/v] from the tail of a path. When
// allowPrefix is set, leading segments (a server base) are ignored.
func splitTypedPath(path string, allowPrefix bool) (typ, id, version string, ok bool) {
	parts := strings.Split(path, "/")
	if len(parts) >= 4 && parts[len(parts)-2] == "_history" {
		version = parts[len(parts)-1]
		parts = parts[:len(parts)-2]
	}
	if len(parts) < 2 || (!allowPrefix && len(parts) != 2) {
		return "", "", "", false
	}
	typ, id = parts[len(parts)-2], parts[len(parts)-1]
	if !isResourceTypeName(typ) || id == "" {
		return "", "", "", false
	}
	return typ, id, version, true
}

func isResourceTypeName(s string) bool {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for _, c := range s {
		if !((c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')) {
			return false
		}
	}
	return true
}

// ReferencesMatch reports whether two reference strings denote the same
// logical resource regardless of addressing scheme. Two typed references
// with different types never match.
func ReferencesMatch(a, b string) bool {
	na, okA := NormalizeReference(a)
	nb, okB := NormalizeReference(b)
	if !okA || !okB {
		return false
	}
	if (na.Scheme == RefContained) != (nb.Scheme == RefContained) {
		return false
	}
	if na.ID != nb.ID {
		return false
	}
	if na.TypeHint != "" && nb.TypeHint != "" && na.TypeHint != nb.TypeHint {
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

// ResolvedTarget is the stored resource a reference points at.
type ResolvedTarget struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	LogicalID    string `json:"logical_id"`
}

// Canonical returns the "Type/id" form of the target's logical identity.
func (t *ResolvedTarget) Canonical() string {
	return t.ResourceType + "/" + t.LogicalID
}

// ResourceIndex maps logical identities to stored resources. Lookups return
// nil without error when nothing matches.
type ResourceIndex interface {
	LookupTyped(ctx context.Context, resourceType, logicalID string) (*ResolvedTarget, error)
	// LookupID finds a resource by logical id alone, as needed for URN
	// references. Ambiguous ids resolve to nil.
	LookupID(ctx context.Context, logicalID string) (*ResolvedTarget, error)
}

// Resolver resolves reference strings against a ResourceIndex.
type Resolver struct {
	index ResourceIndex
}

// NewResolver creates a resolver. A nil index resolves nothing.
func NewResolver(index ResourceIndex) *Resolver {
	return &Resolver{index: index}
}

// Resolve looks up the stored resource a reference points at. Unresolvable
// references return (nil, nil); only index failures are errors.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*ResolvedTarget, error) {
	n, ok := NormalizeReference(ref)
	if !ok {
		return nil, nil
	}
	return r.ResolveNormalized(ctx, n, "")
}

// ResolveNormalized resolves an already parsed reference. typeHint, usually
// the Reference.type element, narrows untyped lookups.
func (r *Resolver) ResolveNormalized(ctx context.Context, n NormalizedRef, typeHint string) (*ResolvedTarget, error) {
	if r == nil || r.index == nil || n.ID == "" || n.Scheme == RefContained {
		return nil, nil
	}
	if n.TypeHint != "" {
		return r.index.LookupTyped(ctx, n.TypeHint, n.ID)
	}
	if typeHint != "" {
		return r.index.LookupTyped(ctx, typeHint, n.ID)
	}
	return r.index.LookupID(ctx, n.ID)
}
