package searchindex

import (
	"time"

	"github.com/ehr/fhirindex/internal/platform/fhir"
)

// IndexedResource is the bookkeeping row kept for every indexed resource.
type IndexedResource struct {
	ResourceType    string    `json:"resource_type"`
	ResourceID      string    `json:"resource_id"`
	LogicalID       string    `json:"logical_id"`
	ContentHash     string    `json:"content_hash"`
	RegistryVersion string    `json:"registry_version"`
	ParamCount      int       `json:"param_count"`
	// TypeParamCount excludes the parameters every resource type shares.
	TypeParamCount int `json:"type_param_count"`
	// DanglingCount is the number of references left unresolved.
	DanglingCount int       `json:"dangling_count"`
	IndexedAt     time.Time `json:"indexed_at"`
}

// IndexRecords is the complete derived state of one resource. A repository
// replaces all of it at once.
type IndexRecords struct {
	Resource    IndexedResource
	Params      []fhir.SearchParam
	Memberships []fhir.CompartmentMembership
	Edges       []fhir.ReferenceEdge
	// Dangling is persisted only when dangling reference storage is enabled.
	Dangling []fhir.DanglingReference
}

// IndexResult summarizes the indexing of one resource.
type IndexResult struct {
	ResourceType     string     `json:"resource_type"`
	ResourceID       string     `json:"resource_id"`
	LogicalID        string     `json:"logical_id"`
	ParamCount       int        `json:"param_count"`
	TypeParamCount   int        `json:"type_param_count"`
	CompartmentCount int        `json:"compartment_count"`
	EdgeCount        int        `json:"edge_count"`
	DanglingCount    int        `json:"dangling_count"`
	Skipped          bool       `json:"skipped,omitempty"`
	State            IndexState `json:"state"`
}

// FailedResource identifies a resource a batch could not index.
type FailedResource struct {
	Ref    string `json:"ref"`
	Origin string `json:"origin,omitempty"`
	Error  string `json:"error"`
}

// BatchOptions tunes a bulk re-index.
type BatchOptions struct {
	Workers int `json:"workers"`
	// LiveResolution resolves references against the service's live index
	// instead of an identity index built from the source.
	LiveResolution bool `json:"live_resolution"`
	// SkipUnchanged leaves resources whose content and registry version
	// match the indexed row untouched.
	SkipUnchanged bool `json:"skip_unchanged"`
}

// BatchResult reports a bulk re-index. Indexed alone does not mean the run
// was useful: check ParamsCreated or Healthy.
type BatchResult struct {
	Total               int              `json:"total"`
	Indexed             int              `json:"indexed"`
	Skipped             int              `json:"skipped"`
	Failed              []FailedResource `json:"failed"`
	ParamsCreated       int              `json:"params_created"`
	TypeParamsCreated   int              `json:"type_params_created"`
	CompartmentsCreated int              `json:"compartments_created"`
	EdgesCreated        int              `json:"edges_created"`
	DanglingRefs        int              `json:"dangling_refs"`
	Cancelled           bool             `json:"cancelled"`
	Duration            time.Duration    `json:"duration"`
}

// ParamsPerResource is the mean number of type-specific parameters per
// indexed resource. Universal parameters such as _id are left out: they are
// produced even when type-specific extraction yields nothing.
func (r *BatchResult) ParamsPerResource() float64 {
	if r.Indexed == 0 {
		return 0
	}
	return float64(r.TypeParamsCreated) / float64(r.Indexed)
}

// Healthy reports whether the run produced a plausible amount of output. A
// run that indexed nothing is healthy only when there was nothing to index.
func (r *BatchResult) Healthy(minParamsPerResource float64) bool {
	if r.Indexed == 0 {
		return r.Total == r.Skipped && len(r.Failed) == 0
	}
	return r.ParamsPerResource() >= minParamsPerResource
}

// IndexStats are the raw counts kept by a repository.
type IndexStats struct {
	Resources   int `json:"resources"`
	Params      int `json:"params"`
	TypeParams  int `json:"type_params"`
	Memberships int `json:"memberships"`
	Edges       int `json:"edges"`
	Dangling    int `json:"dangling"`
	// ZeroTypeParamResources are resources of a supported type that produced
	// no type-specific parameter.
	ZeroTypeParamResources int `json:"zero_type_param_resources"`
	// StaleResources were indexed under another registry version.
	StaleResources int `json:"stale_resources"`
}

// HealthReport is the index health summary served to operators.
type HealthReport struct {
	IndexStats
	RegistryVersion      string   `json:"registry_version"`
	ParamsPerResource    float64  `json:"params_per_resource"`
	MinParamsPerResource float64  `json:"min_params_per_resource"`
	Healthy              bool     `json:"healthy"`
	Problems             []string `json:"problems,omitempty"`
}
