package resource

import (
	"context"
	"errors"
	"testing"

	"github.com/ehr/fhirindex/internal/platform/fhir"
)

type fakeFinder struct {
	ids []Identity
	err error
}

func (f *fakeFinder) FindTyped(_ context.Context, resourceType, logicalID string) (*Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, id := range f.ids {
		if id.ResourceType == resourceType && id.LogicalID == logicalID {
			id := id
			return &id, nil
		}
	}
	return nil, nil
}

func (f *fakeFinder) FindByLogicalID(_ context.Context, logicalID string) ([]Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Identity
	for _, id := range f.ids {
		if id.LogicalID == logicalID {
			out = append(out, id)
		}
	}
	return out, nil
}

func TestLiveIndex_ResolvesBothSchemes(t *testing.T) {
	finder := &fakeFinder{ids: []Identity{
		{ResourceType: "Patient", StorageID: "row-1", LogicalID: "P1"},
		{ResourceType: "Patient", LogicalID: "P2"},
		{ResourceType: "Observation", StorageID: "row-3", LogicalID: "P2"},
	}}
	resolver := fhir.NewResolver(NewLiveIndex(finder))
	ctx := context.Background()

	tests := []struct {
		ref     string
		wantNil bool
		want    fhir.ResolvedTarget
	}{
		{"Patient/P1", false, fhir.ResolvedTarget{ResourceType: "Patient", ResourceID: "row-1", LogicalID: "P1"}},
		{"urn:uuid:P1", false, fhir.ResolvedTarget{ResourceType: "Patient", ResourceID: "row-1", LogicalID: "P1"}},
		{"Patient/P2", false, fhir.ResolvedTarget{ResourceType: "Patient", ResourceID: "P2", LogicalID: "P2"}},
		{"urn:uuid:P2", true, fhir.ResolvedTarget{}},
		{"Patient/none", true, fhir.ResolvedTarget{}},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := resolver.Resolve(ctx, tt.ref)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("got %+v, want nil", got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLiveIndex_PropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	ix := NewLiveIndex(&fakeFinder{err: boom})
	if _, err := ix.LookupTyped(context.Background(), "Patient", "P1"); !errors.Is(err, boom) {
		t.Errorf("LookupTyped err = %v", err)
	}
	if _, err := ix.LookupID(context.Background(), "P1"); !errors.Is(err, boom) {
		t.Errorf("LookupID err = %v", err)
	}
}
