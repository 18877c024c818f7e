package fhir

import (
	"context"
	"sync"
)

// IdentityIndex is an in-memory ResourceIndex built for the duration of one
// bulk operation. It is safe for concurrent use.
type IdentityIndex struct {
	mu    sync.RWMutex
	typed map[string]ResolvedTarget
	byID  map[string][]ResolvedTarget
}

func NewIdentityIndex() *IdentityIndex {
	return &IdentityIndex{
		typed: make(map[string]ResolvedTarget),
		byID:  make(map[string][]ResolvedTarget),
	}
}

// Add registers a stored resource. Re-adding the same type and logical id
// replaces the earlier entry.
func (ix *IdentityIndex) Add(resourceType, logicalID, storageID string) {
	if storageID == "" {
		storageID = logicalID
	}
	t := ResolvedTarget{ResourceType: resourceType, ResourceID: storageID, LogicalID: logicalID}
	key := resourceType + "/" + logicalID

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, exists := ix.typed[key]; exists {
		entries := ix.byID[logicalID]
		for i := range entries {
			if entries[i].ResourceType == resourceType {
				entries[i] = t
			}
		}
	} else {
		ix.byID[logicalID] = append(ix.byID[logicalID], t)
	}
	ix.typed[key] = t
}

// AddDocument registers a parsed document.
func (ix *IdentityIndex) AddDocument(doc *Document) {
	ix.Add(doc.ResourceType, doc.LogicalID, doc.StorageID)
}

// Len returns the number of registered resources.
func (ix *IdentityIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.typed)
}

func (ix *IdentityIndex) LookupTyped(_ context.Context, resourceType, logicalID string) (*ResolvedTarget, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	t, ok := ix.typed[resourceType+"/"+logicalID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (ix *IdentityIndex) LookupID(_ context.Context, logicalID string) (*ResolvedTarget, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	entries := ix.byID[logicalID]
	if len(entries) != 1 {
		return nil, nil
	}
	t := entries[0]
	return &t, nil
}

// ChainIndex consults each index in order and returns the first hit.
type ChainIndex []ResourceIndex

func (c ChainIndex) LookupTyped(ctx context.Context, resourceType, logicalID string) (*ResolvedTarget, error) {
	for _, ix := range c {
		if ix == nil {
			continue
		}
		t, err := ix.LookupTyped(ctx, resourceType, logicalID)
		if err != nil || t != nil {
			return t, err
		}
	}
	return nil, nil
}

func (c ChainIndex) LookupID(ctx context.Context, logicalID string) (*ResolvedTarget, error) {
	for _, ix := range c {
		if ix == nil {
			continue
		}
		t, err := ix.LookupID(ctx, logicalID)
		if err != nil || t != nil {
			return t, err
		}
	}
	return nil, nil
}
