package fhir

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

// Document is a raw FHIR resource handed to the indexer. The body is kept as
// the generic JSON map produced by the decoder; the indexer never mutates it.
type Document struct {
	ResourceType string
	LogicalID    string
	// StorageID is the identity the storage layer uses for this resource.
	// Defaults to LogicalID when the source has no separate identity.
	StorageID string
	Body      map[string]interface{}
	Raw       []byte
}

// Key returns the "Type/id" form of the document's logical identity.
func (d *Document) Key() string {
	return d.ResourceType + "/" + d.LogicalID
}

// ExtractionError reports a document that cannot be indexed at all: invalid
// JSON, or a missing resourceType or id. Field-level problems never produce it.
type ExtractionError struct {
	ResourceType string
	ResourceID   string
	Reason       string
	Err          error
}

func (e *ExtractionError) Error() string {
	ref := "resource"
	if e.ResourceType != "" || e.ResourceID != "" {
		ref = e.ResourceType + "/" + e.ResourceID
	}
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", ref, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", ref, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ParseDocument decodes a resource payload. Numbers are kept as JSON numbers
// so quantities do not lose precision.
func ParseDocument(raw []byte, storageID string) (*Document, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, &ExtractionError{Reason: "empty document"}
	}
	if trimmed[0] != '{' {
		return nil, &ExtractionError{Reason: "document is not a JSON object"}
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil {
		return nil, &ExtractionError{Reason: "invalid JSON", Err: err}
	}
	doc, err := NewDocument(body, storageID)
	if err != nil {
		return nil, err
	}
	doc.Raw = trimmed
	return doc, nil
}

// NewDocument wraps an already decoded resource map.
func NewDocument(body map[string]interface{}, storageID string) (*Document, error) {
	if body == nil {
		return nil, &ExtractionError{Reason: "document is empty"}
	}
	rt, ok := body["resourceType"].(string)
	if !ok || rt == "" {
		return nil, &ExtractionError{Reason: "missing resourceType"}
	}
	id, ok := body["id"].(string)
	if !ok || id == "" {
		return nil, &ExtractionError{ResourceType: rt, Reason: "missing id"}
	}
	if storageID == "" {
		storageID = id
	}
	return &Document{
		ResourceType: rt,
		LogicalID:    id,
		StorageID:    storageID,
		Body:         body,
	}, nil
}

// OperationOutcome represents a FHIR OperationOutcome for errors.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics,omitempty"`
	Expression  []string `json:"expression,omitempty"`
}

func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    severity,
				Code:        code,
				Diagnostics: diagnostics,
			},
		},
	}
}

func ErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome("error", "processing", diagnostics)
}

func NotFoundOutcome(resourceType, id string) *OperationOutcome {
	return NewOperationOutcome("error", "not-found", resourceType+"/"+id+" not found")
}

// InvalidOutcome reports a structurally invalid resource or request value.
func InvalidOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome("error", "invalid", diagnostics)
}

func InternalErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome("fatal", "exception", diagnostics)
}
