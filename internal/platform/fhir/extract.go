package fhir

import (
	"context"
	"fmt"
)

// Extractor turns a document into search parameter records using the rules
// of a Registry. Field-level shape mismatches are skipped; only resource
// index failures surface as errors.
type Extractor struct {
	registry *Registry
	resolver *Resolver
}

// NewExtractor creates an extractor. A nil resolver leaves every reference
// unresolved.
func NewExtractor(registry *Registry, resolver *Resolver) *Extractor {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if resolver == nil {
		resolver = NewResolver(nil)
	}
	return &Extractor{registry: registry, resolver: resolver}
}

// WithResolver returns a copy of the extractor that resolves through r. Bulk
// runs use it to bind their own identity index.
func (e *Extractor) WithResolver(r *Resolver) *Extractor {
	return NewExtractor(e.registry, r)
}

// Registry returns the rule set the extractor applies.
func (e *Extractor) Registry() *Registry { return e.registry }

// Extract derives every search parameter of doc. Unresolved references are
// reported in Extraction.Dangling.
func (e *Extractor) Extract(ctx context.Context, doc *Document) (*Extraction, error) {
	if doc == nil || doc.Body == nil {
		return nil, &ExtractionError{Reason: "document is empty"}
	}
	ex := &Extraction{
		ResourceType: doc.ResourceType,
		ResourceID:   doc.StorageID,
		LogicalID:    doc.LogicalID,
	}

	rules := append(e.registry.Universal(), e.registry.Rules(doc.ResourceType)...)
	for _, rule := range rules {
		for _, path := range rule.Paths {
			for _, pv := range resolvePath(doc.Body, path) {
				if err := e.apply(ctx, ex, rule, pv); err != nil {
					return nil, fmt.Errorf("extract %s param %s: %w", doc.Key(), rule.ParamName, err)
				}
			}
		}
	}
	return ex, nil
}

func (e *Extractor) apply(ctx context.Context, ex *Extraction, rule ExtractionRule, pv pathValue) error {
	base := SearchParam{
		ResourceID:   ex.ResourceID,
		ResourceType: ex.ResourceType,
		ParamName:    rule.ParamName,
		ParamType:    rule.Type,
		SourcePath:   pv.Path,
	}

	switch rule.Type {
	case SearchParamToken:
		for _, t := range tokensOf(pv.Value, rule.SystemFilter) {
			p := base
			p.TokenSystem, p.TokenCode = t.System, t.Code
			ex.Params = append(ex.Params, p)
		}

	case SearchParamString:
		for _, s := range stringsOf(pv.Value) {
			p := base
			p.String = s
			ex.Params = append(ex.Params, p)
		}

	case SearchParamDate:
		for _, r := range datesOf(pv.Value) {
			p := base
			p.DateStart, p.DateEnd = r.Start, r.End
			ex.Params = append(ex.Params, p)
		}

	case SearchParamQuantity:
		if q, ok := quantityOf(pv.Value); ok {
			p := base
			v := q.Value
			p.QuantityValue, p.QuantityUnit, p.QuantitySystem = &v, q.Unit, q.System
			ex.Params = append(ex.Params, p)
		}

	case SearchParamNumber:
		if f, ok := toFloat(pv.Value); ok {
			p := base
			p.Number = &f
			ex.Params = append(ex.Params, p)
		}

	case SearchParamURI:
		if s, ok := pv.Value.(string); ok && s != "" {
			p := base
			p.URI = s
			ex.Params = append(ex.Params, p)
		}

	case SearchParamReference:
		return e.applyReference(ctx, ex, rule, base, pv)
	}
	return nil
}

func (e *Extractor) applyReference(ctx context.Context, ex *Extraction, rule ExtractionRule, base SearchParam, pv pathValue) error {
	literal, typeElement := referenceOf(pv.Value)
	n, ok := NormalizeReference(literal)
	if !ok || n.Scheme == RefContained {
		return nil
	}

	typeHint := n.TypeHint
	if typeHint == "" {
		typeHint = typeElement
	}
	if !rule.AllowsTarget(typeHint) {
		return nil
	}

	target, err := e.resolver.ResolveNormalized(ctx, n, typeElement)
	if err != nil {
		return err
	}
	if target != nil && !rule.AllowsTarget(target.ResourceType) {
		return nil
	}

	p := base
	p.Reference = n.Original
	p.ReferenceID = n.ID
	switch {
	case target != nil:
		p.ReferenceCanonical = target.Canonical()
		p.ReferenceID = target.LogicalID
		p.Target = target
	case typeHint != "":
		p.ReferenceCanonical = typeHint + "/" + n.ID
	}
	ex.Params = append(ex.Params, p)

	if target == nil {
		ex.addDangling(DanglingReference{
			SourceResourceType: ex.ResourceType,
			SourceResourceID:   ex.ResourceID,
			SourcePath:         pv.Path,
			TargetURL:          n.Original,
		})
	}
	return nil
}

// addDangling records an unresolved reference once per (path, url); several
// parameters commonly share one element.
func (ex *Extraction) addDangling(d DanglingReference) {
	for _, existing := range ex.Dangling {
		if existing.SourcePath == d.SourcePath && existing.TargetURL == d.TargetURL {
			return
		}
	}
	ex.Dangling = append(ex.Dangling, d)
}
