package fhir

// BuildEdges returns one edge per distinct (source path, target) among the
// resolved reference parameters. Several parameters often read the same
// element (e.g. Condition "subject" and "patient"), so edges are keyed on the
// element path rather than the parameter name.
func BuildEdges(ex *Extraction) []ReferenceEdge {
	if ex == nil {
		return nil
	}
	type key struct{ path, typ, id string }
	seen := make(map[key]bool)
	var out []ReferenceEdge
	for _, p := range ex.Params {
		if p.ParamType != SearchParamReference || p.Target == nil {
			continue
		}
		k := key{p.SourcePath, p.Target.ResourceType, p.Target.ResourceID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, ReferenceEdge{
			SourceResourceType: ex.ResourceType,
			SourceResourceID:   ex.ResourceID,
			SourcePath:         p.SourcePath,
			TargetResourceType: p.Target.ResourceType,
			TargetResourceID:   p.Target.ResourceID,
			TargetURL:          p.Reference,
		})
	}
	return out
}
