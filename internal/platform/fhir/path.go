package fhir

import (
	"sort"
	"strconv"
	"strings"
)

// pathValue is one element reached by navigating a rule path, together with
// the concrete array-aware path it was found at (e.g. "performer[1].actor").
type pathValue struct {
	Path  string
	Value interface{}
}

// resolvePath walks a dotted path from the resource root. Arrays fan out at
// every level; absent elements yield nothing. A segment ending in "[x]"
// matches every choice-type variant present, e.g. "effective[x]" matches
// effectiveDateTime and effectivePeriod.
func resolvePath(body map[string]interface{}, path string) []pathValue {
	if body == nil || path == "" {
		return nil
	}
	current := []pathValue{{Path: "", Value: body}}
	for _, seg := range strings.Split(path, ".") {
		var next []pathValue
		for _, pv := range current {
			m, ok := pv.Value.(map[string]interface{})
			if !ok {
				continue
			}
			for _, key := range matchKeys(m, seg) {
				next = appendChild(next, joinPath(pv.Path, key), m[key])
			}
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}

func matchKeys(m map[string]interface{}, seg string) []string {
	if !strings.HasSuffix(seg, "[x]") {
		if _, ok := m[seg]; ok {
			return []string{seg}
		}
		return nil
	}
	prefix := strings.TrimSuffix(seg, "[x]")
	var keys []string
	for k := range m {
		if len(k) > len(prefix) && strings.HasPrefix(k, prefix) {
			c := k[len(prefix)]
			if c >= 'A' && c <= 'Z' {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func appendChild(out []pathValue, path string, v interface{}) []pathValue {
	switch val := v.(type) {
	case nil:
		return out
	case []interface{}:
		for i, item := range val {
			if item == nil {
				continue
			}
			out = append(out, pathValue{Path: path + "[" + strconv.Itoa(i) + "]", Value: item})
		}
		return out
	default:
		return append(out, pathValue{Path: path, Value: v})
	}
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
