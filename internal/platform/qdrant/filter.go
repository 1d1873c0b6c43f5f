package qdrant

import (
	"sort"
	"strings"
)

// Filter restricts a search to points whose payload fields equal the given values.
// Exclude drops points by vector id.
type Filter struct {
	Equals  map[string]any
	Exclude []string
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

// build renders the filter as a qdrant filter object scoped to namespace.
func (f Filter) build(namespace string) map[string]any {
	must := []any{matchCondition(payloadNamespaceKey, namespace)}

	keys := make([]string, 0, len(f.Equals))
	for k := range f.Equals {
		if strings.TrimSpace(k) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		must = append(must, matchCondition(k, f.Equals[k]))
	}

	out := map[string]any{"must": must}
	if len(f.Exclude) > 0 {
		ids := make([]any, 0, len(f.Exclude))
		for _, id := range f.Exclude {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			out["must_not"] = []any{map[string]any{
				"key":   payloadVectorIDKey,
				"match": map[string]any{"any": ids},
			}}
		}
	}
	return out
}
