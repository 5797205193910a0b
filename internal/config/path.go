package config

import "strings"

// splitPath separates a dotted path's leading section name from the
// remaining segments within that section's document, e.g.
// "climate.setpoint" -> ("climate", []string{"setpoint"}).
func splitPath(path string) (section string, rest []string) {
	parts := strings.Split(path, ".")
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}

// getPath walks doc by segments, returning the leaf value.
func getPath(doc map[string]any, segments []string) (any, bool) {
	if len(segments) == 0 {
		return doc, true
	}
	cur := any(doc)
	for i, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		if i == len(segments)-1 {
			return v, true
		}
		cur = v
	}
	return nil, false
}

// setPath walks doc by segments, creating intermediate maps as needed,
// and assigns value at the leaf.
func setPath(doc map[string]any, segments []string, value any) {
	if len(segments) == 0 {
		return
	}
	cur := doc
	for i, seg := range segments {
		if i == len(segments)-1 {
			cur[seg] = value
			return
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
}

// cloneDoc deep-copies a JSON-shaped document (maps, slices, scalars).
func cloneDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneDoc(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return x
	}
}
