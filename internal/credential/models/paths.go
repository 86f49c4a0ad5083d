package models

import "strings"

// Lookup returns the value at a dotted path ("patientInfo.name").
func (s Subject) Lookup(path string) (any, bool) {
	var cur any = map[string]any(s)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Project returns a new Subject holding only the subject id and the listed
// paths. Paths absent from s are skipped. The result depends only on s and
// paths, never on their order.
func (s Subject) Project(paths []string) Subject {
	out := Subject{}
	if id, ok := s["id"]; ok {
		out["id"] = id
	}
	for _, path := range paths {
		v, ok := s.Lookup(path)
		if !ok {
			continue
		}
		parts := strings.Split(path, ".")
		cur := map[string]any(out)
		for _, part := range parts[:len(parts)-1] {
			next, ok := cur[part].(map[string]any)
			if !ok {
				next = map[string]any{}
				cur[part] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = clone(v)
	}
	return out
}

// Paths lists every leaf path of s except "id", in no particular order.
func (s Subject) Paths() []string {
	var out []string
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				walk(p, child)
				continue
			}
			out = append(out, p)
		}
	}
	rest := make(map[string]any, len(s))
	for k, v := range s {
		if k != "id" {
			rest[k] = v
		}
	}
	walk("", rest)
	return out
}

func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = clone(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = clone(val)
		}
		return s
	default:
		return v
	}
}
