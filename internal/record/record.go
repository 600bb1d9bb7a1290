// Package record reads the dataset's gzip-compressed record files. Each line
// holds one dictionary literal; records come back loosely typed, with
// accessors for the identifiers and relation mappings the loader keys on.
package record

import (
	"fmt"
	"sort"
)

// Record is one decoded line. Nested dictionaries are map[string]any, lists
// and tuples are []any, integers int64 and floats float64.
type Record map[string]any

// Relation is one entry of a book's "related" mapping.
type Relation struct {
	Kind    string
	Targets []string
}

// Get returns the raw value of key, nil when absent.
func (r Record) Get(key string) any {
	return r[key]
}

// String returns key as a string. Absent or null values yield "".
func (r Record) String(key string) (string, error) {
	switch v := r[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("field %q: expected string, got %T", key, v)
	}
}

// Relations returns the kind -> target ids mapping stored under key, ordered
// by kind. Absent, null and NaN values yield no relations.
func (r Record) Relations(key string) ([]Relation, error) {
	raw := r[key]
	if raw == nil || IsNaN(raw) {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("field %q: expected mapping, got %T", key, raw)
	}

	kinds := make([]string, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	out := make([]Relation, 0, len(kinds))
	for _, kind := range kinds {
		list, ok := m[kind].([]any)
		if !ok {
			return nil, fmt.Errorf("field %q.%s: expected list, got %T", key, kind, m[kind])
		}
		targets := make([]string, 0, len(list))
		for i, item := range list {
			id, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("field %q.%s[%d]: expected string, got %T", key, kind, i, item)
			}
			targets = append(targets, id)
		}
		out = append(out, Relation{Kind: kind, Targets: targets})
	}
	return out, nil
}

// CountTargets returns the number of target ids across relations.
func CountTargets(relations []Relation) int {
	n := 0
	for _, rel := range relations {
		n += len(rel.Targets)
	}
	return n
}
