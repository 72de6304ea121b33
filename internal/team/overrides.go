package team

import (
	"sort"
	"strings"
)

// BuildOverrideIndex resolves raw prompt overrides, keyed by worker id or by
// a loosely written worker name, into an exact workerID -> prompt map. It is
// meant to run once when a team is configured, so lookups at run time are
// plain map reads.
func BuildOverrideIndex(workers []Worker, raw map[string]string) map[string]string {
	index := make(map[string]string, len(raw))
	if len(raw) == 0 {
		return index
	}

	// Exact id matches take precedence over fuzzy ones.
	pending := make(map[string]string, len(raw))
	for key, text := range raw {
		if strings.TrimSpace(text) == "" {
			continue
		}
		matched := false
		for _, w := range workers {
			if w.ID == key {
				index[w.ID] = text
				matched = true
				break
			}
		}
		if !matched {
			pending[key] = text
		}
	}

	for _, w := range workers {
		if _, ok := index[w.ID]; ok {
			continue
		}
		candidates := []string{normalizeKey(w.ID), normalizeKey(w.Name), normalizeKey(w.RoleType)}
		if key, ok := matchKey(pending, candidates); ok {
			index[w.ID] = pending[key]
		}
	}
	return index
}

func matchKey(pending map[string]string, candidates []string) (string, bool) {
	keys := sortedKeys(pending)
	for _, key := range keys {
		nk := normalizeKey(key)
		for _, c := range candidates {
			if c != "" && nk == c {
				return key, true
			}
		}
	}
	for _, key := range keys {
		nk := normalizeKey(key)
		if nk == "" {
			continue
		}
		for _, c := range candidates {
			if c != "" && (strings.Contains(c, nk) || strings.Contains(nk, c)) {
				return key, true
			}
		}
	}
	return "", false
}

// normalizeKey lower-cases s, drops separators and a leading "creator" prefix.
func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ', '.', '/', ':':
			return -1
		}
		return r
	}, s)
	return strings.TrimPrefix(s, "creator")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
