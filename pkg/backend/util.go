package backend

import (
	"sort"
	"strings"
)

func sortedFieldNames[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
