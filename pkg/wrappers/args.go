// Package wrappers exposes the audit operations as agent tools.
package wrappers

import (
	"fmt"
	"sort"
	"strings"
)

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}

// looseArg handles models that pass a single free-form "args" string
// instead of structured parameters.
func looseArg(args map[string]interface{}) string {
	val := stringArg(args, "args")
	for _, p := range strings.Fields(val) {
		if !strings.HasPrefix(p, "-") {
			return p
		}
	}
	return val
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
