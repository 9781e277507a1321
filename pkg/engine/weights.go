package engine

import (
	"sort"
	"strings"
)

// Source identifiers understood by the default weight table.
const (
	SourceSlither = "slither"
	SourceMythril = "mythril"
	SourceEchidna = "echidna"
	SourceSemgrep = "semgrep"
	SourceAderyn  = "aderyn"
	SourceLLM     = "llm"
)

// ToolWeights maps a source identifier to its trust weight.
// A ToolWeights value is never mutated after construction.
type ToolWeights struct {
	weights map[string]float64
}

// NewToolWeights copies w into an immutable table. Names are matched
// case-insensitively; negative weights are treated as zero.
func NewToolWeights(w map[string]float64) ToolWeights {
	copied := make(map[string]float64, len(w))
	for name, weight := range w {
		if weight < 0 {
			weight = 0
		}
		copied[normalizeSource(name)] = weight
	}
	return ToolWeights{weights: copied}
}

// DefaultToolWeights returns the built-in table. The llm weight is larger
// than the static analyzers combined, so a reasoning verdict settles
// conflicts between them.
func DefaultToolWeights() ToolWeights {
	return NewToolWeights(map[string]float64{
		SourceSlither: 0.35,
		SourceMythril: 0.30,
		SourceEchidna: 0.25,
		SourceSemgrep: 0.20,
		SourceAderyn:  0.20,
		SourceLLM:     1.50,
	})
}

// Weight returns the configured weight, or 0 for unknown sources.
func (t ToolWeights) Weight(source string) float64 {
	return t.weights[normalizeSource(source)]
}

// Known reports whether source has an entry in the table.
func (t ToolWeights) Known(source string) bool {
	_, ok := t.weights[normalizeSource(source)]
	return ok
}

// Highest returns the source with the greatest positive weight among
// sources. Ties go to the lexically smaller name. ok is false when no
// source carries a positive weight.
func (t ToolWeights) Highest(sources []string) (best string, ok bool) {
	var bestWeight float64
	for _, s := range sources {
		w := t.Weight(s)
		if w <= 0 {
			continue
		}
		if !ok || w > bestWeight || (w == bestWeight && s < best) {
			best, bestWeight, ok = s, w, true
		}
	}
	return best, ok
}

// Sum adds up the weights of sources.
func (t ToolWeights) Sum(sources []string) float64 {
	var total float64
	for _, s := range sources {
		total += t.Weight(s)
	}
	return total
}

// Sources lists the configured source names in sorted order.
func (t ToolWeights) Sources() []string {
	names := make([]string, 0, len(t.weights))
	for name := range t.weights {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map returns a copy of the table.
func (t ToolWeights) Map() map[string]float64 {
	out := make(map[string]float64, len(t.weights))
	for k, v := range t.weights {
		out[k] = v
	}
	return out
}

func normalizeSource(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
