package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// UnifiedGraph collects raw findings per source during a session and
// merges them on demand.
type UnifiedGraph struct {
	engine   *Engine
	mu       sync.RWMutex
	bySource map[string][]Finding
	last     *Analysis
}

// NewUnifiedGraph creates a new graph instance bound to e.
func NewUnifiedGraph(e *Engine) *UnifiedGraph {
	return &UnifiedGraph{
		engine:   e,
		bySource: make(map[string][]Finding),
	}
}

// AddFindings replaces the findings recorded for source with the latest
// run's output. Exact duplicates within the run are collapsed.
func (g *UnifiedGraph) AddFindings(source string, findings []Finding) {
	source = normalizeSource(source)

	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[Finding]bool, len(findings))
	deduped := make([]Finding, 0, len(findings))
	for _, f := range findings {
		f.Source = source
		probe := f
		probe.RawConfidence = nil
		if seen[probe] {
			continue
		}
		seen[probe] = true
		deduped = append(deduped, f)
	}
	g.bySource[source] = deduped
	g.last = nil
}

// Sources lists the sources that have reported so far.
func (g *UnifiedGraph) Sources() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.bySource))
	for s := range g.bySource {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Raw returns a copy of the findings grouped by source.
func (g *UnifiedGraph) Raw() map[string][]Finding {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string][]Finding, len(g.bySource))
	for s, fs := range g.bySource {
		out[s] = append([]Finding(nil), fs...)
	}
	return out
}

// Analyze merges everything collected so far. The result is cached until
// the next AddFindings.
func (g *UnifiedGraph) Analyze() Analysis {
	g.mu.RLock()
	if g.last != nil {
		a := *g.last
		g.mu.RUnlock()
		return a
	}
	g.mu.RUnlock()

	a := g.engine.Analyze(g.Raw())

	g.mu.Lock()
	g.last = &a
	g.mu.Unlock()
	return a
}

// Reset forgets all collected findings.
func (g *UnifiedGraph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bySource = make(map[string][]Finding)
	g.last = nil
}

// GetReport returns a text summary of the merged findings
func (g *UnifiedGraph) GetReport() string {
	a := g.Analyze()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Consensus Findings (%d kept, %d filtered, %d groups):\n", len(a.Findings), a.Filtered, a.Stats.Total))
	sb.WriteString(fmt.Sprintf("Agreed: %d  Conflicts: %d  Overrides: %d  Dropped: %d\n", a.Stats.Agreed, a.Stats.Conflicts, a.Stats.Overrides, a.Stats.Dropped))
	sb.WriteString("--------------------------------------------------\n")

	for _, f := range a.Findings {
		sb.WriteString(fmt.Sprintf("[%s/%s %.0f] %s (%s)\n", strings.ToUpper(f.Severity.String()), f.Tier, f.Score, f.Title, strings.Join(f.Tools, ", ")))
		sb.WriteString(fmt.Sprintf("  Location: %s:%d\n", f.File, f.LineStart))
		sb.WriteString(fmt.Sprintf("  Detail: %s\n", f.Description))
		if f.Recommendation != "" {
			sb.WriteString(fmt.Sprintf("  Fix: %s\n", f.Recommendation))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
