// Package report renders audit results as Markdown documents.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/user/chainsec-adk/pkg/engine"
)

// Input is everything one report covers.
type Input struct {
	Workspace   string
	Chain       string
	Address     string
	Target      string
	GeneratedAt time.Time
	Analysis    engine.Analysis
	// ToolErrors maps an analyzer name to the error it failed with.
	ToolErrors map[string]error
}

// Markdown renders in as a Markdown report.
func Markdown(in Input) string {
	var sb strings.Builder
	a := in.Analysis

	fmt.Fprintf(&sb, "# Security Audit: %s\n\n", in.Address)
	fmt.Fprintf(&sb, "- Workspace: `%s`\n", in.Workspace)
	fmt.Fprintf(&sb, "- Chain: %s\n", in.Chain)
	if in.Target != "" {
		fmt.Fprintf(&sb, "- Target: `%s`\n", in.Target)
	}
	if !in.GeneratedAt.IsZero() {
		fmt.Fprintf(&sb, "- Generated: %s\n", in.GeneratedAt.UTC().Format(time.RFC3339))
	}
	sb.WriteString("\n## Summary\n\n")
	sb.WriteString("| Severity | Findings |\n|---|---|\n")
	counts := CountBySeverity(a.Findings)
	for sev := engine.SeverityCritical; sev >= engine.SeverityLow; sev-- {
		fmt.Fprintf(&sb, "| %s | %d |\n", sev, counts[sev])
	}
	fmt.Fprintf(&sb, "\n%d groups merged: %d agreed, %d conflicts, %d overrides, %d dropped as malformed, %d filtered as likely false positives.\n",
		a.Stats.Total, a.Stats.Agreed, a.Stats.Conflicts, a.Stats.Overrides, a.Stats.Dropped, a.Filtered)

	if len(in.ToolErrors) > 0 {
		sb.WriteString("\n## Analyzer Errors\n\n")
		names := make([]string, 0, len(in.ToolErrors))
		for name := range in.ToolErrors {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "- **%s**: %v\n", name, in.ToolErrors[name])
		}
	}

	sb.WriteString("\n## Findings\n")
	if len(a.Findings) == 0 {
		sb.WriteString("\nNo findings.\n")
		return sb.String()
	}
	for i, f := range a.Findings {
		fmt.Fprintf(&sb, "\n### %d. %s\n\n", i+1, f.Title)
		fmt.Fprintf(&sb, "| Severity | Confidence | Score | Tools | Location |\n|---|---|---|---|---|\n")
		fmt.Fprintf(&sb, "| %s | %s | %.0f | %s | `%s` |\n\n",
			strings.ToUpper(f.Severity.String()), f.Tier, f.Score, strings.Join(f.Tools, ", "), location(f))
		sb.WriteString(f.Description)
		sb.WriteString("\n")
		if f.Resolution == engine.ResolutionOverride || f.Resolution == engine.ResolutionUnresolved {
			fmt.Fprintf(&sb, "\n> Sources disagreed on this finding (%s).\n", f.Resolution)
		}
		if f.Recommendation != "" {
			sb.WriteString("\n**Recommendation:**\n\n")
			sb.WriteString(f.Recommendation)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// CountBySeverity tallies findings per severity level.
func CountBySeverity(findings []engine.ConsensusFinding) map[engine.Severity]int {
	out := make(map[engine.Severity]int, 4)
	for _, f := range findings {
		out[f.Severity]++
	}
	return out
}

func location(f engine.ConsensusFinding) string {
	if f.LineEnd > f.LineStart {
		return fmt.Sprintf("%s:%d-%d", f.File, f.LineStart, f.LineEnd)
	}
	return fmt.Sprintf("%s:%d", f.File, f.LineStart)
}
