package wrappers

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/chainsec-adk/pkg/engine"
)

// GraphViewerWrapper implements the Tool interface for viewing the merged findings of the session
type GraphViewerWrapper struct {
	Graph *engine.UnifiedGraph
}

func (g *GraphViewerWrapper) Name() string {
	return "ShowConsensusFindings"
}

func (g *GraphViewerWrapper) Description() string {
	return "Displays the consensus findings collected in this session with severity, confidence tier, score and the tools that agree."
}

func (g *GraphViewerWrapper) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"show_filtered": map[string]interface{}{
				"type":        "boolean",
				"description": "Also list findings dropped as likely false positives",
			},
		},
	}
}

func (g *GraphViewerWrapper) Execute(ctx context.Context, args map[string]interface{}, progress func(string)) (string, error) {
	if g.Graph == nil {
		return "Error: finding graph not initialized.", nil
	}
	if len(g.Graph.Sources()) == 0 {
		return "No findings yet. Run an audit first.", nil
	}

	out := g.Graph.GetReport()
	if stringArg(args, "show_filtered") != "true" {
		return out, nil
	}

	a := g.Graph.Analyze()
	var sb strings.Builder
	sb.WriteString(out)
	sb.WriteString("Filtered as likely false positives:\n")
	for _, f := range a.Candidates {
		reason, dropped := engine.FalsePositiveReason(f)
		if !dropped {
			continue
		}
		sb.WriteString(fmt.Sprintf("  [-] %s at %s:%d (%s)\n", f.Title, f.File, f.LineStart, reason))
	}
	return sb.String(), nil
}
