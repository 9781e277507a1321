package wrappers

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/chainsec-adk/pkg/workspace"
)

// WorkspaceStatsWrapper implements the Tool interface for summarizing a workspace
type WorkspaceStatsWrapper struct {
	Store            *workspace.Store
	DefaultWorkspace string
}

func (w *WorkspaceStatsWrapper) Name() string {
	return "WorkspaceStats"
}

func (w *WorkspaceStatsWrapper) Description() string {
	return "Reports contract, vulnerability and report counts for a workspace, per chain. Without a workspace id, lists the existing workspaces."
}

func (w *WorkspaceStatsWrapper) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"workspace": map[string]interface{}{
				"type":        "string",
				"description": "Workspace id",
			},
		},
	}
}

func (w *WorkspaceStatsWrapper) Execute(ctx context.Context, args map[string]interface{}, progress func(string)) (string, error) {
	if w.Store == nil {
		return "Error: workspace store not initialized.", nil
	}

	id := stringArg(args, "workspace")
	if id == "" {
		id = w.DefaultWorkspace
	}
	if id == "" {
		ids, err := w.Store.List()
		if err != nil {
			return fmt.Sprintf("Error listing workspaces: %v", err), nil
		}
		if len(ids) == 0 {
			return "No workspaces found.", nil
		}
		return fmt.Sprintf("Workspaces:\n- %s", strings.Join(ids, "\n- ")), nil
	}

	stats, err := w.Store.Stats(id)
	if err != nil {
		return fmt.Sprintf("Error reading workspace %s: %v", id, err), nil
	}
	if stats == nil {
		return fmt.Sprintf("Workspace %s does not exist.", id), nil
	}
	return FormatStats(id, stats), nil
}

// FormatStats renders workspace statistics as plain text.
func FormatStats(id string, s *workspace.Stats) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Workspace %s\n", id))
	sb.WriteString(fmt.Sprintf("Chains: %d (%d active)  Contracts: %d  Reports: %d\n", s.Chains, s.ActiveChains, s.Contracts, s.Reports))
	sb.WriteString(fmt.Sprintf("Vulnerabilities: %d current, %d recorded across runs\n", s.TotalVulnerabilities, s.ChainVulnerabilities))
	for _, sev := range []string{"critical", "high", "medium", "low"} {
		if n := s.BySeverity[sev]; n > 0 {
			sb.WriteString(fmt.Sprintf("  %s: %d\n", sev, n))
		}
	}
	for _, chain := range sortedKeys(s.PerChain) {
		cs := s.PerChain[chain]
		if cs.Contracts == 0 && cs.Vulnerabilities == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("- %s: %d contracts, %d vulnerabilities, %d reports\n", chain, cs.Contracts, cs.Vulnerabilities, cs.Reports))
	}
	return sb.String()
}
