package wrappers

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/chainsec-adk/pkg/audit"
	"github.com/user/chainsec-adk/pkg/engine"
	"github.com/user/chainsec-adk/pkg/report"
)

// AuditWrapper implements the Tool interface for running a full audit
type AuditWrapper struct {
	Runner *audit.Runner
	// DefaultWorkspace is used when the model does not name one.
	DefaultWorkspace string
}

func (a *AuditWrapper) Name() string {
	return "RunAudit"
}

func (a *AuditWrapper) Description() string {
	return "Runs every configured analyzer on a contract source, merges their findings by consensus and stores the result in a workspace."
}

func (a *AuditWrapper) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"target": map[string]interface{}{
				"type":        "string",
				"description": "Path to the Solidity file or project directory",
			},
			"address": map[string]interface{}{
				"type":        "string",
				"description": "Deployed contract address (defaults to the target path)",
			},
			"chain": map[string]interface{}{
				"type":        "string",
				"description": "Chain the contract is deployed on, e.g. ethereum or bnb",
			},
			"workspace": map[string]interface{}{
				"type":        "string",
				"description": "Workspace id to record results in",
			},
			"tools": map[string]interface{}{
				"type":        "string",
				"description": "Comma separated analyzers to run (default: all configured)",
			},
		},
		"required": []string{"target"},
	}
}

func (a *AuditWrapper) Execute(ctx context.Context, args map[string]interface{}, progress func(string)) (string, error) {
	if a.Runner == nil {
		return "Error: audit runner not initialized.", nil
	}

	req := audit.Request{
		Target:    stringArg(args, "target"),
		Address:   stringArg(args, "address"),
		Chain:     stringArg(args, "chain"),
		Workspace: stringArg(args, "workspace"),
	}
	if req.Target == "" {
		req.Target = looseArg(args)
	}
	if req.Target == "" {
		return "Error: target argument is required. Please specify a Solidity file or directory.", nil
	}
	if req.Address == "" {
		req.Address = req.Target
	}
	if req.Chain == "" {
		req.Chain = "ethereum"
	}
	if req.Workspace == "" {
		req.Workspace = a.DefaultWorkspace
	}
	if tools := stringArg(args, "tools"); tools != "" {
		for _, t := range strings.Split(tools, ",") {
			if t = strings.TrimSpace(t); t != "" {
				req.Tools = append(req.Tools, t)
			}
		}
	}

	if progress != nil {
		progress(fmt.Sprintf("Auditing %s on %s...", req.Target, req.Chain))
	}

	out, err := a.Runner.Run(ctx, req)
	if err != nil {
		return fmt.Sprintf("Audit failed: %v", err), nil
	}

	var sb strings.Builder
	counts := report.CountBySeverity(out.Analysis.Findings)
	sb.WriteString(fmt.Sprintf("Audit of %s stored in workspace %s (report: %s)\n", req.Address, req.Workspace, out.Report.Path))
	sb.WriteString(fmt.Sprintf("Findings: %d (critical %d, high %d, medium %d, low %d), %d filtered as noise\n",
		len(out.Analysis.Findings), counts[engine.SeverityCritical], counts[engine.SeverityHigh], counts[engine.SeverityMedium], counts[engine.SeverityLow], out.Analysis.Filtered))
	for _, name := range sortedKeys(out.ToolErrors) {
		sb.WriteString(fmt.Sprintf("Analyzer %s failed: %v\n", name, out.ToolErrors[name]))
	}
	for _, f := range out.Analysis.Findings {
		sb.WriteString(fmt.Sprintf("- [%s/%s] %s at %s:%d (%s)\n",
			strings.ToUpper(f.Severity.String()), f.Tier, f.Title, f.File, f.LineStart, strings.Join(f.Tools, ", ")))
	}
	return sb.String(), nil
}
