package analyzers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/chainsec-adk/pkg/engine"
)

// Mythril runs the Mythril symbolic executor.
type Mythril struct {
	Command Command
}

func NewMythril(cmd Command) *Mythril {
	if cmd.Binary == "" {
		cmd.Binary = "myth"
	}
	return &Mythril{Command: cmd}
}

func (m *Mythril) Name() string { return engine.SourceMythril }

func (m *Mythril) Analyze(ctx context.Context, target string) ([]engine.Finding, error) {
	out, err := m.Command.run(ctx, "", "analyze", target, "-o", "json")
	if err != nil {
		return nil, err
	}
	return ParseMythril(out)
}

type mythrilOutput struct {
	Success bool           `json:"success"`
	Error   *string        `json:"error"`
	Issues  []mythrilIssue `json:"issues"`
}

type mythrilIssue struct {
	SWCID       string `json:"swc-id"`
	Title       string `json:"title"`
	Severity    string `json:"severity"`
	Filename    string `json:"filename"`
	LineNo      int    `json:"lineno"`
	Function    string `json:"function"`
	Description string `json:"description"`
}

// ParseMythril normalizes `myth analyze -o json` output.
func ParseMythril(data []byte) ([]engine.Finding, error) {
	var out mythrilOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse mythril output: %w", err)
	}
	if out.Error != nil && *out.Error != "" {
		return nil, fmt.Errorf("mythril failed: %s", *out.Error)
	}

	findings := make([]engine.Finding, 0, len(out.Issues))
	for _, i := range out.Issues {
		sev, err := engine.ParseSeverity(i.Severity)
		if err != nil {
			continue
		}
		desc := strings.TrimSpace(i.Description)
		if i.Title != "" {
			desc = strings.TrimSpace(i.Title + ". " + desc)
		}
		findings = append(findings, engine.Finding{
			Source:      engine.SourceMythril,
			File:        i.Filename,
			LineStart:   i.LineNo,
			Class:       swcClass(i.SWCID),
			Severity:    sev,
			Description: desc,
		})
	}
	return findings, nil
}
