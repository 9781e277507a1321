package analyzers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/chainsec-adk/pkg/engine"
)

// Semgrep runs semgrep with a Solidity rule pack.
type Semgrep struct {
	Command Command
	Config  string
}

func NewSemgrep(cmd Command) *Semgrep {
	if cmd.Binary == "" {
		cmd.Binary = "semgrep"
	}
	return &Semgrep{Command: cmd, Config: "p/smart-contracts"}
}

func (s *Semgrep) Name() string { return engine.SourceSemgrep }

func (s *Semgrep) Analyze(ctx context.Context, target string) ([]engine.Finding, error) {
	out, err := s.Command.run(ctx, "", "--json", "--quiet", "--config", s.Config, target)
	if err != nil {
		return nil, err
	}
	return ParseSemgrep(out)
}

type semgrepOutput struct {
	Results []struct {
		CheckID string `json:"check_id"`
		Path    string `json:"path"`
		Start   struct {
			Line int `json:"line"`
		} `json:"start"`
		End struct {
			Line int `json:"line"`
		} `json:"end"`
		Extra struct {
			Message  string `json:"message"`
			Severity string `json:"severity"`
			Fix      string `json:"fix"`
			Metadata struct {
				Category   string `json:"category"`
				Impact     string `json:"impact"`
				Confidence string `json:"confidence"`
			} `json:"metadata"`
		} `json:"extra"`
	} `json:"results"`
}

// semgrep reports ERROR/WARNING/INFO; rule metadata may carry a finer impact.
var semgrepSeverity = map[string]engine.Severity{
	"error":   engine.SeverityHigh,
	"warning": engine.SeverityMedium,
	"info":    engine.SeverityLow,
}

// ParseSemgrep normalizes `semgrep --json` output.
func ParseSemgrep(data []byte) ([]engine.Finding, error) {
	var out semgrepOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse semgrep output: %w", err)
	}

	findings := make([]engine.Finding, 0, len(out.Results))
	for _, r := range out.Results {
		sev, err := engine.ParseSeverity(r.Extra.Metadata.Impact)
		if err != nil {
			var ok bool
			if sev, ok = semgrepSeverity[strings.ToLower(r.Extra.Severity)]; !ok {
				continue
			}
		}
		rule := r.CheckID
		if i := strings.LastIndex(rule, "."); i >= 0 {
			rule = rule[i+1:]
		}
		end := r.End.Line
		if end == r.Start.Line {
			end = 0
		}
		findings = append(findings, engine.Finding{
			Source:         engine.SourceSemgrep,
			File:           r.Path,
			LineStart:      r.Start.Line,
			LineEnd:        end,
			Class:          keywordClass(rule),
			Severity:       sev,
			Description:    strings.TrimSpace(r.Extra.Message),
			Recommendation: strings.TrimSpace(r.Extra.Fix),
		})
	}
	return findings, nil
}
