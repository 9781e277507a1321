package adk

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/user/chainsec-adk/pkg/analyzers"
	"github.com/user/chainsec-adk/pkg/engine"
)

const defaultMaxSourceBytes = 200_000

// Reasoner asks a language model to review contract sources and reports
// its answers as findings from the llm source.
type Reasoner struct {
	LLM LLMProvider
	// MaxSourceBytes caps how much source is sent in one request.
	MaxSourceBytes int
}

func NewReasoner(llm LLMProvider) *Reasoner {
	return &Reasoner{LLM: llm, MaxSourceBytes: defaultMaxSourceBytes}
}

func (r *Reasoner) Name() string { return engine.SourceLLM }

// Analyze reviews the Solidity files under target.
func (r *Reasoner) Analyze(ctx context.Context, target string) ([]engine.Finding, error) {
	files, err := collectSources(target)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no solidity sources under %s", target)
	}

	prompt, truncated := buildSourcePrompt(files, r.MaxSourceBytes)
	if truncated {
		log.Warn().Str("target", target).Int("max_bytes", r.MaxSourceBytes).Msg("Source truncated for model review")
	}

	history := []Message{
		{Role: "system", Content: reasonerPrompt},
		{Role: "user", Content: prompt},
	}
	text, _, err := r.LLM.GenerateResponse(ctx, history, nil)
	if err != nil {
		return nil, fmt.Errorf("llm review: %w", err)
	}
	return ParseReasonerOutput(text)
}

type sourceFile struct {
	Path string
	Body string
}

func collectSources(target string) ([]sourceFile, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		data, err := os.ReadFile(target)
		if err != nil {
			return nil, err
		}
		return []sourceFile{{Path: filepath.Base(target), Body: string(data)}}, nil
	}

	var files []sourceFile
	err = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case "node_modules", "lib", ".git", "out", "cache", "artifacts":
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".sol") {
			return nil
		}
		// Paths are relative to the target, the same form the audit runner
		// gives every other analyzer's findings.
		rel, err := filepath.Rel(target, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if engine.IsTestPath(rel) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, sourceFile{Path: rel, Body: string(data)})
		return nil
	})
	return files, err
}

// buildSourcePrompt numbers every line so the model can cite locations.
func buildSourcePrompt(files []sourceFile, maxBytes int) (string, bool) {
	var sb strings.Builder
	for _, f := range files {
		header := fmt.Sprintf("// File: %s\n", f.Path)
		if maxBytes > 0 && sb.Len()+len(header) > maxBytes {
			return sb.String(), true
		}
		sb.WriteString(header)
		for i, line := range strings.Split(f.Body, "\n") {
			numbered := fmt.Sprintf("%4d| %s\n", i+1, line)
			if maxBytes > 0 && sb.Len()+len(numbered) > maxBytes {
				return sb.String(), true
			}
			sb.WriteString(numbered)
		}
		sb.WriteString("\n")
	}
	return sb.String(), false
}

type reasonerFinding struct {
	File           string `json:"file"`
	Line           int    `json:"line"`
	LineEnd        int    `json:"line_end"`
	Class          string `json:"class"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

// ParseReasonerOutput extracts the JSON array from a model reply. Entries
// with an unknown severity are skipped.
func ParseReasonerOutput(text string) ([]engine.Finding, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("llm review: no JSON array in response")
	}

	var raw []reasonerFinding
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("llm review: decode findings: %w", err)
	}

	findings := make([]engine.Finding, 0, len(raw))
	for _, rf := range raw {
		sev, err := engine.ParseSeverity(rf.Severity)
		if err != nil {
			log.Debug().Str("severity", rf.Severity).Msg("Skipping model finding with unknown severity")
			continue
		}
		findings = append(findings, engine.Finding{
			Source:         engine.SourceLLM,
			File:           rf.File,
			LineStart:      rf.Line,
			LineEnd:        rf.LineEnd,
			Class:          analyzers.CanonicalClass(rf.Class),
			Severity:       sev,
			Description:    strings.TrimSpace(rf.Description),
			Recommendation: strings.TrimSpace(rf.Recommendation),
		})
	}
	return findings, nil
}
