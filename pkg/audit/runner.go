// Package audit drives one contract audit end to end: it runs the
// analyzers concurrently, merges their output through the consensus
// engine and records the result in a workspace.
package audit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/user/chainsec-adk/pkg/analyzers"
	"github.com/user/chainsec-adk/pkg/engine"
	"github.com/user/chainsec-adk/pkg/report"
	"github.com/user/chainsec-adk/pkg/workspace"
)

// ErrNoAnalyzers is returned when a request selects no configured analyzer.
var ErrNoAnalyzers = errors.New("no analyzers selected")

// Runner wires the analyzers to the engine and the workspace store.
type Runner struct {
	Analyzers   []analyzers.Analyzer
	Engine      *engine.Engine
	Store       *workspace.Store
	Remediation *engine.RemediationEngine
	// Graph, when set, receives each run's raw findings so that session
	// tools can inspect or snapshot them.
	Graph *engine.UnifiedGraph
	// MaxParallel bounds concurrent analyzers; zero runs all at once.
	MaxParallel int
	Now         func() time.Time
}

// Request identifies what to audit and where to store it.
type Request struct {
	Workspace string
	Chain     string
	Address   string
	// Target is the source file or directory handed to the analyzers.
	Target   string
	Metadata map[string]string
	// Tools restricts the run to the named analyzers. Empty means all.
	Tools []string
}

// Outcome is the result of one Run.
type Outcome struct {
	Raw             map[string][]engine.Finding
	Analysis        engine.Analysis
	ToolErrors      map[string]error
	Vulnerabilities []workspace.Vulnerability
	Report          workspace.ReportRef
}

func (r Request) validate() error {
	switch {
	case r.Workspace == "":
		return fmt.Errorf("workspace is required")
	case r.Chain == "":
		return fmt.Errorf("chain is required")
	case r.Address == "":
		return fmt.Errorf("address is required")
	case r.Target == "":
		return fmt.Errorf("target is required")
	}
	return nil
}

// Run audits one contract. Individual analyzer failures are logged and
// reported in Outcome.ToolErrors; they do not fail the run.
func (r *Runner) Run(ctx context.Context, req Request) (*Outcome, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	selected, err := r.selectAnalyzers(req.Tools)
	if err != nil {
		return nil, err
	}

	if err := r.Store.AddContract(req.Workspace, req.Address, req.Chain, req.Metadata); err != nil {
		return nil, fmt.Errorf("register contract: %w", err)
	}

	logger := log.With().Str("workspace", req.Workspace).Str("chain", req.Chain).Str("address", req.Address).Logger()
	logger.Info().Int("analyzers", len(selected)).Str("target", req.Target).Msg("Starting audit")

	raw, toolErrs := r.runAnalyzers(ctx, selected, req.Target)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	relativize(raw, ProjectRoot(req.Target))

	if r.Graph != nil {
		for source, findings := range raw {
			r.Graph.AddFindings(source, findings)
		}
	}

	analysis := r.Engine.Analyze(raw)
	if r.Remediation != nil {
		analysis.Findings = r.Remediation.Apply(analysis.Findings)
	}

	vulns := ToVulnerabilities(analysis.Findings)
	if err := r.Store.AddVulnerabilities(req.Workspace, req.Address, req.Chain, vulns); err != nil {
		return nil, fmt.Errorf("store vulnerabilities: %w", err)
	}

	body := report.Markdown(report.Input{
		Workspace:   req.Workspace,
		Chain:       req.Chain,
		Address:     req.Address,
		Target:      req.Target,
		GeneratedAt: r.now(),
		Analysis:    analysis,
		ToolErrors:  toolErrs,
	})
	ref, err := r.Store.AddReport(req.Workspace, req.Address, req.Chain, body)
	if err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}

	logger.Info().
		Int("findings", len(analysis.Findings)).
		Int("filtered", analysis.Filtered).
		Int("conflicts", analysis.Stats.Conflicts).
		Int("tool_errors", len(toolErrs)).
		Str("report", ref.Path).
		Msg("Audit complete")

	stored, err := r.Store.Vulnerabilities(req.Workspace, req.Address, req.Chain)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Raw:             raw,
		Analysis:        analysis,
		ToolErrors:      toolErrs,
		Vulnerabilities: stored,
		Report:          ref,
	}, nil
}

func (r *Runner) selectAnalyzers(tools []string) ([]analyzers.Analyzer, error) {
	if len(tools) == 0 {
		if len(r.Analyzers) == 0 {
			return nil, ErrNoAnalyzers
		}
		return r.Analyzers, nil
	}
	byName := make(map[string]analyzers.Analyzer, len(r.Analyzers))
	for _, a := range r.Analyzers {
		byName[a.Name()] = a
	}
	var out []analyzers.Analyzer
	for _, name := range tools {
		a, ok := byName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("analyzer %q is not configured", name)
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, ErrNoAnalyzers
	}
	return out, nil
}

func (r *Runner) runAnalyzers(ctx context.Context, selected []analyzers.Analyzer, target string) (map[string][]engine.Finding, map[string]error) {
	var (
		mu       sync.Mutex
		raw      = make(map[string][]engine.Finding, len(selected))
		toolErrs = make(map[string]error)
	)

	var g errgroup.Group
	if r.MaxParallel > 0 {
		g.SetLimit(r.MaxParallel)
	}
	for _, a := range selected {
		a := a
		g.Go(func() error {
			start := time.Now()
			findings, err := a.Analyze(ctx, target)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Str("source", a.Name()).Err(err).Msg("Analyzer failed")
				toolErrs[a.Name()] = err
				raw[a.Name()] = nil
				return nil
			}
			log.Debug().Str("source", a.Name()).Int("findings", len(findings)).Dur("duration", time.Since(start)).Msg("Analyzer done")
			raw[a.Name()] = findings
			return nil
		})
	}
	_ = g.Wait()
	return raw, toolErrs
}

// ProjectRoot is the directory findings are reported against: the target
// itself, or the directory holding a single-file target.
func ProjectRoot(target string) string {
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		return filepath.Dir(target)
	}
	return filepath.Clean(target)
}

// relativize rewrites finding paths that lie inside root relative to it.
// Analyzers disagree on whether they report paths from the working
// directory, from the target or as absolute paths; after this step they
// share one spelling, and directories above the project no longer reach
// the test-path filter.
func relativize(raw map[string][]engine.Finding, root string) {
	for source, findings := range raw {
		if len(findings) == 0 {
			continue
		}
		out := make([]engine.Finding, len(findings))
		for i, f := range findings {
			f.File = RelativeTo(root, f.File)
			out[i] = f
		}
		raw[source] = out
	}
}

// RelativeTo returns file relative to root, in slash form, when file lies
// inside root. Other paths are returned unchanged.
func RelativeTo(root, file string) string {
	norm := engine.NormalizePath(file)
	if root == "" || root == "." || norm == "" {
		return file
	}
	f := filepath.FromSlash(norm)
	if filepath.IsAbs(f) != filepath.IsAbs(root) {
		absFile, err := filepath.Abs(f)
		if err != nil {
			return file
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return file
		}
		f, root = absFile, absRoot
	}
	rel, err := filepath.Rel(root, f)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return file
	}
	return filepath.ToSlash(rel)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// ToVulnerabilities converts merged findings into workspace records.
func ToVulnerabilities(findings []engine.ConsensusFinding) []workspace.Vulnerability {
	out := make([]workspace.Vulnerability, 0, len(findings))
	for _, f := range findings {
		out = append(out, workspace.Vulnerability{
			ID:             f.ID,
			Title:          f.Title,
			Description:    f.Description,
			Severity:       f.Severity.String(),
			Confidence:     f.Tier.String(),
			Score:          f.Score,
			Tools:          append([]string(nil), f.Tools...),
			File:           f.File,
			Line:           f.LineStart,
			Class:          f.Class,
			Recommendation: f.Recommendation,
		})
	}
	return out
}
