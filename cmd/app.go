package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/user/chainsec-adk/pkg/adk"
	"github.com/user/chainsec-adk/pkg/analyzers"
	"github.com/user/chainsec-adk/pkg/audit"
	"github.com/user/chainsec-adk/pkg/config"
	"github.com/user/chainsec-adk/pkg/engine"
	"github.com/user/chainsec-adk/pkg/workspace"
)

// app holds the components shared by the commands.
type app struct {
	cfg         *config.Config
	store       *workspace.Store
	engine      *engine.Engine
	remediation *engine.RemediationEngine
	llm         adk.LLMProvider
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	store, err := workspace.NewStore(cfg.WorkspaceDir, cfg.SupportedChains)
	if err != nil {
		return nil, err
	}

	rem := engine.NewRemediationEngine()
	if cfg.TemplatesDir != "" {
		if err := rem.LoadTemplates(cfg.TemplatesDir); err != nil {
			log.Warn().Err(err).Str("dir", cfg.TemplatesDir).Msg("Failed to load remediation templates")
		}
	}

	return &app{
		cfg:         cfg,
		store:       store,
		engine:      engine.NewEngine(cfg.Weights()),
		remediation: rem,
	}, nil
}

// connectLLM creates the configured model provider.
func (a *app) connectLLM(ctx context.Context) error {
	if a.llm != nil {
		return nil
	}
	name := a.cfg.SelectedProvider
	if name == "" {
		name = "gemini"
	}
	p, err := adk.NewProvider(ctx, name, a.cfg.GetAPIKey(name), a.cfg.SelectedModel)
	if err != nil {
		return err
	}
	a.llm = p
	return nil
}

func (a *app) close() {
	if c, ok := a.llm.(io.Closer); ok {
		_ = c.Close()
	}
}

// runner builds an audit runner. The llm source is added when it is
// enabled and a provider can be created; otherwise the static analyzers
// run alone.
func (a *app) runner(ctx context.Context, withLLM bool, graph *engine.UnifiedGraph) *audit.Runner {
	as := analyzers.FromConfig(a.cfg, nil)

	if ac, enabled := a.cfg.Analyzer(engine.SourceLLM); withLLM && enabled {
		if err := a.connectLLM(ctx); err != nil {
			log.Warn().Err(err).Msg("AI reviewer disabled")
		} else {
			as = append(as, timed(adk.NewReasoner(a.llm), ac))
		}
	}

	return &audit.Runner{
		Analyzers:   as,
		Engine:      a.engine,
		Store:       a.store,
		Remediation: a.remediation,
		Graph:       graph,
	}
}

// timed bounds an in-process analyzer by its configured timeout.
func timed(an analyzers.Analyzer, ac config.AnalyzerConfig) analyzers.Analyzer {
	if ac.Timeout <= 0 {
		return an
	}
	return analyzers.Func{Source: an.Name(), Fn: func(ctx context.Context, target string) ([]engine.Finding, error) {
		ctx, cancel := context.WithTimeout(ctx, ac.Timeout)
		defer cancel()
		return an.Analyze(ctx, target)
	}}
}
