package analyzers

import (
	"context"
	"sort"

	"github.com/user/chainsec-adk/pkg/config"
	"github.com/user/chainsec-adk/pkg/engine"
)

// Analyzer produces normalized findings for a contract target.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, target string) ([]engine.Finding, error)
}

// FromConfig builds the enabled external analyzers. runner may be nil to
// use ExecRunner. The llm source is not built here.
func FromConfig(cfg *config.Config, runner CommandRunner) []Analyzer {
	var out []Analyzer
	for _, name := range builtin {
		ac, ok := cfg.Analyzer(name)
		if !ok {
			continue
		}
		cmd := Command{Binary: ac.Binary, Args: ac.Args, Timeout: ac.Timeout, Runner: runner}
		switch name {
		case engine.SourceSlither:
			out = append(out, NewSlither(cmd))
		case engine.SourceMythril:
			out = append(out, NewMythril(cmd))
		case engine.SourceSemgrep:
			out = append(out, NewSemgrep(cmd))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

var builtin = []string{engine.SourceSlither, engine.SourceMythril, engine.SourceSemgrep}

// Supported reports whether name is an analyzer FromConfig can build.
func Supported(name string) bool {
	for _, b := range builtin {
		if b == name {
			return true
		}
	}
	return false
}

// Func adapts a function to the Analyzer interface.
type Func struct {
	Source string
	Fn     func(ctx context.Context, target string) ([]engine.Finding, error)
}

func (f Func) Name() string { return f.Source }

func (f Func) Analyze(ctx context.Context, target string) ([]engine.Finding, error) {
	return f.Fn(ctx, target)
}
