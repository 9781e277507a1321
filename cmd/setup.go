package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/chainsec-adk/pkg/adk"
	"github.com/user/chainsec-adk/pkg/config"
	"github.com/user/chainsec-adk/pkg/engine"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Long: `Walks through the settings an audit depends on: where workspaces are
kept, which chains they track, which analyzers run and how much each one is
trusted, and the model behind the AI reviewer. Press enter to keep the value
shown in brackets.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		w := newSetupWizard(cmd.InOrStdin(), cmd.OutOrStdout(), cfg)
		if err := w.run(cmd.Context()); err != nil {
			return err
		}
		if err := config.SaveConfig(cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		w.summary()
		return nil
	},
}

// setupWizard asks one question per line of input. At end of input every
// remaining question takes its default, so a partial script still works.
type setupWizard struct {
	in  *bufio.Scanner
	out io.Writer
	cfg *config.Config

	lookPath func(string) (string, error)
	models   func(ctx context.Context, provider, key string) ([]string, error)
}

func newSetupWizard(in io.Reader, out io.Writer, cfg *config.Config) *setupWizard {
	if cfg.Analyzers == nil {
		cfg.Analyzers = make(map[string]config.AnalyzerConfig)
	}
	if cfg.ToolWeights == nil {
		cfg.ToolWeights = make(map[string]float64)
	}
	return &setupWizard{
		in:       bufio.NewScanner(in),
		out:      out,
		cfg:      cfg,
		lookPath: exec.LookPath,
		models:   fetchModels,
	}
}

func (w *setupWizard) run(ctx context.Context) error {
	fmt.Fprintln(w.out, "ChainSec-ADK setup")

	w.section("1. Workspaces")
	w.cfg.WorkspaceDir = w.ask("Workspace directory", w.cfg.WorkspaceDir)
	chains := splitList(w.ask("Supported chains", strings.Join(w.cfg.SupportedChains, ",")))
	if len(chains) == 0 {
		return fmt.Errorf("at least one supported chain is required")
	}
	w.cfg.SupportedChains = chains

	w.section("2. Static analyzers")
	for _, name := range w.staticAnalyzers() {
		w.configureAnalyzer(name)
	}

	w.section("3. Tool weights")
	w.configureWeights()

	w.section("4. AI reviewer")
	return w.configureReviewer(ctx)
}

func (w *setupWizard) staticAnalyzers() []string {
	var names []string
	for name := range w.cfg.Analyzers {
		if name != engine.SourceLLM {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (w *setupWizard) configureAnalyzer(name string) {
	ac := w.cfg.Analyzers[name]
	binary := ac.Binary
	if binary == "" {
		binary = name
	}

	path, err := w.lookPath(binary)
	if err == nil {
		fmt.Fprintf(w.out, "  %s found at %s\n", name, path)
	} else {
		fmt.Fprintf(w.out, "  %s (%s) not found on PATH\n", name, binary)
	}

	ac.Enabled = w.confirm("Run "+name, ac.Enabled && err == nil)
	if ac.Enabled && err != nil {
		ac.Binary = w.ask("Path to the "+name+" binary", binary)
	}
	w.cfg.Analyzers[name] = ac
}

func (w *setupWizard) configureWeights() {
	w.printWeights()
	for {
		answer := w.ask("Change a weight (source=weight, blank when done)", "")
		if answer == "" {
			return
		}
		source, weight, err := parseWeight(answer)
		if err != nil {
			fmt.Fprintf(w.out, "  %v\n", err)
			continue
		}
		w.cfg.ToolWeights[source] = weight
		fmt.Fprintf(w.out, "  %s = %.2f\n", source, weight)
	}
}

func (w *setupWizard) printWeights() {
	sources := make([]string, 0, len(w.cfg.ToolWeights))
	for s := range w.cfg.ToolWeights {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		fmt.Fprintf(w.out, "  %-8s %.2f\n", s, w.cfg.ToolWeights[s])
	}
}

func (w *setupWizard) configureReviewer(ctx context.Context) error {
	llm := w.cfg.Analyzers[engine.SourceLLM]
	llm.Enabled = w.confirm("Have a model review the sources as an extra analyzer", llm.Enabled)
	w.cfg.Analyzers[engine.SourceLLM] = llm
	if !llm.Enabled {
		return nil
	}

	provider := strings.ToLower(w.ask("Provider ("+strings.Join(adk.Providers, ", ")+")", w.cfg.SelectedProvider))
	if err := checkProvider(provider); err != nil {
		return err
	}
	if provider != w.cfg.SelectedProvider {
		w.cfg.SelectedModel = ""
	}
	w.cfg.SelectedProvider = provider

	if key := w.ask("API key (blank keeps the current one)", ""); key != "" {
		w.cfg.SetAPIKey(provider, key)
	}
	key := w.cfg.GetAPIKey(provider)
	if key == "" {
		fmt.Fprintf(w.out, "  No API key for %s. The reviewer is skipped until one is set with 'config set-key'.\n", provider)
		return nil
	}

	models, err := w.models(ctx, provider, key)
	if err != nil || len(models) == 0 {
		fmt.Fprintf(w.out, "  Could not list models: %v\n", err)
		w.cfg.SelectedModel = w.ask("Model name", w.cfg.SelectedModel)
		return nil
	}
	for i, m := range models {
		fmt.Fprintf(w.out, "  %d. %s\n", i+1, m)
	}
	def := w.cfg.SelectedModel
	if def == "" {
		def = models[0]
	}
	choice := w.ask("Model (number or name)", def)
	if n, err := strconv.Atoi(choice); err == nil {
		if n < 1 || n > len(models) {
			return fmt.Errorf("model %d is out of range 1-%d", n, len(models))
		}
		choice = models[n-1]
	}
	w.cfg.SelectedModel = choice
	return nil
}

func (w *setupWizard) summary() {
	var enabled []string
	for name, ac := range w.cfg.Analyzers {
		if ac.Enabled {
			enabled = append(enabled, name)
		}
	}
	sort.Strings(enabled)

	fmt.Fprintln(w.out, "\nSaved.")
	fmt.Fprintf(w.out, "  Workspaces: %s\n", w.cfg.WorkspaceDir)
	fmt.Fprintf(w.out, "  Chains:     %s\n", strings.Join(w.cfg.SupportedChains, ", "))
	fmt.Fprintf(w.out, "  Analyzers:  %s\n", strings.Join(enabled, ", "))
	if _, ok := w.cfg.Analyzer(engine.SourceLLM); ok {
		fmt.Fprintf(w.out, "  Reviewer:   %s / %s\n", w.cfg.SelectedProvider, w.cfg.SelectedModel)
	}
	fmt.Fprintln(w.out, "Run 'chainsec-adk audit --target <path>' to start.")
}

func (w *setupWizard) section(title string) {
	fmt.Fprintf(w.out, "\n%s\n", title)
}

func (w *setupWizard) ask(prompt, def string) string {
	if def != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}
	if !w.in.Scan() {
		fmt.Fprintln(w.out)
		return def
	}
	if answer := strings.TrimSpace(w.in.Text()); answer != "" {
		return answer
	}
	return def
}

func (w *setupWizard) confirm(prompt string, def bool) bool {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	switch strings.ToLower(w.ask(prompt+" ("+hint+")", "")) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}

func splitList(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}

func parseWeight(s string) (string, float64, error) {
	source, value, ok := strings.Cut(s, "=")
	source = strings.ToLower(strings.TrimSpace(source))
	if !ok || source == "" {
		return "", 0, fmt.Errorf("expected source=weight, got %q", s)
	}
	weight, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return "", 0, fmt.Errorf("weight for %s: %w", source, err)
	}
	if weight < 0 {
		return "", 0, fmt.Errorf("weight for %s must not be negative", source)
	}
	return source, weight, nil
}

func init() {
	configCmd.AddCommand(setupCmd)
}
