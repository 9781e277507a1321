package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/user/chainsec-adk/pkg/adk"
	"github.com/user/chainsec-adk/pkg/analyzers"
	"github.com/user/chainsec-adk/pkg/config"
	"github.com/user/chainsec-adk/pkg/engine"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration (providers, models, keys, analyzers)",
}

var setKeyCmd = &cobra.Command{
	Use:   "set-key",
	Short: "Store the API key for a model provider",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		key, _ := cmd.Flags().GetString("key")
		provider = strings.ToLower(strings.TrimSpace(provider))
		if err := checkProvider(provider); err != nil {
			return err
		}
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("--key is required")
		}

		return updateConfig(func(cfg *config.Config) error {
			cfg.SetAPIKey(provider, strings.TrimSpace(key))
			fmt.Fprintf(cmd.OutOrStdout(), "API key saved for %s\n", provider)
			return nil
		})
	},
}

var setModelCmd = &cobra.Command{
	Use:   "set-model",
	Short: "Choose the provider and model behind the AI reviewer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		model, _ := cmd.Flags().GetString("model")

		return updateConfig(func(cfg *config.Config) error {
			if provider != "" {
				provider = strings.ToLower(strings.TrimSpace(provider))
				if err := checkProvider(provider); err != nil {
					return err
				}
				if provider != cfg.SelectedProvider && model == "" {
					return fmt.Errorf("--model is required when switching provider to %s", provider)
				}
				cfg.SelectedProvider = provider
			}
			if model != "" {
				cfg.SelectedModel = strings.TrimSpace(model)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "AI reviewer: %s / %s\n", cfg.SelectedProvider, cfg.SelectedModel)
			if cfg.GetAPIKey(cfg.SelectedProvider) == "" {
				fmt.Fprintf(w, "Warning: no API key for %s; audits run without the reviewer until 'config set-key' is used.\n", cfg.SelectedProvider)
			}
			return nil
		})
	},
}

var listModelsCmd = &cobra.Command{
	Use:   "list-models",
	Short: "List the models a provider offers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		provider, _ := cmd.Flags().GetString("provider")
		if provider == "" {
			provider = cfg.SelectedProvider
		}
		provider = strings.ToLower(provider)
		if err := checkProvider(provider); err != nil {
			return err
		}
		key := cfg.GetAPIKey(provider)
		if key == "" {
			return fmt.Errorf("no API key for %s; run 'chainsec-adk config set-key --provider %s'", provider, provider)
		}

		models, err := fetchModels(cmd.Context(), provider, key)
		if err != nil {
			return fmt.Errorf("list %s models: %w", provider, err)
		}
		w := cmd.OutOrStdout()
		for _, m := range models {
			mark := " "
			if provider == cfg.SelectedProvider && m == cfg.SelectedModel {
				mark = "*"
			}
			fmt.Fprintf(w, "%s %s\n", mark, m)
		}
		return nil
	},
}

var setWeightCmd = &cobra.Command{
	Use:   "set-weight <source=weight>...",
	Short: "Set how much the consensus engine trusts a source",
	Long: `Weights decide confidence scores and which source wins a disagreement.
A source with weight 0 still reports findings but never wins a conflict.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateConfig(func(cfg *config.Config) error {
			if cfg.ToolWeights == nil {
				cfg.ToolWeights = make(map[string]float64)
			}
			for _, arg := range args {
				source, weight, err := parseWeight(arg)
				if err != nil {
					return err
				}
				cfg.ToolWeights[source] = weight
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %.2f\n", source, weight)
			}
			return nil
		})
	},
}

var setAnalyzerCmd = &cobra.Command{
	Use:   "set-analyzer <name>",
	Short: "Enable, disable or point an analyzer at a binary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.ToLower(strings.TrimSpace(args[0]))
		flags := cmd.Flags()

		return updateConfig(func(cfg *config.Config) error {
			if cfg.Analyzers == nil {
				cfg.Analyzers = make(map[string]config.AnalyzerConfig)
			}
			ac, known := cfg.Analyzers[name]
			if !known && name != engine.SourceLLM && !analyzers.Supported(name) {
				return fmt.Errorf("unknown analyzer %q", name)
			}
			if flags.Changed("enabled") {
				ac.Enabled, _ = flags.GetBool("enabled")
			}
			if flags.Changed("binary") {
				ac.Binary, _ = flags.GetString("binary")
			}
			if flags.Changed("timeout") {
				ac.Timeout, _ = flags.GetDuration("timeout")
			}
			cfg.Analyzers[name] = ac

			state := "disabled"
			if ac.Enabled {
				state = "enabled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (binary %q, timeout %s)\n", name, state, ac.Binary, ac.Timeout)
			return nil
		})
	},
}

// updateConfig loads the config, applies fn and saves the result.
func updateConfig(fn func(cfg *config.Config) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := fn(cfg); err != nil {
		return err
	}
	if err := config.SaveConfig(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

func checkProvider(name string) error {
	for _, p := range adk.Providers {
		if p == name {
			return nil
		}
	}
	return fmt.Errorf("unknown provider %q (choose one of %s)", name, strings.Join(adk.Providers, ", "))
}

// fetchModels asks a provider which models the key can use.
func fetchModels(ctx context.Context, provider, key string) ([]string, error) {
	p, err := adk.NewProvider(ctx, provider, key, "")
	if err != nil {
		return nil, err
	}
	if c, ok := p.(io.Closer); ok {
		defer c.Close()
	}
	return p.ListModels(ctx)
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with API keys masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		masked := *cfg
		masked.Providers = make(map[string]config.ProviderConfig, len(cfg.Providers))
		for name, p := range cfg.Providers {
			masked.Providers[name] = config.ProviderConfig{APIKey: maskKey(p.APIKey)}
		}
		out, err := yaml.Marshal(&masked)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func maskKey(k string) string {
	if len(k) <= 8 {
		return strings.Repeat("*", len(k))
	}
	return k[:4] + strings.Repeat("*", len(k)-8) + k[len(k)-4:]
}

func init() {
	setKeyCmd.Flags().StringP("provider", "p", "", "Provider (gemini, openai, anthropic)")
	setKeyCmd.Flags().StringP("key", "k", "", "API key")

	setModelCmd.Flags().StringP("provider", "p", "", "Provider (gemini, openai, anthropic)")
	setModelCmd.Flags().StringP("model", "m", "", "Model name")

	listModelsCmd.Flags().StringP("provider", "p", "", "Provider to query (default: the selected one)")

	setAnalyzerCmd.Flags().Bool("enabled", true, "Run the analyzer during audits")
	setAnalyzerCmd.Flags().String("binary", "", "Executable name or path")
	setAnalyzerCmd.Flags().Duration("timeout", 0, "Per-run timeout, e.g. 10m")

	configCmd.AddCommand(setKeyCmd, setModelCmd, listModelsCmd, setWeightCmd, setAnalyzerCmd, showConfigCmd)
	rootCmd.AddCommand(configCmd)
}
