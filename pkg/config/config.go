package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/user/chainsec-adk/pkg/engine"
)

type ProviderConfig struct {
	APIKey string `yaml:"api_key"`
}

// AnalyzerConfig controls one external analyzer binary.
type AnalyzerConfig struct {
	Enabled bool          `yaml:"enabled"`
	Binary  string        `yaml:"binary,omitempty"`
	Args    []string      `yaml:"args,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

type Config struct {
	SelectedProvider string                    `yaml:"selected_provider"`
	SelectedModel    string                    `yaml:"selected_model"`
	Providers        map[string]ProviderConfig `yaml:"providers"`

	WorkspaceDir    string                    `yaml:"workspace_dir"`
	SupportedChains []string                  `yaml:"supported_chains"`
	ToolWeights     map[string]float64        `yaml:"tool_weights"`
	Analyzers       map[string]AnalyzerConfig `yaml:"analyzers"`
	TemplatesDir    string                    `yaml:"remediation_templates,omitempty"`
}

// DefaultSupportedChains lists the chains every workspace gets a bucket for.
var DefaultSupportedChains = []string{
	"ethereum", "bnb", "polygon", "arbitrum", "optimism", "avalanche", "base", "fantom",
}

const (
	configDirName = ".chainsec-adk"
	envConfigDir  = "CHAINSEC_CONFIG_DIR"
	envWorkspace  = "CHAINSEC_WORKSPACE_DIR"
)

// Default returns the configuration used when no file exists.
func Default() *Config {
	weights := engine.DefaultToolWeights().Map()
	return &Config{
		SelectedProvider: "gemini",
		SelectedModel:    "gemini-1.5-pro",
		Providers:        make(map[string]ProviderConfig),
		SupportedChains:  append([]string(nil), DefaultSupportedChains...),
		ToolWeights:      weights,
		Analyzers: map[string]AnalyzerConfig{
			engine.SourceSlither: {Enabled: true, Binary: "slither", Timeout: 10 * time.Minute},
			engine.SourceMythril: {Enabled: true, Binary: "myth", Timeout: 15 * time.Minute},
			engine.SourceSemgrep: {Enabled: false, Binary: "semgrep", Timeout: 5 * time.Minute},
			engine.SourceLLM:     {Enabled: true, Timeout: 2 * time.Minute},
		},
	}
}

// GetConfigDir returns the directory holding config.yaml and, by default,
// the workspaces.
func GetConfigDir() (string, error) {
	dir := os.Getenv(envConfigDir)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, configDirName)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadConfig reads the config file, falling back to defaults when it does
// not exist. A .env file in the working directory is loaded first so that
// API keys can come from the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if cfg.WorkspaceDir == "" {
		cfg.WorkspaceDir = filepath.Join(filepath.Dir(path), "workspaces")
	}
	return cfg, nil
}

// LoadFile reads a config from path; a missing file yields defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		cfg.applyEnv()
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	cfg := Default()
	// Maps from the file replace the defaults wholesale.
	cfg.ToolWeights = nil
	cfg.Analyzers = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	if len(c.SupportedChains) == 0 {
		c.SupportedChains = def.SupportedChains
	}
	if len(c.ToolWeights) == 0 {
		c.ToolWeights = def.ToolWeights
	}
	if len(c.Analyzers) == 0 {
		c.Analyzers = def.Analyzers
	}
}

func (c *Config) applyEnv() {
	if dir := os.Getenv(envWorkspace); dir != "" {
		c.WorkspaceDir = dir
	}
}

func SaveConfig(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

// SaveFile writes cfg to path with owner-only permissions (API keys).
func SaveFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) SetAPIKey(provider, key string) {
	p := c.Providers[provider]
	p.APIKey = key
	c.Providers[provider] = p
}

// GetAPIKey returns the configured key, falling back to the provider's
// conventional environment variable.
func (c *Config) GetAPIKey(provider string) string {
	if key := c.Providers[provider].APIKey; key != "" {
		return key
	}
	switch provider {
	case "gemini":
		return os.Getenv("GOOGLE_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

// Weights builds the immutable weight table used by the consensus engine.
func (c *Config) Weights() engine.ToolWeights {
	return engine.NewToolWeights(c.ToolWeights)
}

// Analyzer returns the settings for name, and whether it is enabled.
func (c *Config) Analyzer(name string) (AnalyzerConfig, bool) {
	a, ok := c.Analyzers[name]
	return a, ok && a.Enabled
}
