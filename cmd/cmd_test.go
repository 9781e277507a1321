package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/chainsec-adk/pkg/config"
	"github.com/user/chainsec-adk/pkg/engine"
	"github.com/user/chainsec-adk/pkg/workspace"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	err := rootCmd.Execute()
	return out.String(), err
}

func setupHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CHAINSEC_CONFIG_DIR", dir)
	t.Setenv("CHAINSEC_WORKSPACE_DIR", filepath.Join(dir, "ws"))
	return dir
}

func TestWorkspaceCommands(t *testing.T) {
	setupHome(t)

	out, err := runCLI(t, "", "workspace", "create", "audit-1", "--chains", "ethereum,polygon", "--log-format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "Created workspace audit-1")
	assert.Contains(t, out, "targets: ethereum, polygon")

	_, err = runCLI(t, "", "workspace", "create", "audit-1", "--chains", "ethereum")
	assert.ErrorIs(t, err, workspace.ErrAlreadyExists)

	out, err = runCLI(t, "", "workspace", "add-contract", "audit-1", "--address", "0xAbC", "--chain", "polygon", "--meta", "name=Vault")
	require.NoError(t, err)
	assert.Contains(t, out, "Added 0xAbC on polygon")

	out, err = runCLI(t, "", "workspace", "list")
	require.NoError(t, err)
	assert.Equal(t, "audit-1\n", out)

	out, err = runCLI(t, "", "workspace", "stats", "audit-1", "--json=true")
	require.NoError(t, err)
	var stats workspace.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 1, stats.Contracts)
	assert.Equal(t, 1, stats.ActiveChains)

	out, err = runCLI(t, "", "workspace", "stats", "audit-1", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "- polygon: 1 contracts")

	_, err = runCLI(t, "", "workspace", "stats", "nope", "--json=false")
	assert.ErrorContains(t, err, "does not exist")

	out, err = runCLI(t, "", "workspace", "delete", "audit-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted workspace audit-1")

	out, err = runCLI(t, "", "workspace", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No workspaces found.")
}

func TestConsensusCommand(t *testing.T) {
	setupHome(t)

	input := `{
	  "slither": [{"file": "Bank.sol", "line_start": 10, "severity": "critical", "class": "reentrancy", "description": "Reentrancy in withdraw()"}],
	  "mythril": [{"file": "Bank.sol", "line_start": 10, "severity": "critical", "class": "reentrancy", "description": "Reentrancy in withdraw()"}]
	}`
	path := filepath.Join(t.TempDir(), "findings.json")
	require.NoError(t, os.WriteFile(path, []byte(input), 0o600))

	out, err := runCLI(t, "", "consensus", "--input", path, "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Consensus Findings (1 kept")
	assert.Contains(t, out, "(mythril, slither)")

	out, err = runCLI(t, input, "consensus", "--input", "-", "--json=true")
	require.NoError(t, err)
	var a engine.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	require.Len(t, a.Findings, 1)
	assert.Equal(t, engine.SeverityCritical, a.Findings[0].Severity)
	assert.Equal(t, 1, a.Stats.Agreed)

	_, err = runCLI(t, "not json", "consensus", "--input", "-", "--json=false")
	assert.ErrorContains(t, err, "decode findings")
}

func TestConsensusCommand_UnknownSeverityDropsOneFinding(t *testing.T) {
	setupHome(t)

	input := `{
	  "slither": [
	    {"file": "Bank.sol", "line_start": 10, "severity": "critical", "class": "reentrancy", "description": "Reentrancy in withdraw()"},
	    {"file": "Bank.sol", "line_start": 42, "severity": "bogus", "description": "Unlabelled"}
	  ],
	  "mythril": [{"file": "./Bank.sol", "line_start": 10, "severity": "critical", "class": "reentrancy", "description": "Reentrancy in withdraw()"}]
	}`
	out, err := runCLI(t, input, "consensus", "--input", "-", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Consensus Findings (1 kept")
	assert.Contains(t, out, "Dropped: 1")
	assert.Contains(t, out, "(mythril, slither)")
}

func TestConfigShowMasksKeys(t *testing.T) {
	setupHome(t)

	_, err := runCLI(t, "", "config", "set-key", "--provider", "openai", "--key", "sk-1234567890abcd")
	require.NoError(t, err)

	out, err := runCLI(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "sk-1*********abcd")
	assert.NotContains(t, out, "sk-1234567890abcd")
	assert.Contains(t, out, "workspace_dir:")
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "", maskKey(""))
	assert.Equal(t, "****", maskKey("abcd"))
	assert.Equal(t, "abcd**ghij", maskKey("abcdefghij"))
}

func TestSetupWizard(t *testing.T) {
	cfg := config.Default()
	cfg.WorkspaceDir = "/old/ws"

	script := strings.Join([]string{
		"/srv/audits",         // workspace directory
		"Ethereum, base,base", // chains
		"",                    // mythril: keep default (binary found)
		"y",                   // semgrep: enable although missing
		"/opt/semgrep",        // semgrep binary
		"n",                   // slither: disable
		"slither=0.5",         // weight
		"llm=-1",              // rejected
		"nonsense",            // rejected
		"",                    // done with weights
		"y",                   // AI reviewer
		"openai",              // provider
		"sk-test-key",         // key
		"2",                   // model
	}, "\n") + "\n"

	var out bytes.Buffer
	w := newSetupWizard(strings.NewReader(script), &out, cfg)
	w.lookPath = func(bin string) (string, error) {
		if bin == "myth" {
			return "/usr/bin/myth", nil
		}
		return "", errors.New("not found")
	}
	var listedFor string
	w.models = func(_ context.Context, provider, key string) ([]string, error) {
		listedFor = provider + ":" + key
		return []string{"gpt-4o", "gpt-4o-mini"}, nil
	}

	require.NoError(t, w.run(context.Background()))

	assert.Equal(t, "/srv/audits", cfg.WorkspaceDir)
	assert.Equal(t, []string{"ethereum", "base"}, cfg.SupportedChains)
	assert.True(t, cfg.Analyzers["mythril"].Enabled)
	assert.True(t, cfg.Analyzers["semgrep"].Enabled)
	assert.Equal(t, "/opt/semgrep", cfg.Analyzers["semgrep"].Binary)
	assert.False(t, cfg.Analyzers["slither"].Enabled)
	assert.Equal(t, 0.5, cfg.ToolWeights["slither"])
	assert.Equal(t, 1.5, cfg.ToolWeights["llm"])
	assert.Contains(t, out.String(), "must not be negative")
	assert.Contains(t, out.String(), "expected source=weight")
	assert.Equal(t, "openai:sk-test-key", listedFor)
	assert.Equal(t, "openai", cfg.SelectedProvider)
	assert.Equal(t, "gpt-4o-mini", cfg.SelectedModel)
}

func TestSetupWizard_EndOfInputKeepsDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.WorkspaceDir = "/ws"

	w := newSetupWizard(strings.NewReader("\n\n\n\n\n\nn\n"), &bytes.Buffer{}, cfg)
	w.lookPath = func(bin string) (string, error) { return "/usr/bin/" + bin, nil }

	require.NoError(t, w.run(context.Background()))
	assert.Equal(t, "/ws", cfg.WorkspaceDir)
	assert.Equal(t, config.DefaultSupportedChains, cfg.SupportedChains)
	assert.True(t, cfg.Analyzers["slither"].Enabled)
	assert.False(t, cfg.Analyzers["semgrep"].Enabled)
	_, reviewer := cfg.Analyzer("llm")
	assert.False(t, reviewer)
}

func TestSetupWizard_RejectsUnknownProvider(t *testing.T) {
	cfg := config.Default()
	w := newSetupWizard(strings.NewReader("\n\nn\nn\nn\n\ny\ncohere\n"), &bytes.Buffer{}, cfg)
	w.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	assert.ErrorContains(t, w.run(context.Background()), `unknown provider "cohere"`)
}

func TestConfigEditCommands(t *testing.T) {
	setupHome(t)

	out, err := runCLI(t, "", "config", "set-weight", "slither=0.6", "Aderyn=0")
	require.NoError(t, err)
	assert.Contains(t, out, "aderyn = 0.00")

	_, err = runCLI(t, "", "config", "set-weight", "slither=-2")
	assert.ErrorContains(t, err, "must not be negative")

	out, err = runCLI(t, "", "config", "set-analyzer", "semgrep", "--enabled=true", "--binary", "/opt/semgrep", "--timeout", "90s")
	require.NoError(t, err)
	assert.Contains(t, out, "semgrep enabled")

	_, err = runCLI(t, "", "config", "set-analyzer", "trivy")
	assert.ErrorContains(t, err, `unknown analyzer "trivy"`)

	_, err = runCLI(t, "", "config", "set-model", "--provider", "cohere", "--model", "x")
	assert.ErrorContains(t, err, "unknown provider")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.ToolWeights["slither"])
	assert.Equal(t, 0.0, cfg.ToolWeights["aderyn"])
	semgrep, enabled := cfg.Analyzer("semgrep")
	assert.True(t, enabled)
	assert.Equal(t, "/opt/semgrep", semgrep.Binary)
	assert.Equal(t, 90*time.Second, semgrep.Timeout)
	assert.Equal(t, "gemini", cfg.SelectedProvider)
}
