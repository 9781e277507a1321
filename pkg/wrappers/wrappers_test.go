package wrappers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/chainsec-adk/pkg/adk"
	"github.com/user/chainsec-adk/pkg/analyzers"
	"github.com/user/chainsec-adk/pkg/audit"
	"github.com/user/chainsec-adk/pkg/engine"
	"github.com/user/chainsec-adk/pkg/workspace"
)

var (
	_ adk.Tool = (*AuditWrapper)(nil)
	_ adk.Tool = (*GraphViewerWrapper)(nil)
	_ adk.Tool = (*SaveSnapshotWrapper)(nil)
	_ adk.Tool = (*DiffSnapshotWrapper)(nil)
	_ adk.Tool = (*RemediationWrapper)(nil)
	_ adk.Tool = (*WorkspaceStatsWrapper)(nil)
)

func finding(line int, class string) engine.Finding {
	return engine.Finding{
		File:        "contracts/Vault.sol",
		LineStart:   line,
		Class:       class,
		Severity:    engine.SeverityHigh,
		Description: "issue at line",
	}
}

type fixture struct {
	runner *audit.Runner
	store  *workspace.Store
	graph  *engine.UnifiedGraph
}

func newFixture(t *testing.T, findings ...engine.Finding) fixture {
	t.Helper()
	store, err := workspace.NewStore(t.TempDir(), []string{"ethereum", "polygon"})
	require.NoError(t, err)
	_, err = store.Create("main", nil)
	require.NoError(t, err)

	eng := engine.NewEngine(engine.DefaultToolWeights())
	graph := engine.NewUnifiedGraph(eng)
	fn := func(context.Context, string) ([]engine.Finding, error) { return findings, nil }
	return fixture{
		runner: &audit.Runner{
			Analyzers: []analyzers.Analyzer{
				analyzers.Func{Source: engine.SourceSlither, Fn: fn},
				analyzers.Func{Source: engine.SourceMythril, Fn: fn},
			},
			Engine:      eng,
			Store:       store,
			Remediation: engine.NewRemediationEngine(),
			Graph:       graph,
		},
		store: store,
		graph: graph,
	}
}

func TestAuditWrapper(t *testing.T) {
	fx := newFixture(t, finding(12, "reentrancy"))
	w := &AuditWrapper{Runner: fx.runner, DefaultWorkspace: "main"}

	var progressed []string
	out, err := w.Execute(context.Background(), map[string]interface{}{
		"target": "contracts/", "address": "0xVault", "chain": "polygon",
	}, func(s string) { progressed = append(progressed, s) })
	require.NoError(t, err)

	assert.Contains(t, out, "Audit of 0xVault stored in workspace main")
	assert.Contains(t, out, "high 1")
	assert.Contains(t, out, "contracts/Vault.sol:12 (mythril, slither)")
	assert.Len(t, progressed, 1)

	vulns, err := fx.store.Vulnerabilities("main", "0xVault", "polygon")
	require.NoError(t, err)
	assert.Len(t, vulns, 1)
}

func TestAuditWrapper_Arguments(t *testing.T) {
	fx := newFixture(t)
	w := &AuditWrapper{Runner: fx.runner, DefaultWorkspace: "main"}

	out, err := w.Execute(context.Background(), map[string]interface{}{}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "target argument is required")

	out, err = w.Execute(context.Background(), map[string]interface{}{"args": "--fast contracts/Vault.sol"}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Audit of contracts/Vault.sol")

	out, err = w.Execute(context.Background(), map[string]interface{}{"target": "x", "tools": "aderyn"}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Audit failed")
}

func TestGraphViewerWrapper(t *testing.T) {
	fx := newFixture(t, finding(12, "reentrancy"))
	w := &GraphViewerWrapper{Graph: fx.graph}

	out, err := w.Execute(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "No findings yet")

	fx.graph.AddFindings(engine.SourceSlither, []engine.Finding{finding(12, "reentrancy"), finding(5, "")})
	fx.graph.AddFindings(engine.SourceMythril, []engine.Finding{finding(12, "reentrancy")})
	fx.graph.AddFindings(engine.SourceSemgrep, []engine.Finding{{File: "test/Vault.t.sol", LineStart: 1, Severity: engine.SeverityMedium, Description: "x"}})

	out, err = w.Execute(context.Background(), map[string]interface{}{"show_filtered": true}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Consensus Findings")
	assert.Contains(t, out, "Filtered as likely false positives")
	assert.Contains(t, out, "test or example code")
}

func TestSnapshotWrappers(t *testing.T) {
	fx := newFixture(t)
	path := filepath.Join(t.TempDir(), "baseline.json")

	fx.graph.AddFindings(engine.SourceSlither, []engine.Finding{finding(12, "reentrancy"), finding(20, "tx-origin")})
	fx.graph.AddFindings(engine.SourceMythril, []engine.Finding{finding(12, "reentrancy"), finding(20, "tx-origin")})

	save := &SaveSnapshotWrapper{Graph: fx.graph}
	out, err := save.Execute(context.Background(), map[string]interface{}{"filename": path}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully saved 2 findings")

	fx.graph.AddFindings(engine.SourceSlither, []engine.Finding{finding(12, "reentrancy"), finding(30, "arithmetic")})
	fx.graph.AddFindings(engine.SourceMythril, []engine.Finding{finding(12, "reentrancy"), finding(30, "arithmetic")})

	diff := &DiffSnapshotWrapper{Graph: fx.graph}
	out, err = diff.Execute(context.Background(), map[string]interface{}{"filename": path}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "NEW ISSUES: 1")
	assert.Contains(t, out, "FIXED ISSUES: 1")
	assert.Contains(t, out, "UNCHANGED ISSUES: 1")
	assert.Contains(t, out, "[+] [HIGH]")

	out, err = diff.Execute(context.Background(), map[string]interface{}{"filename": filepath.Join(t.TempDir(), "none.json")}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Error loading baseline snapshot")
}

func TestRemediationWrapper(t *testing.T) {
	w := &RemediationWrapper{Engine: engine.NewRemediationEngine()}

	out, err := w.Execute(context.Background(), map[string]interface{}{}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "- reentrancy")

	out, err = w.Execute(context.Background(), map[string]interface{}{"class": "reentrancy-eth", "file": "Bank.sol", "line": 42}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "[FIX PLAN]")
	assert.Contains(t, out, "Bank.sol:42")

	out, err = w.Execute(context.Background(), map[string]interface{}{"class": "gas"}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, `No remediation template for class "gas"`)
}

func TestWorkspaceStatsWrapper(t *testing.T) {
	fx := newFixture(t, finding(12, "reentrancy"))
	_, err := fx.runner.Run(context.Background(), audit.Request{Workspace: "main", Chain: "ethereum", Address: "0xA", Target: "."})
	require.NoError(t, err)

	w := &WorkspaceStatsWrapper{Store: fx.store}
	out, err := w.Execute(context.Background(), map[string]interface{}{}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "- main")

	out, err = w.Execute(context.Background(), map[string]interface{}{"workspace": "main"}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Chains: 2 (1 active)  Contracts: 1  Reports: 1")
	assert.Contains(t, out, "high: 1")
	assert.Contains(t, out, "- ethereum: 1 contracts, 1 vulnerabilities, 1 reports")
	assert.NotContains(t, out, "- polygon")

	out, err = w.Execute(context.Background(), map[string]interface{}{"workspace": "ghost"}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "does not exist")
}
