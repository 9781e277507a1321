package engine

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnifiedGraphIntegration(t *testing.T) {
	graph := NewUnifiedGraph(NewEngine(DefaultToolWeights()))

	graph.AddFindings("Slither", []Finding{
		{File: "contracts/Bank.sol", LineStart: 10, Severity: SeverityCritical, Class: "reentrancy-eth", Description: "Reentrancy in Bank.withdraw()"},
		{File: "contracts/Bank.sol", LineStart: 10, Severity: SeverityCritical, Class: "reentrancy-eth", Description: "Reentrancy in Bank.withdraw()"},
		{File: "contracts/Bank.sol", LineStart: 3, Severity: SeverityLow, Description: "Pragma version too recent"},
	})
	graph.AddFindings("mythril", []Finding{
		{File: "contracts/Bank.sol", LineStart: 10, Severity: SeverityCritical, Description: "State change after external call"},
	})

	assert.Equal(t, []string{"mythril", "slither"}, graph.Sources())
	assert.Len(t, graph.Raw()["slither"], 2, "exact duplicates collapse")

	a := graph.Analyze()
	require.Len(t, a.Findings, 1)
	assert.Equal(t, "Reentrancy Eth", a.Findings[0].Title)
	assert.Equal(t, "Reentrancy Eth - mythril, slither detected", a.Findings[0].Description)

	report := graph.GetReport()
	assert.True(t, strings.Contains(report, "contracts/Bank.sol:10"), report)
	assert.True(t, strings.Contains(report, "mythril, slither"), report)
}

func TestUnifiedGraph_LatestRunReplacesSource(t *testing.T) {
	graph := NewUnifiedGraph(NewEngine(DefaultToolWeights()))

	graph.AddFindings("slither", []Finding{{File: "A.sol", LineStart: 1, Severity: SeverityHigh, Description: "x"}})
	first := graph.Analyze()
	require.Len(t, first.Candidates, 1)

	graph.AddFindings("slither", nil)
	assert.Empty(t, graph.Analyze().Candidates)

	graph.Reset()
	assert.Empty(t, graph.Sources())
}

func TestSnapshotOperations(t *testing.T) {
	e := NewEngine(DefaultToolWeights())
	both := func(file string, line int) map[string][]Finding {
		f := Finding{File: file, LineStart: line, Severity: SeverityHigh, Description: "issue"}
		return map[string][]Finding{"slither": {f}, "mythril": {f}}
	}

	baseline := NewUnifiedGraph(e)
	for src, fs := range merge(both("A.sol", 1), both("B.sol", 2)) {
		baseline.AddFindings(src, fs)
	}

	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, baseline.SaveSnapshot(path))

	current := NewUnifiedGraph(e)
	for src, fs := range merge(both("A.sol", 1), both("C.sol", 3)) {
		current.AddFindings(src, fs)
	}

	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, loaded.Findings, 2)

	diff := current.CompareSnapshot(loaded)
	require.Len(t, diff.Unchanged, 1)
	assert.Equal(t, "A.sol", diff.Unchanged[0].File)
	require.Len(t, diff.New, 1)
	assert.Equal(t, "C.sol", diff.New[0].File)
	require.Len(t, diff.Fixed, 1)
	assert.Equal(t, "B.sol", diff.Fixed[0].File)
	assert.Equal(t, SeverityHigh, diff.Fixed[0].Severity)
}

func merge(ms ...map[string][]Finding) map[string][]Finding {
	out := make(map[string][]Finding)
	for _, m := range ms {
		for k, v := range m {
			out[k] = append(out[k], v...)
		}
	}
	return out
}

func TestRemediationEngine_Apply(t *testing.T) {
	r := NewRemediationEngine()

	out := r.Apply([]ConsensusFinding{
		{File: "Bank.sol", LineStart: 10, Class: "Reentrancy-ETH"},
		{File: "Bank.sol", LineStart: 20, Class: "tx-origin", Recommendation: "keep mine"},
		{File: "Bank.sol", LineStart: 30, Class: "unknown-class"},
	})

	assert.Contains(t, out[0].Recommendation, "Bank.sol:10")
	assert.Equal(t, "keep mine", out[1].Recommendation)
	assert.Empty(t, out[2].Recommendation)
}

func TestRemediationEngine_GeneratePlan(t *testing.T) {
	r := NewRemediationEngine()

	plan, err := r.GeneratePlan("tx-origin", map[string]string{"File": "Wallet.sol", "Line": "7"})
	require.NoError(t, err)
	assert.Contains(t, plan, "SWC-115")
	assert.Contains(t, plan, "Wallet.sol:7")

	_, err = r.GeneratePlan("missing", nil)
	assert.Error(t, err)
}

func TestSeverityText(t *testing.T) {
	var s Severity
	require.NoError(t, s.UnmarshalText([]byte("Informational")))
	assert.Equal(t, SeverityLow, s)

	b, err := SeverityCritical.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "critical", string(b))

	_, err = Severity(0).MarshalText()
	assert.Error(t, err)
	assert.True(t, SeverityCritical.MoreSevere(SeverityHigh))
}
