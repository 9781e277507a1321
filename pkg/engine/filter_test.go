package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cf(sev Severity, tier ConfidenceTier, file, desc string, tools ...string) ConsensusFinding {
	return ConsensusFinding{
		ID:          file + desc,
		Title:       desc,
		Description: desc,
		Severity:    sev,
		Tier:        tier,
		File:        file,
		LineStart:   1,
		Tools:       tools,
	}
}

func TestReduceFalsePositives(t *testing.T) {
	tests := []struct {
		name string
		in   ConsensusFinding
		drop bool
	}{
		{"low severity low tier", cf(SeverityLow, TierLow, "src/Vault.sol", "dust", "slither", "mythril"), true},
		{"test directory", cf(SeverityCritical, TierHigh, "test/Vault.t.sol", "reentrancy", "slither", "mythril"), true},
		{"foundry test file", cf(SeverityCritical, TierHigh, "src/Vault.t.sol", "reentrancy", "slither", "mythril"), true},
		{"examples directory", cf(SeverityHigh, TierMedium, "examples/Token.sol", "overflow", "slither", "mythril"), true},
		{"mock contract", cf(SeverityHigh, TierMedium, "src/MockOracle.sol", "stale price", "slither", "mythril"), true},
		{"noise phrase", cf(SeverityMedium, TierHigh, "src/Vault.sol", "Variable does not follow naming convention", "slither", "mythril"), true},
		{"single low tier", cf(SeverityHigh, TierLow, "src/Vault.sol", "reentrancy", "slither"), true},
		{"single medium tier kept", cf(SeverityHigh, TierMedium, "src/Vault.sol", "reentrancy", "slither"), false},
		{"low severity medium tier kept", cf(SeverityLow, TierMedium, "src/Vault.sol", "timestamp", "slither", "mythril"), false},
		{"consensus kept", cf(SeverityCritical, TierHigh, "contracts/Bank.sol", "reentrancy", "slither", "mythril"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ReduceFalsePositives([]ConsensusFinding{tt.in})
			if tt.drop {
				assert.Empty(t, out)
			} else {
				assert.Len(t, out, 1)
			}
		})
	}
}

func TestReduceFalsePositives_Idempotent(t *testing.T) {
	in := []ConsensusFinding{
		cf(SeverityLow, TierLow, "src/A.sol", "a", "slither"),
		cf(SeverityCritical, TierHigh, "src/B.sol", "b", "slither", "mythril"),
		cf(SeverityHigh, TierMedium, "test/C.sol", "c", "slither", "mythril"),
		cf(SeverityMedium, TierMedium, "src/D.sol", "d", "llm"),
	}

	once := ReduceFalsePositives(in)
	twice := ReduceFalsePositives(once)
	assert.Equal(t, once, twice)
	require.Len(t, once, 2)
	assert.Len(t, in, 4, "input must not be modified")
}

func TestIsTestPath(t *testing.T) {
	tests := []struct {
		file string
		want bool
	}{
		{`contracts\test\Helper.sol`, true},
		{"test/Vault.sol", true},
		{"src/mocks/Oracle.sol", true},
		{"examples/Token.sol", true},
		{"TestToken.sol", true},
		{"src/Vault.t.sol", true},
		{"src/MockOracle.sol", true},
		{"src/ERC20Mock.sol", true},
		{"src/bank_test.sol", true},
		{"src/mock-oracle.sol", true},
		{"src/Test_Bank.sol", true},
		{"/home/alice/project/test/Bank.sol", false},
		{"/home/alice/examples/defi/contracts/Bank.sol", false},
		{"/home/alice/examples/defi/contracts/TestBank.sol", true},
		{"contracts/Bank.sol", false},
		{"src/Attestation.sol", false},
		{"src/Testament.sol", false},
		{"src/TestnetBridge.sol", false},
		{"src/MockableOracle.sol", false},
		{"src/Contest.sol", false},
		{"src/testimony.sol", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTestPath(tt.file), tt.file)
	}
}

func TestAnalyze_KeepsAgreedFindingInTestLikeName(t *testing.T) {
	e := NewEngine(DefaultToolWeights())

	f := Finding{File: "src/TestnetBridge.sol", LineStart: 7, Severity: SeverityCritical, Class: "reentrancy", Description: "Reentrancy in bridge()"}
	a := e.Analyze(map[string][]Finding{
		"slither": {f},
		"mythril": {f},
		"semgrep": {f},
	})

	require.Len(t, a.Findings, 1)
	assert.Equal(t, 0, a.Filtered)
	assert.Equal(t, "src/TestnetBridge.sol", a.Findings[0].File)
}

func TestAdjustConfidence(t *testing.T) {
	tests := []struct {
		name      string
		in        ConsensusFinding
		wantScore float64
		wantTier  ConfidenceTier
	}{
		{
			name:      "critical singleton forced high",
			in:        ConsensusFinding{Severity: SeverityCritical, Tier: TierLow, Score: 17.5, Tools: []string{"slither"}},
			wantScore: 37.5,
			wantTier:  TierHigh,
		},
		{
			name:      "critical already confident untouched",
			in:        ConsensusFinding{Severity: SeverityCritical, Tier: TierHigh, Score: 100, Tools: []string{"llm"}},
			wantScore: 100,
			wantTier:  TierHigh,
		},
		{
			name:      "high singleton upgraded to medium",
			in:        ConsensusFinding{Severity: SeverityHigh, Tier: TierLow, Score: 15, Tools: []string{"mythril"}},
			wantScore: 25,
			wantTier:  TierMedium,
		},
		{
			name:      "high never downgrades",
			in:        ConsensusFinding{Severity: SeverityHigh, Tier: TierHigh, Score: 60, Tools: []string{"llm"}},
			wantScore: 70,
			wantTier:  TierHigh,
		},
		{
			name:      "high with two tools cumulative",
			in:        ConsensusFinding{Severity: SeverityHigh, Tier: TierMedium, Score: 65, Tools: []string{"slither", "mythril"}},
			wantScore: 90,
			wantTier:  TierHigh,
		},
		{
			name:      "critical with two tools capped",
			in:        ConsensusFinding{Severity: SeverityCritical, Tier: TierMedium, Score: 65, Tools: []string{"slither", "mythril"}},
			wantScore: 100,
			wantTier:  TierHigh,
		},
		{
			name:      "medium with two tools",
			in:        ConsensusFinding{Severity: SeverityMedium, Tier: TierLow, Score: 40, Tools: []string{"slither", "semgrep"}},
			wantScore: 55,
			wantTier:  TierMedium,
		},
		{
			name:      "medium singleton untouched",
			in:        ConsensusFinding{Severity: SeverityMedium, Tier: TierLow, Score: 10, Tools: []string{"slither"}},
			wantScore: 10,
			wantTier:  TierLow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := AdjustConfidence(tt.in)
			assert.InDelta(t, tt.wantScore, out.Score, 0.0001)
			assert.Equal(t, tt.wantTier, out.Tier)
		})
	}
}

func TestAnalyze_KeepsCandidates(t *testing.T) {
	e := NewEngine(DefaultToolWeights())

	lone := Finding{File: "src/Vault.sol", LineStart: 40, Severity: SeverityMedium, Description: "timestamp dependence"}
	a := e.Analyze(map[string][]Finding{
		"slither": {bankFinding("reentrancy"), lone},
		"mythril": {bankFinding("reentrancy")},
	})

	require.Len(t, a.Candidates, 2)
	require.Len(t, a.Findings, 1)
	assert.Equal(t, 1, a.Filtered)
	assert.Equal(t, SeverityCritical, a.Findings[0].Severity)
	assert.Equal(t, TierHigh, a.Findings[0].Tier)
	assert.InDelta(t, 100.0, a.Findings[0].Score, 0.0001)
}
