// Package workspace persists the state of a multi-chain audit session.
package workspace

import (
	"strings"
	"time"
)

// Vulnerability is a stored finding. It is independent of the consensus
// engine so any source can record vulnerabilities.
type Vulnerability struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Severity       string    `json:"severity"`
	Confidence     string    `json:"confidence,omitempty"`
	Score          float64   `json:"score,omitempty"`
	Tools          []string  `json:"tools,omitempty"`
	File           string    `json:"file,omitempty"`
	Line           int       `json:"line,omitempty"`
	Class          string    `json:"class,omitempty"`
	Recommendation string    `json:"recommendation,omitempty"`
	DetectedAt     time.Time `json:"detected_at"`
}

// ContractRecord is the canonical metadata for one (address, chain) pair.
type ContractRecord struct {
	Address  string            `json:"address"`
	Chain    string            `json:"chain"`
	Metadata map[string]string `json:"metadata,omitempty"`
	AddedAt  time.Time         `json:"added_at"`
}

// ReportRef points at the report written for one (address, chain) pair.
type ReportRef struct {
	Address   string    `json:"address"`
	Chain     string    `json:"chain"`
	Path      string    `json:"path"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ChainState is the per-chain bucket.
//
// Contracts is append-only and may contain the same address more than
// once. Vulnerabilities is the flattened, never de-duplicated rollup of
// every AddVulnerabilities call on this chain.
type ChainState struct {
	Contracts       []string        `json:"contracts"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	Reports         []string        `json:"reports"`
}

// Workspace is the persisted aggregate for one audit session.
type Workspace struct {
	ID              string                               `json:"id"`
	CreatedAt       time.Time                            `json:"created_at"`
	UpdatedAt       time.Time                            `json:"updated_at"`
	Targets         []string                             `json:"targets"`
	Chains          map[string]*ChainState               `json:"chains"`
	Contracts       map[string]map[string]ContractRecord `json:"contracts"` // address -> chain -> record
	Vulnerabilities map[string][]Vulnerability           `json:"vulnerabilities"`
	Reports         map[string]ReportRef                 `json:"reports"`
}

// ContractKey identifies one contract deployment.
type ContractKey struct {
	Address string
	Chain   string
}

// String renders the key used in the persisted maps.
func (k ContractKey) String() string {
	return k.Address + "@" + k.Chain
}

// ParseContractKey reverses ContractKey.String.
func ParseContractKey(s string) (ContractKey, bool) {
	i := strings.LastIndex(s, "@")
	if i <= 0 || i == len(s)-1 {
		return ContractKey{}, false
	}
	return ContractKey{Address: s[:i], Chain: s[i+1:]}, true
}

func newWorkspace(id string, supported, targets []string, now time.Time) *Workspace {
	ws := &Workspace{
		ID:              id,
		CreatedAt:       now,
		UpdatedAt:       now,
		Targets:         append([]string{}, targets...),
		Chains:          make(map[string]*ChainState, len(supported)),
		Contracts:       make(map[string]map[string]ContractRecord),
		Vulnerabilities: make(map[string][]Vulnerability),
		Reports:         make(map[string]ReportRef),
	}
	for _, chain := range supported {
		ws.Chains[chain] = &ChainState{
			Contracts:       []string{},
			Vulnerabilities: []Vulnerability{},
			Reports:         []string{},
		}
	}
	return ws
}

// normalize fills nil maps left by older or hand-edited documents.
func (ws *Workspace) normalize() {
	if ws.Chains == nil {
		ws.Chains = make(map[string]*ChainState)
	}
	if ws.Contracts == nil {
		ws.Contracts = make(map[string]map[string]ContractRecord)
	}
	if ws.Vulnerabilities == nil {
		ws.Vulnerabilities = make(map[string][]Vulnerability)
	}
	if ws.Reports == nil {
		ws.Reports = make(map[string]ReportRef)
	}
}

// Stats summarizes a workspace.
type Stats struct {
	Chains int `json:"chains"`
	// ActiveChains counts chains with at least one tracked contract.
	ActiveChains int `json:"active_chains"`
	Contracts    int `json:"contracts"`
	// TotalVulnerabilities sums the current per-contract lists.
	TotalVulnerabilities int `json:"total_vulnerabilities"`
	// ChainVulnerabilities sums the chain-level rollups, which keep every
	// vulnerability ever added and so can exceed TotalVulnerabilities.
	ChainVulnerabilities int                   `json:"chain_vulnerabilities"`
	Reports              int                   `json:"reports"`
	BySeverity           map[string]int        `json:"by_severity"`
	PerChain             map[string]ChainStats `json:"per_chain"`
}

// ChainStats is the per-chain part of Stats.
type ChainStats struct {
	Contracts       int `json:"contracts"`
	Vulnerabilities int `json:"vulnerabilities"`
	Reports         int `json:"reports"`
}

func (ws *Workspace) stats() *Stats {
	s := &Stats{
		Chains:     len(ws.Chains),
		Reports:    len(ws.Reports),
		BySeverity: make(map[string]int),
		PerChain:   make(map[string]ChainStats, len(ws.Chains)),
	}
	for _, byChain := range ws.Contracts {
		s.Contracts += len(byChain)
	}
	for _, vulns := range ws.Vulnerabilities {
		s.TotalVulnerabilities += len(vulns)
		for _, v := range vulns {
			s.BySeverity[strings.ToLower(v.Severity)]++
		}
	}
	for name, cs := range ws.Chains {
		if cs == nil {
			continue
		}
		if len(cs.Contracts) > 0 {
			s.ActiveChains++
		}
		s.ChainVulnerabilities += len(cs.Vulnerabilities)
		s.PerChain[name] = ChainStats{
			Contracts:       len(cs.Contracts),
			Vulnerabilities: len(cs.Vulnerabilities),
			Reports:         len(cs.Reports),
		}
	}
	return s
}
