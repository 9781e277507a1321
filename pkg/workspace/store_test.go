package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testChains = []string{"ethereum", "bnb", "polygon", "arbitrum"}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var mu sync.Mutex
	s, err := NewStore(t.TempDir(), testChains, WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}))
	require.NoError(t, err)
	return s
}

func vuln(title string) Vulnerability {
	return Vulnerability{Title: title, Severity: "high"}
}

func TestCreate_InitializesEverySupportedChain(t *testing.T) {
	s := newTestStore(t)

	ws, err := s.Create("w1", []string{"ethereum", "BNB"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ethereum", "bnb"}, ws.Targets)
	assert.Len(t, ws.Chains, len(testChains))

	loaded, err := s.Load("w1")
	require.NoError(t, err)
	for _, c := range testChains {
		require.Contains(t, loaded.Chains, c)
		assert.Empty(t, loaded.Chains[c].Contracts)
	}
	assert.True(t, ws.CreatedAt.Equal(loaded.CreatedAt))
}

func TestCreate_AlreadyExists(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create("w1", []string{"ethereum"})
	require.NoError(t, err)

	_, err = s.Create("w1", []string{"bnb"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreate_Rejects(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create("w1", []string{"solana"})
	assert.ErrorIs(t, err, ErrUnsupportedChain)

	for _, id := range []string{"", "..", "../escape", "a/b", ".hidden"} {
		_, err := s.Create(id, nil)
		assert.ErrorIs(t, err, ErrInvalidID, id)
	}
}

func TestAddVulnerabilities_ReplaceVersusAppend(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("w1", []string{"ethereum", "bnb"})
	require.NoError(t, err)

	require.NoError(t, s.AddVulnerabilities("w1", "0xAA", "ethereum", []Vulnerability{vuln("v1"), vuln("v2")}))
	require.NoError(t, s.AddVulnerabilities("w1", "0xAA", "ethereum", []Vulnerability{vuln("v3")}))

	stats, err := s.Stats("w1")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.TotalVulnerabilities)
	assert.Equal(t, 3, stats.ChainVulnerabilities)

	current, err := s.Vulnerabilities("w1", "0xAA", "ethereum")
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "v3", current[0].Title)
	assert.NotEmpty(t, current[0].ID)
	assert.False(t, current[0].DetectedAt.IsZero())

	rollup, err := s.ChainVulnerabilities("w1", "ethereum")
	require.NoError(t, err)
	var titles []string
	for _, v := range rollup {
		titles = append(titles, v.Title)
	}
	assert.Equal(t, []string{"v1", "v2", "v3"}, titles)
}

func TestStats_SumsCurrentPerContractLists(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("w1", nil)
	require.NoError(t, err)

	calls := []struct {
		addr, chain string
		n           int
	}{
		{"0x1", "ethereum", 3},
		{"0x2", "ethereum", 2},
		{"0x1", "bnb", 4},
		{"0x1", "ethereum", 1},
		{"0x2", "ethereum", 0},
	}
	for _, c := range calls {
		vulns := make([]Vulnerability, c.n)
		for i := range vulns {
			vulns[i] = vuln("x")
		}
		require.NoError(t, s.AddVulnerabilities("w1", c.addr, c.chain, vulns))
	}

	stats, err := s.Stats("w1")
	require.NoError(t, err)
	assert.Equal(t, 1+0+4, stats.TotalVulnerabilities)
	assert.Equal(t, 3+2+4+1, stats.ChainVulnerabilities)
	assert.Equal(t, 5, stats.BySeverity["high"])
}

func TestAddContract_LatestMetadataWinsAndListGrows(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("w1", []string{"ethereum"})
	require.NoError(t, err)

	require.NoError(t, s.AddContract("w1", "0xAA", "ethereum", map[string]string{"name": "Old"}))
	first, err := s.Contract("w1", "0xAA", "ethereum")
	require.NoError(t, err)

	require.NoError(t, s.AddContract("w1", "0xAA", "ethereum", map[string]string{"name": "Vault"}))
	second, err := s.Contract("w1", "0xAA", "ethereum")
	require.NoError(t, err)

	assert.Equal(t, "Vault", second.Metadata["name"])
	assert.True(t, second.AddedAt.After(first.AddedAt))

	ws, err := s.Load("w1")
	require.NoError(t, err)
	assert.Len(t, ws.Contracts, 1)
	assert.Len(t, ws.Contracts["0xaa"], 1)
	assert.Equal(t, []string{"0xaa", "0xaa"}, ws.Chains["ethereum"].Contracts)

	stats, err := s.Stats("w1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Contracts)
	assert.Equal(t, 1, stats.ActiveChains)
	assert.Equal(t, 2, stats.PerChain["ethereum"].Contracts)
}

func TestAddReport_WritesFileAndIndexes(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("w1", []string{"bnb"})
	require.NoError(t, err)

	ref, err := s.AddReport("w1", "0xAb/../Cd", "bnb", "# Report\n")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "w1", "reports", "bnb", "0xAb_2f_2e_2e_2fCd.md"), ref.Path)

	body, err := os.ReadFile(ref.Path)
	require.NoError(t, err)
	assert.Equal(t, "# Report\n", string(body))

	_, err = s.AddReport("w1", "0xAb/../Cd", "bnb", "# Report v2\n")
	require.NoError(t, err)

	ws, err := s.Load("w1")
	require.NoError(t, err)
	key := ContractKey{Address: "0xAb/../Cd", Chain: "bnb"}.String()
	assert.Equal(t, "# Report v2\n", ws.Reports[key].Body)
	assert.Equal(t, []string{key, key}, ws.Chains["bnb"].Reports)

	stats, err := s.Stats("w1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Reports)
}

func TestMutations_NotFound(t *testing.T) {
	s := newTestStore(t)

	assert.ErrorIs(t, s.AddContract("missing", "0x1", "ethereum", nil), ErrNotFound)
	assert.ErrorIs(t, s.AddVulnerabilities("missing", "0x1", "ethereum", nil), ErrNotFound)
	_, err := s.AddReport("missing", "0x1", "ethereum", "x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete("missing"), ErrNotFound)

	_, err = s.Create("w1", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, s.AddContract("w1", "0x1", "solana", nil), ErrNotFound)
	_, err = s.Contract("w1", "0x1", "ethereum")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStats_MissingWorkspaceIsNil(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.Stats("missing")
	assert.NoError(t, err)
	assert.Nil(t, stats)
}

func TestLoad_CorruptDocumentIsPersistenceError(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("w1", nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "w1", documentName), []byte("{not json"), 0600))

	_, err = s.Load("w1")
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "load", perr.Op)

	_, err = s.Stats("w1")
	assert.Error(t, err)
}

func TestResumeAcrossStoreInstances(t *testing.T) {
	dir := t.TempDir()
	first, err := NewStore(dir, testChains)
	require.NoError(t, err)
	_, err = first.Create("session", []string{"ethereum"})
	require.NoError(t, err)
	require.NoError(t, first.AddContract("session", "0xAA", "ethereum", nil))

	second, err := NewStore(dir, testChains)
	require.NoError(t, err)
	require.NoError(t, second.AddVulnerabilities("session", "0xAA", "ethereum", []Vulnerability{vuln("v1")}))

	stats, err := second.Stats("session")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Contracts)
	assert.Equal(t, 1, stats.TotalVulnerabilities)
}

func TestListAndDelete(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"b", "a"} {
		_, err := s.Create(id, nil)
		require.NoError(t, err)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(s.Dir(), "stray"), 0700))

	ids, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, s.Delete("a"))
	assert.False(t, s.Exists("a"))
	ids, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestConcurrentWritersSameID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("w1", []string{"ethereum"})
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AddContract("w1", "0xAA", "ethereum", nil))
		}()
	}
	wg.Wait()

	ws, err := s.Load("w1")
	require.NoError(t, err)
	assert.Len(t, ws.Chains["ethereum"].Contracts, writers)

	entries, err := os.ReadDir(filepath.Join(s.Dir(), "w1"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "temp files must be renamed away")
	}
}

func TestContractKeyRoundTrip(t *testing.T) {
	k := ContractKey{Address: "0xAA", Chain: "ethereum"}
	parsed, ok := ParseContractKey(k.String())
	require.True(t, ok)
	assert.Equal(t, k, parsed)

	_, ok = ParseContractKey("nochain@")
	assert.False(t, ok)
}

func TestAddressSpellingsShareRecord(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("w1", []string{"ethereum"})
	require.NoError(t, err)

	require.NoError(t, s.AddContract("w1", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "ethereum", nil))
	require.NoError(t, s.AddVulnerabilities("w1", "0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED", "ethereum", []Vulnerability{vuln("v1")}))

	rec, err := s.Contract("w1", " 0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed ", "ethereum")
	require.NoError(t, err)
	assert.Equal(t, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", rec.Address)

	vulns, err := s.Vulnerabilities("w1", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "ethereum")
	require.NoError(t, err)
	assert.Len(t, vulns, 1)

	stats, err := s.Stats("w1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Contracts)
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xabcdef", NormalizeAddress(" 0XAbCdEf "))
	assert.Equal(t, "0xBank", NormalizeAddress("0xBank"))
	assert.Equal(t, "So1anaBase58Addr", NormalizeAddress("So1anaBase58Addr"))
	assert.Equal(t, "0x", NormalizeAddress("0x"))
}

func TestSanitizeAddress_Distinct(t *testing.T) {
	names := map[string]string{}
	for _, addr := range []string{"0xab.cd", "0xab_cd", "0xab/cd", "0xab-cd", "0xabcd"} {
		name := SanitizeAddress(addr)
		prev, dup := names[name]
		assert.False(t, dup, "%q and %q share file name %q", prev, addr, name)
		names[name] = addr
		assert.NotContains(t, name, "/")
		assert.NotContains(t, name, ".")
	}
	assert.Equal(t, "unknown", SanitizeAddress("  "))
	assert.Equal(t, "0xab_2ecd", SanitizeAddress("0xab.cd"))
}

func TestLocksReleasedAfterUse(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("w1", []string{"ethereum"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AddContract("w1", "0xAA", "ethereum", nil))
		}()
	}
	wg.Wait()
	require.NoError(t, s.Delete("w1"))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.locks)
}
