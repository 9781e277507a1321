package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	documentName = "workspace.json"
	reportsDir   = "reports"
)

// Store keeps one JSON document per workspace under dir.
//
// Every mutation is a full read-modify-write of the document, written to a
// temporary file and renamed into place. Writers to the same id inside one
// process are serialized by a per-id mutex; separate processes sharing a
// directory must coordinate themselves.
type Store struct {
	dir       string
	supported []string
	chainSet  map[string]bool
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*idLock
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore opens (creating if needed) a workspace directory. chains is the
// global list of supported chains; every new workspace gets a bucket for
// each of them.
func NewStore(dir string, chains []string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("workspace directory is required")
	}
	s := &Store{
		dir:      dir,
		chainSet: make(map[string]bool),
		now:      func() time.Time { return time.Now().UTC() },
		locks:    make(map[string]*idLock),
	}
	for _, c := range chains {
		c = normalizeChain(c)
		if c == "" || s.chainSet[c] {
			continue
		}
		s.chainSet[c] = true
		s.supported = append(s.supported, c)
	}
	if len(s.supported) == 0 {
		return nil, errors.New("at least one supported chain is required")
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, &PersistenceError{Op: "init", Path: dir, Err: err}
	}
	return s, nil
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string { return s.dir }

// SupportedChains returns a copy of the supported chain list.
func (s *Store) SupportedChains() []string {
	return append([]string(nil), s.supported...)
}

// Create initializes a new workspace. It fails with ErrAlreadyExists when
// id already has persisted state.
func (s *Store) Create(id string, chains []string) (*Workspace, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	targets := make([]string, 0, len(chains))
	for _, c := range chains {
		c = normalizeChain(c)
		if !s.chainSet[c] {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedChain, c)
		}
		targets = append(targets, c)
	}

	unlock := s.lock(id)
	defer unlock()

	path := s.documentPath(id)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, &PersistenceError{Op: "load", Path: path, Err: err}
	}

	ws := newWorkspace(id, s.supported, targets, s.now())
	if err := s.save(ws); err != nil {
		return nil, err
	}
	log.Info().Str("workspace", id).Strs("targets", targets).Msg("Created workspace")
	return ws, nil
}

// Load reads a workspace document.
func (s *Store) Load(id string) (*Workspace, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	path := s.documentPath(id)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("workspace %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", Path: path, Err: err}
	}
	var ws Workspace
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, &PersistenceError{Op: "load", Path: path, Err: err}
	}
	ws.normalize()
	return &ws, nil
}

// Exists reports whether id has persisted state.
func (s *Store) Exists(id string) bool {
	if validateID(id) != nil {
		return false
	}
	_, err := os.Stat(s.documentPath(id))
	return err == nil
}

// List returns the ids of all persisted workspaces, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Path: s.dir, Err: err}
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || validateID(e.Name()) != nil {
			continue
		}
		if _, err := os.Stat(s.documentPath(e.Name())); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a workspace and every report written for it.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	unlock := s.lock(id)
	defer unlock()

	if !s.Exists(id) {
		return fmt.Errorf("workspace %q: %w", id, ErrNotFound)
	}
	root := filepath.Join(s.dir, id)
	if err := os.RemoveAll(root); err != nil {
		return &PersistenceError{Op: "delete", Path: root, Err: err}
	}
	log.Info().Str("workspace", id).Msg("Deleted workspace")
	return nil
}

// AddContract records metadata for (address, chain), replacing any earlier
// record, and appends address to the chain's contract list even when it is
// already present.
func (s *Store) AddContract(id, address, chain string, metadata map[string]string) error {
	address, chain = NormalizeAddress(address), normalizeChain(chain)
	if address == "" {
		return errors.New("contract address is required")
	}
	return s.mutate(id, func(ws *Workspace, now time.Time) error {
		cs, err := chainState(ws, chain)
		if err != nil {
			return err
		}
		if ws.Contracts[address] == nil {
			ws.Contracts[address] = make(map[string]ContractRecord)
		}
		ws.Contracts[address][chain] = ContractRecord{
			Address:  address,
			Chain:    chain,
			Metadata: copyMetadata(metadata),
			AddedAt:  now,
		}
		cs.Contracts = append(cs.Contracts, address)
		return nil
	})
}

// AddVulnerabilities replaces the per-contract list for (address, chain)
// with vulns and appends the same vulns to the chain-level rollup.
func (s *Store) AddVulnerabilities(id, address, chain string, vulns []Vulnerability) error {
	address, chain = NormalizeAddress(address), normalizeChain(chain)
	if address == "" {
		return errors.New("contract address is required")
	}
	return s.mutate(id, func(ws *Workspace, now time.Time) error {
		cs, err := chainState(ws, chain)
		if err != nil {
			return err
		}
		stored := make([]Vulnerability, len(vulns))
		for i, v := range vulns {
			if v.ID == "" {
				v.ID = uuid.NewString()
			}
			if v.DetectedAt.IsZero() {
				v.DetectedAt = now
			}
			stored[i] = v
		}
		ws.Vulnerabilities[ContractKey{Address: address, Chain: chain}.String()] = stored
		cs.Vulnerabilities = append(cs.Vulnerabilities, stored...)
		return nil
	})
}

// AddReport stores report text for (address, chain), appends the key to
// the chain's report list and writes the text to
// <dir>/<id>/reports/<chain>/<address>.md.
func (s *Store) AddReport(id, address, chain, body string) (ReportRef, error) {
	address, chain = NormalizeAddress(address), normalizeChain(chain)
	if address == "" {
		return ReportRef{}, errors.New("contract address is required")
	}
	var (
		ref      ReportRef
		written  bool
		previous []byte
		hadPrev  bool
	)
	err := s.mutate(id, func(ws *Workspace, now time.Time) error {
		cs, err := chainState(ws, chain)
		if err != nil {
			return err
		}
		key := ContractKey{Address: address, Chain: chain}.String()
		ref = ReportRef{
			Address:   address,
			Chain:     chain,
			Path:      s.ReportPath(id, address, chain),
			Body:      body,
			CreatedAt: now,
		}
		if err := os.MkdirAll(filepath.Dir(ref.Path), 0700); err != nil {
			return &PersistenceError{Op: "write_report", Path: ref.Path, Err: err}
		}
		if data, err := os.ReadFile(ref.Path); err == nil {
			previous, hadPrev = data, true
		}
		if err := writeFileAtomic(ref.Path, []byte(body), 0600); err != nil {
			return &PersistenceError{Op: "write_report", Path: ref.Path, Err: err}
		}
		written = true
		ws.Reports[key] = ref
		cs.Reports = append(cs.Reports, key)
		return nil
	})
	if err != nil {
		if written {
			// The document was not saved; put the report file back.
			if hadPrev {
				_ = writeFileAtomic(ref.Path, previous, 0600)
			} else {
				_ = os.Remove(ref.Path)
			}
		}
		return ReportRef{}, err
	}
	return ref, nil
}

// Stats summarizes a workspace. A missing workspace yields nil, nil.
func (s *Store) Stats(id string) (*Stats, error) {
	ws, err := s.Load(id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ws.stats(), nil
}

// Contract returns the canonical record for (address, chain).
func (s *Store) Contract(id, address, chain string) (ContractRecord, error) {
	ws, err := s.Load(id)
	if err != nil {
		return ContractRecord{}, err
	}
	address, chain = NormalizeAddress(address), normalizeChain(chain)
	rec, ok := ws.Contracts[address][chain]
	if !ok {
		return ContractRecord{}, fmt.Errorf("contract %s: %w", ContractKey{Address: address, Chain: chain}, ErrNotFound)
	}
	return rec, nil
}

// Vulnerabilities returns the current per-contract list.
func (s *Store) Vulnerabilities(id, address, chain string) ([]Vulnerability, error) {
	ws, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	key := ContractKey{Address: NormalizeAddress(address), Chain: normalizeChain(chain)}
	vulns, ok := ws.Vulnerabilities[key.String()]
	if !ok {
		return nil, fmt.Errorf("vulnerabilities for %s: %w", key, ErrNotFound)
	}
	return vulns, nil
}

// ChainVulnerabilities returns the chain-level rollup.
func (s *Store) ChainVulnerabilities(id, chain string) ([]Vulnerability, error) {
	ws, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	cs, err := chainState(ws, normalizeChain(chain))
	if err != nil {
		return nil, err
	}
	return cs.Vulnerabilities, nil
}

// ReportPath returns where the report for (address, chain) is written.
func (s *Store) ReportPath(id, address, chain string) string {
	return filepath.Join(s.dir, id, reportsDir, normalizeChain(chain), SanitizeAddress(NormalizeAddress(address))+".md")
}

func (s *Store) mutate(id string, fn func(ws *Workspace, now time.Time) error) error {
	if err := validateID(id); err != nil {
		return err
	}
	unlock := s.lock(id)
	defer unlock()

	ws, err := s.Load(id)
	if err != nil {
		return err
	}
	now := s.now()
	if err := fn(ws, now); err != nil {
		return err
	}
	ws.UpdatedAt = now
	return s.save(ws)
}

func (s *Store) save(ws *Workspace) error {
	path := s.documentPath(ws.ID)
	data, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "save", Path: path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return &PersistenceError{Op: "save", Path: path, Err: err}
	}
	if err := writeFileAtomic(path, data, 0600); err != nil {
		return &PersistenceError{Op: "save", Path: path, Err: err}
	}
	log.Debug().Str("workspace", ws.ID).Int("bytes", len(data)).Msg("Saved workspace")
	return nil
}

// idLock is a per-workspace mutex. refs counts holders and waiters so the
// entry can be dropped once nobody needs it.
type idLock struct {
	mu   sync.Mutex
	refs int
}

func (s *Store) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &idLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

func (s *Store) documentPath(id string) string {
	return filepath.Join(s.dir, id, documentName)
}

func chainState(ws *Workspace, chain string) (*ChainState, error) {
	cs, ok := ws.Chains[chain]
	if !ok || cs == nil {
		return nil, fmt.Errorf("chain %q in workspace %q: %w", chain, ws.ID, ErrNotFound)
	}
	return cs, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers never see a partial document.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	for _, r := range id {
		ok := r == '-' || r == '_' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
	}
	return nil
}

// NormalizeAddress trims address and lower-cases EVM hex addresses, so
// checksummed and plain spellings of one contract share a record. Other
// address formats (base58 and the like) are case-sensitive and kept as given.
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	hex, ok := strings.CutPrefix(address, "0x")
	if !ok {
		hex, ok = strings.CutPrefix(address, "0X")
	}
	if !ok || hex == "" {
		return address
	}
	for _, r := range hex {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return address
		}
	}
	return "0x" + strings.ToLower(hex)
}

// SanitizeAddress turns a contract address into a safe file name. Letters,
// digits and '-' are kept; every other byte, '_' included, becomes '_'
// followed by two hex digits, so distinct addresses never share a name.
// Addresses differing only in letter case still collide on case-insensitive
// file systems; EVM addresses avoid this through NormalizeAddress.
func SanitizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return "unknown"
	}
	var b strings.Builder
	for i := 0; i < len(address); i++ {
		c := address[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String()
}

func normalizeChain(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
