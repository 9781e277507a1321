package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity is the normalized severity claim of a finding.
// The zero value is invalid so that a missing severity is caught by Validate.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

// ParseSeverity maps analyzer severity labels onto the four-level scale.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical, nil
	case "high":
		return SeverityHigh, nil
	case "medium", "moderate":
		return SeverityMedium, nil
	case "low", "info", "informational", "optimization":
		return SeverityLow, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", s)
	}
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether s is one of the four known levels.
func (s Severity) Valid() bool {
	_, ok := severityNames[s]
	return ok
}

// MoreSevere reports whether s ranks above other.
func (s Severity) MoreSevere(other Severity) bool {
	return s > other
}

func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ConfidenceTier summarizes how strongly independent sources agree.
type ConfidenceTier int

const (
	TierLow ConfidenceTier = iota + 1
	TierMedium
	TierHigh
)

var tierNames = map[ConfidenceTier]string{
	TierLow:    "low",
	TierMedium: "medium",
	TierHigh:   "high",
}

func ParseTier(s string) (ConfidenceTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return TierLow, nil
	case "medium":
		return TierMedium, nil
	case "high":
		return TierHigh, nil
	default:
		return 0, fmt.Errorf("unknown confidence tier %q", s)
	}
}

func (t ConfidenceTier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

// Upgrade returns the next tier up, saturating at TierHigh.
func (t ConfidenceTier) Upgrade() ConfidenceTier {
	if t >= TierHigh {
		return TierHigh
	}
	if t < TierLow {
		return TierLow
	}
	return t + 1
}

func (t ConfidenceTier) MarshalText() ([]byte, error) {
	if _, ok := tierNames[t]; !ok {
		return nil, fmt.Errorf("invalid confidence tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *ConfidenceTier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Finding represents a normalized security finding from any analyzer
type Finding struct {
	Source         string   `json:"source"`
	File           string   `json:"file"`
	LineStart      int      `json:"line_start"`
	LineEnd        int      `json:"line_end,omitempty"` // 0 = single line
	Class          string   `json:"class,omitempty"`    // reentrancy / access-control / arithmetic / ...
	Severity       Severity `json:"severity"`
	RawConfidence  *float64 `json:"raw_confidence,omitempty"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// UnmarshalJSON decodes one raw finding. A severity label that is not
// recognized leaves Severity at its zero value instead of failing, so the
// finding is dropped by Validate while the rest of the input still merges.
func (f *Finding) UnmarshalJSON(data []byte) error {
	type plain Finding
	aux := struct {
		*plain
		Severity json.RawMessage `json:"severity"`
	}{plain: (*plain)(f)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	f.Severity = 0
	var label string
	if err := json.Unmarshal(aux.Severity, &label); err == nil {
		f.Severity, _ = ParseSeverity(label)
	}
	return nil
}

// IdentityKey groups findings believed to describe the same issue.
// It is deliberately coarse: two different issues on the same line with
// the same severity collapse into one group.
type IdentityKey struct {
	File      string
	LineStart int
	Severity  Severity
}

func (k IdentityKey) String() string {
	return fmt.Sprintf("%s:%d:%s", k.File, k.LineStart, k.Severity)
}

// Key derives the identity key of f.
func (f Finding) Key() IdentityKey {
	return IdentityKey{File: f.File, LineStart: f.LineStart, Severity: f.Severity}
}

// Validate checks the fields every finding must carry before grouping.
func (f Finding) Validate() error {
	switch {
	case strings.TrimSpace(f.File) == "":
		return &ValidationError{Source: f.Source, Field: "file", Reason: "missing"}
	case f.LineStart < 1:
		return &ValidationError{Source: f.Source, Field: "line_start", Reason: fmt.Sprintf("must be >= 1, got %d", f.LineStart)}
	case f.LineEnd != 0 && f.LineEnd < f.LineStart:
		return &ValidationError{Source: f.Source, Field: "line_end", Reason: "ends before line_start"}
	case !f.Severity.Valid():
		return &ValidationError{Source: f.Source, Field: "severity", Reason: "missing or unknown"}
	case strings.TrimSpace(f.Description) == "":
		return &ValidationError{Source: f.Source, Field: "description", Reason: "missing"}
	}
	return nil
}

// ValidationError describes a malformed finding. Combine drops such
// findings locally and never returns this error to its caller.
type ValidationError struct {
	Source string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("invalid finding from %s: %s %s", e.Source, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid finding: %s %s", e.Field, e.Reason)
}

// Resolution records which path produced a ConsensusFinding.
type Resolution string

const (
	ResolutionSingle     Resolution = "single"
	ResolutionConsensus  Resolution = "consensus"
	ResolutionOverride   Resolution = "override"
	ResolutionUnresolved Resolution = "unresolved"
)

// ConsensusFinding is the merged, confidence-scored record for one identity key.
type ConsensusFinding struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Severity       Severity       `json:"severity"`
	File           string         `json:"file"`
	LineStart      int            `json:"line_start"`
	LineEnd        int            `json:"line_end,omitempty"`
	Class          string         `json:"class,omitempty"`
	Tools          []string       `json:"contributing_tools"`
	Tier           ConfidenceTier `json:"confidence_tier"`
	Score          float64        `json:"confidence_score"`
	Recommendation string         `json:"recommendation,omitempty"`
	Resolution     Resolution     `json:"resolution"`
}

// Key returns the identity key the finding was merged under.
func (c ConsensusFinding) Key() IdentityKey {
	return IdentityKey{File: c.File, LineStart: c.LineStart, Severity: c.Severity}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
