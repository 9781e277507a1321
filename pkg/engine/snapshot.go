package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Snapshot is a saved set of consensus findings used as a baseline.
type Snapshot struct {
	TakenAt  time.Time          `json:"taken_at"`
	Findings []ConsensusFinding `json:"findings"`
}

// SnapshotDiff splits current findings against a baseline.
type SnapshotDiff struct {
	New       []ConsensusFinding
	Fixed     []ConsensusFinding
	Unchanged []ConsensusFinding
}

// SaveSnapshot writes the current kept findings to path.
func (g *UnifiedGraph) SaveSnapshot(path string) error {
	snap := Snapshot{TakenAt: time.Now().UTC(), Findings: g.Analyze().Findings}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// LoadSnapshot reads a snapshot previously written by SaveSnapshot.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// CompareSnapshot diffs the graph's kept findings against baseline.
// Findings are matched by identity, so a finding whose score changed is
// still unchanged.
func (g *UnifiedGraph) CompareSnapshot(baseline *Snapshot) SnapshotDiff {
	return Diff(g.Analyze().Findings, baseline.Findings)
}

// Diff compares two finding lists by ID.
func Diff(current, baseline []ConsensusFinding) SnapshotDiff {
	var diff SnapshotDiff
	base := make(map[string]bool, len(baseline))
	for _, f := range baseline {
		base[f.ID] = true
	}
	cur := make(map[string]bool, len(current))
	for _, f := range current {
		cur[f.ID] = true
		if base[f.ID] {
			diff.Unchanged = append(diff.Unchanged, f)
		} else {
			diff.New = append(diff.New, f)
		}
	}
	for _, f := range baseline {
		if !cur[f.ID] {
			diff.Fixed = append(diff.Fixed, f)
		}
	}
	return diff
}
