package wrappers

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/chainsec-adk/pkg/engine"
)

const DefaultSnapshotPath = ".chainsec-snapshot.json"

// SaveSnapshotWrapper implements the Tool interface for saving the current findings
type SaveSnapshotWrapper struct {
	Graph *engine.UnifiedGraph
}

func (s *SaveSnapshotWrapper) Name() string {
	return "SaveSnapshot"
}

func (s *SaveSnapshotWrapper) Description() string {
	return "Saves the current consensus findings to a snapshot file for future comparison."
}

func (s *SaveSnapshotWrapper) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"filename": map[string]interface{}{
				"type":        "string",
				"description": "Optional filename for the snapshot (default: .chainsec-snapshot.json)",
			},
		},
	}
}

func (s *SaveSnapshotWrapper) Execute(ctx context.Context, args map[string]interface{}, progress func(string)) (string, error) {
	if s.Graph == nil {
		return "Error: finding graph not initialized.", nil
	}

	filename := DefaultSnapshotPath
	if val := stringArg(args, "filename"); val != "" {
		filename = val
	}

	if err := s.Graph.SaveSnapshot(filename); err != nil {
		return fmt.Sprintf("Error saving snapshot: %v", err), nil
	}
	return fmt.Sprintf("Successfully saved %d findings to snapshot '%s'.", len(s.Graph.Analyze().Findings), filename), nil
}

// DiffSnapshotWrapper implements the Tool interface for comparing current findings with a baseline
type DiffSnapshotWrapper struct {
	Graph *engine.UnifiedGraph
}

func (d *DiffSnapshotWrapper) Name() string {
	return "CompareWithBaseline"
}

func (d *DiffSnapshotWrapper) Description() string {
	return "Compares the current consensus findings against a previously saved snapshot to identify New, Fixed, and Unchanged issues."
}

func (d *DiffSnapshotWrapper) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"filename": map[string]interface{}{
				"type":        "string",
				"description": "Optional filename of the baseline snapshot (default: .chainsec-snapshot.json)",
			},
		},
	}
}

const maxUnchangedListed = 10

func (d *DiffSnapshotWrapper) Execute(ctx context.Context, args map[string]interface{}, progress func(string)) (string, error) {
	if d.Graph == nil {
		return "Error: finding graph not initialized.", nil
	}

	filename := DefaultSnapshotPath
	if val := stringArg(args, "filename"); val != "" {
		filename = val
	}

	baseline, err := engine.LoadSnapshot(filename)
	if err != nil {
		return fmt.Sprintf("Error loading baseline snapshot '%s': %v. Have you run an audit and saved a snapshot before?", filename, err), nil
	}

	diff := d.Graph.CompareSnapshot(baseline)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Snapshot Comparison (vs %s):\n", filename))
	sb.WriteString("--------------------------------------------------\n")

	sb.WriteString(fmt.Sprintf("NEW ISSUES: %d\n", len(diff.New)))
	for _, f := range diff.New {
		sb.WriteString("  [+] " + diffLine(f))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("FIXED ISSUES: %d\n", len(diff.Fixed)))
	for _, f := range diff.Fixed {
		sb.WriteString("  [-] " + diffLine(f))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("UNCHANGED ISSUES: %d\n", len(diff.Unchanged)))
	for i, f := range diff.Unchanged {
		if i == maxUnchangedListed {
			sb.WriteString(fmt.Sprintf("  ... and %d more.\n", len(diff.Unchanged)-maxUnchangedListed))
			break
		}
		sb.WriteString("  [=] " + diffLine(f))
	}
	return sb.String(), nil
}

func diffLine(f engine.ConsensusFinding) string {
	return fmt.Sprintf("[%s] %s at %s:%d (%s)\n", strings.ToUpper(f.Severity.String()), f.Title, f.File, f.LineStart, strings.Join(f.Tools, ", "))
}
