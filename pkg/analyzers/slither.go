package analyzers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/user/chainsec-adk/pkg/engine"
)

// Slither runs the Slither static analyzer.
type Slither struct {
	Command Command
}

// NewSlither returns a Slither analyzer using cmd; an empty binary
// defaults to "slither".
func NewSlither(cmd Command) *Slither {
	if cmd.Binary == "" {
		cmd.Binary = "slither"
	}
	return &Slither{Command: cmd}
}

func (s *Slither) Name() string { return engine.SourceSlither }

// Analyze runs slither on target (a file or project directory).
func (s *Slither) Analyze(ctx context.Context, target string) ([]engine.Finding, error) {
	out, err := s.Command.run(ctx, "", target, "--json", "-")
	if err != nil {
		return nil, err
	}
	return ParseSlither(out)
}

type slitherOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Results struct {
		Detectors []slitherDetector `json:"detectors"`
	} `json:"results"`
}

type slitherDetector struct {
	Check       string           `json:"check"`
	Impact      string           `json:"impact"`
	Confidence  string           `json:"confidence"`
	Description string           `json:"description"`
	Elements    []slitherElement `json:"elements"`
}

type slitherElement struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	SourceMapping struct {
		Filename         string `json:"filename_relative"`
		FilenameAbsolute string `json:"filename_absolute"`
		Lines            []int  `json:"lines"`
	} `json:"source_mapping"`
}

var slitherConfidence = map[string]float64{
	"high":   0.9,
	"medium": 0.6,
	"low":    0.3,
}

// ParseSlither normalizes `slither --json` output.
func ParseSlither(data []byte) ([]engine.Finding, error) {
	var out slitherOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse slither output: %w", err)
	}
	if !out.Success && out.Error != "" {
		return nil, fmt.Errorf("slither failed: %s", out.Error)
	}

	var findings []engine.Finding
	for _, d := range out.Results.Detectors {
		sev, err := engine.ParseSeverity(d.Impact)
		if err != nil {
			log.Debug().Str("check", d.Check).Str("impact", d.Impact).Msg("Skipping slither result with unknown impact")
			continue
		}
		file, start, end := slitherLocation(d.Elements)
		f := engine.Finding{
			Source:      engine.SourceSlither,
			File:        file,
			LineStart:   start,
			LineEnd:     end,
			Class:       slitherClass(d.Check),
			Severity:    sev,
			Description: strings.TrimSpace(d.Description),
		}
		if c, ok := slitherConfidence[strings.ToLower(d.Confidence)]; ok {
			f.RawConfidence = &c
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// slitherLocation uses the first element that carries line information.
func slitherLocation(elements []slitherElement) (file string, start, end int) {
	for _, e := range elements {
		lines := e.SourceMapping.Lines
		if len(lines) == 0 {
			continue
		}
		file = e.SourceMapping.Filename
		if file == "" {
			file = e.SourceMapping.FilenameAbsolute
		}
		start, end = lines[0], lines[0]
		for _, l := range lines {
			if l < start {
				start = l
			}
			if l > end {
				end = l
			}
		}
		if end == start {
			end = 0
		}
		return file, start, end
	}
	return "", 0, 0
}
