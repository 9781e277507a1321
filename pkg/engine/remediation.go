package engine

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// RemediationTemplate describes how to fix one family of vulnerability classes
type RemediationTemplate struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Classes        []string `yaml:"classes"`
	Issue          string   `yaml:"issue"`
	Risk           string   `yaml:"risk"`
	Reference      string   `yaml:"reference"` // SWC / CWE id
	Recommendation string   `yaml:"recommendation"`
	Variables      []string `yaml:"variables"`
}

// RemediationEngine manages remediation templates
type RemediationEngine struct {
	Templates map[string]RemediationTemplate
	byClass   map[string]string
}

// NewRemediationEngine creates an engine preloaded with the built-in templates.
func NewRemediationEngine() *RemediationEngine {
	e := &RemediationEngine{
		Templates: make(map[string]RemediationTemplate),
		byClass:   make(map[string]string),
	}
	for _, t := range builtinTemplates {
		e.Register(t)
	}
	return e
}

var builtinTemplates = []RemediationTemplate{
	{
		ID:             "reentrancy",
		Name:           "Reentrancy guard",
		Classes:        []string{"reentrancy", "reentrancy-eth", "reentrancy-no-eth", "reentrancy-benign"},
		Issue:          "External call before state update",
		Risk:           "Attacker re-enters and drains funds",
		Reference:      "SWC-107",
		Recommendation: "Apply checks-effects-interactions in {{.File}}:{{.Line}}: update state before the external call, or guard the function with a nonReentrant modifier.",
	},
	{
		ID:             "access-control",
		Name:           "Restrict privileged function",
		Classes:        []string{"access-control", "unprotected-upgrade", "arbitrary-send", "arbitrary-send-eth", "suicidal"},
		Issue:          "Privileged operation callable by anyone",
		Risk:           "Unauthorized fund movement or contract takeover",
		Reference:      "SWC-105",
		Recommendation: "Restrict the function at {{.File}}:{{.Line}} with an owner or role check (onlyOwner / AccessControl).",
	},
	{
		ID:             "tx-origin",
		Name:           "Replace tx.origin authentication",
		Classes:        []string{"tx-origin"},
		Issue:          "Authorization via tx.origin",
		Risk:           "Phishing contracts can act on behalf of the owner",
		Reference:      "SWC-115",
		Recommendation: "Use msg.sender instead of tx.origin for authorization at {{.File}}:{{.Line}}.",
	},
	{
		ID:             "unchecked-call",
		Name:           "Check low-level call results",
		Classes:        []string{"unchecked-call", "unchecked-lowlevel", "unchecked-send", "unchecked-transfer"},
		Issue:          "Return value of external call ignored",
		Risk:           "Silent failure leaves state inconsistent",
		Reference:      "SWC-104",
		Recommendation: "Check the boolean returned at {{.File}}:{{.Line}} and revert on failure, or use SafeERC20.",
	},
	{
		ID:             "arithmetic",
		Name:           "Guard arithmetic",
		Classes:        []string{"arithmetic", "integer-overflow", "integer-underflow", "divide-before-multiply"},
		Issue:          "Arithmetic may overflow or lose precision",
		Risk:           "Balances or prices computed incorrectly",
		Reference:      "SWC-101",
		Recommendation: "Compile with Solidity >=0.8 or use checked math, and multiply before dividing at {{.File}}:{{.Line}}.",
	},
}

// Register adds or replaces a template and indexes its classes.
func (e *RemediationEngine) Register(t RemediationTemplate) {
	e.Templates[t.ID] = t
	for _, c := range t.Classes {
		e.byClass[normalizeClass(c)] = t.ID
	}
}

// LoadTemplates reads YAML templates from a directory
func (e *RemediationEngine) LoadTemplates(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() && (filepath.Ext(entry.Name()) == ".yaml" || filepath.Ext(entry.Name()) == ".yml") {
			path := filepath.Join(dir, entry.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			var t RemediationTemplate
			if err := yaml.Unmarshal(data, &t); err != nil {
				return fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
			}
			if t.ID == "" {
				return fmt.Errorf("template %s has no id", entry.Name())
			}
			e.Register(t)
			log.Debug().Str("template", t.ID).Strs("classes", t.Classes).Msg("Loaded remediation template")
		}
	}
	return nil
}

// ListTemplates returns a list of available template IDs and descriptions
func (e *RemediationEngine) ListTemplates() []string {
	var list []string
	for _, t := range e.Templates {
		list = append(list, fmt.Sprintf("%s: %s", t.ID, t.Name))
	}
	sort.Strings(list)
	return list
}

// ForClass returns the template registered for a vulnerability class.
func (e *RemediationEngine) ForClass(class string) (RemediationTemplate, bool) {
	id, ok := e.byClass[normalizeClass(class)]
	if !ok {
		return RemediationTemplate{}, false
	}
	t, ok := e.Templates[id]
	return t, ok
}

// Apply fills in recommendations for findings that have none and whose
// class has a template. Findings are returned in the same order.
func (e *RemediationEngine) Apply(findings []ConsensusFinding) []ConsensusFinding {
	out := make([]ConsensusFinding, len(findings))
	for i, f := range findings {
		out[i] = f
		if strings.TrimSpace(f.Recommendation) != "" {
			continue
		}
		t, ok := e.ForClass(f.Class)
		if !ok {
			continue
		}
		rec, err := renderString(t.ID, t.Recommendation, map[string]string{
			"File":  f.File,
			"Line":  fmt.Sprint(f.LineStart),
			"Title": f.Title,
			"Class": f.Class,
		})
		if err != nil {
			log.Warn().Err(err).Str("template", t.ID).Msg("Failed to render remediation")
			continue
		}
		out[i].Recommendation = rec
	}
	return out
}

// GeneratePlan creates a remediation plan from a template and variables
func (e *RemediationEngine) GeneratePlan(id string, vars map[string]string) (string, error) {
	tmpl, ok := e.Templates[id]
	if !ok {
		return "", fmt.Errorf("template not found: %s", id)
	}

	for _, requiredVar := range tmpl.Variables {
		if _, exists := vars[requiredVar]; !exists {
			return "", fmt.Errorf("missing required variable: %s", requiredVar)
		}
	}

	rec, err := renderString("recommendation", tmpl.Recommendation, vars)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("[FIX PLAN]\n")
	sb.WriteString(fmt.Sprintf("Issue: %s\n", tmpl.Issue))
	sb.WriteString(fmt.Sprintf("Risk: %s\n", tmpl.Risk))
	if tmpl.Reference != "" {
		sb.WriteString(fmt.Sprintf("Reference: %s\n", tmpl.Reference))
	}
	sb.WriteString("\nSuggested Fix:\n")
	sb.WriteString(rec + "\n")

	return sb.String(), nil
}

func renderString(name, tmplStr string, vars map[string]string) (string, error) {
	t, err := template.New(name).Option("missingkey=zero").Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.String(), nil
}
