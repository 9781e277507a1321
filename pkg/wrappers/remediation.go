package wrappers

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/chainsec-adk/pkg/engine"
)

// RemediationWrapper implements the Tool interface for generating remediation plans
type RemediationWrapper struct {
	Engine *engine.RemediationEngine
}

func (r *RemediationWrapper) Name() string {
	return "GenerateRemediation"
}

func (r *RemediationWrapper) Description() string {
	return "Generates a remediation plan for a vulnerability. Pass a template_id or a vulnerability class such as reentrancy; with neither, lists the available templates."
}

func (r *RemediationWrapper) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"template_id": map[string]interface{}{
				"type":        "string",
				"description": "The ID of the remediation template to use.",
			},
			"class": map[string]interface{}{
				"type":        "string",
				"description": "Vulnerability class to look a template up by, e.g. reentrancy or tx-origin.",
			},
			"file": map[string]interface{}{
				"type":        "string",
				"description": "Affected file, substituted into the plan.",
			},
			"line": map[string]interface{}{
				"type":        "integer",
				"description": "Affected line, substituted into the plan.",
			},
		},
	}
}

func (r *RemediationWrapper) Execute(ctx context.Context, args map[string]interface{}, progress func(string)) (string, error) {
	if r.Engine == nil {
		return "Error: Remediation engine not initialized.", nil
	}

	templateID := stringArg(args, "template_id")
	if class := stringArg(args, "class"); templateID == "" && class != "" {
		t, ok := r.Engine.ForClass(class)
		if !ok {
			return fmt.Sprintf("No remediation template for class %q.", class), nil
		}
		templateID = t.ID
	}

	if templateID == "" {
		templates := r.Engine.ListTemplates()
		if len(templates) == 0 {
			return "No remediation templates found.", nil
		}
		return fmt.Sprintf("Available Remediation Templates:\n- %s", strings.Join(templates, "\n- ")), nil
	}

	vars := map[string]string{
		"File": stringArg(args, "file"),
		"Line": stringArg(args, "line"),
	}
	if v, ok := args["variables"].(map[string]interface{}); ok {
		for k, val := range v {
			vars[k] = fmt.Sprint(val)
		}
	}

	if progress != nil {
		progress(fmt.Sprintf("Generating remediation plan for %s...", templateID))
	}

	plan, err := r.Engine.GeneratePlan(templateID, vars)
	if err != nil {
		return fmt.Sprintf("Error generating plan: %v", err), nil
	}
	return plan, nil
}
