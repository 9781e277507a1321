package adk

import (
	_ "embed"
)

//go:embed prompts/system_prompt.md
var systemPrompt string

//go:embed prompts/reasoner_prompt.md
var reasonerPrompt string

// GetSystemPrompt returns the default system prompt for the agent
func GetSystemPrompt() string {
	return systemPrompt
}
