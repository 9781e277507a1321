package adk

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// Tool represents an executable action for the agent
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, args map[string]interface{}, progress func(string)) (string, error)
	Schema() map[string]interface{} // JSON schema for arguments
}

// ToolCall represents a request from the LLM to execute a tool
type ToolCall struct {
	ToolName string
	Args     map[string]interface{}
}

// Message represents a chat message
type Message struct {
	Role    string // "system", "user", "model", "function"
	Content string
}

// LLMProvider defines the interface for different AI models
type LLMProvider interface {
	GenerateResponse(ctx context.Context, history []Message, tools []Tool) (string, *ToolCall, error)
	ListModels(ctx context.Context) ([]string, error)
}

// ErrTooManySteps is returned when the model keeps requesting tools.
var ErrTooManySteps = errors.New("agent exceeded maximum tool steps")

const defaultMaxSteps = 12

// Agent is the chat loop that lets a model drive the audit tools.
type Agent struct {
	llm      LLMProvider
	tools    map[string]Tool
	system   string
	history  []Message
	MaxSteps int
}

// NewAgent creates a new agent with the given LLM provider
func NewAgent(llm LLMProvider) *Agent {
	return &Agent{
		llm:      llm,
		tools:    make(map[string]Tool),
		MaxSteps: defaultMaxSteps,
	}
}

// RegisterTool adds a tool to the agent's registry
func (a *Agent) RegisterTool(t Tool) {
	a.tools[t.Name()] = t
}

// SetSystemPrompt sets the instruction sent ahead of the conversation.
func (a *Agent) SetSystemPrompt(prompt string) {
	a.system = prompt
}

// Tools returns the registered tools ordered by name.
func (a *Agent) Tools() []Tool {
	out := make([]Tool, 0, len(a.tools))
	for _, t := range a.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// History returns a copy of the conversation so far.
func (a *Agent) History() []Message {
	return append([]Message(nil), a.history...)
}

// Reset clears the conversation.
func (a *Agent) Reset() {
	a.history = nil
}

func (a *Agent) messages() []Message {
	if a.system == "" {
		return a.history
	}
	return append([]Message{{Role: "system", Content: a.system}}, a.history...)
}

// Chat sends a message to the agent and returns the response
func (a *Agent) Chat(ctx context.Context, input string, progress func(string)) (string, error) {
	a.history = append(a.history, Message{Role: "user", Content: input})

	toolList := a.Tools()
	for step := 0; step < a.MaxSteps; step++ {
		respText, toolCall, err := a.llm.GenerateResponse(ctx, a.messages(), toolList)
		if err != nil {
			return "", err
		}

		if toolCall == nil {
			a.history = append(a.history, Message{Role: "model", Content: respText})
			return respText, nil
		}

		log.Debug().Str("tool", toolCall.ToolName).Interface("args", toolCall.Args).Msg("Executing tool")

		a.history = append(a.history, Message{
			Role:    "model",
			Content: fmt.Sprintf("I will call tool %s with args %v", toolCall.ToolName, toolCall.Args),
		})

		tool, exists := a.tools[toolCall.ToolName]
		if !exists {
			a.history = append(a.history, Message{Role: "function", Content: fmt.Sprintf("Error: Tool %s not found", toolCall.ToolName)})
			continue
		}

		result, err := tool.Execute(ctx, toolCall.Args, progress)
		if err != nil {
			log.Warn().Str("tool", toolCall.ToolName).Err(err).Msg("Tool failed")
			result = fmt.Sprintf("Error executing tool: %v", err)
		}

		a.history = append(a.history, Message{
			Role:    "function",
			Content: fmt.Sprintf("Tool %s returned: %s", toolCall.ToolName, result),
		})
	}
	return "", ErrTooManySteps
}
