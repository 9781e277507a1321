package adk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

type AnthropicProvider struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Client    *http.Client
}

func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	return &AnthropicProvider{
		APIKey:    apiKey,
		Model:     model,
		BaseURL:   anthropicBaseURL,
		MaxTokens: 4096,
		Client:    &http.Client{Timeout: 2 * time.Minute},
	}
}

func (p *AnthropicProvider) ListModels(ctx context.Context) ([]string, error) {
	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	req, err := p.newRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}
	if err := doJSON(p.Client, req, "anthropic", &result); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(result.Data))
	for _, m := range result.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type  string                 `json:"type"`
		Text  string                 `json:"text"`
		Name  string                 `json:"name"`
		Input map[string]interface{} `json:"input"`
	} `json:"content"`
}

// GenerateResponse calls the Messages API. Consecutive messages with the
// same role are joined since the API requires alternating turns.
func (p *AnthropicProvider) GenerateResponse(ctx context.Context, history []Message, tools []Tool) (string, *ToolCall, error) {
	body := anthropicRequest{Model: p.Model, MaxTokens: p.MaxTokens}
	for _, msg := range history {
		if msg.Role == "system" {
			body.System = msg.Content
			continue
		}
		role := "user"
		if msg.Role == "model" {
			role = "assistant"
		}
		if n := len(body.Messages); n > 0 && body.Messages[n-1].Role == role {
			body.Messages[n-1].Content += "\n\n" + msg.Content
			continue
		}
		body.Messages = append(body.Messages, anthropicMessage{Role: role, Content: msg.Content})
	}
	for _, t := range tools {
		schema := t.Schema()
		if schema == nil {
			schema = map[string]interface{}{"type": "object"}
		}
		body.Tools = append(body.Tools, anthropicTool{Name: t.Name(), Description: t.Description(), InputSchema: schema})
	}

	req, err := p.newRequest(ctx, http.MethodPost, "/messages", body)
	if err != nil {
		return "", nil, err
	}
	var resp anthropicResponse
	if err := doJSON(p.Client, req, "anthropic", &resp); err != nil {
		return "", nil, err
	}

	var text strings.Builder
	var call *ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			if call == nil {
				call = &ToolCall{ToolName: block.Name, Args: block.Input}
			}
		}
	}
	if call == nil && text.Len() == 0 {
		return "", nil, fmt.Errorf("anthropic: empty response")
	}
	return text.String(), call, nil
}

func (p *AnthropicProvider) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(p.BaseURL, "/")+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", p.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
