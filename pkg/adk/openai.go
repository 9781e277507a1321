package adk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const openAIBaseURL = "https://api.openai.com/v1"

type OpenAIProvider struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIProvider{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: openAIBaseURL,
		Client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]string, error) {
	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := p.do(ctx, http.MethodGet, "/models", nil, &result); err != nil {
		return nil, err
	}

	var models []string
	for _, m := range result.Data {
		if strings.HasPrefix(m.ID, "gpt-") || strings.HasPrefix(m.ID, "o") {
			models = append(models, m.ID)
		}
	}
	return models, nil
}

type openAIMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// GenerateResponse calls the chat completions endpoint with the tools
// exposed as functions.
func (p *OpenAIProvider) GenerateResponse(ctx context.Context, history []Message, tools []Tool) (string, *ToolCall, error) {
	req := openAIChatRequest{Model: p.Model}
	for _, msg := range history {
		role := msg.Role
		switch role {
		case "model":
			role = "assistant"
		case "function":
			role = "user"
		}
		req.Messages = append(req.Messages, openAIMessage{Role: role, Content: msg.Content})
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, openAITool{
			Type:     "function",
			Function: openAIToolFunction{Name: t.Name(), Description: t.Description(), Parameters: t.Schema()},
		})
	}

	var resp openAIChatResponse
	if err := p.do(ctx, http.MethodPost, "/chat/completions", req, &resp); err != nil {
		return "", nil, err
	}
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("openai: no choices in response")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		args := map[string]interface{}{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return "", nil, fmt.Errorf("openai: decode tool arguments: %w", err)
			}
		}
		return msg.Content, &ToolCall{ToolName: call.Function.Name, Args: args}, nil
	}
	return msg.Content, nil, nil
}

func (p *OpenAIProvider) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(p.BaseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return doJSON(p.Client, req, "openai", out)
}

// doJSON sends req and decodes a 2xx JSON body into out.
func doJSON(client *http.Client, req *http.Request, provider string, out interface{}) error {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s API returned status %s: %s", provider, resp.Status, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", provider, err)
	}
	return nil
}
