package adk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiProvider(ctx context.Context, apiKey string, modelName string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	return &GeminiProvider{client: client, model: model}, nil
}

func (g *GeminiProvider) ListModels(ctx context.Context) ([]string, error) {
	iter := g.client.ListModels(ctx)
	var names []string
	for {
		m, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		if strings.Contains(m.Name, "gemini") {
			names = append(names, strings.TrimPrefix(m.Name, "models/"))
		}
	}
	return names, nil
}

func (g *GeminiProvider) GenerateResponse(ctx context.Context, history []Message, tools []Tool) (string, *ToolCall, error) {
	var toolDefs []*genai.FunctionDeclaration
	for _, t := range tools {
		toolDefs = append(toolDefs, &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  toGenaiSchema(t.Schema()),
		})
	}

	g.model.Tools = nil
	if len(toolDefs) > 0 {
		g.model.Tools = []*genai.Tool{{FunctionDeclarations: toolDefs}}
	}

	g.model.SystemInstruction = nil
	var cs []*genai.Content
	for _, msg := range history {
		if msg.Role == "system" {
			g.model.SystemInstruction = genai.NewUserContent(genai.Text(msg.Content))
			continue
		}
		role := "user"
		if msg.Role == "model" {
			role = "model"
		}
		cs = append(cs, &genai.Content{
			Parts: []genai.Part{genai.Text(msg.Content)},
			Role:  role,
		})
	}
	if len(cs) == 0 {
		return "", nil, fmt.Errorf("empty history")
	}

	session := g.model.StartChat()
	session.History = cs[:len(cs)-1]
	resp, err := session.SendMessage(ctx, cs[len(cs)-1].Parts...)
	if err != nil {
		return "", nil, fmt.Errorf("gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil, fmt.Errorf("gemini: no response candidates")
	}

	var responseText string
	var toolCall *ToolCall
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.FunctionCall:
			toolCall = &ToolCall{ToolName: p.Name, Args: p.Args}
		case genai.Text:
			responseText += string(p)
		}
	}
	if toolCall == nil && responseText == "" {
		return "", nil, fmt.Errorf("gemini: empty response")
	}
	return responseText, toolCall, nil
}

func (g *GeminiProvider) Close() error {
	return g.client.Close()
}

// toGenaiSchema converts a JSON-schema style map into the genai form.
func toGenaiSchema(m map[string]interface{}) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	switch m["type"] {
	case "object":
		s.Type = genai.TypeObject
	case "string":
		s.Type = genai.TypeString
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		s.Type = genai.TypeArray
	default:
		s.Type = genai.TypeObject
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if props, ok := m["properties"].(map[string]interface{}); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]interface{}); ok {
				s.Properties[name] = toGenaiSchema(pm)
			}
		}
	}
	if items, ok := m["items"].(map[string]interface{}); ok {
		s.Items = toGenaiSchema(items)
	}
	switch req := m["required"].(type) {
	case []string:
		s.Required = req
	case []interface{}:
		for _, r := range req {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}
	if enum, ok := m["enum"].([]string); ok {
		s.Enum = enum
	}
	return s
}
