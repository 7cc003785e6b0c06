// Package gemini adapts the Google generative AI SDK to the llm.Model
// interface.
package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/umbra-intel/shrike/llm"
	"github.com/umbra-intel/shrike/message"
	"github.com/umbra-intel/shrike/tool"
)

// Config holds Gemini provider configuration.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
}

// Model implements llm.Model against the Gemini API.
type Model struct {
	config Config
	client *genai.Client
}

// New creates a Gemini-backed model.
func New(ctx context.Context, cfg Config) (*Model, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Model{config: cfg, client: client}, nil
}

func (m *Model) ModelName() string { return m.config.Model }

func (m *Model) Family() llm.Family { return llm.FamilyGemini }

// Close releases the underlying API client.
func (m *Model) Close() error { return m.client.Close() }

func (m *Model) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}

	model := m.client.GenerativeModel(m.config.Model)
	if m.config.Temperature > 0 {
		model.SetTemperature(m.config.Temperature)
	}
	if len(req.Tools) > 0 {
		model.Tools = encodeTools(req.Tools)
	}

	history, last := encodeMessages(model, req.Messages)
	session := model.StartChat()
	session.History = history

	resp, err := session.SendMessage(ctx, last...)
	if err != nil {
		return nil, fmt.Errorf("gemini api error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates returned from gemini")
	}

	responseMsg := decodeParts(resp.Candidates[0].Content.Parts)
	if req.Stream != nil && responseMsg.Text() != "" {
		req.Stream(responseMsg.Text())
	}

	out := &llm.Response{Message: responseMsg}
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

// encodeMessages splits the conversation into chat history and the parts for
// the final send. System text rides on the model's SystemInstruction.
func encodeMessages(model *genai.GenerativeModel, msgs []*message.Message) ([]*genai.Content, []genai.Part) {
	var contents []*genai.Content
	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleSystem:
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(msg.Text())}}
		case message.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Text())},
			})
		case message.RoleAssistant:
			parts := make([]genai.Part, 0, 1+len(msg.ToolCalls))
			if msg.Text() != "" {
				parts = append(parts, genai.Text(msg.Text()))
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: call.Name, Args: call.Args})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: "model", Parts: parts})
			}
		case message.RoleTool:
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []genai.Part{genai.FunctionResponse{
					Name:     msg.ToolID,
					Response: map[string]any{"result": msg.Text()},
				}},
			})
		}
	}

	if len(contents) == 0 {
		return nil, []genai.Part{genai.Text("")}
	}
	last := contents[len(contents)-1]
	return contents[:len(contents)-1], last.Parts
}

func encodeTools(tools []*tool.Tool) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		properties := make(map[string]*genai.Schema, len(t.Parameters))
		var required []string
		for _, p := range t.Parameters {
			properties[p.Name] = &genai.Schema{
				Type:        schemaType(p.Type),
				Description: p.Description,
				Enum:        p.Enum,
			}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   required,
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func schemaType(name string) genai.Type {
	switch name {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func decodeParts(parts []genai.Part) *message.Message {
	responseMsg := message.NewMessage(message.RoleAssistant, "")
	var text string
	for _, part := range parts {
		switch v := part.(type) {
		case genai.Text:
			text += string(v)
		case genai.FunctionCall:
			responseMsg.ToolCalls = append(responseMsg.ToolCalls, message.ToolCall{
				ID:   v.Name,
				Name: v.Name,
				Args: v.Args,
			})
		}
	}
	responseMsg.Content = text
	return responseMsg
}
