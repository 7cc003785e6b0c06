// Package claude adapts the official Anthropic SDK to the llm.Model
// interface.
package claude

import (
	"context"
	"encoding/json"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/umbra-intel/shrike/llm"
	"github.com/umbra-intel/shrike/message"
	"github.com/umbra-intel/shrike/tool"
)

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
}

// Model implements llm.Model against the Anthropic messages API.
type Model struct {
	config Config
	client anthropicsdk.Client
}

// New creates a Claude-backed model.
func New(cfg Config) *Model {
	if cfg.Model == "" {
		cfg.Model = string(anthropicsdk.ModelClaudeSonnet4_5)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	return &Model{config: cfg, client: anthropicsdk.NewClient(options...)}
}

func (m *Model) ModelName() string { return m.config.Model }

func (m *Model) Family() llm.Family { return llm.FamilyAnthropic }

func (m *Model) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}

	maxTokens := m.config.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	system, params := encodeMessages(req.Messages)
	newParams := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(m.config.Model),
		MaxTokens: maxTokens,
		Messages:  params,
	}
	if system != "" {
		newParams.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		newParams.Tools = encodeTools(req.Tools)
	}

	msg, err := m.client.Messages.New(ctx, newParams)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	responseMsg := decodeMessage(msg)
	if req.Stream != nil && responseMsg.Text() != "" {
		req.Stream(responseMsg.Text())
	}

	return &llm.Response{
		Message: responseMsg,
		Usage: llm.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

func encodeMessages(msgs []*message.Message) (string, []anthropicsdk.MessageParam) {
	var system string
	out := make([]anthropicsdk.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleSystem:
			// The messages API takes system text out of band.
			system = msg.Text()
		case message.RoleUser:
			out = append(out, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(msg.Text())))
		case message.RoleAssistant:
			blocks := make([]anthropicsdk.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Text() != "" {
				blocks = append(blocks, anthropicsdk.NewTextBlock(msg.Text()))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropicsdk.NewToolUseBlock(call.ID, call.Args, call.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropicsdk.NewAssistantMessage(blocks...))
			}
		case message.RoleTool:
			out = append(out, anthropicsdk.NewUserMessage(
				anthropicsdk.NewToolResultBlock(msg.ToolID, msg.Text(), false)))
		}
	}
	return system, out
}

func encodeTools(tools []*tool.Tool) []anthropicsdk.ToolUnionParam {
	out := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := t.InputSchema()
		toolParam := anthropicsdk.ToolParam{
			Name: t.Name,
			InputSchema: anthropicsdk.ToolInputSchemaParam{
				Type:       "object",
				Properties: schema["properties"],
				Required:   requiredNames(t),
			},
		}
		if t.Description != "" {
			toolParam.Description = anthropicsdk.String(t.Description)
		}
		out = append(out, anthropicsdk.ToolUnionParam{OfTool: &toolParam})
	}
	return out
}

func requiredNames(t *tool.Tool) []string {
	var required []string
	for _, p := range t.Parameters {
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return required
}

func decodeMessage(msg *anthropicsdk.Message) *message.Message {
	responseMsg := message.NewMessage(message.RoleAssistant, "")
	var text string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			responseMsg.ToolCalls = append(responseMsg.ToolCalls, message.ToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: decodeArgs(block.Input),
			})
		}
	}
	responseMsg.Content = text
	return responseMsg
}

func decodeArgs(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{"raw": string(raw)}
	}
	return args
}
