// Package openai adapts the official OpenAI SDK to the llm.Model interface.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"

	"github.com/umbra-intel/shrike/llm"
	"github.com/umbra-intel/shrike/message"
	"github.com/umbra-intel/shrike/tool"
)

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Model implements llm.Model against the chat completions API.
type Model struct {
	config Config
	client openaisdk.Client
}

// New creates an OpenAI-backed model.
func New(cfg Config) *Model {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	return &Model{config: cfg, client: openaisdk.NewClient(options...)}
}

func (m *Model) ModelName() string { return m.config.Model }

func (m *Model) Family() llm.Family { return llm.FamilyOpenAI }

func (m *Model) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(m.config.Model),
		Messages: encodeMessages(req.Messages),
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	} else if m.config.Temperature > 0 {
		params.Temperature = param.NewOpt(m.config.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	} else if m.config.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(m.config.MaxTokens)
	}
	if len(req.Tools) > 0 {
		params.Tools = encodeTools(req.Tools)
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from openai")
	}

	choice := completion.Choices[0]
	responseMsg := message.NewMessage(message.RoleAssistant, choice.Message.Content)
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, fmt.Errorf("parse tool arguments for %s: %w", tc.Function.Name, err)
		}
		responseMsg.ToolCalls = append(responseMsg.ToolCalls, message.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}

	if req.Stream != nil && responseMsg.Text() != "" {
		req.Stream(responseMsg.Text())
	}

	return &llm.Response{
		Message: responseMsg,
		Usage: llm.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

func encodeMessages(msgs []*message.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleSystem:
			out = append(out, openaisdk.SystemMessage(msg.Text()))
		case message.RoleUser:
			out = append(out, openaisdk.UserMessage(msg.Text()))
		case message.RoleAssistant:
			assistantMsg := openaisdk.AssistantMessage(msg.Text())
			if len(msg.ToolCalls) > 0 && assistantMsg.OfAssistant != nil {
				assistantMsg.OfAssistant.ToolCalls = encodeToolCalls(msg.ToolCalls)
			}
			out = append(out, assistantMsg)
		case message.RoleTool:
			out = append(out, openaisdk.ToolMessage(msg.Text(), msg.ToolID))
		}
	}
	return out
}

func encodeToolCalls(calls []message.ToolCall) []openaisdk.ChatCompletionMessageToolCallUnionParam {
	out := make([]openaisdk.ChatCompletionMessageToolCallUnionParam, 0, len(calls))
	for _, call := range calls {
		args, err := json.Marshal(call.Args)
		if err != nil {
			args = []byte("{}")
		}
		out = append(out, openaisdk.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openaisdk.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: openaisdk.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Name,
					Arguments: string(args),
				},
			},
		})
	}
	return out
}

func encodeTools(tools []*tool.Tool) []openaisdk.ChatCompletionToolUnionParam {
	out := make([]openaisdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		def := shared.FunctionDefinitionParam{
			Name:       t.Name,
			Parameters: shared.FunctionParameters(t.InputSchema()),
		}
		if t.Description != "" {
			def.Description = param.NewOpt(t.Description)
		}
		out = append(out, openaisdk.ChatCompletionFunctionTool(def))
	}
	return out
}
