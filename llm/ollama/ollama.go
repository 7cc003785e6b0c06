// Package ollama adapts a local Ollama server to the llm.Model interface
// using the /api/chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/umbra-intel/shrike/llm"
	"github.com/umbra-intel/shrike/message"
)

const defaultBaseURL = "http://localhost:11434"

// Config holds Ollama provider configuration.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Model implements llm.Model against a local Ollama server.
type Model struct {
	config Config
	client *http.Client
}

// New creates an Ollama-backed model.
func New(cfg Config) *Model {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Model{config: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (m *Model) ModelName() string { return m.config.Model }

func (m *Model) Family() llm.Family { return llm.FamilyOllama }

type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
}

type chatToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []chatMessage    `json:"messages"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Stream   bool             `json:"stream"`
	Options  map[string]any   `json:"options,omitempty"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

func (m *Model) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}

	body := chatRequest{
		Model:    m.config.Model,
		Messages: encodeMessages(req.Messages),
		Stream:   false,
	}
	if req.Temperature > 0 {
		body.Options = map[string]any{"temperature": req.Temperature}
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, t.ToJSONSchema())
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.config.BaseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama api error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, raw)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}

	responseMsg := message.NewMessage(message.RoleAssistant, out.Message.Content)
	for i, tc := range out.Message.ToolCalls {
		responseMsg.ToolCalls = append(responseMsg.ToolCalls, message.ToolCall{
			ID:   fmt.Sprintf("%s-%d", tc.Function.Name, i),
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		})
	}

	if req.Stream != nil && responseMsg.Text() != "" {
		req.Stream(responseMsg.Text())
	}

	return &llm.Response{
		Message: responseMsg,
		Usage: llm.Usage{
			InputTokens:  out.PromptEvalCount,
			OutputTokens: out.EvalCount,
		},
	}, nil
}

func encodeMessages(msgs []*message.Message) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, msg := range msgs {
		cm := chatMessage{Role: string(msg.Role), Content: msg.Text()}
		for _, call := range msg.ToolCalls {
			var tc chatToolCall
			tc.Function.Name = call.Name
			tc.Function.Arguments = call.Args
			cm.ToolCalls = append(cm.ToolCalls, tc)
		}
		out = append(out, cm)
	}
	return out
}
