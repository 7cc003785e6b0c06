// Package llm defines the model abstraction the execution bridge drives.
// Concrete providers live in the subpackages claude, openai, gemini, and
// ollama.
package llm

import (
	"context"

	"github.com/umbra-intel/shrike/message"
	"github.com/umbra-intel/shrike/tool"
)

// Family identifies a provider lineage. Binding strategy selection keys off
// this tag rather than inspecting concrete types.
type Family string

const (
	FamilyAnthropic Family = "anthropic"
	FamilyOpenAI    Family = "openai"
	FamilyGemini    Family = "gemini"
	FamilyOllama    Family = "ollama"
	FamilyUnknown   Family = "unknown"
)

// Request is a single generation call. Tools, when non-empty, are offered to
// the provider natively; providers that cannot express tools ignore them.
type Request struct {
	Messages    []*message.Message
	Tools       []*tool.Tool
	Temperature float64
	MaxTokens   int
	// Stream, when set, receives incremental output text. Providers without
	// streaming support deliver the full text in one call.
	Stream func(chunk string)
}

// Usage reports token consumption when the provider exposes it.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the model's reply. ToolCalls on the message are populated when
// the provider requested tool execution natively.
type Response struct {
	Message *message.Message
	Usage   Usage
}

// Model is a conversational language model.
type Model interface {
	// ModelName returns the provider-side model identifier.
	ModelName() string
	// Family reports the provider lineage for capability decisions.
	Family() Family
	// Generate produces the next assistant message.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// ToolCapable is an optional probe for models whose tool support cannot be
// determined from Family alone.
type ToolCapable interface {
	SupportsTools() bool
}
