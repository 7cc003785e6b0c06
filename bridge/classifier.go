package bridge

import (
	"strings"

	"github.com/umbra-intel/shrike/llm"
)

// Strategy is how a model gets connected to a tool set.
type Strategy string

const (
	// StrategyNative attaches tools through the provider's structured
	// tool-call interface.
	StrategyNative Strategy = "native"
	// StrategyAgentLoop simulates tool use with a bounded reason/act loop,
	// parsing tool calls the model emits as text when needed.
	StrategyAgentLoop Strategy = "agent"
	// StrategyNone runs a plain prompt-to-text pipeline with no tool
	// awareness.
	StrategyNone Strategy = "none"
)

// Local model lineages known to follow tool-call instructions well enough
// for the agent loop. Matched case-insensitively as substrings so tags like
// "llama3.1:8b-instruct" qualify.
var agentLoopModels = []string{
	"llama3.1",
	"llama3.2",
	"mistral",
	"mixtral",
	"qwen2.5",
}

// Classify maps a model handle to a binding strategy. It is a pure function
// of the model's family and name: hosted families with structured tool
// support bind natively, allow-listed local models get the agent loop, and
// anything unrecognized falls through to no tool support rather than
// failing.
func Classify(m llm.Model) Strategy {
	if m == nil {
		return StrategyNone
	}
	switch m.Family() {
	case llm.FamilyAnthropic, llm.FamilyOpenAI, llm.FamilyGemini:
		return StrategyNative
	case llm.FamilyOllama:
		name := strings.ToLower(m.ModelName())
		for _, candidate := range agentLoopModels {
			if strings.Contains(name, candidate) {
				return StrategyAgentLoop
			}
		}
		return StrategyNone
	}
	if probe, ok := m.(llm.ToolCapable); ok && probe.SupportsTools() {
		return StrategyNative
	}
	return StrategyNone
}
