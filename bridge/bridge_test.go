package bridge

import (
	"context"
	"strings"
	"testing"

	"github.com/umbra-intel/shrike/llm"
	"github.com/umbra-intel/shrike/message"
	"github.com/umbra-intel/shrike/tool"
)

type fakeModel struct {
	name     string
	family   llm.Family
	tools    bool
	turns    []*message.Message
	calls    int
	lastReq  *llm.Request
	generate func(req *llm.Request) *message.Message
}

func (m *fakeModel) ModelName() string  { return m.name }
func (m *fakeModel) Family() llm.Family { return m.family }
func (m *fakeModel) SupportsTools() bool {
	return m.tools
}

func (m *fakeModel) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	m.calls++
	m.lastReq = req
	if m.generate != nil {
		return &llm.Response{Message: m.generate(req)}, nil
	}
	idx := m.calls - 1
	if idx >= len(m.turns) {
		idx = len(m.turns) - 1
	}
	return &llm.Response{Message: m.turns[idx]}, nil
}

type recordingExecutor struct {
	calls []string
	fail  bool
}

func (e *recordingExecutor) Execute(_ context.Context, name string, args map[string]any) *tool.Result {
	e.calls = append(e.calls, name)
	if e.fail {
		return &tool.Result{Tool: name, Args: args, Error: "boom"}
	}
	return &tool.Result{Success: true, Tool: name, Args: args, Payload: map[string]any{"ok": true}}
}

func echoTool() *tool.Tool {
	return &tool.Tool{
		Name:        "dark_web_search",
		Description: "search",
		Parameters: []tool.Parameter{
			{Name: "query", Type: "string", Required: true},
		},
	}
}

func TestClassifyIsPure(t *testing.T) {
	cases := []struct {
		name   string
		family llm.Family
		model  string
		probe  bool
		want   Strategy
	}{
		{"anthropic", llm.FamilyAnthropic, "claude-sonnet-4-5", false, StrategyNative},
		{"openai", llm.FamilyOpenAI, "gpt-4o-mini", false, StrategyNative},
		{"gemini", llm.FamilyGemini, "gemini-2.0-flash", false, StrategyNative},
		{"ollama allow-listed", llm.FamilyOllama, "llama3.1:8b", false, StrategyAgentLoop},
		{"ollama mixed case", llm.FamilyOllama, "Qwen2.5-Coder", false, StrategyAgentLoop},
		{"ollama unlisted", llm.FamilyOllama, "phi3", false, StrategyNone},
		{"unknown with probe", llm.FamilyUnknown, "custom", true, StrategyNative},
		{"unknown without probe", llm.FamilyUnknown, "custom", false, StrategyNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &fakeModel{name: tc.model, family: tc.family, tools: tc.probe}
			for i := 0; i < 3; i++ {
				if got := Classify(m); got != tc.want {
					t.Fatalf("Classify(%s/%s) = %v, want %v", tc.family, tc.model, got, tc.want)
				}
			}
		})
	}
}

func TestClassifyNilModel(t *testing.T) {
	if got := Classify(nil); got != StrategyNone {
		t.Fatalf("Classify(nil) = %v, want none", got)
	}
}

func TestNewDegradesWithoutExecutor(t *testing.T) {
	m := &fakeModel{name: "gpt-4o-mini", family: llm.FamilyOpenAI}
	b := New(m, nil, []*tool.Tool{echoTool()}, Options{})
	if got := b.Bound().Strategy; got != StrategyNone {
		t.Fatalf("strategy = %v, want none without executor", got)
	}
	if b.Bound().Tools != nil {
		t.Fatalf("plain pipeline should carry no tools")
	}
}

func TestRunPlainPipeline(t *testing.T) {
	m := &fakeModel{
		name:   "phi3",
		family: llm.FamilyOllama,
		turns:  []*message.Message{message.NewMessage(message.RoleAssistant, "final answer")},
	}
	exec := &recordingExecutor{}
	b := New(m, exec, []*tool.Tool{echoTool()}, Options{})

	out, err := b.Run(context.Background(), []*message.Message{message.NewMessage(message.RoleUser, "hi")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Text() != "final answer" {
		t.Fatalf("unexpected answer: %q", out.Text())
	}
	if len(exec.calls) != 0 {
		t.Fatalf("plain pipeline executed tools: %v", exec.calls)
	}
	if m.lastReq.Tools != nil {
		t.Fatalf("plain pipeline offered tools to the model")
	}
}

func TestRunNativeToolCall(t *testing.T) {
	m := &fakeModel{
		name:   "claude-sonnet-4-5",
		family: llm.FamilyAnthropic,
		turns: []*message.Message{
			message.NewToolCallMessage([]message.ToolCall{
				{ID: "c1", Name: "dark_web_search", Args: map[string]any{"query": "market"}},
			}),
			message.NewMessage(message.RoleAssistant, "done"),
		},
	}
	exec := &recordingExecutor{}
	b := New(m, exec, []*tool.Tool{echoTool()}, Options{})

	out, err := b.Run(context.Background(), []*message.Message{message.NewMessage(message.RoleUser, "go")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Text() != "done" {
		t.Fatalf("unexpected answer: %q", out.Text())
	}
	if len(exec.calls) != 1 || exec.calls[0] != "dark_web_search" {
		t.Fatalf("unexpected tool calls: %v", exec.calls)
	}
	if m.calls != 2 {
		t.Fatalf("model called %d times, want 2", m.calls)
	}
}

func TestAdversarialModelStopsAtCeiling(t *testing.T) {
	m := &fakeModel{
		name:   "gpt-4o-mini",
		family: llm.FamilyOpenAI,
		generate: func(_ *llm.Request) *message.Message {
			return message.NewToolCallMessage([]message.ToolCall{
				{ID: "x", Name: "dark_web_search", Args: map[string]any{"query": "again"}},
			})
		},
	}
	exec := &recordingExecutor{}
	b := New(m, exec, []*tool.Tool{echoTool()}, Options{})

	out, err := b.Run(context.Background(), []*message.Message{message.NewMessage(message.RoleUser, "go")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.calls != 5 {
		t.Fatalf("model called %d times, want 5", m.calls)
	}
	if len(exec.calls) != 5 {
		t.Fatalf("executor called %d times, want 5", len(exec.calls))
	}
	if out == nil || out.Text() == "" {
		t.Fatalf("expected a best-effort answer, got %v", out)
	}
}

func TestAgentLoopParsesContentCall(t *testing.T) {
	m := &fakeModel{
		name:   "llama3.1",
		family: llm.FamilyOllama,
		turns: []*message.Message{
			message.NewMessage(message.RoleAssistant,
				"assistant\n{\"name\": \"dark_web_search\", \"arguments\": {\"query\": \"forum\"}}"),
			message.NewMessage(message.RoleAssistant, "parsed and answered"),
		},
	}
	exec := &recordingExecutor{}
	b := New(m, exec, []*tool.Tool{echoTool()}, Options{})

	out, err := b.Run(context.Background(), []*message.Message{message.NewMessage(message.RoleUser, "go")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Text() != "parsed and answered" {
		t.Fatalf("unexpected answer: %q", out.Text())
	}
	if len(exec.calls) != 1 || exec.calls[0] != "dark_web_search" {
		t.Fatalf("unexpected tool calls: %v", exec.calls)
	}
}

func TestAgentLoopFeedsBackParseError(t *testing.T) {
	var sawCorrection bool
	m := &fakeModel{
		name:   "mistral",
		family: llm.FamilyOllama,
	}
	m.generate = func(req *llm.Request) *message.Message {
		last := req.Messages[len(req.Messages)-1]
		if strings.Contains(last.Text(), "could not be parsed") {
			sawCorrection = true
			return message.NewMessage(message.RoleAssistant, "recovered")
		}
		// Truncated JSON that looks like a tool call but cannot parse.
		return message.NewMessage(message.RoleAssistant, `{"name": "dark_web_search", "arguments": {"query": `)
	}
	exec := &recordingExecutor{}
	b := New(m, exec, []*tool.Tool{echoTool()}, Options{})

	out, err := b.Run(context.Background(), []*message.Message{message.NewMessage(message.RoleUser, "go")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sawCorrection {
		t.Fatalf("model never received the corrective message")
	}
	if out.Text() != "recovered" {
		t.Fatalf("unexpected answer: %q", out.Text())
	}
	if len(exec.calls) != 0 {
		t.Fatalf("no tool should have run: %v", exec.calls)
	}
}

func TestAgentLoopInjectsToolInstruction(t *testing.T) {
	m := &fakeModel{
		name:   "llama3.2",
		family: llm.FamilyOllama,
		turns:  []*message.Message{message.NewMessage(message.RoleAssistant, "plain answer")},
	}
	b := New(m, &recordingExecutor{}, []*tool.Tool{echoTool()}, Options{})

	if _, err := b.Run(context.Background(), []*message.Message{message.NewMessage(message.RoleUser, "go")}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	first := m.lastReq.Messages[0]
	if first.Role != message.RoleSystem || !strings.Contains(first.Text(), "dark_web_search") {
		t.Fatalf("expected tool instruction system message, got role=%s content=%q", first.Role, first.Text())
	}
}
