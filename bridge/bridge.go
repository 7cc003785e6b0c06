// Package bridge connects a language model to the tool set. It classifies
// the model into a binding strategy, builds the matching invocation
// pipeline, and owns the bounded agent loop used for models without
// structured tool-call support.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/umbra-intel/shrike/llm"
	"github.com/umbra-intel/shrike/message"
	"github.com/umbra-intel/shrike/pkg/logging"
	"github.com/umbra-intel/shrike/pkg/tokens"
	"github.com/umbra-intel/shrike/tool"
)

const defaultMaxIterations = 5

// Executor runs a tool call by name and returns the uniform envelope. A
// *client.ToolClient satisfies it.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any) *tool.Result
}

// BoundModel pairs a model handle with the tool set and the strategy chosen
// for it. The underlying handle is never modified; downstream pipeline
// assembly reads the tool list and strategy from here.
type BoundModel struct {
	Model    llm.Model
	Tools    []*tool.Tool
	Strategy Strategy
}

// Options configures pipeline construction.
type Options struct {
	// MaxIterations caps tool-call loop turns. Defaults to 5.
	MaxIterations int
	// MaxOutputTokens clamps the final answer length when positive.
	MaxOutputTokens int
	// TokenModel selects the tokenizer encoding for the output clamp.
	// Defaults to the model's own name.
	TokenModel  string
	Temperature float64
	Stream      *StreamHandler
	Logger      *slog.Logger
}

// Bridge is a constructed invocation pipeline for one (model, tools) pair.
type Bridge struct {
	bound   BoundModel
	exec    Executor
	opts    Options
	counter *tokens.Counter
	logger  *slog.Logger
}

// New builds the pipeline for the given model and tool set. Construction
// never fails: a model with no usable tool path, a nil executor, or a
// tokenizer that cannot be resolved all degrade toward the plain pipeline
// rather than erroring.
func New(model llm.Model, exec Executor, toolSet []*tool.Tool, opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("bridge")
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}

	strategy := Classify(model)
	if strategy != StrategyNone && (exec == nil || len(toolSet) == 0) {
		logger.Warn("no executable tools available, using plain pipeline",
			"model", modelName(model), "strategy", string(strategy))
		strategy = StrategyNone
	}

	var counter *tokens.Counter
	if opts.MaxOutputTokens > 0 {
		name := opts.TokenModel
		if name == "" {
			name = modelName(model)
		}
		c, err := tokens.NewCounter(name)
		if err != nil {
			logger.Warn("tokenizer unavailable, output clamp disabled",
				"model", name, "error", err)
		} else {
			counter = c
		}
	}

	if strategy == StrategyNone {
		toolSet = nil
	}
	return &Bridge{
		bound:   BoundModel{Model: model, Tools: toolSet, Strategy: strategy},
		exec:    exec,
		opts:    opts,
		counter: counter,
		logger:  logger,
	}
}

// Bound returns the binding decision and tool list for this pipeline.
func (b *Bridge) Bound() BoundModel {
	return b.bound
}

// Run executes one conversation turn: the model proposes tool calls or a
// final answer, proposed calls are executed sequentially, and results are
// folded back into the context until the model answers or the iteration
// ceiling forces a best-effort answer.
func (b *Bridge) Run(ctx context.Context, msgs []*message.Message) (*message.Message, error) {
	if b.bound.Model == nil {
		return nil, fmt.Errorf("bridge has no model")
	}

	switch b.bound.Strategy {
	case StrategyNative:
		return b.runLoop(ctx, msgs, false)
	case StrategyAgentLoop:
		return b.runLoop(ctx, msgs, true)
	default:
		return b.runPlain(ctx, msgs)
	}
}

func (b *Bridge) runPlain(ctx context.Context, msgs []*message.Message) (*message.Message, error) {
	resp, err := b.bound.Model.Generate(ctx, b.request(msgs, nil))
	if err != nil {
		return nil, err
	}
	b.finishStream()
	return b.clamp(resp.Message), nil
}

// runLoop drives the tool-call loop. In parsed mode (the agent strategy)
// tool calls the model emits as JSON text are recovered from the content,
// and unparseable attempts are fed back as corrective messages instead of
// being raised.
func (b *Bridge) runLoop(ctx context.Context, msgs []*message.Message, parsed bool) (*message.Message, error) {
	history := make([]*message.Message, 0, len(msgs)+2*b.opts.MaxIterations)
	if parsed {
		history = append(history, message.NewMessage(message.RoleSystem, toolInstruction(b.bound.Tools)))
	}
	history = append(history, msgs...)

	var lastText string
	for i := 0; i < b.opts.MaxIterations; i++ {
		resp, err := b.bound.Model.Generate(ctx, b.request(history, b.bound.Tools))
		if err != nil {
			return nil, err
		}
		history = append(history, resp.Message)

		content := stripRolePrefix(resp.Message.Text())
		if content != "" {
			lastText = content
		}

		calls := resp.Message.ToolCalls
		if len(calls) == 0 && parsed {
			calls = extractToolCalls(content)
			if len(calls) == 0 && looksLikeToolAttempt(content) {
				b.logger.Debug("unparseable tool call, feeding correction back",
					"iteration", i)
				history = append(history, message.NewMessage(message.RoleUser,
					`Your tool call could not be parsed. Reply with exactly one JSON object of the form {"name": "<tool>", "arguments": {...}}, or give your final answer as plain text.`))
				continue
			}
		}
		if len(calls) == 0 {
			b.finishStream()
			return b.clamp(resp.Message), nil
		}

		// One call per turn; extra proposals wait for the next iteration.
		call := calls[0]
		history = append(history, b.executeCall(ctx, call))
	}

	b.logger.Warn("tool loop ceiling reached, returning best effort",
		"max_iterations", b.opts.MaxIterations)
	b.finishStream()
	if lastText == "" {
		lastText = "Tool budget exhausted before a final answer was produced."
	}
	return b.clamp(message.NewMessage(message.RoleAssistant, lastText)), nil
}

// executeCall runs one tool call through the executor, emitting stream
// markers around it, and returns the tool response message to fold back
// into the conversation.
func (b *Bridge) executeCall(ctx context.Context, call message.ToolCall) *message.Message {
	if s := b.opts.Stream; s != nil {
		s.ToolStart(call.Name)
	}
	res := b.exec.Execute(ctx, call.Name, call.Args)
	if s := b.opts.Stream; s != nil {
		if res.Success {
			s.ToolEnd(call.Name)
		} else {
			s.ToolError(call.Name, res.Error)
		}
	}
	b.logger.Debug("tool call executed",
		"tool", call.Name, "success", res.Success)
	return message.NewToolResponseMessage(call.ID, res.Text())
}

func (b *Bridge) request(msgs []*message.Message, toolSet []*tool.Tool) *llm.Request {
	req := &llm.Request{
		Messages:    msgs,
		Tools:       toolSet,
		Temperature: b.opts.Temperature,
		MaxTokens:   b.opts.MaxOutputTokens,
	}
	if b.opts.Stream != nil {
		req.Stream = b.opts.Stream.Token
	}
	return req
}

func (b *Bridge) finishStream() {
	if b.opts.Stream != nil {
		b.opts.Stream.Flush()
	}
}

// clamp truncates the final answer to the configured token budget.
func (b *Bridge) clamp(msg *message.Message) *message.Message {
	if msg == nil || b.counter == nil || b.opts.MaxOutputTokens <= 0 {
		return msg
	}
	truncated := b.counter.Truncate(msg.Content, b.opts.MaxOutputTokens)
	if truncated == msg.Content {
		return msg
	}
	out := message.Clone(msg)
	out.Content = truncated
	return out
}

// toolInstruction renders the tool catalog for models driven through the
// parsed agent loop.
func toolInstruction(toolSet []*tool.Tool) string {
	var sb strings.Builder
	sb.WriteString("You can call the following tools. To call one, reply with exactly one JSON object ")
	sb.WriteString(`{"name": "<tool>", "arguments": {...}} and nothing else. `)
	sb.WriteString("When you have enough information, reply with your final answer as plain text.\n\nTools:\n")
	for _, t := range toolSet {
		schema, _ := json.Marshal(t.InputSchema())
		fmt.Fprintf(&sb, "- %s: %s\n  arguments schema: %s\n", t.Name, t.Description, schema)
	}
	return sb.String()
}

func modelName(m llm.Model) string {
	if m == nil {
		return ""
	}
	return m.ModelName()
}
