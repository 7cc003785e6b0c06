package bridge

import (
	"errors"
	"strings"
	"testing"
)

func TestStreamFlushOnNewline(t *testing.T) {
	var got []string
	h := NewStreamHandler(func(s string) { got = append(got, s) })

	h.Token("partial ")
	if len(got) != 0 {
		t.Fatalf("flushed before newline: %v", got)
	}
	h.Token("text\n")
	if len(got) != 1 || got[0] != "partial text\n" {
		t.Fatalf("unexpected chunks: %v", got)
	}
}

func TestStreamFlushOnBufferLimit(t *testing.T) {
	var got []string
	h := NewStreamHandler(func(s string) { got = append(got, s) })

	h.Token(strings.Repeat("a", 59))
	if len(got) != 0 {
		t.Fatalf("flushed below limit: %v", got)
	}
	h.Token("b")
	if len(got) != 1 || len(got[0]) != 60 {
		t.Fatalf("expected one 60-char chunk, got %v", got)
	}
}

func TestStreamFinalFlush(t *testing.T) {
	var got []string
	h := NewStreamHandler(func(s string) { got = append(got, s) })

	h.Token("tail")
	h.Flush()
	if len(got) != 1 || got[0] != "tail" {
		t.Fatalf("unexpected chunks: %v", got)
	}
	h.Flush()
	if len(got) != 1 {
		t.Fatalf("empty flush emitted: %v", got)
	}
}

func TestStreamSuspendsDuringToolCall(t *testing.T) {
	var got []string
	h := NewStreamHandler(func(s string) { got = append(got, s) })

	h.Token("before ")
	h.ToolStart("dark_web_search")
	h.Token("leaked token\n")
	h.ToolEnd("dark_web_search")
	h.Token("after\n")

	joined := strings.Join(got, "")
	if strings.Contains(joined, "leaked") {
		t.Fatalf("tokens leaked during tool call: %q", joined)
	}
	wantOrder := []string{
		"before ",
		"\n[tool:start dark_web_search]\n",
		"[tool:ok dark_web_search]\n",
		"after\n",
	}
	if len(got) != len(wantOrder) {
		t.Fatalf("chunks = %v, want %v", got, wantOrder)
	}
	for i := range wantOrder {
		if got[i] != wantOrder[i] {
			t.Fatalf("chunk %d = %q, want %q", i, got[i], wantOrder[i])
		}
	}
}

func TestStreamToolErrorMarker(t *testing.T) {
	var got []string
	h := NewStreamHandler(func(s string) { got = append(got, s) })

	h.ToolStart("crypto_analysis")
	h.ToolError("crypto_analysis", errors.New("timeout").Error())
	h.Token("recovered\n")

	joined := strings.Join(got, "")
	if !strings.Contains(joined, "[tool:err crypto_analysis: timeout]") {
		t.Fatalf("missing error marker: %q", joined)
	}
	if !strings.Contains(joined, "recovered") {
		t.Fatalf("buffering did not resume after error: %q", joined)
	}
}

func TestStreamNilSink(t *testing.T) {
	h := NewStreamHandler(nil)
	h.Token("anything\n")
	h.ToolStart("x")
	h.ToolEnd("x")
	h.Flush()
}
