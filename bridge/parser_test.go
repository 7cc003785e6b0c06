package bridge

import (
	"testing"
)

func TestExtractToolCallsPureJSON(t *testing.T) {
	calls := extractToolCalls(`{"name": "dark_web_search", "arguments": {"query": "market"}}`)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].Name != "dark_web_search" {
		t.Fatalf("name = %q", calls[0].Name)
	}
	if calls[0].Args["query"] != "market" {
		t.Fatalf("args = %v", calls[0].Args)
	}
}

func TestExtractToolCallsCodeFenced(t *testing.T) {
	content := "```json\n{\"name\": \"extract_entities\", \"parameters\": {\"text\": \"abc\"}}\n```"
	calls := extractToolCalls(content)
	if len(calls) != 1 || calls[0].Name != "extract_entities" {
		t.Fatalf("calls = %v", calls)
	}
	if calls[0].Args["text"] != "abc" {
		t.Fatalf("parameters key not coalesced: %v", calls[0].Args)
	}
}

func TestExtractToolCallsSurroundingProse(t *testing.T) {
	content := "assistant\nSure, let me look that up.\n" +
		`{"name": "onion_reputation", "arguments": {"domain": "example.onion"}}` +
		"\nRunning that now."
	calls := extractToolCalls(stripRolePrefix(content))
	if len(calls) != 1 || calls[0].Name != "onion_reputation" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestExtractToolCallsArray(t *testing.T) {
	content := `[{"name": "crypto_analysis", "arguments": {"address": "0xabc"}}, {"name": "tor_web_fetch", "arguments": {"url": "http://x.onion"}}]`
	calls := extractToolCalls(content)
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	if calls[0].Name != "crypto_analysis" || calls[1].Name != "tor_web_fetch" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestExtractToolCallsInvalidEscapes(t *testing.T) {
	content := `{"name": "dark_web_search", "arguments": {"query": "50\% off"}}`
	calls := extractToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("invalid escape not sanitized: %v", calls)
	}
	if calls[0].Args["query"] != "50% off" {
		t.Fatalf("args = %v", calls[0].Args)
	}
}

func TestExtractToolCallsPlainText(t *testing.T) {
	if calls := extractToolCalls("The address resolves to a known mixer service."); calls != nil {
		t.Fatalf("plain text produced calls: %v", calls)
	}
}

func TestNormalizeToolNameAliases(t *testing.T) {
	cases := map[string]string{
		"dark-web-search": "dark_web_search",
		"DarkWebSearch":   "dark_web_search",
		"torwebfetch":     "tor_web_fetch",
		"crypto-analysis": "crypto_analysis",
		"dark_web_search": "dark_web_search",
		"unknown_tool":    "unknown_tool",
	}
	for in, want := range cases {
		if got := normalizeToolName(in); got != want {
			t.Fatalf("normalizeToolName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLooksLikeToolAttempt(t *testing.T) {
	cases := []struct {
		content string
		want    bool
	}{
		{`{"name": "dark_web_search", "arguments": {"query": `, true},
		{`Calling the tool: {"name": , "arguments": {}}`, true},
		{`{"name": "dark_web_search", "arguments": {"query": "q"}}`, false},
		{"just a plain answer", false},
		{"an answer with {braces} but no call", false},
	}
	for _, tc := range cases {
		if got := looksLikeToolAttempt(tc.content); got != tc.want {
			t.Fatalf("looksLikeToolAttempt(%q) = %v, want %v", tc.content, got, tc.want)
		}
	}
}

func TestStripRolePrefix(t *testing.T) {
	cases := map[string]string{
		"assistant\nHello":  "Hello",
		"Assistant: Hello":  "Hello",
		"Hello":             "Hello",
		"my assistant says": "my assistant says",
	}
	for in, want := range cases {
		if got := stripRolePrefix(in); got != want {
			t.Fatalf("stripRolePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
