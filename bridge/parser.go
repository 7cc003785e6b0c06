package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/umbra-intel/shrike/message"
)

// extractToolCalls attempts to parse tool calls from assistant content text.
// Smaller local models often emit the call as JSON in the content instead of
// using the structured tool-call field. Handles several patterns:
//   - Pure JSON: `{"name":"dark_web_search","arguments":{...}}`
//   - Code-fenced: ```json\n{...}\n```
//   - Prefixed text: `assistant\n{"name":...}` (common with llama models)
//   - Mixed text: `Sure.\n{"name":...}\nRunning that now.`
func extractToolCalls(content string) []message.ToolCall {
	content = strings.TrimSpace(content)

	// Strip markdown code fences if present.
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			content = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	// Fast path: the whole content is the JSON payload.
	if calls := tryParseToolJSON(content); len(calls) > 0 {
		return calls
	}

	// Fallback: locate a JSON object or array inside surrounding prose.
	if start, end := findJSONBounds(content); start >= 0 && end > start {
		if calls := tryParseToolJSON(content[start:end]); len(calls) > 0 {
			return calls
		}
	}

	return nil
}

// looksLikeToolAttempt reports whether content appears to contain a tool
// call that failed to parse. Used to decide between treating the turn as a
// final answer and feeding a corrective message back into the loop.
func looksLikeToolAttempt(content string) bool {
	if len(extractToolCalls(content)) > 0 {
		return false
	}
	var candidate string
	if start, end := findJSONBounds(content); start >= 0 && end > start {
		candidate = content[start:end]
	} else if i := strings.IndexAny(content, "{["); i >= 0 {
		// Unbalanced braces, typically a truncated call.
		candidate = content[i:]
	} else {
		return false
	}
	return strings.Contains(candidate, `"name"`)
}

// findJSONBounds locates the first top-level JSON object or array in s,
// returning start and end+1 indexes, or (-1, -1) when absent.
func findJSONBounds(s string) (int, int) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return -1, -1
	}

	openChar := s[start]
	var closeChar byte
	if openChar == '{' {
		closeChar = '}'
	} else {
		closeChar = ']'
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

type rawToolCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Arguments  map[string]any `json:"arguments"`
}

// tryParseToolJSON attempts to parse raw as a single tool call object, then
// as an array of them.
func tryParseToolJSON(raw string) []message.ToolCall {
	var single rawToolCall
	text := raw
	if err := json.Unmarshal([]byte(text), &single); err != nil {
		text = sanitizeJSONEscapes(text)
		_ = json.Unmarshal([]byte(text), &single)
	}
	if single.Name != "" {
		return []message.ToolCall{{
			ID:   fmt.Sprintf("extracted_%d", time.Now().UnixNano()),
			Name: normalizeToolName(single.Name),
			Args: coalesce(single.Parameters, single.Arguments),
		}}
	}

	var multi []rawToolCall
	if err := json.Unmarshal([]byte(text), &multi); err != nil {
		_ = json.Unmarshal([]byte(sanitizeJSONEscapes(raw)), &multi)
	}
	var calls []message.ToolCall
	for i, tc := range multi {
		if tc.Name == "" {
			continue
		}
		calls = append(calls, message.ToolCall{
			ID:   fmt.Sprintf("extracted_%d_%d", time.Now().UnixNano(), i),
			Name: normalizeToolName(tc.Name),
			Args: coalesce(tc.Parameters, tc.Arguments),
		})
	}
	return calls
}

// normalizeToolName maps common model-generated name variations to the
// registered names. Smaller models drop underscores or swap them for
// hyphens.
func normalizeToolName(name string) string {
	aliases := map[string]string{
		"darkwebsearch":     "dark_web_search",
		"dark-web-search":   "dark_web_search",
		"scrapeonionsite":   "scrape_onion_site",
		"scrape-onion-site": "scrape_onion_site",
		"extractentities":   "extract_entities",
		"extract-entities":  "extract_entities",
		"torwebfetch":       "tor_web_fetch",
		"tor-web-fetch":     "tor_web_fetch",
		"cryptoanalysis":    "crypto_analysis",
		"crypto-analysis":   "crypto_analysis",
		"onionreputation":   "onion_reputation",
		"onion-reputation":  "onion_reputation",
	}
	if mapped, ok := aliases[strings.ToLower(name)]; ok {
		return mapped
	}
	return name
}

// stripRolePrefix removes role-name prefixes that some chat-template-aware
// models leak into their content, e.g. "assistant\nHello" or
// "Assistant: Hello".
func stripRolePrefix(content string) string {
	prefixes := []string{
		"assistant\n",
		"Assistant\n",
		"assistant:\n",
		"Assistant:\n",
		"assistant: ",
		"Assistant: ",
	}
	trimmed := content
	for _, p := range prefixes {
		if strings.HasPrefix(trimmed, p) {
			trimmed = strings.TrimSpace(trimmed[len(p):])
			break
		}
	}
	return trimmed
}

// coalesce returns the first non-nil map, or an empty map if both are nil.
func coalesce(a, b map[string]any) map[string]any {
	if a != nil {
		return a
	}
	if b != nil {
		return b
	}
	return make(map[string]any)
}

// sanitizeJSONEscapes fixes invalid escape sequences produced by some
// models. Valid JSON escapes: \" \\ \/ \b \f \n \r \t \uXXXX. Invalid ones
// are corrected by dropping the backslash.
func sanitizeJSONEscapes(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '"' && (i == 0 || s[i-1] != '\\') {
			inString = !inString
			buf.WriteByte(ch)
			continue
		}
		if inString && ch == '\\' && i+1 < len(s) {
			next := s[i+1]
			switch next {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				buf.WriteByte(ch)
			default:
				continue
			}
		} else {
			buf.WriteByte(ch)
		}
	}
	return buf.String()
}
