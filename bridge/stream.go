package bridge

import (
	"fmt"
	"strings"
	"sync"
)

const defaultBufferLimit = 60

// StreamHandler buffers model tokens and emits them to a sink in readable
// chunks, with distinct markers around tool execution. Token buffering is
// suspended while a tool call is in flight so generated text and tool
// boundary markers never interleave.
type StreamHandler struct {
	mu     sync.Mutex
	out    func(string)
	limit  int
	buf    strings.Builder
	inTool bool
}

// NewStreamHandler creates a handler writing to out. A nil out discards
// everything but keeps the suspend accounting intact.
func NewStreamHandler(out func(string)) *StreamHandler {
	return &StreamHandler{out: out, limit: defaultBufferLimit}
}

// Token buffers a model token, flushing on newline or once the buffer
// reaches the size limit. Tokens arriving during a tool call are dropped.
func (h *StreamHandler) Token(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inTool {
		return
	}
	h.buf.WriteString(token)
	if strings.Contains(token, "\n") || h.buf.Len() >= h.limit {
		h.flushLocked()
	}
}

// Flush emits any buffered text. Called at generation end.
func (h *StreamHandler) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.inTool {
		h.flushLocked()
	}
}

// ToolStart flushes pending text, suspends token buffering, and emits the
// start marker for name.
func (h *StreamHandler) ToolStart(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushLocked()
	h.inTool = true
	h.emit(fmt.Sprintf("\n[tool:start %s]\n", name))
}

// ToolEnd emits the completion marker and resumes token buffering.
func (h *StreamHandler) ToolEnd(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inTool = false
	h.emit(fmt.Sprintf("[tool:ok %s]\n", name))
}

// ToolError emits the error marker and resumes token buffering.
func (h *StreamHandler) ToolError(name string, errText string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inTool = false
	h.emit(fmt.Sprintf("[tool:err %s: %s]\n", name, errText))
}

func (h *StreamHandler) flushLocked() {
	if h.buf.Len() == 0 {
		return
	}
	h.emit(h.buf.String())
	h.buf.Reset()
}

func (h *StreamHandler) emit(s string) {
	if h.out != nil {
		h.out(s)
	}
}
