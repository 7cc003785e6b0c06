// Package tokens wraps a BPE tokenizer for token accounting and output
// clamping.
package tokens

import (
	"github.com/pkoukk/tiktoken-go"
)

// Counter counts and truncates text by token count for a given encoding.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// NewCounter resolves an encoding by model name, falling back to treating
// name as an encoding name directly.
func NewCounter(name string) (*Counter, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Counter{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Truncate returns text cut to at most max tokens. Text at or under the
// limit is returned unchanged.
func (c *Counter) Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	ids := c.enc.Encode(text, nil, nil)
	if len(ids) <= max {
		return text
	}
	return c.enc.Decode(ids[:max])
}
