// Package tokencount estimates token costs for text, messages, and tool
// schemas, so the context packer can stay inside a provider's context
// window without an exact BPE encoder.
package tokencount

import (
	"encoding/json"

	"github.com/nexusengine/core/pkg/models"
)

// charsPerToken is the heuristic used when no precise encoder is wired in.
// English text averages roughly 4 characters per token.
const charsPerToken = 4

// perMessageOverhead accounts for role markers and message separators that
// a provider's wire format adds around each message.
const perMessageOverhead = 4

// Counter estimates token counts. The zero value is ready to use and
// always falls back to the character heuristic; callers needing a
// model-specific encoder can provide one via WithEncoder.
type Counter struct {
	// encode, if set, returns a precise token count for s. When nil, the
	// character heuristic is used for every call.
	encode func(s string) int
}

// New returns a Counter using the character-based heuristic.
func New() *Counter {
	return &Counter{}
}

// WithEncoder returns a Counter that delegates to encode for precise
// token counts, e.g. a model-specific BPE tokenizer. encode must not be
// nil.
func WithEncoder(encode func(s string) int) *Counter {
	return &Counter{encode: encode}
}

// CountText estimates the token cost of s. Returns 0 for an empty string
// and at least 1 for any non-empty string.
func (c *Counter) CountText(s string) int {
	if s == "" {
		return 0
	}
	if c != nil && c.encode != nil {
		return c.encode(s)
	}
	n := len(s) / charsPerToken
	if n < 1 {
		n = 1
	}
	return n
}

// CountMessages estimates the total token cost of a message list plus an
// optional tool schema catalog, per spec §4.1: each message contributes a
// constant per-message overhead plus its content, tool_calls, and
// tool_call_id; tools are counted via their canonical JSON serialization.
func (c *Counter) CountMessages(messages []models.Message, tools []ToolSchema) int {
	total := 0
	for _, m := range messages {
		total += perMessageOverhead
		total += c.CountText(m.Content)
		for _, tc := range m.ToolCalls {
			total += c.CountText(tc.Name)
			total += c.CountText(marshalArguments(tc.Arguments))
		}
		if m.ToolCallID != "" {
			total += c.CountText(m.ToolCallID)
		}
	}
	if len(tools) > 0 {
		total += c.CountText(marshalTools(tools))
	}
	return total
}

// ToolSchema is the canonical exported shape of a registered tool, as
// produced by the tool registry's schema export (see internal/tools).
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

func marshalArguments(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func marshalTools(tools []ToolSchema) string {
	b, err := json.Marshal(tools)
	if err != nil {
		return "[]"
	}
	return string(b)
}
