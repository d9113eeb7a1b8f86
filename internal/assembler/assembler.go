// Package assembler reconstructs complete tool calls from the interleaved,
// index-keyed delta fragments a streaming LLM provider emits.
package assembler

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/nexusengine/core/pkg/models"
)

type buffer struct {
	id       string
	nameBuf  strings.Builder
	argsBuf  strings.Builder
	finished bool
}

// Assembler accumulates RawToolDelta fragments keyed by call_index and
// finalizes them into ToolCalls. It is not safe for concurrent use; the
// router owns one Assembler per stream.
type Assembler struct {
	buffers   map[int]*buffer
	finalized map[int]bool
	errors    []string
}

// New returns an empty Assembler.
func New() *Assembler {
	return &Assembler{
		buffers:   make(map[int]*buffer),
		finalized: make(map[int]bool),
	}
}

// Feed consumes one delta, returning any ToolCall finalized as a direct
// result (i.e. delta.Done was set). A delta for an index that has already
// been finalized is a no-op, per the late-delta tolerance the streaming
// contract allows.
func (a *Assembler) Feed(delta models.RawToolDelta) *models.ToolCall {
	if a.finalized[delta.CallIndex] {
		return nil
	}

	buf, ok := a.buffers[delta.CallIndex]
	if !ok {
		buf = &buffer{}
		a.buffers[delta.CallIndex] = buf
	}
	if delta.ID != "" && buf.id == "" {
		buf.id = delta.ID
	}
	buf.nameBuf.WriteString(delta.NameDelta)
	buf.argsBuf.WriteString(delta.ArgsDelta)

	if !delta.Done {
		return nil
	}
	return a.finalize(delta.CallIndex)
}

// finalize parses the accumulated args buffer for index and returns the
// resulting ToolCall, or nil if the buffer failed to parse (in which case
// an error is recorded). Either way, the buffer is dropped and the index
// is marked finalized so later deltas for it are ignored.
func (a *Assembler) finalize(index int) *models.ToolCall {
	buf, ok := a.buffers[index]
	if !ok {
		return nil
	}
	delete(a.buffers, index)
	a.finalized[index] = true

	raw := buf.argsBuf.String()
	if raw == "" {
		raw = "{}"
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		a.errors = append(a.errors, fmt.Sprintf("tool_call_json_parse_failed idx=%d err=%v", index, err))
		return nil
	}

	id := buf.id
	if id == "" {
		id = fmt.Sprintf("call_%d", index)
	}
	return &models.ToolCall{
		ID:        id,
		Name:      strings.TrimSpace(buf.nameBuf.String()),
		Arguments: args,
	}
}

// Flush finalizes every buffer still open, in ascending call_index order,
// applying the same success/failure rules as Feed's done=true path.
func (a *Assembler) Flush() []models.ToolCall {
	indices := make([]int, 0, len(a.buffers))
	for idx := range a.buffers {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var calls []models.ToolCall
	for _, idx := range indices {
		if tc := a.finalize(idx); tc != nil {
			calls = append(calls, *tc)
		}
	}
	return calls
}

// Errors returns the accumulated assembly error list.
func (a *Assembler) Errors() []string {
	return a.errors
}

// Reset clears all buffers, finalized markers, and errors, readying the
// Assembler for a new stream.
func (a *Assembler) Reset() {
	a.buffers = make(map[int]*buffer)
	a.finalized = make(map[int]bool)
	a.errors = nil
}
