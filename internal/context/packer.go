// Package context trims a session's message history to fit inside a
// provider's token budget while always preserving privileged (system)
// messages and the most recent conversational suffix.
package context

import (
	"github.com/nexusengine/core/internal/tokencount"
	"github.com/nexusengine/core/pkg/models"
)

// Limits bounds a single pack call.
type Limits struct {
	MaxContextTokens int
	MaxOutputTokens  int
	ReserveTokens    int
}

// Report describes the outcome of a Pack call.
type Report struct {
	KeptCount      int
	DroppedCount   int
	SystemTokens   int
	ToolSchemaTokens int
	SystemPromptTokens int
	OrdinaryTokens int
	Budget         int
}

// Packer trims message histories to a token budget.
type Packer struct {
	counter *tokencount.Counter
}

// New returns a Packer using the given token counter.
func New(counter *tokencount.Counter) *Packer {
	if counter == nil {
		counter = tokencount.New()
	}
	return &Packer{counter: counter}
}

// Pack selects the subset of messages that fits within limits, always
// keeping every system-role message and preserving a suffix-contiguous
// run of the newest ordinary messages. See spec §4.4 for the exact
// algorithm; step 4 deliberately stops at the first message that doesn't
// fit rather than skipping ahead to find a smaller, older one that does —
// this keeps the kept window's recency contiguous.
func (p *Packer) Pack(messages []models.Message, tools []tokencount.ToolSchema, systemPrompt string, limits Limits) ([]models.Message, Report) {
	toolSchemaTokens := 0
	if len(tools) > 0 {
		toolSchemaTokens = p.counter.CountMessages(nil, tools)
	}
	systemPromptTokens := p.counter.CountText(systemPrompt)

	fixed := toolSchemaTokens + systemPromptTokens
	budget := limits.MaxContextTokens - limits.MaxOutputTokens - limits.ReserveTokens - fixed
	if budget < 0 {
		budget = 0
	}

	var privileged, ordinary []models.Message
	var privilegedIdx, ordinaryIdx []int
	for i, m := range messages {
		if m.Role == models.RoleSystem {
			privileged = append(privileged, m)
			privilegedIdx = append(privilegedIdx, i)
		} else {
			ordinary = append(ordinary, m)
			ordinaryIdx = append(ordinaryIdx, i)
		}
	}

	systemTokens := 0
	for _, m := range privileged {
		systemTokens += p.counter.CountMessages([]models.Message{m}, nil)
	}
	remaining := budget - systemTokens
	if remaining < 0 {
		remaining = 0
	}

	keptOrdinarySet := make(map[int]bool, len(ordinary))
	ordinaryTokens := 0
	for i := len(ordinary) - 1; i >= 0; i-- {
		cost := p.counter.CountMessages([]models.Message{ordinary[i]}, nil)
		if cost > remaining {
			break
		}
		remaining -= cost
		ordinaryTokens += cost
		keptOrdinarySet[ordinaryIdx[i]] = true
	}

	kept := make([]models.Message, 0, len(messages))
	droppedCount := 0
	privilegedSet := make(map[int]bool, len(privileged))
	for _, idx := range privilegedIdx {
		privilegedSet[idx] = true
	}
	for i, m := range messages {
		if privilegedSet[i] || keptOrdinarySet[i] {
			kept = append(kept, m)
		} else {
			droppedCount++
		}
	}

	return kept, Report{
		KeptCount:          len(kept),
		DroppedCount:       droppedCount,
		SystemTokens:       systemTokens,
		ToolSchemaTokens:   toolSchemaTokens,
		SystemPromptTokens: systemPromptTokens,
		OrdinaryTokens:     ordinaryTokens,
		Budget:             budget,
	}
}
