package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusengine/core/pkg/models"
)

func TestCountText(t *testing.T) {
	c := New()
	assert.Equal(t, 0, c.CountText(""))
	assert.Equal(t, 1, c.CountText("hi"))
	assert.Equal(t, 3, c.CountText("hello world!!")) // 13 chars / 4 = 3
}

func TestCountText_Heuristic(t *testing.T) {
	c := New()
	// 8 chars -> exactly 2 tokens.
	require.Equal(t, 2, c.CountText("abcdefgh"))
	// 1-3 chars always round up to 1 token, never 0.
	assert.Equal(t, 1, c.CountText("a"))
	assert.Equal(t, 1, c.CountText("abc"))
}

func TestCountText_CustomEncoder(t *testing.T) {
	c := WithEncoder(func(s string) int { return len(s) })
	assert.Equal(t, 5, c.CountText("hello"))
}

func TestCountMessages_Overhead(t *testing.T) {
	c := New()
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "hi"},
	}
	// 4 overhead + 1 token for "hi".
	assert.Equal(t, 5, c.CountMessages(msgs, nil))
}

func TestCountMessages_ToolCallsAndID(t *testing.T) {
	c := New()
	msgs := []models.Message{
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "call_0", Name: "search", Arguments: map[string]any{"q": "go"}},
			},
		},
		{
			Role:       models.RoleTool,
			ToolCallID: "call_0",
			Content:    "result text",
		},
	}
	got := c.CountMessages(msgs, nil)
	assert.Greater(t, got, 2*perMessageOverhead)
}

func TestCountMessages_WithTools(t *testing.T) {
	c := New()
	tools := []ToolSchema{
		{Name: "search", Description: "search the web", Parameters: []byte(`{"type":"object"}`)},
	}
	withoutTools := c.CountMessages(nil, nil)
	withTools := c.CountMessages(nil, tools)
	assert.Greater(t, withTools, withoutTools)
}
