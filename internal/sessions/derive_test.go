package sessions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusengine/core/pkg/models"
)

func TestDeriveTextOnlyConversation(t *testing.T) {
	events := []models.SessionEvent{
		{EventType: models.EventUserMessage, UserMessage: &models.UserMessagePayload{Content: "hello"}},
		{EventType: models.EventAssistantMessage, AssistantMessage: &models.AssistantMessagePayload{Content: "hi there"}},
	}
	msgs := deriveMessages(events)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Empty(t, msgs[1].ToolCalls)
}

func TestDeriveAttachesToolCallsToPriorAssistantMessage(t *testing.T) {
	events := []models.SessionEvent{
		{EventType: models.EventUserMessage, UserMessage: &models.UserMessagePayload{Content: "run echo"}},
		{EventType: models.EventAssistantMessage, AssistantMessage: &models.AssistantMessagePayload{Content: ""}},
		{EventType: models.EventToolCallRequest, ToolCallRequest: &models.ToolCallRequestPayload{
			ToolCallID: "call_0", ToolName: "echo", Arguments: map[string]any{"message": "hi"},
		}},
		{EventType: models.EventToolCallResult, ToolCallResult: &models.ToolCallResultPayload{
			ToolCallID: "call_0", ToolName: "echo", Success: true, Content: "hi",
		}},
		{EventType: models.EventAssistantMessage, AssistantMessage: &models.AssistantMessagePayload{Content: "done"}},
	}
	msgs := deriveMessages(events)
	require.Len(t, msgs, 4)
	assert.Equal(t, models.RoleUser, msgs[0].Role)

	assistant := msgs[1]
	assert.Equal(t, models.RoleAssistant, assistant.Role)
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "echo", assistant.ToolCalls[0].Name)

	toolMsg := msgs[2]
	assert.Equal(t, models.RoleTool, toolMsg.Role)
	assert.Equal(t, "call_0", toolMsg.ToolCallID)
	assert.Equal(t, "hi", toolMsg.Content)

	assert.Equal(t, "done", msgs[3].Content)
}

func TestDeriveFailedToolResultFormatsErrorContent(t *testing.T) {
	events := []models.SessionEvent{
		{EventType: models.EventAssistantMessage, AssistantMessage: &models.AssistantMessagePayload{}},
		{EventType: models.EventToolCallRequest, ToolCallRequest: &models.ToolCallRequestPayload{ToolCallID: "call_0", ToolName: "bad"}},
		{EventType: models.EventToolCallResult, ToolCallResult: &models.ToolCallResultPayload{
			ToolCallID: "call_0", ToolName: "bad", Success: false, Error: "Unknown tool: bad", Content: "",
		}},
	}
	msgs := deriveMessages(events)
	require.Len(t, msgs, 2)
	assert.Equal(t, "[Error] Unknown tool: bad: ", msgs[1].Content)
}

func TestDeriveMetadataOnlyEventsDoNotEmitMessages(t *testing.T) {
	events := []models.SessionEvent{
		{EventType: models.EventUserMessage, UserMessage: &models.UserMessagePayload{Content: "hi"}},
		{EventType: models.EventConfirmation, Confirmation: &models.ConfirmationPayload{Confirmed: true}},
		{EventType: models.EventModelSwitch, ModelSwitch: &models.ModelSwitchPayload{FromModel: "a", ToModel: "b"}},
		{EventType: models.EventProtocolError, ProtocolError: &models.ProtocolErrorPayload{Message: "oops"}},
	}
	msgs := deriveMessages(events)
	assert.Len(t, msgs, 1)
}

func TestDeriveFlushesTrailingPendingToolCallsAtEndOfWalk(t *testing.T) {
	events := []models.SessionEvent{
		{EventType: models.EventAssistantMessage, AssistantMessage: &models.AssistantMessagePayload{}},
		{EventType: models.EventToolCallRequest, ToolCallRequest: &models.ToolCallRequestPayload{ToolCallID: "call_0", ToolName: "echo"}},
	}
	msgs := deriveMessages(events)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].ToolCalls, 1)
}
