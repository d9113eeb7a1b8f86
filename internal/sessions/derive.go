package sessions

import "github.com/nexusengine/core/pkg/models"

// deriveMessages implements the event -> Message derivation contract from
// spec §4.5: walk events in order, buffering tool_call_request payloads
// until the next flush point, so an assistant turn that used tools ends
// up carrying its ToolCalls inline on the Message that preceded them.
func deriveMessages(events []models.SessionEvent) []models.Message {
	var messages []models.Message
	var pending []models.ToolCall

	flush := func() {
		if len(pending) == 0 {
			return
		}
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == models.RoleAssistant {
				messages[i].ToolCalls = append(messages[i].ToolCalls, pending...)
				break
			}
		}
		pending = nil
	}

	for _, e := range events {
		switch e.EventType {
		case models.EventUserMessage:
			flush()
			messages = append(messages, models.Message{
				Role:    models.RoleUser,
				Content: e.UserMessage.Content,
			})

		case models.EventAssistantMessage:
			flush()
			messages = append(messages, models.Message{
				Role:    models.RoleAssistant,
				Content: e.AssistantMessage.Content,
				Model:   e.AssistantMessage.Model,
			})

		case models.EventToolCallRequest:
			pending = append(pending, models.ToolCall{
				ID:        e.ToolCallRequest.ToolCallID,
				Name:      e.ToolCallRequest.ToolName,
				Arguments: e.ToolCallRequest.Arguments,
			})

		case models.EventToolCallResult:
			flush()
			content := e.ToolCallResult.Content
			if !e.ToolCallResult.Success {
				content = "[Error] " + e.ToolCallResult.Error + ": " + e.ToolCallResult.Content
			}
			messages = append(messages, models.Message{
				Role:       models.RoleTool,
				Content:    content,
				ToolCallID: e.ToolCallResult.ToolCallID,
			})

		case models.EventConfirmation, models.EventModelSwitch, models.EventProtocolError:
			// Metadata only; these never emit a Message.
		}
	}
	flush()

	return messages
}
