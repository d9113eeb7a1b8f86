// Package models provides the shared data vocabulary of the orchestration
// engine: messages, tool calls, events, and the artifact/session records
// that flow between components.
package models

import "time"

// Role identifies who authored a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one item in a conversation as presented to (or derived for) an
// LLM provider.
type Message struct {
	Role Role `json:"role"`

	// Content is the message text; it may be empty for a tool-call-only
	// assistant message.
	Content string `json:"content"`

	// ToolCalls is only populated on assistant messages.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is only populated on tool messages; it references the
	// ToolCall.ID of a prior assistant message.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Model and Provider record provenance for assistant messages.
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// ToolCall is a resolved, parsed call requested by the assistant.
type ToolCall struct {
	// ID is unique within the turn that produced it.
	ID   string `json:"id"`
	Name string `json:"name"`

	// Arguments holds the parsed JSON object the assistant supplied.
	Arguments map[string]any `json:"arguments"`
}

// RawToolDelta is an incremental tool-call fragment taken directly off a
// provider's event stream, before assembly into a ToolCall.
type RawToolDelta struct {
	// CallIndex stably keys a partial call across multiple deltas.
	CallIndex int

	// ID, when present, is the provider-assigned tool_call id. Providers
	// typically emit it once, on the first delta for an index.
	ID string

	// NameDelta and ArgsDelta are appended to the running buffers for
	// CallIndex in arrival order.
	NameDelta string
	ArgsDelta string

	// Done finalizes the buffer for CallIndex.
	Done bool
}

// StreamChunk is one element of a provider's response stream.
type StreamChunk struct {
	// TextDelta is appended to the assembled assistant content.
	TextDelta string

	// ToolDeltas are fed to the assembler in order.
	ToolDeltas []RawToolDelta

	// Done terminates the stream; no further chunks follow.
	Done bool

	// InputTokens/OutputTokens are populated on the terminal chunk when
	// the provider reports usage.
	InputTokens  int
	OutputTokens int
}

// AssembledAssistant is the product of consuming one complete provider
// stream for a single LLM turn.
type AssembledAssistant struct {
	Content   string
	ToolCalls []ToolCall

	// AssemblerErrors mirrors the assembler's error list at end of stream.
	// A non-empty list means ToolCalls is forced empty (see orchestrator
	// step c).
	AssemblerErrors []string

	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
}

// EventType enumerates the kinds of SessionEvent.
type EventType string

const (
	EventUserMessage      EventType = "user_message"
	EventAssistantMessage EventType = "assistant_message"
	EventToolCallRequest  EventType = "tool_call_request"
	EventToolCallResult   EventType = "tool_call_result"
	EventConfirmation     EventType = "confirmation"
	EventModelSwitch      EventType = "model_switch"
	EventProtocolError    EventType = "protocol_error"
)

// SessionEvent is an immutable, typed, append-only record in a session's
// event log. Exactly one of the Payload* fields matching EventType is set.
type SessionEvent struct {
	EventID   string    `json:"event_id"`
	SessionID string    `json:"session_id"`
	TurnID    string    `json:"turn_id"`
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`

	UserMessage      *UserMessagePayload      `json:"user_message,omitempty"`
	AssistantMessage *AssistantMessagePayload `json:"assistant_message,omitempty"`
	ToolCallRequest  *ToolCallRequestPayload  `json:"tool_call_request,omitempty"`
	ToolCallResult   *ToolCallResultPayload   `json:"tool_call_result,omitempty"`
	Confirmation     *ConfirmationPayload     `json:"confirmation,omitempty"`
	ModelSwitch      *ModelSwitchPayload      `json:"model_switch,omitempty"`
	ProtocolError    *ProtocolErrorPayload    `json:"protocol_error,omitempty"`
}

// UserMessagePayload carries inbound user text.
type UserMessagePayload struct {
	Content string `json:"content"`
}

// AssistantMessagePayload carries an assistant turn's accumulated text.
type AssistantMessagePayload struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

// ToolCallRequestPayload records one assembled tool call before execution.
type ToolCallRequestPayload struct {
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Arguments  map[string]any `json:"arguments"`
}

// ToolCallResultPayload records the outcome of executing a tool call.
type ToolCallResultPayload struct {
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Success    bool           `json:"success"`
	Content    string         `json:"content"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ConfirmationPayload records a user confirmation decision.
type ConfirmationPayload struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Confirmed  bool   `json:"confirmed"`
}

// ModelSwitchPayload records an active-model change.
type ModelSwitchPayload struct {
	FromModel string `json:"from_model"`
	ToModel   string `json:"to_model"`
}

// ProtocolErrorPayload records an unrecoverable streaming protocol error.
type ProtocolErrorPayload struct {
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Session is the top-level conversation record. Event history is stored
// separately (see the sessions package); this struct holds only the
// session-level metadata.
type Session struct {
	SessionID string         `json:"session_id"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Error codes appearing in ToolCallResultPayload.ErrorCode and audit
// records. See spec §6.
const (
	ErrorCodeValidation    = "validation_error"
	ErrorCodePolicyBlock   = "policy_block"
	ErrorCodeTimeout       = "timeout"
	ErrorCodeToolException = "tool_exception"
	ErrorCodeUnknownTool   = "unknown_tool"
	ErrorCodeCancelled     = "cancelled"
	ErrorCodeBackendError  = "backend_error"
	ErrorCodeLLMProtocol   = "llm_protocol_error"
)
