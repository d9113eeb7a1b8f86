package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusengine/core/internal/artifacts"
	pctx "github.com/nexusengine/core/internal/context"
	"github.com/nexusengine/core/internal/policy"
	"github.com/nexusengine/core/internal/providers"
	"github.com/nexusengine/core/internal/sessions"
	"github.com/nexusengine/core/internal/tokencount"
	"github.com/nexusengine/core/internal/tools"
	"github.com/nexusengine/core/pkg/models"
)

// echoTool is a trivial read-only tool: it echoes the "message" argument
// back as its content.
type echoTool struct{}

func (echoTool) Name() string                      { return "echo" }
func (echoTool) Description() string               { return "echoes its message argument" }
func (echoTool) Parameters() json.RawMessage       { return json.RawMessage(`{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`) }
func (echoTool) RiskLevel() models.RiskLevel       { return models.RiskReadOnly }
func (echoTool) PrivacyScope() models.PrivacyScope { return models.PrivacyPublic }
func (echoTool) SecretFields() []string            { return nil }
func (echoTool) Execute(ctx context.Context, args map[string]any) (models.ToolResult, error) {
	msg, _ := args["message"].(string)
	return models.ToolResult{Success: true, Content: msg}, nil
}

// writeFileTool is a WRITE-risk tool used to exercise policy blocking.
type writeFileTool struct{}

func (writeFileTool) Name() string                    { return "write_file" }
func (writeFileTool) Description() string             { return "writes a file" }
func (writeFileTool) Parameters() json.RawMessage      { return json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}}}`) }
func (writeFileTool) RiskLevel() models.RiskLevel      { return models.RiskWrite }
func (writeFileTool) PrivacyScope() models.PrivacyScope { return models.PrivacyPublic }
func (writeFileTool) SecretFields() []string           { return nil }
func (writeFileTool) Execute(ctx context.Context, args map[string]any) (models.ToolResult, error) {
	return models.ToolResult{Success: true, Content: "wrote"}, nil
}

// scriptedProvider replies with one canned AssembledAssistant per call to
// Chat, in order, by emitting it as a single StreamChunk sequence.
type scriptedProvider struct {
	turns []models.StreamChunk
	calls int
}

func (p *scriptedProvider) Name() string { return "scripted" }
func (p *scriptedProvider) Chat(ctx context.Context, messages []models.Message, toolSchemas []tools.Schema) (<-chan models.StreamChunk, error) {
	idx := p.calls
	p.calls++
	out := make(chan models.StreamChunk, 1)
	if idx < len(p.turns) {
		out <- p.turns[idx]
	} else {
		out <- models.StreamChunk{Done: true}
	}
	close(out)
	return out, nil
}
func (p *scriptedProvider) CountTokens(messages []models.Message, toolSchemas []tools.Schema) int {
	return len(messages)
}
func (p *scriptedProvider) MaxContextTokens() int { return 100000 }
func (p *scriptedProvider) MaxOutputTokens() int  { return 4096 }

func textChunk(text string) models.StreamChunk {
	return models.StreamChunk{TextDelta: text, Done: true}
}

func toolCallChunk(callID, name string, args map[string]any) models.StreamChunk {
	encoded, _ := json.Marshal(args)
	return models.StreamChunk{
		ToolDeltas: []models.RawToolDelta{
			{CallIndex: 0, ID: callID, NameDelta: name},
			{CallIndex: 0, ArgsDelta: string(encoded)},
			{CallIndex: 0, Done: true},
		},
		Done: true,
	}
}

type harness struct {
	orch    *Orchestrator
	session *sessions.Session
	store   *sessions.MemoryStore
}

func newHarness(t *testing.T, registry *tools.Registry, provider providers.Provider, polCfg policy.Config) *harness {
	t.Helper()
	ctx := context.Background()

	store := sessions.NewMemoryStore()
	sess, err := sessions.Start(ctx, store, pctx.New(tokencount.New()), nil)
	require.NoError(t, err)

	router := providers.NewRouter()
	router.Register(provider)

	if polCfg.AuditLogPath == "" {
		polCfg.AuditLogPath = filepath.Join(t.TempDir(), "audit.log")
	}
	pol, err := policy.NewEngine(polCfg)
	require.NoError(t, err)
	t.Cleanup(func() { pol.Close() })

	artifactStore, err := artifacts.New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	orch := New(sess, registry, tools.NewValidator(), router, pol, artifactStore, Config{
		SystemPrompt: "be terse",
		MaxTurns:     3,
	})

	return &harness{orch: orch, session: sess, store: store}
}

func drain(ch <-chan OutputChunk) []OutputChunk {
	var out []OutputChunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestTextOnlyScenario(t *testing.T) {
	registry := tools.NewRegistry()
	provider := &scriptedProvider{turns: []models.StreamChunk{textChunk("Just a text response.")}}
	h := newHarness(t, registry, provider, policy.Config{MaxRisk: models.RiskShell})

	ch, err := h.orch.Run(context.Background(), "hello")
	require.NoError(t, err)
	chunks := drain(ch)

	require.NotEmpty(t, chunks)
	assert.Equal(t, "Just a text response.", chunks[len(chunks)-1].Content)
	assert.True(t, chunks[len(chunks)-1].Done)

	events, err := h.store.GetEvents(context.Background(), h.session.ID(), "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventUserMessage, events[0].EventType)
	assert.Equal(t, "hello", events[0].UserMessage.Content)
	assert.Equal(t, models.EventAssistantMessage, events[1].EventType)
	assert.Equal(t, "Just a text response.", events[1].AssistantMessage.Content)
}

func TestSingleToolScenario(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(echoTool{}, false))

	provider := &scriptedProvider{turns: []models.StreamChunk{
		toolCallChunk("call_1", "echo", map[string]any{"message": "hi"}),
		textChunk("Done."),
	}}
	h := newHarness(t, registry, provider, policy.Config{MaxRisk: models.RiskShell})

	ch, err := h.orch.Run(context.Background(), "please echo hi")
	require.NoError(t, err)
	drain(ch)

	events, err := h.store.GetEvents(context.Background(), h.session.ID(), "")
	require.NoError(t, err)

	var types []models.EventType
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []models.EventType{
		models.EventUserMessage,
		models.EventToolCallRequest,
		models.EventToolCallResult,
		models.EventAssistantMessage,
	}, types)

	result := events[2].ToolCallResult
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, "hi", result.Content)
}

func TestUnknownToolScenario(t *testing.T) {
	registry := tools.NewRegistry()
	provider := &scriptedProvider{turns: []models.StreamChunk{
		toolCallChunk("call_1", "nonexistent_tool", map[string]any{}),
		textChunk("ok"),
	}}
	h := newHarness(t, registry, provider, policy.Config{MaxRisk: models.RiskShell})

	ch, err := h.orch.Run(context.Background(), "do the thing")
	require.NoError(t, err)
	drain(ch)

	events, err := h.store.GetEvents(context.Background(), h.session.ID(), "")
	require.NoError(t, err)
	require.Len(t, events, 4)
	result := events[2].ToolCallResult
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, models.ErrorCodeUnknownTool, result.ErrorCode)

	msgs, err := h.session.GetMessages(context.Background())
	require.NoError(t, err)
	var toolMsg *models.Message
	for i := range msgs {
		if msgs[i].Role == models.RoleTool {
			toolMsg = &msgs[i]
		}
	}
	require.NotNil(t, toolMsg)
	assert.Contains(t, toolMsg.Content, "Unknown tool: nonexistent_tool")
}

func TestPolicyBlockScenario(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(writeFileTool{}, false))

	provider := &scriptedProvider{turns: []models.StreamChunk{
		toolCallChunk("call_1", "write_file", map[string]any{"path": "/tmp/x"}),
		textChunk("ok"),
	}}
	h := newHarness(t, registry, provider, policy.Config{MaxRisk: models.RiskReadOnly})

	ch, err := h.orch.Run(context.Background(), "write a file")
	require.NoError(t, err)
	drain(ch)

	events, err := h.store.GetEvents(context.Background(), h.session.ID(), "")
	require.NoError(t, err)
	result := events[2].ToolCallResult
	require.NotNil(t, result)
	assert.Equal(t, models.ErrorCodePolicyBlock, result.ErrorCode)
	assert.Contains(t, result.Error, "risk_too_high")
	assert.Contains(t, result.Error, "WRITE")
}

func TestConfirmationDeniedScenario(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(writeFileTool{}, false))

	provider := &scriptedProvider{turns: []models.StreamChunk{
		toolCallChunk("call_1", "write_file", map[string]any{"path": "/tmp/x"}),
		textChunk("ok"),
	}}
	h := newHarness(t, registry, provider, policy.Config{MaxRisk: models.RiskShell, ConfirmWrite: true})
	h.orch.cfg.Confirm = func(ctx context.Context, toolName string, call models.ToolCall) bool { return false }

	ch, err := h.orch.Run(context.Background(), "write a file")
	require.NoError(t, err)
	drain(ch)

	events, err := h.store.GetEvents(context.Background(), h.session.ID(), "")
	require.NoError(t, err)

	var types []models.EventType
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []models.EventType{
		models.EventUserMessage,
		models.EventToolCallRequest,
		models.EventConfirmation,
		models.EventToolCallResult,
		models.EventAssistantMessage,
	}, types)

	assert.False(t, events[2].Confirmation.Confirmed)
	assert.Equal(t, models.ErrorCodeCancelled, events[3].ToolCallResult.ErrorCode)
}

func TestMalformedToolCallJSONScenario(t *testing.T) {
	registry := tools.NewRegistry()
	provider := &scriptedProvider{turns: []models.StreamChunk{
		{ToolDeltas: []models.RawToolDelta{
			{CallIndex: 0, ID: "call_1", NameDelta: "echo"},
			{CallIndex: 0, ArgsDelta: `{"key": INVALID_JSON`},
			{CallIndex: 0, Done: true},
		}, Done: true},
	}}
	h := newHarness(t, registry, provider, policy.Config{MaxRisk: models.RiskShell})

	ch, err := h.orch.Run(context.Background(), "trigger malformed json")
	require.NoError(t, err)
	chunks := drain(ch)

	require.NotEmpty(t, chunks)
	assert.True(t, chunks[len(chunks)-1].Done)

	events, err := h.store.GetEvents(context.Background(), h.session.ID(), "")
	require.NoError(t, err)

	var types []models.EventType
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []models.EventType{
		models.EventUserMessage,
		models.EventProtocolError,
		models.EventAssistantMessage,
	}, types)
}

func TestMaxTurnsScenario(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(echoTool{}, false))

	turns := make([]models.StreamChunk, 0, 3)
	for i := 0; i < 3; i++ {
		turns = append(turns, toolCallChunk("call", "echo", map[string]any{"message": "hi"}))
	}
	provider := &scriptedProvider{turns: turns}
	h := newHarness(t, registry, provider, policy.Config{MaxRisk: models.RiskShell})

	ch, err := h.orch.Run(context.Background(), "loop forever")
	require.NoError(t, err)
	chunks := drain(ch)
	require.NotEmpty(t, chunks)
	assert.Contains(t, chunks[len(chunks)-1].Content, "maximum")

	events, err := h.store.GetEvents(context.Background(), h.session.ID(), "")
	require.NoError(t, err)

	requestCount, resultCount := 0, 0
	for _, e := range events {
		switch e.EventType {
		case models.EventToolCallRequest:
			requestCount++
		case models.EventToolCallResult:
			resultCount++
		}
	}
	assert.Equal(t, 3, requestCount)
	assert.Equal(t, 3, resultCount)
}
