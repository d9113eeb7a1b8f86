// Package orchestrator implements the top-level run loop (C11): it turns
// one user input into a bounded sequence of LLM turns, each dispatching
// zero or more tool calls through the registry, validator, policy engine,
// and artifact store, and streams output chunks back to the caller.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nexusengine/core/internal/artifacts"
	pctx "github.com/nexusengine/core/internal/context"
	"github.com/nexusengine/core/internal/policy"
	"github.com/nexusengine/core/internal/providers"
	"github.com/nexusengine/core/internal/sessions"
	"github.com/nexusengine/core/internal/tokencount"
	"github.com/nexusengine/core/internal/tools"
	"github.com/nexusengine/core/pkg/models"
)

const defaultApology = "Something went wrong processing that response. Please try again."

// ConfirmFunc is the external confirmation callback: given a tool name
// and the pending call, it decides whether execution proceeds.
type ConfirmFunc func(ctx context.Context, toolName string, call models.ToolCall) bool

// OutputChunk is one piece of the orchestrator's streamed response.
type OutputChunk struct {
	Content string
	Done    bool
}

// Config bundles the orchestrator's fixed parameters.
type Config struct {
	SystemPrompt string
	ToolTimeout  time.Duration
	MaxTurns     int
	Confirm      ConfirmFunc
}

// Orchestrator drives one session's turn loop per spec §4.11.
type Orchestrator struct {
	session   *sessions.Session
	registry  *tools.Registry
	validator *tools.Validator
	router    *providers.Router
	policy    *policy.Engine
	artifacts *artifacts.Store
	cfg       Config
}

// New returns an Orchestrator bound to one session. If cfg.MaxTurns or
// cfg.ToolTimeout are unset, sensible defaults apply.
func New(session *sessions.Session, registry *tools.Registry, validator *tools.Validator, router *providers.Router, pol *policy.Engine, store *artifacts.Store, cfg Config) *Orchestrator {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 10
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 30 * time.Second
	}
	return &Orchestrator{
		session:   session,
		registry:  registry,
		validator: validator,
		router:    router,
		policy:    pol,
		artifacts: store,
		cfg:       cfg,
	}
}

// Run executes spec §4.11's run(user_input) loop and streams output
// chunks until the turn completes, the assistant replies without a tool
// call, a protocol error terminates the run, or max_turns is exhausted.
// The returned channel is always closed before Run's goroutine exits.
func (o *Orchestrator) Run(ctx context.Context, userInput string) (<-chan OutputChunk, error) {
	out := make(chan OutputChunk, 8)

	o.session.NewTurn()
	if err := o.session.AppendEvent(ctx, models.SessionEvent{
		EventType:   models.EventUserMessage,
		UserMessage: &models.UserMessagePayload{Content: userInput},
	}); err != nil {
		return nil, fmt.Errorf("orchestrator: append user_message: %w", err)
	}

	go func() {
		defer close(out)
		o.runTurns(ctx, out)
	}()

	return out, nil
}

func (o *Orchestrator) runTurns(ctx context.Context, out chan<- OutputChunk) {
	for turn := 0; turn < o.cfg.MaxTurns; turn++ {
		maxContext, maxOutput, err := o.router.ActiveLimits()
		if err != nil {
			out <- OutputChunk{Content: fmt.Sprintf("no active provider: %v", err), Done: true}
			return
		}

		toolSchemas := o.registry.SchemaExport(models.RiskShell, false)
		tcSchemas := make([]tokencount.ToolSchema, len(toolSchemas))
		for i, s := range toolSchemas {
			tcSchemas[i] = tokencount.ToolSchema{Name: s.Name, Description: s.Description, Parameters: s.Parameters}
		}

		kept, _, err := o.session.GetContextWindow(ctx, tcSchemas, o.cfg.SystemPrompt, pctx.Limits{
			MaxContextTokens: maxContext,
			MaxOutputTokens:  maxOutput,
		})
		if err != nil {
			out <- OutputChunk{Content: fmt.Sprintf("failed to build context window: %v", err), Done: true}
			return
		}

		messages := make([]models.Message, 0, len(kept)+1)
		if o.cfg.SystemPrompt != "" {
			messages = append(messages, models.Message{Role: models.RoleSystem, Content: o.cfg.SystemPrompt})
		}
		messages = append(messages, kept...)

		assembled, err := o.router.ChatComplete(ctx, messages, toolSchemas)
		if err != nil {
			out <- OutputChunk{Content: fmt.Sprintf("provider error: %v", err), Done: true}
			return
		}

		if len(assembled.AssemblerErrors) > 0 {
			o.terminateOnProtocolError(ctx, assembled, out)
			return
		}

		if len(assembled.ToolCalls) == 0 {
			if assembled.Content != "" {
				_ = o.session.AppendEvent(ctx, models.SessionEvent{
					EventType:        models.EventAssistantMessage,
					AssistantMessage: &models.AssistantMessagePayload{Content: assembled.Content, Model: assembled.Model},
				})
			}
			out <- OutputChunk{Content: assembled.Content, Done: true}
			return
		}

		if assembled.Content != "" {
			_ = o.session.AppendEvent(ctx, models.SessionEvent{
				EventType:        models.EventAssistantMessage,
				AssistantMessage: &models.AssistantMessagePayload{Content: assembled.Content, Model: assembled.Model},
			})
			out <- OutputChunk{Content: assembled.Content}
		}

		for _, call := range assembled.ToolCalls {
			summary := o.runToolCallLifecycle(ctx, call)
			out <- OutputChunk{Content: summary}
		}
	}

	msg := fmt.Sprintf("Reached the maximum of %d turns without a final response.", o.cfg.MaxTurns)
	_ = o.session.AppendEvent(ctx, models.SessionEvent{
		EventType:        models.EventAssistantMessage,
		AssistantMessage: &models.AssistantMessagePayload{Content: msg},
	})
	out <- OutputChunk{Content: msg, Done: true}
}

func (o *Orchestrator) terminateOnProtocolError(ctx context.Context, assembled models.AssembledAssistant, out chan<- OutputChunk) {
	_ = o.session.AppendEvent(ctx, models.SessionEvent{
		EventType: models.EventProtocolError,
		ProtocolError: &models.ProtocolErrorPayload{
			Message: "tool call assembly failed",
			Details: map[string]any{"errors": assembled.AssemblerErrors},
		},
	})

	content := assembled.Content
	if content == "" {
		content = defaultApology
	}
	_ = o.session.AppendEvent(ctx, models.SessionEvent{
		EventType:        models.EventAssistantMessage,
		AssistantMessage: &models.AssistantMessagePayload{Content: content},
	})
	out <- OutputChunk{Content: content, Done: true}
}

// runToolCallLifecycle implements the nine-step per-call lifecycle from
// spec §4.11 and returns a short human-readable summary of the outcome.
func (o *Orchestrator) runToolCallLifecycle(ctx context.Context, call models.ToolCall) string {
	_ = o.session.AppendEvent(ctx, models.SessionEvent{
		EventType: models.EventToolCallRequest,
		ToolCallRequest: &models.ToolCallRequestPayload{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Arguments:  call.Arguments,
		},
	})

	tool, err := o.registry.Get(call.Name)
	if err != nil {
		return o.recordResult(ctx, call, models.ToolResult{
			Success:   false,
			Error:     fmt.Sprintf("Unknown tool: %s", call.Name),
			ErrorCode: models.ErrorCodeUnknownTool,
		})
	}

	if ok, reason := o.validator.Validate(tool, call.Arguments); !ok {
		return o.recordResult(ctx, call, models.ToolResult{
			Success:   false,
			Error:     reason,
			ErrorCode: models.ErrorCodeValidation,
		})
	}

	decision := o.policy.Check(tool, call.Arguments)
	if !decision.Allowed {
		return o.recordResult(ctx, call, models.ToolResult{
			Success:   false,
			Error:     decision.Reason,
			ErrorCode: models.ErrorCodePolicyBlock,
		})
	}

	if decision.RequiresConfirmation {
		confirmed := o.cfg.Confirm != nil && o.cfg.Confirm(ctx, call.Name, call)
		_ = o.session.AppendEvent(ctx, models.SessionEvent{
			EventType: models.EventConfirmation,
			Confirmation: &models.ConfirmationPayload{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Confirmed:  confirmed,
			},
		})
		if !confirmed {
			return o.recordResult(ctx, call, models.ToolResult{
				Success:   false,
				Error:     "tool call was not confirmed",
				ErrorCode: models.ErrorCodeCancelled,
			})
		}
	}

	start := time.Now()
	result, errCode, toolErr := o.execute(ctx, tool, call)
	duration := time.Since(start)

	if result.Success {
		result = o.storeArtifacts(ctx, result)
	}
	if toolErr != nil && result.ErrorCode == "" {
		result.ErrorCode = errCode
	}

	// Audit logging runs only for calls that reached execution (success,
	// timeout, or tool_exception); earlier rejections (unknown_tool,
	// validation_error, policy_block, cancelled) never ran the tool and
	// are not audited, per spec §4.11 steps 6-8.
	if err := o.policy.AuditLog(policy.AuditInput{
		SessionID:  o.session.ID(),
		ToolCallID: call.ID,
		Tool:       tool,
		Arguments:  call.Arguments,
		Duration:   duration,
		Result:     result,
	}); err != nil {
		_ = err
	}

	return o.recordResult(ctx, call, result)
}

// execute runs tool with a tool_timeout deadline, translating a deadline
// exceeded into a timeout ToolResult and a panic/error into tool_exception.
// The caller audits both outcomes, per spec §4.11 step 6.
func (o *Orchestrator) execute(ctx context.Context, tool tools.Tool, call models.ToolCall) (result models.ToolResult, errCode string, toolErr error) {
	execCtx, cancel := context.WithTimeout(ctx, o.cfg.ToolTimeout)
	defer cancel()

	type outcome struct {
		result models.ToolResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := tool.Execute(execCtx, call.Arguments)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-execCtx.Done():
		return models.ToolResult{
			Success:   false,
			Error:     "tool execution timed out",
			ErrorCode: models.ErrorCodeTimeout,
		}, models.ErrorCodeTimeout, execCtx.Err()
	case res := <-done:
		if res.err != nil {
			return models.ToolResult{
				Success:   false,
				Error:     res.err.Error(),
				ErrorCode: models.ErrorCodeToolException,
			}, models.ErrorCodeToolException, res.err
		}
		return res.result, "", nil
	}
}

func (o *Orchestrator) storeArtifacts(ctx context.Context, result models.ToolResult) models.ToolResult {
	if len(result.ArtifactPayloads) == 0 {
		return result
	}
	refs := make([]models.ArtifactRef, 0, len(result.ArtifactPayloads))
	for _, payload := range result.ArtifactPayloads {
		ref, err := o.artifacts.Put(ctx, payload)
		if err != nil {
			// Artifact-store I/O failures are logged; the tool call
			// result itself is still recorded, per spec §7.
			slog.Warn("orchestrator: store artifact failed", "error", err)
			continue
		}
		refs = append(refs, ref)
	}
	result.Artifacts = append(result.Artifacts, refs...)
	result.ArtifactPayloads = nil
	return result
}

// recordResult appends the tool_call_result event and returns a short
// human-readable summary. Audit logging for this call (if any) has
// already happened by the time this is called; see runToolCallLifecycle.
func (o *Orchestrator) recordResult(ctx context.Context, call models.ToolCall, result models.ToolResult) string {
	_ = o.session.AppendEvent(ctx, models.SessionEvent{
		EventType: models.EventToolCallResult,
		ToolCallResult: &models.ToolCallResultPayload{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Success:    result.Success,
			Content:    result.Content,
			Data:       result.Data,
			Error:      result.Error,
			ErrorCode:  result.ErrorCode,
			Metadata:   result.Metadata,
		},
	})

	if result.Success {
		return fmt.Sprintf("[%s] ok: %s", call.Name, truncateSummary(result.Content))
	}
	return fmt.Sprintf("[%s] failed (%s): %s", call.Name, result.ErrorCode, result.Error)
}

func truncateSummary(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
