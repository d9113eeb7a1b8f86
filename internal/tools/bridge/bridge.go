// Package bridge adapts the execution-backend interface (internal/backend)
// into concrete tools.Tool implementations the registry can expose to an
// LLM, the way the teacher's tool registry wraps its sandbox/channel
// capabilities as named, schema-described tools rather than leaking
// backend internals into the provider layer.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nexusengine/core/internal/backend"
	"github.com/nexusengine/core/pkg/models"
)

// ResolveTargetTool exposes backend.Backend.ResolveTarget as a read-only
// tool.
type ResolveTargetTool struct {
	Backend backend.Backend
}

func (t ResolveTargetTool) Name() string { return "resolve_target" }
func (t ResolveTargetTool) Description() string {
	return "Resolves a named target to its backend metadata."
}
func (t ResolveTargetTool) RiskLevel() models.RiskLevel { return models.RiskReadOnly }
func (t ResolveTargetTool) PrivacyScope() models.PrivacyScope { return models.PrivacyPublic }
func (t ResolveTargetTool) SecretFields() []string { return nil }

func (t ResolveTargetTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"target": {"type": "string", "description": "Target name to resolve"}},
		"required": ["target"]
	}`)
}

func (t ResolveTargetTool) Execute(ctx context.Context, args map[string]any) (models.ToolResult, error) {
	target, _ := args["target"].(string)
	if target == "" {
		return models.ToolResult{}, fmt.Errorf("bridge: target argument is required")
	}
	info, err := t.Backend.ResolveTarget(ctx, target)
	if err != nil {
		return toBackendError(err)
	}
	data := map[string]any{"target": info.Target, "kind": info.Kind, "metadata": info.Metadata}
	return models.ToolResult{Success: true, Content: fmt.Sprintf("resolved %s", target), Data: data}, nil
}

// ListDiagnosticsTool exposes backend.Backend.ListDiagnostics as a
// read-only tool.
type ListDiagnosticsTool struct {
	Backend backend.Backend
}

func (t ListDiagnosticsTool) Name() string { return "list_diagnostics" }
func (t ListDiagnosticsTool) Description() string {
	return "Lists diagnostics available for a target."
}
func (t ListDiagnosticsTool) RiskLevel() models.RiskLevel { return models.RiskReadOnly }
func (t ListDiagnosticsTool) PrivacyScope() models.PrivacyScope { return models.PrivacyPublic }
func (t ListDiagnosticsTool) SecretFields() []string { return nil }

func (t ListDiagnosticsTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"target": {"type": "string"}},
		"required": ["target"]
	}`)
}

func (t ListDiagnosticsTool) Execute(ctx context.Context, args map[string]any) (models.ToolResult, error) {
	target, _ := args["target"].(string)
	diags, err := t.Backend.ListDiagnostics(ctx, target)
	if err != nil {
		return toBackendError(err)
	}
	entries := make([]map[string]any, 0, len(diags))
	for _, d := range diags {
		entries = append(entries, map[string]any{"name": d.Name, "description": d.Description})
	}
	return models.ToolResult{Success: true, Content: fmt.Sprintf("%d diagnostics available", len(diags)), Data: map[string]any{"diagnostics": entries}}, nil
}

// RunDiagnosticTool exposes backend.Backend.RunDiagnostic. Diagnostics may
// mutate target state, so this is tagged WRITE rather than READ_ONLY.
type RunDiagnosticTool struct {
	Backend backend.Backend
}

func (t RunDiagnosticTool) Name() string { return "run_diagnostic" }
func (t RunDiagnosticTool) Description() string {
	return "Runs a named diagnostic action against a target."
}
func (t RunDiagnosticTool) RiskLevel() models.RiskLevel { return models.RiskWrite }
func (t RunDiagnosticTool) PrivacyScope() models.PrivacyScope { return models.PrivacySensitive }
func (t RunDiagnosticTool) SecretFields() []string { return nil }

func (t RunDiagnosticTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string"},
			"target": {"type": "string"},
			"args": {"type": "object"}
		},
		"required": ["action", "target"]
	}`)
}

func (t RunDiagnosticTool) Execute(ctx context.Context, args map[string]any) (models.ToolResult, error) {
	action, _ := args["action"].(string)
	target, _ := args["target"].(string)
	diagArgs, _ := args["args"].(map[string]any)
	if action == "" || target == "" {
		return models.ToolResult{}, fmt.Errorf("bridge: action and target arguments are required")
	}
	result, err := t.Backend.RunDiagnostic(ctx, action, target, diagArgs)
	if err != nil {
		return toBackendError(err)
	}
	return models.ToolResult{Success: true, Content: fmt.Sprintf("diagnostic %s completed", action), Data: result}, nil
}

// RunShellTool exposes backend.Backend.RunShell. This is the highest-risk
// bridge tool and is tagged SHELL.
type RunShellTool struct {
	Backend backend.Backend
}

func (t RunShellTool) Name() string { return "run_shell" }
func (t RunShellTool) Description() string {
	return "Runs a shell command against a target with a bounded timeout."
}
func (t RunShellTool) RiskLevel() models.RiskLevel { return models.RiskShell }
func (t RunShellTool) PrivacyScope() models.PrivacyScope { return models.PrivacySecret }
func (t RunShellTool) SecretFields() []string { return nil }

func (t RunShellTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string"},
			"target": {"type": "string"},
			"timeout_ms": {"type": "integer"}
		},
		"required": ["command", "target"]
	}`)
}

func (t RunShellTool) Execute(ctx context.Context, args map[string]any) (models.ToolResult, error) {
	command, _ := args["command"].(string)
	target, _ := args["target"].(string)
	if command == "" || target == "" {
		return models.ToolResult{}, fmt.Errorf("bridge: command and target arguments are required")
	}

	var opts backend.ShellOptions
	if ms, ok := args["timeout_ms"].(float64); ok && ms > 0 {
		opts.Timeout = time.Duration(ms) * time.Millisecond
	}

	result, err := t.Backend.RunShell(ctx, command, target, opts)
	if err != nil {
		return toBackendError(err)
	}

	success := result.ExitCode == 0 && !result.TimedOut
	content := result.Stdout
	if result.TimedOut {
		content = "command timed out"
	}
	data := map[string]any{
		"exit_code":   result.ExitCode,
		"stdout":      result.Stdout,
		"stderr":      result.Stderr,
		"duration_ms": result.DurationMS,
		"timed_out":   result.TimedOut,
		"truncated":   result.Truncated,
	}
	return models.ToolResult{Success: success, Content: content, Data: data}, nil
}

func toBackendError(err error) (models.ToolResult, error) {
	if backendErr, ok := err.(*backend.Error); ok {
		return models.ToolResult{
			Success:   false,
			Error:     backendErr.Message,
			ErrorCode: "backend_error",
		}, nil
	}
	return models.ToolResult{}, err
}
