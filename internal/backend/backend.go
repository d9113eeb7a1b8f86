// Package backend defines the execution backend abstraction that bridge
// tools use to resolve targets and run diagnostics or shell commands,
// plus a router that multiplexes by target name and a local adapter
// concrete enough to exercise the interface end to end.
package backend

import (
	"context"
	"fmt"
	"time"
)

// Error is the structured failure type every Backend method may return.
type Error struct {
	Message string
	Code    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend: %s (%s)", e.Message, e.Code)
}

// TargetInfo describes a resolved target.
type TargetInfo struct {
	Target   string
	Kind     string
	Metadata map[string]any
}

// DiagnosticInfo describes one diagnostic action a target supports.
type DiagnosticInfo struct {
	Name        string
	Description string
}

// ShellOptions configures a run_shell call.
type ShellOptions struct {
	// Timeout bounds how long the command may run. Zero means the
	// backend's own default applies.
	Timeout time.Duration
	// WorkDir, if set, is the command's working directory.
	WorkDir string
	Env     map[string]string
}

// ShellResult is the outcome of a run_shell call.
type ShellResult struct {
	ExitCode   int
	Stdout     string
	Stderr     string
	DurationMS int64
	TimedOut   bool
	Truncated  bool
}

// Backend resolves targets and runs diagnostics or shell commands
// against them. All methods may fail with *Error.
type Backend interface {
	ResolveTarget(ctx context.Context, target string) (TargetInfo, error)
	ListDiagnostics(ctx context.Context, target string) ([]DiagnosticInfo, error)
	RunDiagnostic(ctx context.Context, action, target string, args map[string]any) (map[string]any, error)
	// RunShell is optional: a Backend that doesn't support shell access
	// returns an *Error with Code "unsupported".
	RunShell(ctx context.Context, command, target string, opts ShellOptions) (ShellResult, error)
}

// MaxOutputBytes caps a single stdout/stderr stream before truncation,
// per spec §4.7.
const MaxOutputBytes = 100 * 1024
