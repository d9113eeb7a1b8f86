package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nexusengine/core/internal/tools"
	"github.com/nexusengine/core/pkg/models"
)

// Truncation boundaries for audit output by privacy scope. Taken from
// the source system's policy engine (see spec §9 open questions).
// They are fixed, unexported values; Config has no setting for them.
const (
	publicOutputTruncateChars    = 2000
	sensitiveOutputTruncateChars = 500
)

// auditRecord is one newline-delimited JSON line in the audit log.
type auditRecord struct {
	Timestamp  time.Time      `json:"ts"`
	SessionID  string         `json:"session_id"`
	EventID    string         `json:"event_id"`
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Risk       string         `json:"risk"`
	Privacy    string         `json:"privacy"`
	DurationMS int64          `json:"duration_ms"`
	Success    bool           `json:"success"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Args       any            `json:"args"`
	Output     string         `json:"output"`
}

// AuditInput is everything AuditLog needs about one completed tool call.
type AuditInput struct {
	SessionID  string
	EventID    string
	ToolCallID string
	Tool       tools.Tool
	Arguments  map[string]any
	Duration   time.Duration
	Result     models.ToolResult
}

// AuditLog serializes and writes one audit record for a completed tool
// call, applying privacy-scope redaction and truncation per spec §4.8.
func (e *Engine) AuditLog(in AuditInput) error {
	record := auditRecord{
		Timestamp:  time.Now().UTC(),
		SessionID:  in.SessionID,
		EventID:    in.EventID,
		ToolCallID: in.ToolCallID,
		ToolName:   in.Tool.Name(),
		Risk:       in.Tool.RiskLevel().String(),
		Privacy:    string(in.Tool.PrivacyScope()),
		DurationMS: in.Duration.Milliseconds(),
		Success:    in.Result.Success,
		ErrorCode:  in.Result.ErrorCode,
		Metadata:   in.Result.Metadata,
	}

	switch in.Tool.PrivacyScope() {
	case models.PrivacySecret:
		record.Args = redactedPlaceholder
		record.Output = redactedPlaceholder
	case models.PrivacySensitive:
		record.Args = redactedPlaceholder
		record.Output = truncate(e.RedactOutputForAudit(in.Result.Content), sensitiveOutputTruncateChars)
	default: // PrivacyPublic
		record.Args = e.RedactArgsForAudit(in.Tool, in.Arguments)
		record.Output = truncate(e.RedactOutputForAudit(in.Result.Content), publicOutputTruncateChars)
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("policy: marshal audit record: %w", err)
	}
	return e.audit.write(line)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// auditLog is the rotating, mutex-serialized audit log file.
type auditLog struct {
	mu        sync.Mutex
	path      string
	maxBytes  int64
	keepFiles int
	file      *os.File
}

func newAuditLog(path string, maxBytes int64, keepFiles int) (*auditLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &auditLog{path: path, maxBytes: maxBytes, keepFiles: keepFiles, file: f}, nil
}

// write appends line plus a trailing newline, rotating first if the
// current file has reached maxBytes.
func (a *auditLog) write(line []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.rotateIfNeeded(); err != nil {
		return err
	}

	if _, err := a.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("policy: write audit record: %w", err)
	}
	return a.file.Sync()
}

// rotateIfNeeded implements the exact rename-based rotation from spec
// §6: if the current file's size is at or above maxBytes, rename
// log.i -> log.(i+1) descending from keepFiles-1, then log -> log.1.
// A file already at log.<keepFiles> is discarded by being overwritten
// by the rename into that slot.
func (a *auditLog) rotateIfNeeded() error {
	info, err := a.file.Stat()
	if err != nil {
		return fmt.Errorf("policy: stat audit log: %w", err)
	}
	if info.Size() < a.maxBytes {
		return nil
	}

	if err := a.file.Close(); err != nil {
		return fmt.Errorf("policy: close audit log before rotation: %w", err)
	}

	for i := a.keepFiles - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", a.path, i)
		dst := fmt.Sprintf("%s.%d", a.path, i+1)
		if _, err := os.Stat(src); err == nil {
			if err := os.Rename(src, dst); err != nil {
				return fmt.Errorf("policy: rotate %s -> %s: %w", src, dst, err)
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("policy: stat %s: %w", src, err)
		}
	}
	if err := os.Rename(a.path, a.path+".1"); err != nil {
		return fmt.Errorf("policy: rotate primary log: %w", err)
	}

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("policy: reopen audit log after rotation: %w", err)
	}
	a.file = f
	return nil
}

func (a *auditLog) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
