// Package policy implements risk gating, confirmation gating, argument
// and output redaction, and a rotating newline-delimited-JSON audit log
// for every tool call the orchestrator executes.
package policy

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/nexusengine/core/internal/tools"
	"github.com/nexusengine/core/pkg/models"
)

// Config constructs an Engine.
type Config struct {
	MaxRisk models.RiskLevel

	ConfirmDestructive bool
	ConfirmShell       bool
	ConfirmWrite       bool

	// BlockedPatterns are regexes checked against the canonical JSON
	// serialization of a call's arguments; any match blocks the call.
	BlockedPatterns []string
	// RedactionPatterns are regexes applied to audit strings after
	// secret-field substitution.
	RedactionPatterns []string

	AuditLogPath  string
	MaxSizeBytes  int64
	KeepFiles     int
}

// Engine is the policy gate: it authorizes tool calls by risk level,
// blocked-argument patterns, and confirmation requirements, and owns the
// audit log those calls are recorded to.
type Engine struct {
	cfg Config

	blocked   []*regexp.Regexp
	redactors []*regexp.Regexp

	audit *auditLog
}

// NewEngine compiles cfg's regex lists and opens the audit log.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = 10 * 1024 * 1024
	}
	if cfg.KeepFiles <= 0 {
		cfg.KeepFiles = 5
	}

	blocked, err := compileAll(cfg.BlockedPatterns)
	if err != nil {
		return nil, fmt.Errorf("policy: compile blocked pattern: %w", err)
	}
	redactors, err := compileAll(cfg.RedactionPatterns)
	if err != nil {
		return nil, fmt.Errorf("policy: compile redaction pattern: %w", err)
	}

	al, err := newAuditLog(cfg.AuditLogPath, cfg.MaxSizeBytes, cfg.KeepFiles)
	if err != nil {
		return nil, fmt.Errorf("policy: open audit log: %w", err)
	}

	return &Engine{cfg: cfg, blocked: blocked, redactors: redactors, audit: al}, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// Check authorizes a tool call per spec §4.8: risk gating, then blocked
// arguments, then confirmation requirement.
func (e *Engine) Check(tool tools.Tool, arguments map[string]any) models.PolicyDecision {
	risk := tool.RiskLevel()
	if risk > e.cfg.MaxRisk {
		return models.PolicyDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("risk_too_high:%s>%s", risk, e.cfg.MaxRisk),
		}
	}

	if e.matchesBlockedPattern(arguments) {
		return models.PolicyDecision{Allowed: false, Reason: "blocked_pattern"}
	}

	requiresConfirmation, reason := e.confirmationReason(risk)
	if requiresConfirmation {
		return models.PolicyDecision{Allowed: true, Reason: reason, RequiresConfirmation: true}
	}
	return models.PolicyDecision{Allowed: true, Reason: "ok"}
}

// confirmationReason determines whether risk requires confirmation,
// descending by severity so the highest applicable rule names the
// reason: SHELL, then DESTRUCTIVE, then WRITE.
func (e *Engine) confirmationReason(risk models.RiskLevel) (bool, string) {
	switch {
	case risk >= models.RiskShell && e.cfg.ConfirmShell:
		return true, "requires_confirmation"
	case risk >= models.RiskDestructive && e.cfg.ConfirmDestructive:
		return true, "requires_confirmation"
	case risk >= models.RiskWrite && e.cfg.ConfirmWrite:
		return true, "requires_confirmation"
	default:
		return false, ""
	}
}

func (e *Engine) matchesBlockedPattern(arguments map[string]any) bool {
	if len(e.blocked) == 0 {
		return false
	}
	serialized := canonicalJSON(arguments)
	for _, re := range e.blocked {
		if re.MatchString(serialized) {
			return true
		}
	}
	return false
}

// canonicalJSON serializes v with sorted map keys, matching the Python
// original's json.dumps(..., sort_keys=True).
func canonicalJSON(v map[string]any) string {
	if v == nil {
		return "{}"
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]any, len(v))
	for _, k := range keys {
		ordered[k] = v[k]
	}
	b, err := json.Marshal(ordered)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// RedactArgsForAudit replaces each of tool's secret_fields with
// "***REDACTED***", then applies regex redaction to the remaining string
// values.
func (e *Engine) RedactArgsForAudit(tool tools.Tool, arguments map[string]any) map[string]any {
	secret := make(map[string]bool, len(tool.SecretFields()))
	for _, f := range tool.SecretFields() {
		secret[f] = true
	}

	out := make(map[string]any, len(arguments))
	for k, v := range arguments {
		if secret[k] {
			out[k] = redactedPlaceholder
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = e.redactString(s)
			continue
		}
		out[k] = v
	}
	return out
}

// RedactOutputForAudit applies regex redaction to text.
func (e *Engine) RedactOutputForAudit(text string) string {
	return e.redactString(text)
}

func (e *Engine) redactString(s string) string {
	for _, re := range e.redactors {
		s = re.ReplaceAllString(s, redactedPlaceholder)
	}
	return s
}

const redactedPlaceholder = "***REDACTED***"

// Close flushes and closes the underlying audit log file.
func (e *Engine) Close() error {
	return e.audit.close()
}
