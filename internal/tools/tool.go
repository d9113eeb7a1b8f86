// Package tools implements the named tool catalog the orchestrator
// dispatches assembled tool calls against, plus JSON-schema validation of
// a call's arguments before it ever reaches policy or execution.
package tools

import (
	"context"
	"encoding/json"

	"github.com/nexusengine/core/pkg/models"
)

// Tool is a named, schema-described, risk-tagged action exposed to the
// LLM.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the tool's raw JSON Schema for its arguments.
	Parameters() json.RawMessage
	RiskLevel() models.RiskLevel
	PrivacyScope() models.PrivacyScope
	// SecretFields names argument keys that must never appear
	// unredacted in the audit log.
	SecretFields() []string
	Execute(ctx context.Context, args map[string]any) (models.ToolResult, error)
}

// Schema is the catalog's normalized, exported shape of a registered
// tool, suitable for handing to an LLM provider as a tool definition.
type Schema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}
