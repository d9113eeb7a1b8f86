package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/nexusengine/core/pkg/models"
)

// ErrDuplicateTool is returned by Register when a tool with the same name
// already exists and overwrite was not requested.
type ErrDuplicateTool struct{ Name string }

func (e ErrDuplicateTool) Error() string {
	return fmt.Sprintf("tools: %q is already registered", e.Name)
}

// ErrUnknownTool is returned by Get when no tool with the given name is
// registered.
type ErrUnknownTool struct{ Name string }

func (e ErrUnknownTool) Error() string {
	return fmt.Sprintf("tools: %q is not registered", e.Name)
}

// Registry is the engine's named tool catalog. It is safe for concurrent
// use, though the orchestrator treats it as effectively frozen once a run
// has started (see spec §9).
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds tool to the catalog. Re-registering an existing name
// without overwrite=true returns ErrDuplicateTool.
func (r *Registry) Register(tool Tool, overwrite bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name()]; exists && !overwrite {
		return ErrDuplicateTool{Name: tool.Name()}
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, ErrUnknownTool{Name: name}
	}
	return tool, nil
}

// List returns registered tools sorted by name, optionally filtered to
// tools whose risk level is at or below maxRisk. With filter false,
// maxRisk is ignored and every tool is returned.
func (r *Registry) List(maxRisk models.RiskLevel, filter bool) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		if filter && tool.RiskLevel() > maxRisk {
			continue
		}
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// SchemaExport emits the catalog (or a filtered subset, see List) as the
// normalized {name, description, parameters} records an LLM provider
// expects as tool definitions.
func (r *Registry) SchemaExport(maxRisk models.RiskLevel, filter bool) []Schema {
	tools := r.List(maxRisk, filter)
	out := make([]Schema, 0, len(tools))
	for _, tool := range tools {
		out = append(out, Schema{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  normalizeParameters(tool.Parameters()),
		})
	}
	return out
}

// normalizeParameters ensures a tool's raw JSON Schema has "type":
// "object" and "additionalProperties": false, unless the schema already
// opts out by setting additionalProperties itself.
func normalizeParameters(raw json.RawMessage) json.RawMessage {
	var obj map[string]any
	if len(raw) == 0 {
		obj = map[string]any{}
	} else if err := json.Unmarshal(raw, &obj); err != nil {
		// Malformed schema: pass it through untouched rather than
		// inventing a default; Validator.Validate will surface the
		// compile error when this tool is actually invoked.
		return raw
	}

	if _, ok := obj["type"]; !ok {
		obj["type"] = "object"
	}
	if _, ok := obj["additionalProperties"]; !ok {
		obj["additionalProperties"] = false
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return raw
	}
	return out
}
