package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks tool-call arguments against a tool's normalized JSON
// Schema, caching compiled schemas by their serialized form.
type Validator struct {
	mu    sync.Mutex
	cache map[string]*jsonschema.Schema
}

// NewValidator returns an empty Validator.
func NewValidator() *Validator {
	return &Validator{cache: make(map[string]*jsonschema.Schema)}
}

// Validate reports whether arguments satisfy tool's normalized schema.
// On failure, the second return value is a human-readable explanation
// suitable for a validation_error ToolResult.
func (v *Validator) Validate(tool Tool, arguments map[string]any) (bool, string) {
	schema, err := v.compile(tool)
	if err != nil {
		return false, fmt.Sprintf("invalid schema for tool %q: %v", tool.Name(), err)
	}

	if arguments == nil {
		arguments = map[string]any{}
	}
	// jsonschema validates against decoded JSON values; round-tripping
	// through json guarantees map[string]any matches what a wire-format
	// decode would have produced (numbers as float64, etc).
	encoded, err := json.Marshal(arguments)
	if err != nil {
		return false, fmt.Sprintf("encode arguments: %v", err)
	}
	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return false, fmt.Sprintf("decode arguments: %v", err)
	}

	if err := schema.Validate(decoded); err != nil {
		return false, err.Error()
	}
	return true, ""
}

func (v *Validator) compile(tool Tool) (*jsonschema.Schema, error) {
	params := normalizeParameters(tool.Parameters())
	key := tool.Name() + ":" + string(params)

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	compiled, err := jsonschema.CompileString(tool.Name()+".schema.json", string(params))
	if err != nil {
		return nil, err
	}
	v.cache[key] = compiled
	return compiled, nil
}
