package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAcceptsConformingArguments(t *testing.T) {
	v := NewValidator()
	tool := stubTool{name: "search", params: paramsSchema()}

	ok, msg := v.Validate(tool, map[string]any{"q": "golang"})
	assert.True(t, ok)
	assert.Empty(t, msg)
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	v := NewValidator()
	tool := stubTool{name: "search", params: paramsSchema()}

	ok, msg := v.Validate(tool, map[string]any{})
	assert.False(t, ok)
	assert.NotEmpty(t, msg)
}

func TestValidateRejectsWrongType(t *testing.T) {
	v := NewValidator()
	tool := stubTool{name: "search", params: paramsSchema()}

	ok, _ := v.Validate(tool, map[string]any{"q": 42})
	assert.False(t, ok)
}

func TestValidateCachesCompiledSchema(t *testing.T) {
	v := NewValidator()
	tool := stubTool{name: "search", params: paramsSchema()}

	ok1, _ := v.Validate(tool, map[string]any{"q": "a"})
	ok2, _ := v.Validate(tool, map[string]any{"q": "b"})
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.Len(t, v.cache, 1)
}
