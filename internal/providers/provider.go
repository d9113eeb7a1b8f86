// Package providers implements the LLM Router (C10): it dispatches a
// conversation to a named, registered provider and drives the assembler
// to produce one assembled assistant turn per stream.
package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexusengine/core/internal/assembler"
	"github.com/nexusengine/core/internal/tools"
	"github.com/nexusengine/core/pkg/models"
)

// Provider is the capability interface a concrete LLM wire-format
// adapter implements. The router does not assume any specific wire
// format; see spec §6.
type Provider interface {
	Name() string
	// Chat opens a streaming completion. The returned channel is closed
	// when the stream ends (successfully, on error, or on context
	// cancellation); callers must drain it to avoid leaking the
	// underlying transport.
	Chat(ctx context.Context, messages []models.Message, toolSchemas []tools.Schema) (<-chan models.StreamChunk, error)
	CountTokens(messages []models.Message, toolSchemas []tools.Schema) int
	MaxContextTokens() int
	MaxOutputTokens() int
}

// Router registers named providers and dispatches chat_complete calls to
// whichever is currently active.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
	active    string
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{providers: make(map[string]Provider)}
}

// Register adds provider to the catalog. If no provider is yet active,
// provider becomes active.
func (r *Router) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name()] = provider
	if r.active == "" {
		r.active = provider.Name()
	}
}

// SetActive switches the active provider. Per spec §5, callers must not
// invoke SetActive concurrently with ChatComplete; the active provider is
// snapshotted at ChatComplete entry.
func (r *Router) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("providers: unknown provider %q", name)
	}
	r.active = name
	return nil
}

// Active returns the currently active provider's name.
func (r *Router) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

func (r *Router) activeProvider() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return nil, fmt.Errorf("providers: no active provider")
	}
	p, ok := r.providers[r.active]
	if !ok {
		return nil, fmt.Errorf("providers: active provider %q not registered", r.active)
	}
	return p, nil
}

// ActiveLimits returns the active provider's context/output token limits.
func (r *Router) ActiveLimits() (maxContext, maxOutput int, err error) {
	p, err := r.activeProvider()
	if err != nil {
		return 0, 0, err
	}
	return p.MaxContextTokens(), p.MaxOutputTokens(), nil
}

// ChatComplete implements spec §4.10: open the active provider's stream,
// feed every chunk's text into a content buffer and every tool delta
// into a fresh Assembler, flush at stream end, and fail the whole turn's
// tool calls if the assembler recorded any errors.
func (r *Router) ChatComplete(ctx context.Context, messages []models.Message, toolSchemas []tools.Schema) (models.AssembledAssistant, error) {
	provider, err := r.activeProvider()
	if err != nil {
		return models.AssembledAssistant{}, err
	}

	stream, err := provider.Chat(ctx, messages, toolSchemas)
	if err != nil {
		return models.AssembledAssistant{}, fmt.Errorf("providers: open stream: %w", err)
	}

	asm := assembler.New()
	var content string
	var toolCalls []models.ToolCall
	var inputTokens, outputTokens int

	for chunk := range stream {
		content += chunk.TextDelta
		for _, delta := range chunk.ToolDeltas {
			if tc := asm.Feed(delta); tc != nil {
				toolCalls = append(toolCalls, *tc)
			}
		}
		if chunk.InputTokens > 0 {
			inputTokens = chunk.InputTokens
		}
		if chunk.OutputTokens > 0 {
			outputTokens = chunk.OutputTokens
		}
	}

	toolCalls = append(toolCalls, asm.Flush()...)

	assembled := models.AssembledAssistant{
		Content:      content,
		ToolCalls:    toolCalls,
		Provider:     provider.Name(),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}
	if errs := asm.Errors(); len(errs) > 0 {
		assembled.AssemblerErrors = errs
		assembled.ToolCalls = nil
	}
	return assembled, nil
}
