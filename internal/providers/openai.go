package providers

import (
	"context"
	"encoding/json"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/nexusengine/core/internal/tokencount"
	"github.com/nexusengine/core/internal/tools"
	"github.com/nexusengine/core/pkg/models"
)

// OpenAIProvider adapts an OpenAI-compatible chat-completions streaming
// API to the router's contract. It exists to exercise the router's
// multi-provider set_active dispatch against a second, structurally
// different wire format (index-keyed tool_call deltas delivered inline
// on the message delta, rather than Anthropic's separate content-block
// lifecycle events).
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	maxContext int
	maxOutput  int
	counter    *tokencount.Counter
}

// NewOpenAIProvider returns a provider bound to model.
func NewOpenAIProvider(apiKey, model string, maxContext, maxOutput int) *OpenAIProvider {
	return &OpenAIProvider{
		client:     openai.NewClient(apiKey),
		model:      model,
		maxContext: maxContext,
		maxOutput:  maxOutput,
		counter:    tokencount.New(),
	}
}

func (p *OpenAIProvider) Name() string         { return "openai" }
func (p *OpenAIProvider) MaxContextTokens() int { return p.maxContext }
func (p *OpenAIProvider) MaxOutputTokens() int  { return p.maxOutput }

func (p *OpenAIProvider) CountTokens(messages []models.Message, toolSchemas []tools.Schema) int {
	return p.counter.CountMessages(messages, toToolSchemas(toolSchemas))
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []models.Message, toolSchemas []tools.Schema) (<-chan models.StreamChunk, error) {
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	}
	if oaiTools := toOpenAITools(toolSchemas); len(oaiTools) > 0 {
		req.Tools = oaiTools
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan models.StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if err == io.EOF {
				out <- models.StreamChunk{Done: true}
				return
			}
			if err != nil {
				out <- models.StreamChunk{Done: true}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}

			choice := resp.Choices[0]
			var chunk models.StreamChunk
			if choice.Delta.Content != "" {
				chunk.TextDelta = choice.Delta.Content
			}
			for _, tc := range choice.Delta.ToolCalls {
				index := 0
				if tc.Index != nil {
					index = *tc.Index
				}
				chunk.ToolDeltas = append(chunk.ToolDeltas, models.RawToolDelta{
					CallIndex: index,
					ID:        tc.ID,
					NameDelta: tc.Function.Name,
					ArgsDelta: tc.Function.Arguments,
				})
			}
			if choice.FinishReason == openai.FinishReasonToolCalls || choice.FinishReason == openai.FinishReasonStop {
				// The OpenAI wire format has no per-call done flag; the
				// finish_reason signals that every buffered tool call
				// delta for this response is now complete.
				for i := range chunk.ToolDeltas {
					chunk.ToolDeltas[i].Done = true
				}
			}
			if resp.Usage != nil {
				chunk.InputTokens = resp.Usage.PromptTokens
				chunk.OutputTokens = resp.Usage.CompletionTokens
			}
			out <- chunk
		}
	}()

	return out, nil
}

func toOpenAIMessages(messages []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
		if m.Role == models.RoleTool {
			msg.ToolCallID = m.ToolCallID
		}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:       tc.ID,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: tc.Name, Arguments: string(args)},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(schemas []tools.Schema) []openai.Tool {
	out := make([]openai.Tool, 0, len(schemas))
	for _, s := range schemas {
		var params any
		_ = json.Unmarshal(s.Parameters, &params)
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
