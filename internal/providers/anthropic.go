package providers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nexusengine/core/internal/tokencount"
	"github.com/nexusengine/core/internal/tools"
	"github.com/nexusengine/core/pkg/models"
)

// AnthropicProvider adapts the Anthropic Messages API's streaming
// content-block protocol to the router's StreamChunk/RawToolDelta
// contract, keying tool deltas by the block's stream index.
type AnthropicProvider struct {
	client     anthropic.Client
	model      string
	maxContext int
	maxOutput  int
	counter    *tokencount.Counter
}

// NewAnthropicProvider returns a provider bound to model, using apiKey for
// authentication. maxContext/maxOutput describe the model's limits, since
// the SDK does not expose them.
func NewAnthropicProvider(apiKey, model string, maxContext, maxOutput int) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{
		client:     client,
		model:      model,
		maxContext: maxContext,
		maxOutput:  maxOutput,
		counter:    tokencount.New(),
	}
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) MaxContextTokens() int { return p.maxContext }
func (p *AnthropicProvider) MaxOutputTokens() int  { return p.maxOutput }

func (p *AnthropicProvider) CountTokens(messages []models.Message, toolSchemas []tools.Schema) int {
	return p.counter.CountMessages(messages, toToolSchemas(toolSchemas))
}

func (p *AnthropicProvider) Chat(ctx context.Context, messages []models.Message, toolSchemas []tools.Schema) (<-chan models.StreamChunk, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxOutput),
		Messages:  toAnthropicMessages(messages),
	}
	if system := extractSystemPrompt(messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if tools := toAnthropicTools(toolSchemas); len(tools) > 0 {
		params.Tools = tools
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	out := make(chan models.StreamChunk)
	go func() {
		defer close(out)

		var inputTokens, outputTokens int
		blockKind := map[int]string{}

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				ms := event.AsMessageStart()
				if ms.Message.Usage.InputTokens > 0 {
					inputTokens = int(ms.Message.Usage.InputTokens)
				}

			case "content_block_start":
				cbs := event.AsContentBlockStart()
				block := cbs.ContentBlock
				blockKind[int(cbs.Index)] = block.Type
				if block.Type == "tool_use" {
					toolUse := block.AsToolUse()
					out <- models.StreamChunk{ToolDeltas: []models.RawToolDelta{
						{CallIndex: int(cbs.Index), ID: toolUse.ID, NameDelta: toolUse.Name},
					}}
				}

			case "content_block_delta":
				cbd := event.AsContentBlockDelta()
				delta := cbd.Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						out <- models.StreamChunk{TextDelta: delta.Text}
					}
				case "input_json_delta":
					if delta.PartialJSON != "" {
						out <- models.StreamChunk{ToolDeltas: []models.RawToolDelta{
							{CallIndex: int(cbd.Index), ArgsDelta: delta.PartialJSON},
						}}
					}
				}

			case "content_block_stop":
				cbs := event.AsContentBlockStop()
				if blockKind[int(cbs.Index)] == "tool_use" {
					out <- models.StreamChunk{ToolDeltas: []models.RawToolDelta{
						{CallIndex: int(cbs.Index), Done: true},
					}}
				}

			case "message_delta":
				md := event.AsMessageDelta()
				if md.Usage.OutputTokens > 0 {
					outputTokens = int(md.Usage.OutputTokens)
				}

			case "message_stop":
				out <- models.StreamChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
				return
			}
		}
		if err := stream.Err(); err != nil {
			out <- models.StreamChunk{Done: true}
		}
	}()

	return out, nil
}

func extractSystemPrompt(messages []models.Message) string {
	var parts []string
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

func toAnthropicMessages(messages []models.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			continue // carried via the top-level System param instead.
		case models.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input, _ := json.Marshal(tc.Arguments)
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, json.RawMessage(input), tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case models.RoleTool:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return out
}

func toAnthropicTools(schemas []tools.Schema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		var params map[string]any
		_ = json.Unmarshal(s.Parameters, &params)
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        s.Name,
				Description: anthropic.String(s.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: params["properties"]},
			},
		})
	}
	return out
}

func toToolSchemas(schemas []tools.Schema) []tokencount.ToolSchema {
	out := make([]tokencount.ToolSchema, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, tokencount.ToolSchema{Name: s.Name, Description: s.Description, Parameters: s.Parameters})
	}
	return out
}
