// Package anthropic implements the model.Backend contract on the Anthropic
// Messages API using the official SDK. Streaming falls back to the buffered
// replay defined by the model package.
package anthropic

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

// defaultMaxTokens applies when the agent does not cap output; the Messages
// API requires an explicit limit.
const defaultMaxTokens = 4096

// Backend adapts the Anthropic API to the model.Backend contract. Clients
// are cached per provider name. Safe for concurrent use.
type Backend struct {
	mu      sync.Mutex
	clients map[string]*anthropic.Client
}

// New creates an Anthropic backend.
func New() *Backend {
	return &Backend{clients: make(map[string]*anthropic.Client)}
}

func (b *Backend) client(p core.Provider) *anthropic.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.clients[p.Name]; ok {
		return c
	}
	opts := []option.RequestOption{option.WithAPIKey(p.APIKey)}
	if p.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.BaseURL))
	}
	c := anthropic.NewClient(opts...)
	b.clients[p.Name] = &c
	return &c
}

// Call implements model.Backend.
func (b *Backend) Call(ctx context.Context, req model.Request) (*model.Response, error) {
	params := buildParams(req)

	resp, err := b.client(req.Provider).Messages.New(ctx, params)
	if err != nil {
		return nil, core.NewProviderError(req.Provider.Name, err.Error(), err)
	}
	if len(resp.Content) == 0 {
		return nil, core.NewProviderError(req.Provider.Name, "empty response: no content blocks returned", nil)
	}

	out := &model.Response{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			var args json.RawMessage
			if toolBlock.Input != nil {
				if data, err := json.Marshal(toolBlock.Input); err == nil {
					args = data
				}
			}
			out.ToolCalls = append(out.ToolCalls, core.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			})
		}
	}
	return out, nil
}

// Stream implements model.Backend via the buffered fallback.
func (b *Backend) Stream(ctx context.Context, req model.Request) (<-chan model.Chunk, <-chan error) {
	return model.BufferedStream(ctx, b, req)
}

func buildParams(req model.Request) anthropic.MessageNewParams {
	maxTokens := req.Agent.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Agent.Model),
		Messages:  buildMessages(req.Context),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: req.Context.SystemPrompt()}},
	}

	if req.Agent.Reasoning {
		budget := req.Agent.ReasoningBudget
		if budget <= 0 {
			budget = defaultMaxTokens
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
		// Extended thinking requires temperature 1.
		params.Temperature = anthropic.Float(1)
	} else if req.Agent.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Agent.Temperature)
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	return params
}

// buildMessages replays the conversation in the wire format. Consecutive
// tool result entries collapse into a single user message of tool_result
// blocks, per the API's alternation rules.
func buildMessages(cc *core.Context) []anthropic.MessageParam {
	entries := cc.Entries()
	var messages []anthropic.MessageParam

	for i := 0; i < len(entries); {
		entry := entries[i]
		switch entry.Role {
		case core.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(buildUserBlocks(entry)...))
			i++
		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if entry.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(entry.Content))
			}
			for _, tc := range entry.ToolCalls {
				var input any
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &input); err != nil {
						input = string(tc.Arguments)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
			i++
		case core.RoleTool:
			var blocks []anthropic.ContentBlockParamUnion
			for i < len(entries) && entries[i].Role == core.RoleTool {
				blocks = append(blocks, anthropic.NewToolResultBlock(entries[i].ToolCallID, entries[i].Content, false))
				i++
			}
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		default:
			i++
		}
	}

	return messages
}

// buildUserBlocks encodes a user turn with inline image attachments.
// URL-referenced and non-image attachments are dropped silently.
func buildUserBlocks(entry core.ContextEntry) []anthropic.ContentBlockParamUnion {
	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(entry.Content)}
	for _, att := range entry.Attachments {
		if !strings.HasPrefix(att.MimeType, "image/") || !att.Inline() {
			continue
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(att.MimeType, att.Data))
	}
	return blocks
}

func buildTools(schemas []model.Schema) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(schemas))
	for i, schema := range schemas {
		inputSchema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if properties, ok := schema.Parameters["properties"]; ok {
			inputSchema.Properties = properties
		}
		switch required := schema.Parameters["required"].(type) {
		case []string:
			inputSchema.Required = required
		case []any:
			for _, r := range required {
				if s, ok := r.(string); ok {
					inputSchema.Required = append(inputSchema.Required, s)
				}
			}
		}
		tools[i] = anthropic.ToolUnionParamOfTool(inputSchema, schema.Name)
		if t := tools[i].OfTool; t != nil {
			t.Description = anthropic.String(schema.Description)
		}
	}
	return tools
}
