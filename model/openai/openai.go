// Package openai implements the model.Backend contract on the OpenAI Chat
// Completions API (function calling, streaming, multimodal user content)
// using the official SDK. All parameter translation between the engine's
// normalized conversation and the wire format lives here.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

// Backend adapts the OpenAI API to the model.Backend contract. One Backend
// instance serves every provider of kind "openai"; clients are cached per
// provider name since credentials differ. Safe for concurrent use.
type Backend struct {
	mu      sync.Mutex
	clients map[string]*openai.Client
}

// New creates an OpenAI backend.
func New() *Backend {
	return &Backend{clients: make(map[string]*openai.Client)}
}

func (b *Backend) client(p core.Provider) *openai.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.clients[p.Name]; ok {
		return c
	}
	opts := []option.RequestOption{option.WithAPIKey(p.APIKey)}
	if p.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.BaseURL))
	}
	c := openai.NewClient(opts...)
	b.clients[p.Name] = &c
	return &c
}

// Call implements model.Backend.
func (b *Backend) Call(ctx context.Context, req model.Request) (*model.Response, error) {
	params := buildParams(req)

	resp, err := b.client(req.Provider).Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, core.NewProviderError(req.Provider.Name, err.Error(), err)
	}
	if len(resp.Choices) == 0 {
		return nil, core.NewProviderError(req.Provider.Name, "empty response: no choices returned", nil)
	}

	msg := resp.Choices[0].Message
	out := &model.Response{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// aggCall aggregates partial tool call streaming deltas (id, name, args) so
// complete call requests can be reconstructed when the stream ends.
type aggCall struct{ id, name, args string }

// Stream implements model.Backend with native SSE streaming: text deltas are
// forwarded as chunks while tool call deltas are aggregated silently, then a
// final structured response is emitted.
func (b *Backend) Stream(ctx context.Context, req model.Request) (<-chan model.Chunk, <-chan error) {
	out := make(chan model.Chunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := buildParams(req)
		stream := b.client(req.Provider).Chat.Completions.NewStreaming(ctx, params)

		var textBuilder strings.Builder
		toolAgg := map[int64]*aggCall{}

		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					textBuilder.WriteString(choice.Delta.Content)
					out <- model.Chunk{Text: choice.Delta.Content}
				}
				for _, tc := range choice.Delta.ToolCalls {
					ac, ok := toolAgg[tc.Index]
					if !ok {
						ac = &aggCall{}
						toolAgg[tc.Index] = ac
					}
					if tc.ID != "" {
						ac.id = tc.ID
					}
					if tc.Function.Name != "" {
						ac.name = tc.Function.Name
					}
					ac.args += tc.Function.Arguments
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- core.NewProviderError(req.Provider.Name, err.Error(), err)
			return
		}

		resp := &model.Response{Content: textBuilder.String()}
		indexes := make([]int64, 0, len(toolAgg))
		for idx := range toolAgg {
			indexes = append(indexes, idx)
		}
		sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
		for _, idx := range indexes {
			ac := toolAgg[idx]
			resp.ToolCalls = append(resp.ToolCalls, core.ToolCall{
				ID:        ac.id,
				Name:      ac.name,
				Arguments: json.RawMessage(ac.args),
			})
		}
		out <- model.Chunk{Response: resp}
	}()

	return out, errCh
}

// buildParams assembles the request parameters from agent config, the
// conversation and the schema union.
func buildParams(req model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    req.Agent.Model,
		Messages: buildMessages(req.Context),
	}

	if req.Agent.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.Agent.MaxOutputTokens)
	}

	if req.Agent.Reasoning {
		effort := req.Agent.ReasoningEffort
		if effort == "" {
			effort = "medium"
		}
		params.ReasoningEffort = shared.ReasoningEffort(effort)
	} else if req.Agent.Temperature > 0 {
		params.Temperature = openai.Float(req.Agent.Temperature)
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, schema := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: shared.FunctionDefinitionParam{
					Name:        schema.Name,
					Description: openai.String(schema.Description),
					Parameters:  schema.Parameters,
				},
			}
		}
		params.Tools = tools
	}

	return params
}

// buildMessages replays the conversation verbatim in the wire format. The
// context's entry order already matches what the API expects (assistant
// tool-call turns followed by their tool results in request order), so the
// mapping is position for position.
func buildMessages(cc *core.Context) []openai.ChatCompletionMessageParamUnion {
	entries := cc.Entries()
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(entries)+1)
	messages = append(messages, openai.SystemMessage(cc.SystemPrompt()))

	for _, entry := range entries {
		switch entry.Role {
		case core.RoleUser:
			messages = append(messages, buildUserMessage(entry))
		case core.RoleAssistant:
			if len(entry.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(entry.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(entry.ToolCalls))
			for i, tc := range entry.ToolCalls {
				toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				}
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		case core.RoleTool:
			// Tool messages are text-only on this API; attachments produced
			// by tools are dropped silently.
			messages = append(messages, openai.ToolMessage(entry.Content, entry.ToolCallID))
		}
	}

	return messages
}

// buildUserMessage encodes a user turn, inlining image attachments as
// content parts. Non-image attachments are dropped silently.
func buildUserMessage(entry core.ContextEntry) openai.ChatCompletionMessageParamUnion {
	if len(entry.Attachments) == 0 {
		return openai.UserMessage(entry.Content)
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(entry.Content),
	}
	for _, att := range entry.Attachments {
		if !strings.HasPrefix(att.MimeType, "image/") {
			continue
		}
		url := att.URL
		if att.Inline() {
			url = fmt.Sprintf("data:%s;base64,%s", att.MimeType, att.Data)
		}
		parts = append(parts, openai.ImageContentPart(
			openai.ChatCompletionContentPartImageImageURLParam{URL: url},
		))
	}
	return openai.UserMessage(parts)
}
