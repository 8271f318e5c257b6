// Package model defines the backend contract every model provider adapter
// implements: translate a conversation plus tool schema list into one model
// response, optionally streaming incremental text on the way. Adapters own
// all vendor-specific parameter translation and wire formats; the rest of
// the engine only sees Request/Response.
package model

import (
	"context"

	"github.com/hupe1980/agentrelay/core"
)

// Schema declaratively exposes one callable capability to the model.
// Parameters is a minimal JSON Schema object.
type Schema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is the normalized model input: the owning agent's config, the
// provider's connection identity, the node's conversation and the schema
// union to expose.
type Request struct {
	Agent    core.Agent
	Provider core.Provider
	Context  *core.Context
	Tools    []Schema
}

// Response is the normalized model output: optional free text plus an
// ordered list of call requests. Both may be present in one turn.
type Response struct {
	Content   string          `json:"content,omitempty"`
	ToolCalls []core.ToolCall `json:"tool_calls,omitempty"`
}

// Chunk is one element of a streamed response: an incremental text fragment
// (Text non-empty) or the final structured response (Response non-nil). A
// well-behaved stream yields zero or more text chunks followed by exactly
// one final chunk.
type Chunk struct {
	Text     string
	Response *Response
}

// Backend is the contract each provider kind implements. Implementations
// must be safe for concurrent use: one cached instance serves every call
// node targeting that provider kind.
type Backend interface {
	// Call performs one blocking model request. Transport, auth and
	// empty-response conditions fail with a *core.ProviderError.
	Call(ctx context.Context, req Request) (*Response, error)

	// Stream performs one model request yielding incremental chunks. The
	// error channel carries at most one terminal error; on success the chunk
	// channel ends with a final Response chunk before closing.
	Stream(ctx context.Context, req Request) (<-chan Chunk, <-chan error)
}

// BufferedStream is the default Stream fallback for backends without native
// streaming: it buffers Call and replays the content as a single text chunk
// followed by the final response.
func BufferedStream(ctx context.Context, b Backend, req Request) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk, 2)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		resp, err := b.Call(ctx, req)
		if err != nil {
			errCh <- err
			return
		}
		if resp.Content != "" {
			out <- Chunk{Text: resp.Content}
		}
		out <- Chunk{Response: resp}
	}()

	return out, errCh
}
