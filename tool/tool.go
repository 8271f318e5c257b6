// Package tool implements the function calling subsystem that lets agents
// invoke structured capabilities (APIs, computations, side-effects) with
// schema-validated arguments and consistent error handling.
//
// Tools are supplied by the caller of a run and shared read-only by every
// agent in that run; the engine applies no per-agent filtering.
package tool

import (
	"context"

	"github.com/hupe1980/agentrelay/core"
)

// Result is the outcome of one tool invocation: text for the model plus
// optional typed attachments forwarded as-is into the conversation.
type Result struct {
	Content     string            `json:"content"`
	Attachments []core.Attachment `json:"attachments,omitempty"`
}

// Tool is a named callable exposed to models through its declared schema.
//
// Implementations should:
//   - Provide clear, descriptive names (snake_case recommended) and
//     descriptions; both are shown to the model
//   - Declare a minimal JSON schema for Parameters
//   - Be safe for concurrent use: the runtime dispatches calls from
//     multiple agents in parallel
//
// Call receives a context.Context so slow tools can respect transport
// deadlines imposed by callers; the engine itself imposes none.
type Tool interface {
	// Name returns the unique identifier used in function call routing.
	Name() string

	// Description returns the natural language description shown to models.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool with already-validated arguments.
	Call(ctx context.Context, args map[string]any) (*Result, error)
}
