package core

import "fmt"

// NotFoundError reports a lookup of an unknown agent, tool or provider name.
// At the dispatch boundary it is recoverable (surfaced back to the model as
// an error outcome); anywhere else it is a configuration error.
type NotFoundError struct {
	Kind string // "agent", "tool" or "provider"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown %s: %s", e.Kind, e.Name)
}

// NewNotFoundError creates a NotFoundError for the given registry kind.
func NewNotFoundError(kind, name string) *NotFoundError {
	return &NotFoundError{Kind: kind, Name: name}
}

// ProviderError reports a backend transport, auth, parse or empty-response
// failure. The engine never retries; the error aborts the enclosing call
// node and is captured at the parent's dispatch boundary.
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

// Unwrap exposes the underlying transport error, if any.
func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError wraps a backend failure with the provider's name.
func NewProviderError(provider, message string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Message: message, Err: err}
}

// ToolError reports tool argument validation or execution failures. Code
// categorizes the failure for uniform downstream handling.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Tool error codes.
const (
	ToolErrValidation = "VALIDATION_ERROR"
	ToolErrExecution  = "EXECUTION_ERROR"
)

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a ToolError with the given categorization code.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}

// RoutingError reports a schema or registry inconsistency (duplicate names,
// a builtin name claimed by a user tool, ...).
type RoutingError struct {
	Message string
}

func (e *RoutingError) Error() string { return e.Message }

// NewRoutingError creates a RoutingError.
func NewRoutingError(message string) *RoutingError {
	return &RoutingError{Message: message}
}
