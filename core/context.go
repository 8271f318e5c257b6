package core

import (
	"encoding/json"
	"fmt"
)

// Conversation roles used by Context entries. Backends translate these into
// their own wire formats.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is one call request produced by a model turn. Arguments is the
// raw JSON argument payload exactly as the backend surfaced it; the runtime
// parses it at the dispatch boundary.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ContextEntry is one role-tagged turn of a conversation.
type ContextEntry struct {
	Role        string       `json:"role"`
	Content     string       `json:"content,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// ToolCalls is set on assistant entries that request calls.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID / ToolName are set on tool result entries, matching the
	// result back to its originating request.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// Context is the ordered conversation of exactly one call node. Entries are
// strictly append-only and never mutated or removed: backends replay the
// sequence verbatim on every model call, so its stability is a contract the
// whole engine relies on regardless of dispatch concurrency.
//
// A Context is owned exclusively by its call node and is not safe for
// concurrent use; the runtime serializes all mutation on the node's own
// goroutine.
type Context struct {
	systemPrompt string
	initialized  bool
	entries      []ContextEntry
}

// NewContext returns an empty, uninitialized Context.
func NewContext() *Context { return &Context{} }

// Initialize sets the immutable system preamble. Calling it a second time is
// a programming error and fails.
func (c *Context) Initialize(systemPrompt string) error {
	if c.initialized {
		return fmt.Errorf("context already initialized")
	}
	c.systemPrompt = systemPrompt
	c.initialized = true
	return nil
}

// SystemPrompt returns the preamble set by Initialize.
func (c *Context) SystemPrompt() string { return c.systemPrompt }

// AddUser appends the inbound message as a user turn.
func (c *Context) AddUser(content string, attachments ...Attachment) {
	c.entries = append(c.entries, ContextEntry{
		Role:        RoleUser,
		Content:     content,
		Attachments: attachments,
	})
}

// AddAssistantText appends a model utterance unmodified. No stripping of
// embedded meta-markup: preservation is a contract audit layers rely on.
func (c *Context) AddAssistantText(content string) {
	c.entries = append(c.entries, ContextEntry{Role: RoleAssistant, Content: content})
}

// AddAssistantToolCalls appends the set of call requests one model turn
// produced. IDs must be unique within the Context; uniqueness is the
// backend's responsibility.
func (c *Context) AddAssistantToolCalls(toolCalls []ToolCall, content string) {
	c.entries = append(c.entries, ContextEntry{
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
	})
}

// AddToolResult appends the outcome of one dispatched call, matched back to
// its request by toolCallID. Attachments produced by the tool are forwarded
// as-is.
func (c *Context) AddToolResult(toolCallID, toolName, content string, attachments ...Attachment) {
	c.entries = append(c.entries, ContextEntry{
		Role:        RoleTool,
		Content:     content,
		ToolCallID:  toolCallID,
		ToolName:    toolName,
		Attachments: attachments,
	})
}

// Entries returns a copy of the ordered turn sequence.
func (c *Context) Entries() []ContextEntry {
	out := make([]ContextEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of appended turns.
func (c *Context) Len() int { return len(c.entries) }
