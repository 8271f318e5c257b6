package core

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextInitializeOnce(t *testing.T) {
	cc := NewContext()

	require.NoError(t, cc.Initialize("You are an assistant."))
	assert.Equal(t, "You are an assistant.", cc.SystemPrompt())

	err := cc.Initialize("second prompt")
	require.Error(t, err)
	assert.Equal(t, "You are an assistant.", cc.SystemPrompt())
}

func TestContextAppendOrder(t *testing.T) {
	cc := NewContext()
	require.NoError(t, cc.Initialize("system"))

	cc.AddUser("question")
	cc.AddAssistantToolCalls([]ToolCall{
		{ID: "tc_1", Name: "lookup", Arguments: json.RawMessage(`{"q":"x"}`)},
	}, "")
	cc.AddToolResult("tc_1", "lookup", "answer fragment")
	cc.AddAssistantText("final answer")

	entries := cc.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, 4, cc.Len())

	assert.Equal(t, RoleUser, entries[0].Role)
	assert.Equal(t, "question", entries[0].Content)

	assert.Equal(t, RoleAssistant, entries[1].Role)
	require.Len(t, entries[1].ToolCalls, 1)
	assert.Equal(t, "tc_1", entries[1].ToolCalls[0].ID)

	assert.Equal(t, RoleTool, entries[2].Role)
	assert.Equal(t, "tc_1", entries[2].ToolCallID)
	assert.Equal(t, "lookup", entries[2].ToolName)
	assert.Equal(t, "answer fragment", entries[2].Content)

	assert.Equal(t, RoleAssistant, entries[3].Role)
	assert.Equal(t, "final answer", entries[3].Content)
}

// Entries hands out a copy; mutating it must not affect the conversation.
func TestContextEntriesIsCopy(t *testing.T) {
	cc := NewContext()
	cc.AddUser("original")

	entries := cc.Entries()
	entries[0].Content = "mutated"

	assert.Equal(t, "original", cc.Entries()[0].Content)
}

// Assistant text is stored verbatim, embedded markup included.
func TestContextPreservesMarkup(t *testing.T) {
	cc := NewContext()
	raw := "<thinking>step one</thinking>\nThe answer is 42."
	cc.AddAssistantText(raw)

	assert.Equal(t, raw, cc.Entries()[0].Content)
}

func TestContextUserAttachments(t *testing.T) {
	cc := NewContext()
	cc.AddUser("see image", Attachment{MimeType: "image/png", Data: "aW1n", Name: "shot.png"})

	entries := cc.Entries()
	require.Len(t, entries[0].Attachments, 1)
	assert.Equal(t, "image/png", entries[0].Attachments[0].MimeType)
	assert.True(t, entries[0].Attachments[0].Inline())
}

func TestAttachmentInline(t *testing.T) {
	assert.True(t, Attachment{MimeType: "image/png", Data: "aW1n"}.Inline())
	assert.False(t, Attachment{MimeType: "image/png", URL: "https://example.com/a.png"}.Inline())
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.NotEmpty(t, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{NewNotFoundError("agent", "ghost"), "unknown agent: ghost"},
		{NewProviderError("main", "timeout", nil), "provider main: timeout"},
		{NewToolError("lookup", "bad input", ToolErrValidation), "tool error [VALIDATION_ERROR] in lookup: bad input"},
		{NewRoutingError("duplicate agent name: a"), "duplicate agent name: a"},
	}
	for _, tt := range tests {
		assert.EqualError(t, tt.err, tt.want)
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewProviderError("main", "request failed", cause)
	assert.ErrorIs(t, err, cause)
}
