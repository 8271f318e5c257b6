package runtime

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/tool"
)

func collect(events <-chan StreamEvent) []StreamEvent {
	var out []StreamEvent
	for e := range events {
		out = append(out, e)
	}
	return out
}

func eventsOfType(events []StreamEvent, t StreamEventType) []StreamEvent {
	var out []StreamEvent
	for _, e := range events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func TestExecuteStreamEmitsTokensAndFinish(t *testing.T) {
	backend := newMockBackend()
	backend.push("a", textResp("streamed pong"))
	rt := newTestRuntime(t, backend, []core.Agent{testAgent("a")}, nil, false)

	events := collect(rt.ExecuteStream(context.Background(), testAgent("a"), "ping"))
	require.NotEmpty(t, events)

	tokens := eventsOfType(events, StreamToken)
	require.NotEmpty(t, tokens)
	var text strings.Builder
	for _, e := range tokens {
		text.WriteString(e.Data["text"].(string))
	}
	assert.Equal(t, "streamed pong", text.String())

	last := events[len(events)-1]
	assert.Equal(t, StreamFinish, last.Type)
	assert.Equal(t, "a", last.AgentName)
	assert.Equal(t, "streamed pong", last.Data["output"])
}

func TestExecuteStreamToolCallSequence(t *testing.T) {
	backend := newMockBackend()
	backend.push("a",
		toolCallsResp(toolCall("tc_1", "wait", map[string]any{"ms": 1, "tag": "looked up"})),
		finishResp("done streaming"),
	)
	rt := newTestRuntime(t, backend, []core.Agent{testAgent("a")}, []tool.Tool{waitTool()}, false)

	events := collect(rt.ExecuteStream(context.Background(), testAgent("a"), "go"))

	toolEvents := eventsOfType(events, StreamToolCall)
	require.Len(t, toolEvents, 1)
	assert.Equal(t, "wait", toolEvents[0].Data["tool_name"])

	finishes := eventsOfType(events, StreamFinish)
	require.Len(t, finishes, 1)
	assert.Equal(t, "done streaming", finishes[0].Data["output"])
}

func TestExecuteStreamDelegation(t *testing.T) {
	backend := newMockBackend()
	backend.push("a",
		toolCallsResp(callAgent("ca_1", "b", "sub task")),
		finishResp("combined"),
	)
	backend.push("b", finishResp("sub result"))

	rt := newTestRuntime(t, backend, []core.Agent{testAgent("a"), testAgent("b")}, nil, false)

	events := collect(rt.ExecuteStream(context.Background(), testAgent("a"), "go"))

	calls := eventsOfType(events, StreamAgentCall)
	require.Len(t, calls, 1)
	assert.Equal(t, "b", calls[0].AgentName)
	assert.Equal(t, "a", calls[0].Data["from"])

	returns := eventsOfType(events, StreamAgentReturn)
	require.Len(t, returns, 1)
	assert.Equal(t, "sub result", returns[0].Data["result"])

	// The child's finish precedes its return notification; the root's finish
	// closes the stream.
	finishes := eventsOfType(events, StreamFinish)
	require.Len(t, finishes, 2)
	assert.Equal(t, "b", finishes[0].AgentName)
	assert.Equal(t, "a", finishes[1].AgentName)
	assert.Equal(t, "combined", finishes[1].Data["output"])
}

func TestExecuteStreamPanicInToolIsContained(t *testing.T) {
	panicky := tool.NewFunctionTool(
		"kaboom",
		"Panics",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, args map[string]any) (any, error) {
			panic("unexpected state")
		},
	)

	backend := newMockBackend()
	backend.push("a",
		toolCallsResp(toolCall("tc_1", "kaboom", map[string]any{})),
		func(req model.Request) (*model.Response, error) {
			entries := req.Context.Entries()
			if entries[2].Content[:6] != "Error:" {
				return nil, fmt.Errorf("expected contained panic, got %q", entries[2].Content)
			}
			return &model.Response{Content: "still streaming"}, nil
		},
	)
	rt := newTestRuntime(t, backend, []core.Agent{testAgent("a")}, []tool.Tool{panicky}, false)

	events := collect(rt.ExecuteStream(context.Background(), testAgent("a"), "go"))
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, StreamFinish, last.Type)
	assert.Equal(t, "still streaming", last.Data["output"])
}

func TestExecuteStreamRootFailureEmitsError(t *testing.T) {
	backend := newMockBackend()
	backend.push("a", failResp("stream broke"))
	rt := newTestRuntime(t, backend, []core.Agent{testAgent("a")}, nil, false)

	events := collect(rt.ExecuteStream(context.Background(), testAgent("a"), "go"))
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, StreamError, last.Type)
	assert.Contains(t, last.Data["error"], "stream broke")
}

func TestExecuteStreamMessagesAvailableAfterClose(t *testing.T) {
	backend := newMockBackend()
	backend.push("a",
		toolCallsResp(callAgent("ca_1", "b", "sub task")),
		finishResp("combined"),
	)
	backend.push("b", finishResp("sub result"))

	rt := newTestRuntime(t, backend, []core.Agent{testAgent("a"), testAgent("b")}, nil, false)

	for range rt.ExecuteStream(context.Background(), testAgent("a"), "go") {
	}

	// root forward, child forward/return, root return
	messages := rt.Messages()
	require.Len(t, messages, 4)
	assert.Equal(t, core.MessageForward, messages[0].Type)
	assert.Equal(t, UserSender, messages[0].Sender)
	assert.Equal(t, "sub task", messages[1].Content)
	assert.Equal(t, "sub result", messages[2].Content)
	assert.Equal(t, core.MessageReturn, messages[3].Type)
	assert.Equal(t, "combined", messages[3].Content)
	assert.Equal(t, messages[0].CallID, messages[3].CallID)
}

func TestBufferedStreamFallback(t *testing.T) {
	backend := newMockBackend()
	backend.push("a", textResp("hello"))

	chunks, errCh := backend.Stream(context.Background(), model.Request{
		Agent:    testAgent("a"),
		Provider: core.Provider{Name: "mock"},
	})

	var text string
	var final *model.Response
	for chunk := range chunks {
		text += chunk.Text
		if chunk.Response != nil {
			final = chunk.Response
		}
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, "hello", text)
	require.NotNil(t, final)
	assert.Equal(t, "hello", final.Content)
}
