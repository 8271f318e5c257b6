package runtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/trace"
)

// StreamEventType categorizes events emitted by a streaming run.
type StreamEventType string

// Stream event types.
const (
	// StreamToken carries one incremental text fragment ("text").
	StreamToken StreamEventType = "token"
	// StreamToolCall announces a tool dispatch ("tool_name", "arguments").
	StreamToolCall StreamEventType = "tool_call"
	// StreamAgentCall announces delegation to another agent ("from", "message").
	StreamAgentCall StreamEventType = "agent_call"
	// StreamAgentReturn announces a sub-agent's result ("result").
	StreamAgentReturn StreamEventType = "agent_return"
	// StreamFinish carries a node's final output ("output").
	StreamFinish StreamEventType = "finish"
	// StreamError carries a node-level failure ("error").
	StreamError StreamEventType = "error"
)

// StreamEvent is one observable step of a streaming run, attributed to the
// agent whose node produced it.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	AgentName string          `json:"agent_name"`
	Data      map[string]any  `json:"data,omitempty"`
}

// ExecuteStream runs the entry agent like Execute but emits incremental
// events instead of only a terminal string: text fragments as the model
// produces them, a notification per dispatched call, and a final finish
// event per node. State machine and termination rules are identical to the
// buffered path; only the visibility of partial output differs. Dispatch
// proceeds in request order so fragment interleaving stays attributable to
// one node at a time.
//
// The returned channel closes when the root node terminates. The run's
// messages remain available via Messages for result assembly.
func (r *Runtime) ExecuteStream(ctx context.Context, agent core.Agent, message string, attachments ...core.Attachment) <-chan StreamEvent {
	events := make(chan StreamEvent, 16)

	go func() {
		defer close(events)

		callID := core.NewID()
		r.appendMessage(core.Message{
			Type:        core.MessageForward,
			Sender:      UserSender,
			Receiver:    agent.Name,
			Content:     message,
			Attachments: attachments,
			CallID:      callID,
		})

		emit := func(e StreamEvent) {
			select {
			case events <- e:
			case <-ctx.Done():
			}
		}

		output, err := r.streamNode(ctx, agent, message, attachments, callID, "", emit)
		if err != nil {
			// The root node's failure was already emitted as an error event;
			// the stream simply ends.
			return
		}

		r.appendMessage(core.Message{
			Type:     core.MessageReturn,
			Sender:   agent.Name,
			Receiver: UserSender,
			Content:  output,
			CallID:   callID,
		})
	}()

	return events
}

// streamNode is the streaming counterpart of runNode. It follows the exact
// same state machine; requested calls are dispatched in request order with
// per-request failure containment, and sub-agent events flow through the
// same emit sink so callers observe the whole tree interleaved.
func (r *Runtime) streamNode(
	ctx context.Context,
	agent core.Agent,
	message string,
	attachments []core.Attachment,
	callID, parentCallID string,
	emit func(StreamEvent),
) (string, error) {
	cc := core.NewContext()
	if err := cc.Initialize(r.router.SystemPrompt(agent)); err != nil {
		return "", err
	}
	cc.AddUser(message, attachments...)
	schemas := r.router.ToolSchemas(agent.Name)

	for {
		r.record(trace.EventModelCall, agent.Name, callID, parentCallID, map[string]any{
			"model": agent.Model,
		})

		chunks, errCh := r.router.StreamModel(ctx, agent, cc, schemas)

		var final *struct {
			content   string
			toolCalls []core.ToolCall
		}
		for chunk := range chunks {
			if chunk.Text != "" {
				emit(StreamEvent{
					Type:      StreamToken,
					AgentName: agent.Name,
					Data:      map[string]any{"text": chunk.Text},
				})
			}
			if chunk.Response != nil {
				final = &struct {
					content   string
					toolCalls []core.ToolCall
				}{chunk.Response.Content, chunk.Response.ToolCalls}
			}
		}
		if err := <-errCh; err != nil {
			emit(StreamEvent{
				Type:      StreamError,
				AgentName: agent.Name,
				Data:      map[string]any{"error": err.Error()},
			})
			return "", err
		}
		if final == nil {
			err := core.NewProviderError(agent.Provider, "stream ended without a final response", nil)
			emit(StreamEvent{
				Type:      StreamError,
				AgentName: agent.Name,
				Data:      map[string]any{"error": err.Error()},
			})
			return "", err
		}

		if len(final.toolCalls) == 0 {
			emit(StreamEvent{
				Type:      StreamFinish,
				AgentName: agent.Name,
				Data:      map[string]any{"output": final.content},
			})
			return final.content, nil
		}

		if finish := findFinish(final.toolCalls); finish != nil {
			result := finishMessage(finish)
			r.record(trace.EventFinish, agent.Name, callID, parentCallID, map[string]any{
				"result": truncate(result),
			})
			emit(StreamEvent{
				Type:      StreamFinish,
				AgentName: agent.Name,
				Data:      map[string]any{"output": result},
			})
			return result, nil
		}

		cc.AddAssistantToolCalls(final.toolCalls, final.content)

		for _, tc := range final.toolCalls {
			out := r.streamDispatchCall(ctx, agent, cc, tc, callID, emit)
			cc.AddToolResult(tc.ID, tc.Name, out.content, out.attachments...)
		}
	}
}

// streamDispatchCall resolves one request during a streaming run, emitting
// the corresponding notifications. Failures are contained into error text
// exactly like the buffered path.
func (r *Runtime) streamDispatchCall(
	ctx context.Context,
	caller core.Agent,
	cc *core.Context,
	tc core.ToolCall,
	callerCallID string,
	emit func(StreamEvent),
) (out outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("runtime.dispatch.panic", "agent", caller.Name, "call", tc.Name, "recover", fmt.Sprintf("%v", rec))
			out = outcome{content: fmt.Sprintf("Error: panic in %s: %v", tc.Name, rec)}
		}
	}()

	if tc.Name == core.BuiltinCallAgent {
		return r.streamCallAgent(ctx, caller, tc, callerCallID, emit)
	}

	args, err := parseArguments(tc.Arguments)
	if err != nil {
		return outcome{content: fmt.Sprintf("Error: %v", err)}
	}

	emit(StreamEvent{
		Type:      StreamToolCall,
		AgentName: caller.Name,
		Data:      map[string]any{"tool_name": tc.Name, "arguments": args},
	})
	r.record(trace.EventToolExec, caller.Name, callerCallID, "", map[string]any{
		"tool_name": tc.Name,
		"arguments": args,
	})

	t, err := r.router.Tool(tc.Name)
	if err != nil {
		return outcome{content: fmt.Sprintf("Error: %v", err)}
	}

	res, err := t.Call(ctx, args)
	if err != nil {
		return outcome{content: fmt.Sprintf("Error: %v", err)}
	}
	return outcome{content: res.Content, attachments: res.Attachments}
}

func (r *Runtime) streamCallAgent(
	ctx context.Context,
	caller core.Agent,
	tc core.ToolCall,
	callerCallID string,
	emit func(StreamEvent),
) outcome {
	var args struct {
		AgentName string `json:"agent_name"`
		Message   string `json:"message"`
	}
	if len(tc.Arguments) > 0 {
		if err := json.Unmarshal(tc.Arguments, &args); err != nil {
			return outcome{content: fmt.Sprintf("Error: malformed arguments: %v", err)}
		}
	}

	target, err := r.router.Agent(args.AgentName)
	if err != nil {
		return outcome{content: fmt.Sprintf("Error: %v", err)}
	}

	subCallID := core.NewID()
	r.appendMessage(core.Message{
		Type:     core.MessageForward,
		Sender:   caller.Name,
		Receiver: target.Name,
		Content:  args.Message,
		CallID:   subCallID,
	})
	r.record(trace.EventAgentCall, target.Name, subCallID, callerCallID, map[string]any{
		"from":    caller.Name,
		"message": truncate(args.Message),
	})
	emit(StreamEvent{
		Type:      StreamAgentCall,
		AgentName: target.Name,
		Data:      map[string]any{"from": caller.Name, "message": truncate(args.Message)},
	})

	result, err := r.streamNode(ctx, target, args.Message, nil, subCallID, callerCallID, emit)
	if err != nil {
		return outcome{content: fmt.Sprintf("Error: %v", err)}
	}

	r.appendMessage(core.Message{
		Type:     core.MessageReturn,
		Sender:   target.Name,
		Receiver: caller.Name,
		Content:  result,
		CallID:   subCallID,
	})
	r.record(trace.EventAgentReturn, target.Name, subCallID, callerCallID, map[string]any{
		"result": truncate(result),
	})
	emit(StreamEvent{
		Type:      StreamAgentReturn,
		AgentName: target.Name,
		Data:      map[string]any{"result": truncate(result)},
	})

	return outcome{content: result}
}
