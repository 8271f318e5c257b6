// Package runtime implements the recursive agent loop engine. One Runtime
// executes one run: it drives each call node through its state machine
// (model turn, concurrent dispatch of requested calls, termination),
// recurses into child nodes for agent-to-agent calls, and assembles the
// run's message list and call graph.
//
// Termination is left entirely to model behavior: the engine bounds neither
// recursion depth nor loop iterations, and an in-flight node cannot be
// aborted from the outside.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/router"
	"github.com/hupe1980/agentrelay/tool"
	"github.com/hupe1980/agentrelay/trace"
)

// UserSender identifies the synthetic caller of the root call node.
const UserSender = "user"

// RunResult aggregates the outcome of a whole run: the root node's output,
// every forward/return message observed across the call tree, and, when
// observability was enabled, the call graph and event log.
type RunResult struct {
	Output   string          `json:"output"`
	Messages []core.Message  `json:"messages"`
	Trace    *trace.Trace    `json:"-"`
	EventLog *trace.EventLog `json:"-"`
}

// FormatTrace renders the call graph tree, or a hint when observability was
// not requested.
func (r *RunResult) FormatTrace() string {
	if r.Trace == nil {
		return "(no trace - run with observe enabled)"
	}
	return r.Trace.PrintTree()
}

// Options configures a Runtime.
type Options struct {
	// Observe enables event log recording and trace reconstruction.
	Observe bool
	// Logger receives structured loop logs. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Runtime executes one run. It accumulates run-scoped state (messages,
// events), so construct a fresh Runtime per run; the Router it drives may be
// shared across runs.
type Runtime struct {
	router   *router.Router
	logger   logging.Logger
	eventLog *trace.EventLog // nil unless observing

	mu       sync.Mutex
	messages []core.Message
}

// New constructs a Runtime over a Router.
func New(r *router.Router, optFns ...func(o *Options)) *Runtime {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	rt := &Runtime{router: r, logger: opts.Logger}
	if opts.Observe {
		rt.eventLog = trace.NewEventLog()
	}
	return rt
}

// Execute runs the entry agent to completion with the given forward message.
// The triggering user is an ordinary call node producer with no model: the
// message is handed straight into the loop with no special-cased entry
// point. A failure obtaining a model response at the root node is the one
// failure that surfaces to the caller; everything below the root degrades
// into model-visible error text.
func (r *Runtime) Execute(ctx context.Context, agent core.Agent, message string, attachments ...core.Attachment) (*RunResult, error) {
	callID := core.NewID()

	r.appendMessage(core.Message{
		Type:        core.MessageForward,
		Sender:      UserSender,
		Receiver:    agent.Name,
		Content:     message,
		Attachments: attachments,
		CallID:      callID,
	})
	r.record(trace.EventAgentCall, agent.Name, callID, "", map[string]any{
		"from":    UserSender,
		"message": truncate(message),
	})

	output, err := r.runNode(ctx, agent, message, attachments, callID, "")
	if err != nil {
		r.record(trace.EventError, agent.Name, callID, "", map[string]any{"error": err.Error()})
		return nil, err
	}

	r.appendMessage(core.Message{
		Type:     core.MessageReturn,
		Sender:   agent.Name,
		Receiver: UserSender,
		Content:  output,
		CallID:   callID,
	})
	r.record(trace.EventAgentReturn, agent.Name, callID, "", map[string]any{
		"result": truncate(output),
	})

	result := &RunResult{Output: output, Messages: r.snapshotMessages()}
	if r.eventLog != nil {
		result.EventLog = r.eventLog
		result.Trace = trace.New(r.eventLog)
	}
	return result, nil
}

// runNode executes one call node to completion: fresh context, inbound
// message as first user turn, then alternate between model turns and
// concurrent dispatch until the node terminates.
func (r *Runtime) runNode(
	ctx context.Context,
	agent core.Agent,
	message string,
	attachments []core.Attachment,
	callID, parentCallID string,
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

		resp, err := r.router.CallModel(ctx, agent, cc, schemas)
		if err != nil {
			return "", err
		}

		r.record(trace.EventModelResponse, agent.Name, callID, parentCallID, map[string]any{
			"has_tool_calls": len(resp.ToolCalls) > 0,
			"content_length": len(resp.Content),
		})

		// Free-text answer without the finish capability is the designed
		// fallback path: it still produces a valid return.
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		// Finish short-circuits: sibling requests in the same turn are not
		// executed once finish is observed.
		if finish := findFinish(resp.ToolCalls); finish != nil {
			result := finishMessage(finish)
			r.record(trace.EventFinish, agent.Name, callID, parentCallID, map[string]any{
				"result": truncate(result),
			})
			return result, nil
		}

		cc.AddAssistantToolCalls(resp.ToolCalls, resp.Content)
		r.dispatch(ctx, agent, cc, resp.ToolCalls, callID)
	}
}

// outcome is the resolved result of one dispatched request.
type outcome struct {
	content     string
	attachments []core.Attachment
}

// dispatch executes every requested call concurrently, one goroutine per
// request, then appends the outcomes to the context in the original request
// order so replay stays deterministic regardless of completion timing. Any
// per-request failure is converted into error text visible to the model on
// the next turn; it never aborts sibling requests or the node.
func (r *Runtime) dispatch(ctx context.Context, agent core.Agent, cc *core.Context, toolCalls []core.ToolCall, callID string) {
	outcomes := make([]outcome, len(toolCalls))

	var wg sync.WaitGroup
	for i, tc := range toolCalls {
		wg.Add(1)
		go func(idx int, tc core.ToolCall) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("runtime.dispatch.panic", "agent", agent.Name, "call", tc.Name, "recover", fmt.Sprintf("%v", rec))
					outcomes[idx] = outcome{content: fmt.Sprintf("Error: panic in %s: %v", tc.Name, rec)}
				}
			}()

			res, err := r.dispatchCall(ctx, agent, tc, callID)
			if err != nil {
				r.logger.Warn("runtime.dispatch.error", "agent", agent.Name, "call", tc.Name, "error", err.Error())
				outcomes[idx] = outcome{content: fmt.Sprintf("Error: %v", err)}
				return
			}
			outcomes[idx] = outcome{content: res.Content, attachments: res.Attachments}
		}(i, tc)
	}
	wg.Wait()

	for i, tc := range toolCalls {
		cc.AddToolResult(tc.ID, tc.Name, outcomes[i].content, outcomes[i].attachments...)
	}
}

// dispatchCall executes a single request: a builtin agent call recurses into
// a new child node; anything else resolves to a registered tool.
func (r *Runtime) dispatchCall(ctx context.Context, caller core.Agent, tc core.ToolCall, callerCallID string) (*tool.Result, error) {
	if tc.Name == core.BuiltinCallAgent {
		return r.callAgent(ctx, caller, tc, callerCallID)
	}

	t, err := r.router.Tool(tc.Name)
	if err != nil {
		return nil, err
	}

	args, err := parseArguments(tc.Arguments)
	if err != nil {
		return nil, core.NewToolError(tc.Name, fmt.Sprintf("malformed arguments: %v", err), core.ToolErrValidation)
	}

	r.record(trace.EventToolExec, caller.Name, callerCallID, "", map[string]any{
		"tool_name": tc.Name,
		"arguments": args,
	})

	return t.Call(ctx, args)
}

// callAgent allocates a child call node and recurses. Its parent is always
// the node that issued the request, so the node set forms a tree.
func (r *Runtime) callAgent(ctx context.Context, caller core.Agent, tc core.ToolCall, callerCallID string) (*tool.Result, error) {
	var args struct {
		AgentName string `json:"agent_name"`
		Message   string `json:"message"`
	}
	if len(tc.Arguments) > 0 {
		if err := json.Unmarshal(tc.Arguments, &args); err != nil {
			return nil, core.NewToolError(tc.Name, fmt.Sprintf("malformed arguments: %v", err), core.ToolErrValidation)
		}
	}

	target, err := r.router.Agent(args.AgentName)
	if err != nil {
		return nil, err
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

	result, err := r.runNode(ctx, target, args.Message, nil, subCallID, callerCallID)
	if err != nil {
		return nil, err
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

	return &tool.Result{Content: result}, nil
}

// Messages returns a snapshot of every forward/return message recorded so
// far, in append order. After a streaming run's channel closes it holds the
// run's complete message list.
func (r *Runtime) Messages() []core.Message {
	return r.snapshotMessages()
}

func (r *Runtime) appendMessage(m core.Message) {
	r.mu.Lock()
	r.messages = append(r.messages, m)
	r.mu.Unlock()
}

func (r *Runtime) snapshotMessages() []core.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

func (r *Runtime) record(t trace.EventType, agentName, callID, parentCallID string, details map[string]any) {
	if r.eventLog == nil {
		r.logger.Debug("runtime.event", "type", string(t), "agent", agentName, "call_id", shortID(callID))
		return
	}
	r.eventLog.Record(trace.Event{
		Type:         t,
		AgentName:    agentName,
		CallID:       callID,
		ParentCallID: parentCallID,
		Details:      details,
	})
	r.logger.Debug("runtime.event", "type", string(t), "agent", agentName, "call_id", shortID(callID))
}

// findFinish returns the finish request of a turn, nil if absent. At most
// one is meaningful per turn; if present it is authoritative.
func findFinish(toolCalls []core.ToolCall) *core.ToolCall {
	for i := range toolCalls {
		if toolCalls[i].Name == core.BuiltinFinish {
			return &toolCalls[i]
		}
	}
	return nil
}

// finishMessage extracts the result parameter, tolerating malformed
// arguments as an empty result.
func finishMessage(tc *core.ToolCall) string {
	var args struct {
		Message string `json:"message"`
	}
	if len(tc.Arguments) > 0 {
		_ = json.Unmarshal(tc.Arguments, &args)
	}
	return args.Message
}

func parseArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func truncate(text string) string {
	const maxLen = 200
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
