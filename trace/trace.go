package trace

import (
	"fmt"
	"strings"
	"time"
)

// Span is the reconstructed lifetime of one call node: identity, timing,
// child spans and the tool executions observed while the node ran.
type Span struct {
	AgentName    string           `json:"agent_name"`
	CallID       string           `json:"call_id"`
	ParentCallID string           `json:"parent_call_id,omitempty"`
	StartTime    time.Time        `json:"start_time"`
	EndTime      time.Time        `json:"end_time"`
	Children     []*Span          `json:"children,omitempty"`
	ToolCalls    []map[string]any `json:"tool_calls,omitempty"`
	Result       string           `json:"result,omitempty"`
}

// Duration returns the span's wall-clock duration, zero while incomplete.
func (s *Span) Duration() time.Duration {
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Trace is the call graph of a run rebuilt from its event log. The span set
// forms a tree mirroring the recursion: every non-root span's parent is the
// span whose dispatch produced it.
type Trace struct {
	root  *Span
	spans map[string]*Span
}

// New reconstructs a Trace from an event log.
func New(log *EventLog) *Trace {
	t := &Trace{spans: make(map[string]*Span)}
	t.build(log)
	return t
}

// Root returns the run's root span, nil for an empty log.
func (t *Trace) Root() *Span { return t.root }

// Span returns the span for a call id, nil if unknown.
func (t *Trace) Span(callID string) *Span { return t.spans[callID] }

func (t *Trace) build(log *EventLog) {
	for _, e := range log.Events() {
		span, ok := t.spans[e.CallID]
		if !ok {
			span = &Span{
				AgentName:    e.AgentName,
				CallID:       e.CallID,
				ParentCallID: e.ParentCallID,
			}
			t.spans[e.CallID] = span
		}

		switch e.Type {
		case EventAgentCall:
			span.StartTime = e.Timestamp
		case EventAgentReturn, EventFinish:
			span.EndTime = e.Timestamp
			if result, ok := e.Details["result"]; ok {
				span.Result = fmt.Sprintf("%v", result)
			}
		case EventToolExec:
			span.ToolCalls = append(span.ToolCalls, e.Details)
		}
	}

	for _, e := range log.Events() {
		span := t.spans[e.CallID]
		if span.ParentCallID == "" {
			if t.root == nil {
				t.root = span
			}
			continue
		}
		if parent, ok := t.spans[span.ParentCallID]; ok && !containsSpan(parent.Children, span) {
			parent.Children = append(parent.Children, span)
		}
	}
}

func containsSpan(spans []*Span, s *Span) bool {
	for _, existing := range spans {
		if existing == s {
			return true
		}
	}
	return false
}

// PrintTree renders the call graph as an indented tree with durations.
func (t *Trace) PrintTree() string {
	if t.root == nil {
		return "(empty trace)"
	}
	var lines []string
	formatSpan(t.root, &lines, "", true)
	return strings.Join(lines, "\n")
}

func formatSpan(span *Span, lines *[]string, prefix string, isLast bool) {
	connector := "├── "
	if isLast {
		connector = "└── "
	}
	dur := "..."
	if d := span.Duration(); d > 0 {
		dur = fmt.Sprintf("%.2fs", d.Seconds())
	}
	*lines = append(*lines, fmt.Sprintf("%s%s[%s] (%s)", prefix, connector, span.AgentName, dur))

	childPrefix := prefix + "│   "
	if isLast {
		childPrefix = prefix + "    "
	}

	for _, tc := range span.ToolCalls {
		name := "?"
		if n, ok := tc["tool_name"]; ok {
			name = fmt.Sprintf("%v", n)
		}
		*lines = append(*lines, fmt.Sprintf("%s  * %s", childPrefix, name))
	}

	for i, child := range span.Children {
		formatSpan(child, lines, childPrefix, i == len(span.Children)-1)
	}
}
