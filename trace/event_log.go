// Package trace provides structured run observability: an append-only event
// log recorded by the runtime and a span tree reconstructing the call graph
// from it. Recording is passive and never alters loop semantics or ordering.
package trace

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// EventType categorizes recorded runtime events.
type EventType string

// Event types recorded by the runtime.
const (
	EventModelCall     EventType = "model_call"
	EventModelResponse EventType = "model_response"
	EventToolExec      EventType = "tool_exec"
	EventAgentCall     EventType = "agent_call"
	EventAgentReturn   EventType = "agent_return"
	EventFinish        EventType = "finish"
	EventError         EventType = "error"
)

// Event is one timestamped observation attributed to a call node.
type Event struct {
	Type         EventType      `json:"type"`
	AgentName    string         `json:"agent_name"`
	CallID       string         `json:"call_id"`
	ParentCallID string         `json:"parent_call_id,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Details      map[string]any `json:"details,omitempty"`
}

// EventLog accumulates events across a whole run. It is safe for concurrent
// recording: dispatch fans out across goroutines.
type EventLog struct {
	mu     sync.Mutex
	events []Event
}

// NewEventLog returns an empty log.
func NewEventLog() *EventLog { return &EventLog{} }

// Record appends an event, stamping the time if unset.
func (l *EventLog) Record(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

// Events returns a copy of the recorded events in record order.
func (l *EventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of recorded events.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Filter returns events matching the given agent name and/or type. Empty
// values match everything.
func (l *EventLog) Filter(agentName string, eventType EventType) []Event {
	var out []Event
	for _, e := range l.Events() {
		if agentName != "" && e.AgentName != agentName {
			continue
		}
		if eventType != "" && e.Type != eventType {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Format renders the log as aligned text lines, truncating long detail
// values for readability.
func (l *EventLog) Format() string {
	var b strings.Builder
	for i, e := range l.Events() {
		if i > 0 {
			b.WriteByte('\n')
		}
		cid := e.CallID
		if len(cid) > 8 {
			cid = cid[:8]
		}
		fmt.Fprintf(&b, "%-20s %-16s cid=%s", "["+e.AgentName+"]", string(e.Type), cid)
		for k, v := range e.Details {
			val := fmt.Sprintf("%v", v)
			if len(val) > 120 {
				val = val[:120] + "..."
			}
			fmt.Fprintf(&b, "\n%-20s   %s=%s", "", k, val)
		}
	}
	return b.String()
}
