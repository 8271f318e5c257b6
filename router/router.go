// Package router implements name resolution and backend dispatch for a run:
// registries of agents, tools and providers, deterministic system prompt and
// tool schema construction, and a concurrency-safe cache of model backend
// instances keyed by provider kind.
//
// A Router is stateless with respect to any single run; its registries are
// read-only after construction and one Router may serve many runs.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/model/anthropic"
	"github.com/hupe1980/agentrelay/model/openai"
	"github.com/hupe1980/agentrelay/tool"
)

// BackendFactory creates a model backend for a provider kind. The router
// caches the returned instance for the rest of its lifetime.
type BackendFactory func(kind core.ProviderKind) (model.Backend, error)

// DefaultBackendFactory knows the built-in provider kinds.
func DefaultBackendFactory(kind core.ProviderKind) (model.Backend, error) {
	switch kind {
	case core.ProviderOpenAI:
		return openai.New(), nil
	case core.ProviderAnthropic:
		return anthropic.New(), nil
	default:
		return nil, core.NewNotFoundError("provider kind", string(kind))
	}
}

// Options configures Router construction.
type Options struct {
	// BackendFactory overrides backend creation (tests, custom providers).
	BackendFactory BackendFactory
	// Logger receives structured routing logs. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Router resolves names to agents, tools and providers, builds prompts and
// schema unions, and selects cached backends. Safe for concurrent use: the
// registries are immutable after New and the backend cache is lock-guarded.
type Router struct {
	agents    map[string]core.Agent
	tools     map[string]tool.Tool
	providers map[string]core.Provider

	// registration order, so prompt and schema construction is deterministic
	agentOrder []string
	toolOrder  []string

	factory BackendFactory
	logger  logging.Logger

	mu       sync.RWMutex
	backends map[core.ProviderKind]model.Backend
}

// New constructs a Router over the given registries. Duplicate names and
// tools that claim a builtin capability name fail with a RoutingError.
func New(agents []core.Agent, tools []tool.Tool, providers []core.Provider, optFns ...func(o *Options)) (*Router, error) {
	opts := Options{
		BackendFactory: DefaultBackendFactory,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	r := &Router{
		agents:    make(map[string]core.Agent, len(agents)),
		tools:     make(map[string]tool.Tool, len(tools)),
		providers: make(map[string]core.Provider, len(providers)),
		factory:   opts.BackendFactory,
		logger:    opts.Logger,
		backends:  make(map[core.ProviderKind]model.Backend),
	}

	for _, a := range agents {
		if _, exists := r.agents[a.Name]; exists {
			return nil, core.NewRoutingError(fmt.Sprintf("duplicate agent name: %s", a.Name))
		}
		r.agents[a.Name] = a
		r.agentOrder = append(r.agentOrder, a.Name)
	}

	for _, t := range tools {
		name := t.Name()
		if name == core.BuiltinCallAgent || name == core.BuiltinFinish {
			return nil, core.NewRoutingError(fmt.Sprintf("tool name %s is reserved", name))
		}
		if _, exists := r.tools[name]; exists {
			return nil, core.NewRoutingError(fmt.Sprintf("duplicate tool name: %s", name))
		}
		r.tools[name] = t
		r.toolOrder = append(r.toolOrder, name)
	}

	for _, p := range providers {
		if _, exists := r.providers[p.Name]; exists {
			return nil, core.NewRoutingError(fmt.Sprintf("duplicate provider name: %s", p.Name))
		}
		r.providers[p.Name] = p
	}

	return r, nil
}

// AgentNames returns registered agent names in registration order.
func (r *Router) AgentNames() []string {
	out := make([]string, len(r.agentOrder))
	copy(out, r.agentOrder)
	return out
}

// ToolNames returns registered tool names in registration order.
func (r *Router) ToolNames() []string {
	out := make([]string, len(r.toolOrder))
	copy(out, r.toolOrder)
	return out
}

// Agent resolves an agent by name. Unknown names fail with a NotFoundError:
// unrecoverable for the request that asked, recoverable for the run (the
// dispatch boundary surfaces it as an error outcome, not a crash).
func (r *Router) Agent(name string) (core.Agent, error) {
	a, ok := r.agents[name]
	if !ok {
		return core.Agent{}, core.NewNotFoundError("agent", name)
	}
	return a, nil
}

// Tool resolves a tool by name, failing with a NotFoundError if absent.
func (r *Router) Tool(name string) (tool.Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, core.NewNotFoundError("tool", name)
	}
	return t, nil
}

// SystemPrompt builds the deterministic preamble for one agent: its own
// identity and instructions, the name and instructions of every other
// registered agent, and standing usage notes for the builtin capabilities.
// The invoking agent is excluded from the peer listing to avoid
// self-referential prompt noise; self-calls remain permitted at the protocol
// level.
func (r *Router) SystemPrompt(agent core.Agent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %q. %s", agent.Name, agent.Instructions)

	var peers []string
	for _, name := range r.agentOrder {
		if name != agent.Name {
			peers = append(peers, name)
		}
	}
	if len(peers) > 0 {
		b.WriteString("\n\nAvailable agents:")
		for _, name := range peers {
			fmt.Fprintf(&b, "\n- %s: %s", name, r.agents[name].Instructions)
		}
	}

	b.WriteString("\n\nUse call_agent to delegate work to other agents.")
	b.WriteString("\nUse finish to complete your task and return the result.")
	return b.String()
}

// ToolSchemas builds the schema union exposed to one agent: every registered
// tool plus the two builtin capabilities. The union is identical for every
// agent; no per-agent filtering is ever applied (design invariant).
func (r *Router) ToolSchemas(currentAgent string) []model.Schema {
	schemas := make([]model.Schema, 0, len(r.toolOrder)+2)

	for _, name := range r.toolOrder {
		t := r.tools[name]
		schemas = append(schemas, model.Schema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}

	schemas = append(schemas, model.Schema{
		Name: core.BuiltinCallAgent,
		Description: "Call another agent. The agent will process your message " +
			"and return a result when done.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agent_name": map[string]any{
					"type":        "string",
					"description": "Name of the agent to call",
				},
				"message": map[string]any{
					"type":        "string",
					"description": "Message to send to the agent",
				},
			},
			"required": []string{"agent_name", "message"},
		},
	})

	schemas = append(schemas, model.Schema{
		Name: core.BuiltinFinish,
		Description: "Finish the current task and return a result to the caller. " +
			"The caller may be a user or another agent.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "Result message to return",
				},
			},
			"required": []string{"message"},
		},
	})

	return schemas
}

// CallModel resolves the agent's provider, selects the cached backend for
// its kind and performs one blocking model call. Backend failures propagate
// as Provider-kind errors; the router never retries.
func (r *Router) CallModel(ctx context.Context, agent core.Agent, cc *core.Context, schemas []model.Schema) (*model.Response, error) {
	provider, backend, err := r.resolveBackend(agent)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("router.model.call", "agent", agent.Name, "model", agent.Model, "provider", provider.Name)

	return backend.Call(ctx, model.Request{
		Agent:    agent,
		Provider: provider,
		Context:  cc,
		Tools:    schemas,
	})
}

// StreamModel is the streaming counterpart of CallModel.
func (r *Router) StreamModel(ctx context.Context, agent core.Agent, cc *core.Context, schemas []model.Schema) (<-chan model.Chunk, <-chan error) {
	provider, backend, err := r.resolveBackend(agent)
	if err != nil {
		out := make(chan model.Chunk)
		close(out)
		errCh := make(chan error, 1)
		errCh <- err
		close(errCh)
		return out, errCh
	}

	r.logger.Debug("router.model.stream", "agent", agent.Name, "model", agent.Model, "provider", provider.Name)

	return backend.Stream(ctx, model.Request{
		Agent:    agent,
		Provider: provider,
		Context:  cc,
		Tools:    schemas,
	})
}

func (r *Router) resolveBackend(agent core.Agent) (core.Provider, model.Backend, error) {
	provider, ok := r.providers[agent.Provider]
	if !ok {
		return core.Provider{}, nil, core.NewProviderError(agent.Provider, "provider not found", nil)
	}
	backend, err := r.backend(provider.Kind)
	if err != nil {
		return core.Provider{}, nil, err
	}
	return provider, backend, nil
}

// backend returns the cached instance for a kind, creating it on first use.
// The cache is the only state shared across concurrently executing call
// nodes, so access is lock-guarded with a double-check on the write path.
func (r *Router) backend(kind core.ProviderKind) (model.Backend, error) {
	r.mu.RLock()
	b, ok := r.backends[kind]
	r.mu.RUnlock()
	if ok {
		return b, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.backends[kind]; ok {
		return b, nil
	}

	b, err := r.factory(kind)
	if err != nil {
		return nil, err
	}
	r.backends[kind] = b

	r.logger.Debug("router.backend.created", "kind", string(kind))

	return b, nil
}
