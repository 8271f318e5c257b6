// Package agentrelay provides a high-level façade over the router and
// runtime packages for running decentralized multi-agent systems: every
// registered agent can call every other agent and every tool, with no
// central coordinator and no call restrictions. Most applications interact
// with this package by:
//  1. Declaring agents, providers and tools (in code or via config.Load)
//  2. Calling Run for a buffered result or RunStream for incremental events
//
// Termination of a run is left entirely to model behavior and instructions:
// the engine bounds neither recursion depth nor loop iterations.
package agentrelay

import (
	"context"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/router"
	"github.com/hupe1980/agentrelay/runtime"
	"github.com/hupe1980/agentrelay/tool"
)

// Options configures a run.
type Options struct {
	// Observe enables event log recording and trace reconstruction on the
	// RunResult.
	Observe bool
	// Logger receives structured engine logs. Defaults to NoOpLogger.
	Logger logging.Logger
	// BackendFactory overrides model backend creation (tests, custom
	// provider kinds).
	BackendFactory router.BackendFactory
	// Attachments accompany the initial forward message.
	Attachments []core.Attachment
}

// Run executes entry with the given forward message until the root call
// node terminates, returning the aggregated result. The supplied agents,
// tools and providers are shared read-only by every call node of the run.
func Run(
	ctx context.Context,
	entry core.Agent,
	message string,
	agents []core.Agent,
	tools []tool.Tool,
	providers []core.Provider,
	optFns ...func(o *Options),
) (*runtime.RunResult, error) {
	opts := buildOptions(optFns)

	rt, err := newRuntime(agents, tools, providers, opts)
	if err != nil {
		return nil, err
	}
	return rt.Execute(ctx, entry, message, opts.Attachments...)
}

// RunStream executes entry like Run but returns a channel of incremental
// events (text fragments, dispatch notifications, per-node completion)
// instead of a buffered result. The channel closes when the root node
// terminates.
func RunStream(
	ctx context.Context,
	entry core.Agent,
	message string,
	agents []core.Agent,
	tools []tool.Tool,
	providers []core.Provider,
	optFns ...func(o *Options),
) (<-chan runtime.StreamEvent, error) {
	opts := buildOptions(optFns)

	rt, err := newRuntime(agents, tools, providers, opts)
	if err != nil {
		return nil, err
	}
	return rt.ExecuteStream(ctx, entry, message, opts.Attachments...), nil
}

func buildOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Logger:         logging.NoOpLogger{},
		BackendFactory: router.DefaultBackendFactory,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

func newRuntime(agents []core.Agent, tools []tool.Tool, providers []core.Provider, opts Options) (*runtime.Runtime, error) {
	r, err := router.New(agents, tools, providers, func(o *router.Options) {
		o.BackendFactory = opts.BackendFactory
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}
	return runtime.New(r, func(o *runtime.Options) {
		o.Observe = opts.Observe
		o.Logger = opts.Logger
	}), nil
}
