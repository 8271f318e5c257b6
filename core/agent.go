package core

// Agent is the immutable configuration of one named agent. It carries no
// behavior; the runtime resolves agents by name and drives their loop. Two
// invocations of the same Agent never share conversational state.
type Agent struct {
	// Name uniquely identifies the agent within a run.
	Name string `yaml:"name" json:"name"`

	// Instructions is the free-text persona / task description injected into
	// the system prompt, and shown verbatim to peer agents as a capability
	// listing.
	Instructions string `yaml:"instructions" json:"instructions"`

	// Model is the provider-specific model identifier (e.g. "gpt-4o").
	Model string `yaml:"model" json:"model"`

	// Provider names the Provider entry used to reach the model backend.
	Provider string `yaml:"provider" json:"provider"`

	// MaxOutputTokens caps the completion length. Zero means backend default.
	MaxOutputTokens int64 `yaml:"max_output_tokens,omitempty" json:"max_output_tokens,omitempty"`

	// Temperature is forwarded unchanged to the backend. Reasoning-enabled
	// agents may have it overridden by the backend's own constraints.
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	// Reasoning enables extended thinking on backends that support it.
	Reasoning bool `yaml:"reasoning,omitempty" json:"reasoning,omitempty"`

	// ReasoningEffort selects the effort level ("low", "medium", "high") on
	// backends that express reasoning as an effort knob.
	ReasoningEffort string `yaml:"reasoning_effort,omitempty" json:"reasoning_effort,omitempty"`

	// ReasoningBudget caps thinking tokens on backends that express
	// reasoning as a budget. Zero means backend default.
	ReasoningBudget int64 `yaml:"reasoning_budget,omitempty" json:"reasoning_budget,omitempty"`
}
