package core

// ProviderKind enumerates the supported model backend families.
type ProviderKind string

const (
	// ProviderOpenAI selects the OpenAI chat completions backend.
	ProviderOpenAI ProviderKind = "openai"
	// ProviderAnthropic selects the Anthropic messages backend.
	ProviderAnthropic ProviderKind = "anthropic"
)

// Provider holds connection identity for a model backend: name, kind and
// credentials. Inference parameters (model id, temperature, token limits)
// live on Agent, never here.
type Provider struct {
	Name    string       `yaml:"name" json:"name"`
	Kind    ProviderKind `yaml:"kind" json:"kind"`
	APIKey  string       `yaml:"api_key" json:"api_key"`
	BaseURL string       `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}
