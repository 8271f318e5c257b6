// Package config loads declarative agent and provider definitions from YAML.
// Credentials are referenced as ${ENV_VAR} placeholders expanded at load
// time so config files stay committable.
//
// Example:
//
//	providers:
//	  - name: openai
//	    kind: openai
//	    api_key: ${OPENAI_API_KEY}
//
//	agents:
//	  - name: researcher
//	    instructions: You research topics and summarize findings.
//	    model: gpt-4o
//	    provider: openai
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentrelay/core"
)

// Config is the root document: the agents and providers of one system.
// Tools are code, not configuration, and are supplied at run time.
type Config struct {
	Agents    []core.Agent    `yaml:"agents"`
	Providers []core.Provider `yaml:"providers"`
}

// placeholderRe matches ${VAR} references. Bare $VAR is left untouched so
// instructions mentioning dollar amounts survive loading.
var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, expands and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse expands ${ENV_VAR} placeholders, unmarshals the document and
// validates referential integrity.
func Parse(data []byte) (*Config, error) {
	expanded := placeholderRe.ReplaceAllFunc(data, func(match []byte) []byte {
		name := placeholderRe.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Agent returns the named agent definition.
func (c *Config) Agent(name string) (core.Agent, error) {
	for _, a := range c.Agents {
		if a.Name == name {
			return a, nil
		}
	}
	return core.Agent{}, core.NewNotFoundError("agent", name)
}

func (c *Config) validate() error {
	providers := make(map[string]core.ProviderKind, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return core.NewRoutingError("provider without a name")
		}
		if _, exists := providers[p.Name]; exists {
			return core.NewRoutingError(fmt.Sprintf("duplicate provider name: %s", p.Name))
		}
		providers[p.Name] = p.Kind
	}

	seen := make(map[string]struct{}, len(c.Agents))
	for _, a := range c.Agents {
		if a.Name == "" {
			return core.NewRoutingError("agent without a name")
		}
		if _, exists := seen[a.Name]; exists {
			return core.NewRoutingError(fmt.Sprintf("duplicate agent name: %s", a.Name))
		}
		seen[a.Name] = struct{}{}
		if _, ok := providers[a.Provider]; !ok {
			return core.NewRoutingError(fmt.Sprintf("agent %s references unknown provider %s", a.Name, a.Provider))
		}
	}
	return nil
}
