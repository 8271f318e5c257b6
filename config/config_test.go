package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
)

const sampleConfig = `
providers:
  - name: main
    kind: openai
    api_key: ${TEST_OPENAI_KEY}
  - name: claude
    kind: anthropic
    api_key: ${TEST_ANTHROPIC_KEY}

agents:
  - name: coordinator
    instructions: Coordinates the team.
    model: gpt-4o
    provider: main
    temperature: 0.2
  - name: researcher
    instructions: Researches topics.
    model: claude-sonnet-4-0
    provider: claude
    reasoning: true
    reasoning_budget: 2048
`

func TestParse(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test-123")
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-ant-456")

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "sk-test-123", cfg.Providers[0].APIKey)
	assert.Equal(t, core.ProviderOpenAI, cfg.Providers[0].Kind)
	assert.Equal(t, "sk-ant-456", cfg.Providers[1].APIKey)

	require.Len(t, cfg.Agents, 2)
	coordinator := cfg.Agents[0]
	assert.Equal(t, "coordinator", coordinator.Name)
	assert.Equal(t, "gpt-4o", coordinator.Model)
	assert.InDelta(t, 0.2, coordinator.Temperature, 0.0001)

	researcher, err := cfg.Agent("researcher")
	require.NoError(t, err)
	assert.True(t, researcher.Reasoning)
	assert.Equal(t, int64(2048), researcher.ReasoningBudget)

	_, err = cfg.Agent("ghost")
	var notFound *core.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestParseUnsetPlaceholderExpandsEmpty(t *testing.T) {
	os.Unsetenv("DEFINITELY_NOT_SET_12345")

	cfg, err := Parse([]byte(`
providers:
  - name: main
    kind: openai
    api_key: ${DEFINITELY_NOT_SET_12345}
agents:
  - name: a
    instructions: Does things.
    model: m
    provider: main
`))
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Providers[0].APIKey)
}

// Bare $VAR is not placeholder syntax and must pass through untouched.
func TestParseLeavesBareDollarAlone(t *testing.T) {
	cfg, err := Parse([]byte(`
providers:
  - name: main
    kind: openai
    api_key: k
agents:
  - name: a
    instructions: Quote prices in $USD.
    model: m
    provider: main
`))
	require.NoError(t, err)
	assert.Equal(t, "Quote prices in $USD.", cfg.Agents[0].Instructions)
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			"unknown provider reference",
			`
providers:
  - name: main
    kind: openai
    api_key: k
agents:
  - name: a
    instructions: x
    model: m
    provider: other
`,
		},
		{
			"duplicate agent",
			`
providers:
  - name: main
    kind: openai
    api_key: k
agents:
  - name: a
    instructions: x
    model: m
    provider: main
  - name: a
    instructions: y
    model: m
    provider: main
`,
		},
		{
			"duplicate provider",
			`
providers:
  - name: main
    kind: openai
    api_key: k
  - name: main
    kind: anthropic
    api_key: k
agents: []
`,
		},
		{
			"agent without name",
			`
providers:
  - name: main
    kind: openai
    api_key: k
agents:
  - instructions: x
    model: m
    provider: main
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)

			var routingErr *core.RoutingError
			assert.ErrorAs(t, err, &routingErr)
		})
	}
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("agents: ["))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-from-file")
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-ant-from-file")

	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", cfg.Providers[0].APIKey)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
