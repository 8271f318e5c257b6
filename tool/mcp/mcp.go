// Package mcp bridges Model Context Protocol servers into the engine's tool
// registry: every tool served by a connected MCP server becomes an ordinary
// engine tool shared by all agents of a run.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/tool"
)

// Client holds one connected MCP server session.
type Client struct {
	session *sdk.ClientSession
}

// Connect spawns an MCP server process and connects to it over stdio.
func Connect(ctx context.Context, command string, args ...string) (*Client, error) {
	transport := &sdk.CommandTransport{
		Command: exec.Command(command, args...), //nolint:gosec // command is caller-provided by design
	}
	return connect(ctx, transport)
}

// ConnectSSE connects to an SSE-based MCP server at the given URL.
func ConnectSSE(ctx context.Context, url string) (*Client, error) {
	return connect(ctx, &sdk.SSEClientTransport{Endpoint: url})
}

func connect(ctx context.Context, transport sdk.Transport) (*Client, error) {
	client := sdk.NewClient(&sdk.Implementation{
		Name:    "agentrelay",
		Version: "0.1.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: connect: %w", err)
	}
	return &Client{session: session}, nil
}

// Tools fetches the server's tool listing and wraps each entry as an engine
// tool whose Call round-trips through the session.
func (c *Client) Tools(ctx context.Context) ([]tool.Tool, error) {
	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: list tools: %w", err)
	}

	tools := make([]tool.Tool, 0, len(result.Tools))
	for _, sdkTool := range result.Tools {
		t, err := c.wrap(sdkTool)
		if err != nil {
			return nil, fmt.Errorf("mcp: convert tool %q: %w", sdkTool.Name, err)
		}
		tools = append(tools, t)
	}
	return tools, nil
}

// Close terminates the session; the SDK tears down any spawned subprocess.
func (c *Client) Close() error {
	return c.session.Close()
}

func (c *Client) wrap(sdkTool *sdk.Tool) (*serverTool, error) {
	schemaBytes, err := json.Marshal(sdkTool.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}
	var parameters map[string]any
	if err := json.Unmarshal(schemaBytes, &parameters); err != nil {
		return nil, fmt.Errorf("unmarshal input schema: %w", err)
	}

	return &serverTool{
		session:     c.session,
		name:        sdkTool.Name,
		description: sdkTool.Description,
		parameters:  parameters,
	}, nil
}

// serverTool implements tool.Tool by delegating to a server session. Safe
// for concurrent use: the session serializes requests internally and the
// wrapper holds no mutable state beyond it.
type serverTool struct {
	session     *sdk.ClientSession
	name        string
	description string
	parameters  map[string]any

	// guards against concurrent CallTool on transports that do not support it
	mu sync.Mutex
}

// Name implements tool.Tool.
func (t *serverTool) Name() string { return t.name }

// Description implements tool.Tool.
func (t *serverTool) Description() string { return t.description }

// Parameters implements tool.Tool.
func (t *serverTool) Parameters() map[string]any { return t.parameters }

// Call implements tool.Tool.
func (t *serverTool) Call(ctx context.Context, args map[string]any) (*tool.Result, error) {
	t.mu.Lock()
	result, err := t.session.CallTool(ctx, &sdk.CallToolParams{
		Name:      t.name,
		Arguments: args,
	})
	t.mu.Unlock()
	if err != nil {
		return nil, core.NewToolError(t.name, err.Error(), core.ToolErrExecution)
	}

	text := extractText(result)
	if result.IsError {
		return nil, core.NewToolError(t.name, text, core.ToolErrExecution)
	}
	return &tool.Result{Content: text}, nil
}

// extractText joins all text content items of a result with newlines.
func extractText(result *sdk.CallToolResult) string {
	var texts []string
	for _, item := range result.Content {
		if tc, ok := item.(*sdk.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	return strings.Join(texts, "\n")
}
