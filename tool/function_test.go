package tool

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
)

func sumTool() *FunctionTool {
	return NewFunctionTool(
		"calculate_sum",
		"Calculate the sum of two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)
}

func TestFunctionToolCall(t *testing.T) {
	res, err := sumTool().Call(context.Background(), map[string]any{"a": float64(2), "b": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, "5", res.Content)
}

func TestFunctionToolMissingRequired(t *testing.T) {
	_, err := sumTool().Call(context.Background(), map[string]any{"a": float64(2)})
	require.Error(t, err)

	var toolErr *core.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, core.ToolErrValidation, toolErr.Code)
	assert.Equal(t, "calculate_sum", toolErr.Tool)
}

func TestFunctionToolWrongType(t *testing.T) {
	_, err := sumTool().Call(context.Background(), map[string]any{"a": "two", "b": float64(3)})
	require.Error(t, err)

	var toolErr *core.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, core.ToolErrValidation, toolErr.Code)
}

func TestFunctionToolExecutionError(t *testing.T) {
	failing := NewFunctionTool(
		"failing",
		"Always fails",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, args map[string]any) (any, error) {
			return nil, fmt.Errorf("backend unavailable")
		},
	)

	_, err := failing.Call(context.Background(), map[string]any{})
	var toolErr *core.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, core.ToolErrExecution, toolErr.Code)
	assert.Contains(t, toolErr.Message, "backend unavailable")
}

func TestFunctionToolForwardsToolError(t *testing.T) {
	custom := core.NewToolError("custom", "rate limited", core.ToolErrExecution)
	failing := NewFunctionTool(
		"custom",
		"Forwards its own error",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, args map[string]any) (any, error) {
			return nil, custom
		},
	)

	_, err := failing.Call(context.Background(), map[string]any{})
	assert.Same(t, custom, err)
}

func TestFunctionToolResultNormalization(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string passthrough", "plain text", "plain text"},
		{"nil becomes empty", nil, ""},
		{"struct marshaled", struct {
			Count int `json:"count"`
		}{Count: 7}, `{"count":7}`},
		{"map marshaled", map[string]any{"ok": true}, `{"ok":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			echo := NewFunctionTool(
				"echo",
				"Returns a fixed value",
				map[string]any{"type": "object", "properties": map[string]any{}},
				func(ctx context.Context, args map[string]any) (any, error) {
					return tt.value, nil
				},
			)
			res, err := echo.Call(context.Background(), map[string]any{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Content)
		})
	}
}

func TestFunctionToolResultWithAttachments(t *testing.T) {
	camera := NewFunctionTool(
		"snapshot",
		"Returns media",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, args map[string]any) (any, error) {
			return &Result{
				Content:     "captured",
				Attachments: []core.Attachment{{MimeType: "image/png", Data: "aW1n"}},
			}, nil
		},
	)

	res, err := camera.Call(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "captured", res.Content)
	require.Len(t, res.Attachments, 1)
	assert.Equal(t, "image/png", res.Attachments[0].MimeType)
}

func TestNewFunctionToolFromStruct(t *testing.T) {
	type SumArgs struct {
		A float64 `json:"a" description:"First addend"`
		B float64 `json:"b" description:"Second addend"`
		C *string `json:"c,omitempty" description:"Optional note"`
	}

	sum := NewFunctionToolFromStruct(
		"calculate_sum",
		"Calculate the sum of two numbers",
		SumArgs{},
		func(ctx context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)

	params := sum.Parameters()
	props := params["properties"].(map[string]any)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	assert.Equal(t, "First addend", props["a"].(map[string]any)["description"])
	assert.ElementsMatch(t, []string{"a", "b"}, params["required"])

	res, err := sum.Call(context.Background(), map[string]any{"a": float64(1), "b": float64(2)})
	require.NoError(t, err)
	assert.Equal(t, "3", res.Content)

	_, err = sum.Call(context.Background(), map[string]any{"a": float64(1)})
	require.Error(t, err)
}
