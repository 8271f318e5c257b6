package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/util"
)

// FunctionTool adapts a plain Go function into a Tool. It validates model
// supplied arguments against the declared schema before execution and
// normalizes failures into *core.ToolError:
//
//	validation failure -> code VALIDATION_ERROR
//	function error     -> code EXECUTION_ERROR
//	*core.ToolError    -> forwarded unchanged
//
// The wrapped function may return a string, a *Result (to attach media), or
// any JSON-serializable value, which is marshaled into text for the model.
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from an explicit schema and
// implementation.
//
// Example:
//
//	sum := tool.NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct via
// reflection, equivalent to passing util.CreateSchema(structType).
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args against the declared schema then invokes the wrapped
// function, normalizing the outcome into a *Result.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (*Result, error) {
	if err := util.ValidateParameters(args, t.parameters); err != nil {
		return nil, core.NewToolError(
			t.name,
			fmt.Sprintf("parameter validation failed: %v", err),
			core.ToolErrValidation,
		)
	}

	value, err := t.fn(ctx, args)
	if err != nil {
		if toolErr, ok := err.(*core.ToolError); ok {
			return nil, toolErr
		}
		return nil, core.NewToolError(t.name, err.Error(), core.ToolErrExecution)
	}

	return normalizeResult(t.name, value)
}

// normalizeResult converts arbitrary function return values into a *Result.
func normalizeResult(name string, value any) (*Result, error) {
	switch v := value.(type) {
	case nil:
		return &Result{}, nil
	case *Result:
		return v, nil
	case Result:
		return &v, nil
	case string:
		return &Result{Content: v}, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, core.NewToolError(
				name,
				fmt.Sprintf("result not serializable: %v", err),
				core.ToolErrExecution,
			)
		}
		return &Result{Content: string(data)}, nil
	}
}
