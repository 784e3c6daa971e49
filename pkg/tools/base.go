// Package tools implements the agent's callable capabilities behind a
// closed registry: memory vault access, runtime introspection, the
// shared task inbox, and the operator outbox. Dispatch is by exact
// name; an unknown name is the executor's cue to answer with a
// boundary denial rather than an error.
package tools

import (
	"context"
	"encoding/json"
)

// Tool is the interface that all tools must implement.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *ToolResult
}

// ClosableTool is an optional interface for tools that hold runtime
// resources and require explicit teardown when the agent stops.
type ClosableTool interface {
	Tool
	Close() error
}

// TickStateful is an optional interface for tools with per-tick
// budgets; the executor calls ResetTick at every tick boundary.
type TickStateful interface {
	Tool
	ResetTick()
}

// ToolResult carries a tool's outcome. ForLLM is what the model sees;
// ForUser, when set, is the human-facing rendering for the console.
type ToolResult struct {
	ForLLM  string
	ForUser string
	Silent  bool
	Err     error
	IsError bool
}

// NewToolResult builds a successful result.
func NewToolResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM}
}

// ErrorResult builds a failed result whose ForLLM payload is the
// structured error object handed back to the model.
func ErrorResult(message string) *ToolResult {
	return &ToolResult{
		ForLLM:  errorJSON(message, ""),
		IsError: true,
	}
}

// CodedErrorResult is ErrorResult with a machine-readable code
// (validation, pii, duplicate, capacity, not_found).
func CodedErrorResult(code, message string) *ToolResult {
	return &ToolResult{
		ForLLM:  errorJSON(message, code),
		IsError: true,
	}
}

// WithError attaches the underlying error for logging.
func (r *ToolResult) WithError(err error) *ToolResult {
	r.Err = err
	return r
}

// WithUserText sets the console rendering.
func (r *ToolResult) WithUserText(text string) *ToolResult {
	r.ForUser = text
	return r
}

// JSONResult marshals v as the model-facing payload. Marshal failures
// degrade to an error result rather than panicking mid-tick.
func JSONResult(v interface{}) *ToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrorResult("encode result: " + err.Error()).WithError(err)
	}
	return NewToolResult(string(data))
}

func errorJSON(message, code string) string {
	payload := map[string]string{"status": "error", "message": message}
	if code != "" {
		payload["code"] = code
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

// ToolToSchema renders a tool as an OpenAI-style function schema.
func ToolToSchema(tool Tool) map[string]interface{} {
	return map[string]interface{}{
		"type": "function",
		"function": map[string]interface{}{
			"name":        tool.Name(),
			"description": tool.Description(),
			"parameters":  tool.Parameters(),
		},
	}
}
