package tools

import (
	"context"
	"strings"
	"sync"
	"testing"
)

type stubTool struct {
	name    string
	execute func(ctx context.Context, args map[string]interface{}) *ToolResult

	mu     sync.Mutex
	resets int
	closed bool
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	if s.execute != nil {
		return s.execute(ctx, args)
	}
	return NewToolResult("ok")
}
func (s *stubTool) ResetTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}
func (s *stubTool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Executing an unregistered name must come back as an error result,
// never a panic or a nil.
func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewToolRegistry()
	result := r.Execute(context.Background(), "nope", nil)
	if result == nil {
		t.Fatal("expected a result")
	}
	if !result.IsError {
		t.Fatal("expected an error result for unknown tool")
	}
	if !strings.Contains(result.ForLLM, "not found") {
		t.Fatalf("unexpected payload: %s", result.ForLLM)
	}
}

// A panicking tool is contained: the registry converts the panic into
// an error result so the tick loop survives.
func TestRegistryExecuteRecoversPanic(t *testing.T) {
	r := NewToolRegistry()
	r.Register(&stubTool{name: "boom", execute: func(ctx context.Context, args map[string]interface{}) *ToolResult {
		panic("checked too late")
	}})

	result := r.Execute(context.Background(), "boom", nil)
	if result == nil || !result.IsError {
		t.Fatal("expected an error result from panicking tool")
	}
	if !strings.Contains(result.ForLLM, "panicked") {
		t.Fatalf("unexpected payload: %s", result.ForLLM)
	}
}

// A tool returning nil is also converted into an error result.
func TestRegistryExecuteNilResult(t *testing.T) {
	r := NewToolRegistry()
	r.Register(&stubTool{name: "empty", execute: func(ctx context.Context, args map[string]interface{}) *ToolResult {
		return nil
	}})

	result := r.Execute(context.Background(), "empty", nil)
	if result == nil || !result.IsError {
		t.Fatal("expected an error result for nil tool result")
	}
}

// ResetTick fans out to every tool carrying a per-tick budget.
func TestRegistryResetTick(t *testing.T) {
	r := NewToolRegistry()
	a := &stubTool{name: "a"}
	b := &stubTool{name: "b"}
	r.Register(a)
	r.Register(b)

	r.ResetTick()
	r.ResetTick()

	if a.resets != 2 || b.resets != 2 {
		t.Fatalf("expected 2 resets each, got %d and %d", a.resets, b.resets)
	}
}

// Close reaches every ClosableTool exactly once.
func TestRegistryClose(t *testing.T) {
	r := NewToolRegistry()
	a := &stubTool{name: "a"}
	r.Register(a)

	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !a.closed {
		t.Fatal("expected tool to be closed")
	}
}

// Provider definitions come out flat and in stable name order.
func TestRegistryToProviderDefs(t *testing.T) {
	r := NewToolRegistry()
	r.Register(&stubTool{name: "zeta"})
	r.Register(&stubTool{name: "alpha"})

	defs := r.ToProviderDefs()
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Name != "alpha" || defs[1].Name != "zeta" {
		t.Fatalf("expected sorted order, got %s, %s", defs[0].Name, defs[1].Name)
	}
	if defs[0].Parameters == nil {
		t.Fatal("expected parameters to carry through")
	}
}

// Secret-looking argument values are redacted before logging,
// including inside nested maps.
func TestSanitizeToolArgs(t *testing.T) {
	args := map[string]interface{}{
		"query":   "weather",
		"api_key": "sk-12345",
		"nested": map[string]interface{}{
			"password": "hunter2",
			"plain":    "keep",
		},
	}

	sanitized := sanitizeToolArgs(args)
	if sanitized["api_key"] != "<redacted>" {
		t.Fatalf("api_key not redacted: %v", sanitized["api_key"])
	}
	if sanitized["query"] != "weather" {
		t.Fatalf("query should pass through: %v", sanitized["query"])
	}
	nested := sanitized["nested"].(map[string]interface{})
	if nested["password"] != "<redacted>" {
		t.Fatalf("nested password not redacted: %v", nested["password"])
	}
	if nested["plain"] != "keep" {
		t.Fatalf("nested plain value mangled: %v", nested["plain"])
	}
	// Original map is left untouched.
	if args["api_key"] != "sk-12345" {
		t.Fatal("sanitize must not mutate the input")
	}
}
