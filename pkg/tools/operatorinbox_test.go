package tools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lanternsoft/reverie/pkg/boundary"
)

// send appends to the outbox and list_sent reads it back.
func TestOperatorInboxSendAndList(t *testing.T) {
	tool := NewOperatorInboxTool(filepath.Join(t.TempDir(), "outbox.jsonl"), nil, "default")
	ctx := context.Background()

	res := tool.Execute(ctx, map[string]interface{}{
		"action":  "send",
		"subject": "vault nearing capacity",
		"body":    "consider raising the ceiling or pruning registers",
	})
	if res.IsError {
		t.Fatalf("send failed: %s", res.ForLLM)
	}

	res = tool.Execute(ctx, map[string]interface{}{"action": "list_sent"})
	payload := decodeResult(t, res)
	if payload["count"].(float64) != 1 {
		t.Fatalf("expected 1 message, got %v", payload["count"])
	}
	msg := payload["messages"].([]interface{})[0].(map[string]interface{})
	if msg["subject"] != "vault nearing capacity" {
		t.Fatalf("unexpected subject: %v", msg["subject"])
	}
	if msg["kind"] != "message" {
		t.Fatalf("unexpected kind: %v", msg["kind"])
	}
}

// An empty outbox lists cleanly instead of erroring on the missing file.
func TestOperatorInboxListEmpty(t *testing.T) {
	tool := NewOperatorInboxTool(filepath.Join(t.TempDir(), "outbox.jsonl"), nil, "default")

	res := tool.Execute(context.Background(), map[string]interface{}{"action": "list_sent"})
	if res.IsError {
		t.Fatalf("list_sent failed: %s", res.ForLLM)
	}
	if payload := decodeResult(t, res); payload["count"].(float64) != 0 {
		t.Fatalf("expected 0 messages, got %v", payload["count"])
	}
}

// request_capability records through the boundary recorder and leaves
// a note in the outbox.
func TestOperatorInboxCapabilityRequest(t *testing.T) {
	dir := t.TempDir()
	recorder, err := boundary.NewRecorder(filepath.Join(dir, "boundary_events.jsonl"))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	tool := NewOperatorInboxTool(filepath.Join(dir, "outbox.jsonl"), recorder, "default")
	tool.SetTickIndex(3)

	res := tool.Execute(context.Background(), map[string]interface{}{
		"action":     "request_capability",
		"capability": "web_search",
		"reason":     "need fresh docs for the migration task",
	})
	if res.IsError {
		t.Fatalf("request_capability failed: %s", res.ForLLM)
	}

	events, err := recorder.ReadEvents()
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 boundary event, got %d", len(events))
	}
	if events[0].RequestedCapability != "web_search" {
		t.Fatalf("unexpected capability: %s", events[0].RequestedCapability)
	}
	if events[0].TickIndex != 3 {
		t.Fatalf("expected tick index 3, got %d", events[0].TickIndex)
	}

	res = tool.Execute(context.Background(), map[string]interface{}{"action": "list_sent"})
	payload := decodeResult(t, res)
	msg := payload["messages"].([]interface{})[0].(map[string]interface{})
	if msg["kind"] != "capability_request" {
		t.Fatalf("unexpected kind: %v", msg["kind"])
	}
}

// Missing required fields report validation.
func TestOperatorInboxValidation(t *testing.T) {
	tool := NewOperatorInboxTool(filepath.Join(t.TempDir(), "outbox.jsonl"), nil, "default")
	ctx := context.Background()

	res := tool.Execute(ctx, map[string]interface{}{"action": "send"})
	if payload := decodeResult(t, res); payload["code"] != "validation" {
		t.Fatalf("expected validation for missing subject, got %v", payload)
	}
	res = tool.Execute(ctx, map[string]interface{}{"action": "request_capability"})
	if payload := decodeResult(t, res); payload["code"] != "validation" {
		t.Fatalf("expected validation for missing capability, got %v", payload)
	}
}
