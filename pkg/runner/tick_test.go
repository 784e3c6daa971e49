package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lanternsoft/reverie/pkg/boundary"
	"github.com/lanternsoft/reverie/pkg/config"
	"github.com/lanternsoft/reverie/pkg/memory"
	"github.com/lanternsoft/reverie/pkg/providers"
	"github.com/lanternsoft/reverie/pkg/tools"
)

// scriptedProvider replays canned responses in order. A nil entry
// simulates a provider failure.
type scriptedProvider struct {
	responses []*providers.LLMResponse
	calls     int
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []providers.Message, defs []providers.ToolDefinition, model string, options map[string]interface{}) (*providers.LLMResponse, error) {
	if p.calls >= len(p.responses) {
		return nil, fmt.Errorf("script exhausted after %d calls", p.calls)
	}
	resp := p.responses[p.calls]
	p.calls++
	if resp == nil {
		return nil, fmt.Errorf("provider unavailable")
	}
	return resp, nil
}

func (p *scriptedProvider) GetDefaultModel() string { return "scripted-model" }

func stepJSON(fields string) *providers.LLMResponse {
	return &providers.LLMResponse{
		Content: "{" + fields + "}",
		Usage:   &providers.UsageInfo{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "repeats its input" }
func (echoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (echoTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	return tools.NewToolResult(`{"status":"ok","echo":true}`)
}

func newTestExecutor(t *testing.T, provider providers.LLMProvider, allowed []string) *Executor {
	t.Helper()
	dir := t.TempDir()

	vault, err := memory.NewVault(memory.VaultConfig{Path: filepath.Join(dir, "vault.jsonl")})
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	recorder, err := boundary.NewRecorder(filepath.Join(dir, "boundary_events.jsonl"))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	registry := tools.NewToolRegistry()
	registry.Register(echoTool{})
	registry.Register(tools.NewMemoryTool(vault, nil, "shared"))

	return &Executor{
		Provider: provider,
		Registry: registry,
		Vault:    vault,
		Profile: &config.Profile{
			Name:         "default",
			AllowedTools: allowed,
			Scopes:       []string{"shared"},
		},
		Recorder: recorder,
		Runner: config.RunnerConfig{
			MaxStepsPerTick:  6,
			ToolCallsPerTick: 2,
		},
	}
}

// A scripted [think, stop("done")] tick consumes exactly two model
// calls, records the stop reason, and touches no tools.
func TestTickThinkThenStop(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		stepJSON(`"step_summary":"mulling it over","action":"think"`),
		stepJSON(`"step_summary":"nothing left to do","action":"stop","stop_reason":"done"`),
	}}
	e := newTestExecutor(t, provider, []string{"echo", "memory"})

	outcome := e.RunTick(context.Background(), 1, 1, "", nil)

	if outcome.StepsTaken != 2 {
		t.Fatalf("expected 2 steps, got %d", outcome.StepsTaken)
	}
	if outcome.StopReason != "done" {
		t.Fatalf("expected stop reason done, got %q", outcome.StopReason)
	}
	if outcome.ToolsUsed != 0 {
		t.Fatalf("expected no tool calls, got %d", outcome.ToolsUsed)
	}
	if len(outcome.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", outcome.Errors)
	}
}

// Three consecutive tool actions under a cap of 2 yield exactly two
// executions and a blocked error, in that order.
func TestTickToolCapEnforcement(t *testing.T) {
	toolStep := stepJSON(`"step_summary":"calling echo","action":"tool","tool_name":"echo","tool_args":{}`)
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		toolStep, toolStep, toolStep,
		stepJSON(`"step_summary":"wrapping up","action":"stop","stop_reason":"budget spent"`),
	}}
	e := newTestExecutor(t, provider, []string{"echo", "memory"})

	outcome := e.RunTick(context.Background(), 1, 1, "", nil)

	if outcome.ToolsUsed != 2 {
		t.Fatalf("expected exactly 2 tool uses, got %d", outcome.ToolsUsed)
	}
	blocked := false
	for _, msg := range outcome.Errors {
		if strings.Contains(msg, "tool call blocked") {
			blocked = true
		}
	}
	if !blocked {
		t.Fatalf("expected a blocked-call error, got %v", outcome.Errors)
	}
	if len(outcome.ToolActions) != 2 {
		t.Fatalf("expected 2 recorded tool actions, got %v", outcome.ToolActions)
	}
}

// A tool outside the allow-list is answered with a denial payload and
// an audit event; it never executes.
func TestTickDeniedTool(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		stepJSON(`"step_summary":"trying the shell","action":"tool","tool_name":"shell","tool_args":{"action":"exec"}`),
		stepJSON(`"step_summary":"fine","action":"stop","stop_reason":"gave up"`),
	}}
	e := newTestExecutor(t, provider, []string{"memory"})

	outcome := e.RunTick(context.Background(), 4, 5, "", nil)

	if outcome.ToolsUsed != 0 {
		t.Fatalf("denied tool must not count as used, got %d", outcome.ToolsUsed)
	}
	if len(outcome.ToolActions) != 1 || !strings.Contains(outcome.ToolActions[0], "denied") {
		t.Fatalf("expected a denied tool action, got %v", outcome.ToolActions)
	}

	events, err := e.Recorder.ReadEvents()
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 boundary event, got %d", len(events))
	}
	if events[0].RequestedCapability != "shell.exec" {
		t.Fatalf("unexpected capability: %s", events[0].RequestedCapability)
	}
	if events[0].TickIndex != 4 {
		t.Fatalf("expected tick index 4, got %d", events[0].TickIndex)
	}
	if events[0].DenialPayload == nil || events[0].DenialPayload.Error != "TOOL_NOT_ALLOWED" {
		t.Fatalf("expected a denial payload, got %+v", events[0].DenialPayload)
	}
}

// A model-call failure is recorded as a tick error and terminates the
// step loop without raising.
func TestTickModelErrorTerminates(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		stepJSON(`"step_summary":"ok so far","action":"think"`),
		nil, // provider failure
	}}
	e := newTestExecutor(t, provider, []string{"memory"})

	outcome := e.RunTick(context.Background(), 1, 1, "", nil)

	if outcome.StopReason != "model_error" {
		t.Fatalf("expected model_error, got %q", outcome.StopReason)
	}
	// The failed call produced no output and counts as no step.
	if outcome.StepsTaken != 1 {
		t.Fatalf("expected 1 step taken, got %d", outcome.StepsTaken)
	}
	if len(outcome.Errors) == 0 {
		t.Fatal("expected a recorded error")
	}
}

// Exhausting the step budget without an explicit stop ends the tick
// with max_steps and never makes more than max_steps calls.
func TestTickMaxStepsExhaustion(t *testing.T) {
	think := stepJSON(`"step_summary":"still thinking","action":"think"`)
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		think, think, think, think, think, think, think, think,
	}}
	e := newTestExecutor(t, provider, []string{"memory"})
	e.Runner.MaxStepsPerTick = 3

	outcome := e.RunTick(context.Background(), 1, 1, "", nil)

	if outcome.StepsTaken != 3 {
		t.Fatalf("expected 3 steps, got %d", outcome.StepsTaken)
	}
	if provider.calls != 3 {
		t.Fatalf("expected 3 model calls, got %d", provider.calls)
	}
	if outcome.StopReason != "max_steps" {
		t.Fatalf("expected max_steps, got %q", outcome.StopReason)
	}
}

// Proposed memories accumulate across steps and flush at tick end; a
// PII rejection skips that one memory without aborting the rest.
func TestTickMemoryFlush(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		stepJSON(`"step_summary":"noting facts","action":"think","proposed_memories":[{"text":"operator timezone is UTC+2","category":"bio"},{"text":"their password: hunter2","category":"bio"}]`),
		stepJSON(`"step_summary":"done","action":"stop","stop_reason":"done","proposed_memories":[{"text":"deploys are frozen on fridays","category":"ops","tier":"canon"}]`),
	}}
	e := newTestExecutor(t, provider, []string{"memory"})

	outcome := e.RunTick(context.Background(), 1, 1, "", nil)

	if outcome.MemoriesProposed != 3 {
		t.Fatalf("expected 3 proposed, got %d", outcome.MemoriesProposed)
	}
	if outcome.MemoriesWritten != 2 {
		t.Fatalf("expected 2 written, got %d", outcome.MemoriesWritten)
	}
	rejected := false
	for _, msg := range outcome.Errors {
		if strings.Contains(msg, "memory rejected") {
			rejected = true
		}
	}
	if !rejected {
		t.Fatalf("expected a rejection error, got %v", outcome.Errors)
	}

	active, err := e.Vault.ReadActive()
	if err != nil {
		t.Fatalf("read active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 stored memories, got %d", len(active))
	}
	for _, m := range active {
		if strings.Contains(m.Text, "hunter2") {
			t.Fatal("rejected text must never reach the vault")
		}
	}
}

// Unparseable model output downgrades to a think step; the tick keeps
// going instead of crashing.
func TestTickMalformedOutputFallsBackToThink(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		{Content: "I'll just answer in prose, hope that's fine."},
		stepJSON(`"step_summary":"ok","action":"stop","stop_reason":"done"`),
	}}
	e := newTestExecutor(t, provider, []string{"memory"})

	outcome := e.RunTick(context.Background(), 1, 1, "", nil)

	if outcome.StopReason != "done" {
		t.Fatalf("expected the tick to recover and stop, got %q", outcome.StopReason)
	}
	if outcome.StepsTaken != 2 {
		t.Fatalf("expected 2 steps, got %d", outcome.StepsTaken)
	}
}

// Metering accumulates provider-reported usage per call.
func TestTickMetering(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		stepJSON(`"step_summary":"a","action":"think"`),
		stepJSON(`"step_summary":"b","action":"stop","stop_reason":"done"`),
	}}
	e := newTestExecutor(t, provider, []string{"memory"})

	outcome := e.RunTick(context.Background(), 1, 1, "", nil)

	if outcome.Metering.Calls != 2 {
		t.Fatalf("expected 2 metered calls, got %d", outcome.Metering.Calls)
	}
	if outcome.Metering.Usage.TotalTokens != 30 {
		t.Fatalf("expected 30 total tokens, got %d", outcome.Metering.Usage.TotalTokens)
	}
	if outcome.Metering.Usage.IsEstimated {
		t.Fatal("provider-reported usage must not be flagged estimated")
	}
}

// inboxStub refuses with a budget-coded error once its own per-tick
// allowance is spent, like the task inbox does.
type inboxStub struct{ used, cap int }

func (s *inboxStub) Name() string        { return "task_inbox" }
func (s *inboxStub) Description() string { return "task queue stub" }
func (s *inboxStub) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (s *inboxStub) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	if s.used >= s.cap {
		return tools.CodedErrorResult("budget", "task_inbox allows 1 call per tick")
	}
	s.used++
	return tools.NewToolResult(`{"status":"ok"}`)
}

// A tool refusing on its own budget is recorded like a denial: it does
// not count as a use and does not spend a general-cap slot.
func TestTickToolBudgetRefusalDoesNotSpendCap(t *testing.T) {
	inboxStep := stepJSON(`"step_summary":"queueing","action":"tool","tool_name":"task_inbox","tool_args":{}`)
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		inboxStep, inboxStep,
		stepJSON(`"step_summary":"one echo still fits","action":"tool","tool_name":"echo","tool_args":{}`),
		stepJSON(`"step_summary":"done","action":"stop","stop_reason":"done"`),
	}}
	e := newTestExecutor(t, provider, []string{"task_inbox", "echo", "memory"})
	e.Registry.Register(&inboxStub{cap: 1})

	outcome := e.RunTick(context.Background(), 1, 1, "", nil)

	// First inbox call and the echo succeed; the refused second inbox
	// call must not have consumed the general cap of 2.
	if outcome.ToolsUsed != 2 {
		t.Fatalf("expected 2 tool uses, got %d (%v)", outcome.ToolsUsed, outcome.ToolActions)
	}
	wantActions := []string{"task_inbox", "task_inbox (budget)", "echo"}
	if len(outcome.ToolActions) != len(wantActions) {
		t.Fatalf("tool actions = %v, want %v", outcome.ToolActions, wantActions)
	}
	for i, want := range wantActions {
		if outcome.ToolActions[i] != want {
			t.Fatalf("tool action %d = %q, want %q", i, outcome.ToolActions[i], want)
		}
	}
	overBudget := false
	for _, msg := range outcome.Errors {
		if strings.Contains(msg, "over budget") {
			overBudget = true
		}
	}
	if !overBudget {
		t.Fatalf("expected an over-budget error, got %v", outcome.Errors)
	}
}
