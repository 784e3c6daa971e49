package runner

import (
	"context"
	"testing"
	"time"

	"github.com/lanternsoft/reverie/pkg/providers"
)

// A burst keeps going past a tick whose model call fails, and still
// returns one outcome per tick index with aggregated metering.
func TestBurstContinuesPastFailingTick(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		// tick 1
		stepJSON(`"step_summary":"a","action":"think"`),
		stepJSON(`"step_summary":"b","action":"stop","stop_reason":"done"`),
		// tick 2: provider failure
		nil,
		// tick 3
		stepJSON(`"step_summary":"c","action":"stop","stop_reason":"done"`),
	}}
	e := newTestExecutor(t, provider, []string{"memory"})

	result := e.RunBurst(context.Background(), 3, "")

	if len(result.Ticks) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(result.Ticks))
	}
	for i, outcome := range result.Ticks {
		if outcome.TickIndex != i+1 {
			t.Fatalf("tick %d has index %d", i, outcome.TickIndex)
		}
	}
	if result.Ticks[1].StopReason != "model_error" {
		t.Fatalf("expected tick 2 to fail with model_error, got %q", result.Ticks[1].StopReason)
	}
	if len(result.Ticks[1].Errors) == 0 {
		t.Fatal("expected tick 2 to record an error")
	}
	if result.Ticks[2].StopReason != "done" {
		t.Fatalf("expected tick 3 to run normally, got %q", result.Ticks[2].StopReason)
	}
	// Only the 3 successful calls are metered.
	if result.Totals.Calls != 3 {
		t.Fatalf("expected 3 metered calls, got %d", result.Totals.Calls)
	}
	if result.Totals.Usage.TotalTokens != 45 {
		t.Fatalf("expected 45 total tokens, got %d", result.Totals.Usage.TotalTokens)
	}
}

// n <= 0 still runs one tick.
func TestBurstMinimumOneTick(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		stepJSON(`"step_summary":"a","action":"stop","stop_reason":"done"`),
	}}
	e := newTestExecutor(t, provider, []string{"memory"})

	result := e.RunBurst(context.Background(), 0, "")
	if len(result.Ticks) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(result.Ticks))
	}
}

// An expired wall-clock policy stops the tick at the first step
// boundary, before any model call is made.
func TestTickWallClockPolicy(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		stepJSON(`"step_summary":"never reached","action":"think"`),
	}}
	e := newTestExecutor(t, provider, []string{"memory"})

	policy := NewStopPolicy(time.Millisecond, 0)
	policy.Start(time.Now().Add(-time.Second))

	outcome := e.RunTick(context.Background(), 1, 1, "", policy)
	if outcome.StopReason != "wall_clock" {
		t.Fatalf("expected wall_clock, got %q", outcome.StopReason)
	}
	if outcome.StepsTaken != 0 {
		t.Fatalf("expected 0 steps, got %d", outcome.StepsTaken)
	}
	if provider.calls != 0 {
		t.Fatalf("no model call should have been made, got %d", provider.calls)
	}
}
