package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/lanternsoft/reverie/pkg/logger"
)

// RunBurst executes n ticks in sequence. A tick that fails in any way
// still yields an outcome and the burst moves on to the next index;
// nothing short of the process dying stops the loop early except the
// stop policy.
func (e *Executor) RunBurst(ctx context.Context, n int, stimulus string) BurstResult {
	if n <= 0 {
		n = 1
	}

	var wallClock time.Duration
	if e.Runner.WallClockSeconds > 0 {
		wallClock = time.Duration(e.Runner.WallClockSeconds) * time.Second
	}
	policy := NewStopPolicy(wallClock, 0)
	policy.Start(time.Now())

	result := BurstResult{Ticks: make([]TickOutcome, 0, n)}
	for i := 1; i <= n; i++ {
		outcome := e.runTickContained(ctx, i, n, stimulus, policy)
		result.Ticks = append(result.Ticks, outcome)
		result.Totals.Add(outcome.Metering)

		if reason, stop := policy.ShouldStop(time.Now()); stop {
			logger.InfoCF("runner", "burst stopped by policy", map[string]interface{}{"reason": reason, "after_tick": i})
			break
		}
	}

	logger.InfoCF("runner", "burst finished", map[string]interface{}{
		"ticks":      len(result.Ticks),
		"calls":      result.Totals.Calls,
		"tokens":     result.Totals.Usage.TotalTokens,
		"cost_usd":   result.Totals.Cost.TotalCost,
		"est_tokens": result.Totals.Usage.IsEstimated,
	})
	return result
}

// runTickContained is the catch-log-continue wrapper: RunTick already
// recovers its own panics, but a failure before the tick's own guard
// is armed must not take the burst down either.
func (e *Executor) runTickContained(ctx context.Context, tickIndex, totalTicks int, stimulus string, policy *StopPolicy) (outcome TickOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorCF("runner", "tick setup panicked", map[string]interface{}{"tick": tickIndex, "panic": fmt.Sprintf("%v", rec)})
			outcome.TickIndex = tickIndex
			outcome.StopReason = "panic"
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("tick panicked: %v", rec))
		}
	}()
	return e.RunTick(ctx, tickIndex, totalTicks, stimulus, policy)
}
