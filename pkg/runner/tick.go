package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lanternsoft/reverie/pkg/boundary"
	"github.com/lanternsoft/reverie/pkg/config"
	"github.com/lanternsoft/reverie/pkg/events"
	"github.com/lanternsoft/reverie/pkg/logger"
	"github.com/lanternsoft/reverie/pkg/memory"
	"github.com/lanternsoft/reverie/pkg/metering"
	"github.com/lanternsoft/reverie/pkg/providers"
	"github.com/lanternsoft/reverie/pkg/tools"
)

// Executor runs ticks for one profile against a shared vault and
// model. It is not safe for concurrent RunTick calls; ticks are
// strictly sequential because each tick's context depends on the
// previous tick's memory writes.
type Executor struct {
	Provider providers.LLMProvider
	Registry *tools.ToolRegistry
	Vault    *memory.Vault
	Index    *memory.Index // optional
	Profile  *config.Profile
	Recorder *boundary.Recorder
	Pricing  *metering.PricingTable // optional
	Stream   *events.Stream         // optional
	Runner   config.RunnerConfig
	Model    string
}

func (e *Executor) maxSteps() int {
	if e.Profile.MaxStepsPerTick > 0 {
		return e.Profile.MaxStepsPerTick
	}
	if e.Runner.MaxStepsPerTick > 0 {
		return e.Runner.MaxStepsPerTick
	}
	return 6
}

func (e *Executor) toolCap() int {
	if e.Profile.ToolCallsPerTick > 0 {
		return e.Profile.ToolCallsPerTick
	}
	if e.Runner.ToolCallsPerTick > 0 {
		return e.Runner.ToolCallsPerTick
	}
	return 2
}

func (e *Executor) model() string {
	if e.Model != "" {
		return e.Model
	}
	if e.Profile.Model != "" {
		return e.Profile.Model
	}
	return e.Provider.GetDefaultModel()
}

func (e *Executor) publish(event events.Event) {
	if e.Stream != nil {
		e.Stream.Publish(event)
	}
}

// RunTick executes one tick: up to maxSteps model calls, at most
// toolCap tool executions, then a memory flush. It never returns an
// error; everything that goes wrong lands in the outcome's error list.
func (e *Executor) RunTick(ctx context.Context, tickIndex, totalTicks int, stimulus string, policy *StopPolicy) (outcome TickOutcome) {
	outcome = TickOutcome{TickIndex: tickIndex}
	var proposed []ProposedMemory

	// The contract is an outcome object, always. A panic anywhere in
	// the step loop becomes a tick error, then the flush still runs.
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorCF("runner", "tick panicked", map[string]interface{}{"tick": tickIndex, "panic": fmt.Sprintf("%v", rec)})
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("tick panicked: %v", rec))
			if outcome.StopReason == "" {
				outcome.StopReason = "panic"
			}
			e.flushMemories(ctx, proposed, &outcome)
			e.publish(events.Event{Kind: events.KindTickFinished, TickIndex: tickIndex, Summary: outcome.StopReason, IsError: true})
		}
	}()

	e.Registry.ResetTick()
	if stateful, ok := e.tickIndexAware(); ok {
		stateful(tickIndex)
	}
	e.publish(events.Event{Kind: events.KindTickStarted, TickIndex: tickIndex, Summary: stimulus})

	builder := newPromptBuilder(e.Vault, e.Index, e.Profile, e.Registry.GetSummaries())
	messages := []providers.Message{
		{Role: providers.RoleSystem, Content: builder.Build(ctx, tickIndex, totalTicks, stimulus)},
		{Role: providers.RoleUser, Content: buildStimulusMessage(tickIndex, stimulus)},
	}

	maxSteps := e.maxSteps()
	toolCap := e.toolCap()
	model := e.model()

	for step := 0; step < maxSteps; step++ {
		if policy != nil {
			if reason, stop := policy.ShouldStop(time.Now()); stop {
				outcome.StopReason = reason
				break
			}
		}

		response, err := e.Provider.Chat(ctx, messages, nil, model, map[string]interface{}{
			"max_tokens":  4096,
			"temperature": 0.7,
		})
		if policy != nil {
			policy.NoteCall()
		}
		if err != nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("model call failed: %v", err))
			outcome.StopReason = "model_error"
			e.publish(events.Event{Kind: events.KindError, TickIndex: tickIndex, Step: step, Detail: err.Error(), IsError: true})
			break
		}
		// Only a call that produced output counts as a step taken.
		outcome.StepsTaken++
		e.meterCall(&outcome, model, messages, response)

		stepOut := ParseStepOutput(response.Content)
		proposed = append(proposed, stepOut.ProposedMemories...)
		e.publish(events.Event{Kind: events.KindStep, TickIndex: tickIndex, Step: step, Action: string(stepOut.Action), Summary: stepOut.StepSummary})

		messages = append(messages, providers.Message{Role: providers.RoleAssistant, Content: response.Content})

		switch stepOut.Action {
		case ActionStop:
			outcome.StopReason = stepOut.StopReason
			if outcome.StopReason == "" {
				outcome.StopReason = "stop"
			}
			outcome.OutcomeSummary = stepOut.StepSummary
		case ActionTool:
			feedback := e.runToolStep(ctx, tickIndex, step, stepOut, toolCap, &outcome)
			messages = append(messages, providers.Message{Role: providers.RoleUser, Content: feedback})
		default: // think
			messages = append(messages, providers.Message{Role: providers.RoleUser, Content: "Continue."})
		}

		if outcome.StopReason != "" {
			break
		}
	}

	if outcome.StopReason == "" {
		outcome.StopReason = "max_steps"
	}

	e.flushMemories(ctx, proposed, &outcome)
	e.publish(events.Event{Kind: events.KindTickFinished, TickIndex: tickIndex, Summary: outcome.StopReason})

	logger.InfoCF("runner", "tick finished", map[string]interface{}{
		"tick":        tickIndex,
		"steps":       outcome.StepsTaken,
		"tools":       outcome.ToolsUsed,
		"stop_reason": outcome.StopReason,
		"errors":      len(outcome.Errors),
		"mem_written": outcome.MemoriesWritten,
	})
	return outcome
}

// runToolStep applies the tool cap and the profile allow-list, then
// executes. Whatever happens, the return value is a usable "tool
// result" string fed back to the model.
func (e *Executor) runToolStep(ctx context.Context, tickIndex, step int, stepOut StepOutput, toolCap int, outcome *TickOutcome) string {
	name := strings.TrimSpace(stepOut.ToolName)
	if name == "" {
		outcome.Errors = append(outcome.Errors, "tool step without tool_name")
		return `TOOL RESULT: {"status":"error","code":"validation","message":"action was tool but tool_name was empty"}`
	}

	capability := name
	if action, ok := stepOut.ToolArgs["action"].(string); ok && strings.TrimSpace(action) != "" {
		capability = name + "." + strings.TrimSpace(action)
	}

	if outcome.ToolsUsed >= toolCap {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("tool call blocked: per-tick cap of %d reached (%s)", toolCap, capability))
		e.publish(events.Event{Kind: events.KindToolCall, TickIndex: tickIndex, Step: step, Tool: name, Action: capability, Detail: "blocked by tool cap", IsError: true})
		return fmt.Sprintf("TOOL RESULT (%s): call blocked, the per-tick tool budget of %d is spent. Plan with what you already have or stop.", capability, toolCap)
	}

	if !e.Profile.IsToolAllowed(capability) {
		denial := e.Recorder.RecordDenial(e.Profile.Name, capability, tickIndex, stepOut.ToolArgs)
		outcome.ToolActions = append(outcome.ToolActions, capability+" (denied)")
		e.publish(events.Event{Kind: events.KindDenial, TickIndex: tickIndex, Step: step, Tool: name, Action: capability, IsError: true})
		return fmt.Sprintf("TOOL RESULT (%s): %s", capability, denial.JSON())
	}

	result := e.Registry.Execute(ctx, name, stepOut.ToolArgs)

	payload := result.ForLLM
	if payload == "" && result.Err != nil {
		payload = result.Err.Error()
	}

	// A tool refusing on its own per-tick budget is a denial, not a
	// use: it must not spend a general-cap slot.
	if isBudgetPayload(payload) {
		outcome.ToolActions = append(outcome.ToolActions, capability+" (budget)")
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("tool %s over budget: %s", capability, payload))
		e.publish(events.Event{Kind: events.KindToolResult, TickIndex: tickIndex, Step: step, Tool: name, Action: capability, Detail: payload, IsError: true})
		return fmt.Sprintf("TOOL RESULT (%s): %s", capability, payload)
	}

	outcome.ToolsUsed++
	outcome.ToolActions = append(outcome.ToolActions, capability)
	if result.IsError {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("tool %s failed: %s", capability, payload))
	}
	e.publish(events.Event{Kind: events.KindToolResult, TickIndex: tickIndex, Step: step, Tool: name, Action: capability, Detail: payload, IsError: result.IsError})

	return fmt.Sprintf("TOOL RESULT (%s): %s", capability, payload)
}

// isBudgetPayload detects a tool's own budget refusal by its error
// code.
func isBudgetPayload(payload string) bool {
	var out struct {
		Status string `json:"status"`
		Code   string `json:"code"`
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return false
	}
	return out.Status == "error" && out.Code == "budget"
}

// flushMemories writes the tick's accumulated proposals. One rejected
// memory is one error entry; the rest of the batch still lands.
func (e *Executor) flushMemories(ctx context.Context, proposed []ProposedMemory, outcome *TickOutcome) {
	outcome.MemoriesProposed = len(proposed)
	for _, pm := range proposed {
		scope := pm.Scope
		if scope == "" {
			scope = e.Profile.PrimaryScope()
		}
		m, err := e.Vault.Add(memory.AddRequest{
			Text:     pm.Text,
			Scope:    scope,
			Category: pm.Category,
			Tags:     pm.Tags,
			Tier:     memory.Tier(pm.Tier),
			TopicID:  pm.TopicID,
			Source:   memory.SourceChat,
		})
		if err != nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("memory rejected: %v", err))
			continue
		}
		outcome.MemoriesWritten++
		if e.Index != nil {
			_ = e.Index.Upsert(ctx, m)
		}
	}
	if outcome.MemoriesProposed > 0 {
		e.publish(events.Event{
			Kind:      events.KindMemoryFlush,
			TickIndex: outcome.TickIndex,
			Summary:   fmt.Sprintf("%d/%d written", outcome.MemoriesWritten, outcome.MemoriesProposed),
		})
	}
}

// meterCall folds one model call into the tick's running totals.
func (e *Executor) meterCall(outcome *TickOutcome, model string, messages []providers.Message, response *providers.LLMResponse) {
	var promptTokens, completionTokens int
	if response.Usage != nil {
		promptTokens = response.Usage.PromptTokens
		completionTokens = response.Usage.CompletionTokens
	}
	var promptText strings.Builder
	for _, m := range messages {
		promptText.WriteString(m.Content)
	}
	outcome.Metering.Add(metering.Meter(model, promptTokens, completionTokens, promptText.String(), response.Content, e.Pricing))
}

// tickIndexAware finds registered tools that want the current tick
// index (the runtime_info snapshot and capability requests carry it).
func (e *Executor) tickIndexAware() (func(int), bool) {
	type tickIndexSetter interface{ SetTickIndex(int) }

	var setters []tickIndexSetter
	for _, name := range e.Registry.List() {
		if tool, ok := e.Registry.Get(name); ok {
			if s, ok := tool.(tickIndexSetter); ok {
				setters = append(setters, s)
			}
		}
	}
	if len(setters) == 0 {
		return nil, false
	}
	return func(idx int) {
		for _, s := range setters {
			s.SetTickIndex(idx)
		}
	}, true
}
