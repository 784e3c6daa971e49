// Package runner drives autonomous execution: a tick is one bounded
// step loop against the model, a burst is N ticks in sequence. Every
// failure mode is contained inside the tick that caused it; the only
// thing a caller ever receives is an outcome object.
package runner

import (
	"encoding/json"
	"strings"

	"github.com/lanternsoft/reverie/pkg/metering"
)

// StepAction is what the model chose to do with a step.
type StepAction string

const (
	ActionThink StepAction = "think"
	ActionTool  StepAction = "tool"
	ActionStop  StepAction = "stop"
)

// ProposedMemory is a vault write the model suggested during a step.
// Writes are deferred to tick end so a failing step never leaves a
// half-flushed tick behind.
type ProposedMemory struct {
	Text     string   `json:"text"`
	Scope    string   `json:"scope,omitempty"`
	Category string   `json:"category,omitempty"`
	Tier     string   `json:"tier,omitempty"`
	TopicID  string   `json:"topic_id,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// StepOutput is the structured reply the model returns each step.
type StepOutput struct {
	StepSummary      string                 `json:"step_summary"`
	Action           StepAction             `json:"action"`
	ToolName         string                 `json:"tool_name,omitempty"`
	ToolArgs         map[string]interface{} `json:"tool_args,omitempty"`
	ProposedMemories []ProposedMemory       `json:"proposed_memories,omitempty"`
	StopReason       string                 `json:"stop_reason,omitempty"`
}

const rawSummaryLimit = 400

// ParseStepOutput decodes a model reply into a StepOutput. Replies
// wrapped in markdown code fences are unwrapped first. Anything that
// still fails to decode, or decodes to an unknown action, degrades to
// a think step carrying the truncated raw text; malformed output must
// never end a tick.
func ParseStepOutput(raw string) StepOutput {
	text := stripCodeFence(raw)

	var out StepOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return thinkFallback(raw)
	}
	out.Action = StepAction(strings.ToLower(strings.TrimSpace(string(out.Action))))
	switch out.Action {
	case ActionThink, ActionTool, ActionStop:
		return out
	default:
		return thinkFallback(raw)
	}
}

func thinkFallback(raw string) StepOutput {
	summary := strings.TrimSpace(raw)
	if len([]rune(summary)) > rawSummaryLimit {
		summary = string([]rune(summary)[:rawSummaryLimit])
	}
	return StepOutput{Action: ActionThink, StepSummary: summary}
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		text = text[idx+1:] // drop the language tag line
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// TickOutcome summarizes one tick. A tick always produces one of
// these, whatever went wrong inside it.
type TickOutcome struct {
	TickIndex        int               `json:"tick_index"`
	StepsTaken       int               `json:"steps_taken"`
	ToolsUsed        int               `json:"tools_used"`
	ToolActions      []string          `json:"tool_actions,omitempty"`
	Errors           []string          `json:"errors,omitempty"`
	StopReason       string            `json:"stop_reason"`
	OutcomeSummary   string            `json:"outcome_summary,omitempty"`
	MemoriesProposed int               `json:"memories_proposed"`
	MemoriesWritten  int               `json:"memories_written"`
	Metering         metering.Metering `json:"metering"`
}

// BurstResult is the full record of a burst: one outcome per tick plus
// aggregated metering.
type BurstResult struct {
	Ticks  []TickOutcome     `json:"ticks"`
	Totals metering.Metering `json:"totals"`
}
