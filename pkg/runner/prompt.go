package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/lanternsoft/reverie/pkg/config"
	"github.com/lanternsoft/reverie/pkg/logger"
	"github.com/lanternsoft/reverie/pkg/memory"
)

const stepProtocol = `Respond to every step with a single JSON object, nothing else:
{
  "step_summary": "one sentence on what you did or decided",
  "action": "think | tool | stop",
  "tool_name": "tool to call (action=tool only)",
  "tool_args": {"action": "...", "...": "..."},
  "proposed_memories": [{"text": "...", "category": "...", "tier": "canon|register", "topic_id": "..."}],
  "stop_reason": "why you are done (action=stop only)"
}
Rules:
- One tool call per step at most. Tool results arrive in the next message.
- Propose memories for durable facts only; never for step-by-step chatter.
- Stop as soon as your objective for this tick is met.`

// promptBuilder assembles the system prompt for a tick: profile
// persona, available tools, the step protocol, and an injected memory
// block. It is built fresh per tick so memory is always current.
type promptBuilder struct {
	vault     *memory.Vault
	index     *memory.Index
	profile   *config.Profile
	summaries []string
}

func newPromptBuilder(vault *memory.Vault, index *memory.Index, profile *config.Profile, toolSummaries []string) *promptBuilder {
	return &promptBuilder{vault: vault, index: index, profile: profile, summaries: toolSummaries}
}

// Build renders the full system prompt for tickIndex of totalTicks.
func (b *promptBuilder) Build(ctx context.Context, tickIndex, totalTicks int, stimulus string) string {
	var sb strings.Builder

	sb.WriteString("You are an autonomous agent running under the ")
	sb.WriteString(b.profile.Name)
	sb.WriteString(" profile.")
	if b.profile.Description != "" {
		sb.WriteString(" ")
		sb.WriteString(b.profile.Description)
	}
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "This is tick %d of %d in the current burst. You work in bounded steps; budget them.\n\n", tickIndex, totalTicks)

	if len(b.summaries) > 0 {
		sb.WriteString("## Available Tools\n")
		for _, s := range b.summaries {
			sb.WriteString(s)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Step Protocol\n")
	sb.WriteString(stepProtocol)
	sb.WriteString("\n\n")

	if block := b.memoryBlock(ctx, stimulus); block != "" {
		sb.WriteString(block)
		sb.WriteString("\n")
	}

	return sb.String()
}

const semanticRecallTopK = 6

// memoryBlock injects stored memory. With a stimulus present, semantic
// recall finds the records that bear on it; otherwise the full tiered
// snapshot goes in so standing objectives stay visible.
func (b *promptBuilder) memoryBlock(ctx context.Context, stimulus string) string {
	scope := b.profile.PrimaryScope()

	if stimulus != "" && b.index != nil {
		results, err := b.index.Search(ctx, stimulus, memory.SearchOptions{Scope: scope, TopK: semanticRecallTopK})
		if err != nil {
			logger.WarnCF("runner", "semantic recall failed, falling back to snapshot", map[string]interface{}{"error": err.Error()})
		} else if len(results) > 0 {
			var sb strings.Builder
			sb.WriteString("## Relevant Memories\n")
			for _, r := range results {
				fmt.Fprintf(&sb, "- [%s/%s] %s\n", r.Memory.Tier, r.Memory.Category, r.Memory.Text)
			}
			return sb.String()
		}
	}

	snapshot, err := b.vault.BuildSnapshot(scope)
	if err != nil {
		logger.WarnCF("runner", "memory snapshot failed", map[string]interface{}{"error": err.Error()})
		return ""
	}
	return snapshot
}

// buildStimulusMessage is the user-role opener for a tick.
func buildStimulusMessage(tickIndex int, stimulus string) string {
	if stimulus != "" {
		return fmt.Sprintf("Tick %d begins. Stimulus: %s", tickIndex, stimulus)
	}
	return fmt.Sprintf("Tick %d begins. No external stimulus; pursue your standing objectives from memory.", tickIndex)
}
