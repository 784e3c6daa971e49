package tools

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"
)

// RuntimeInfoTool reports the process's own execution context: tick
// position, profile, uptime, host facts. It also diffs against the
// previous call so the agent can notice changes between ticks without
// storing journal noise in the vault.
type RuntimeInfoTool struct {
	profile   string
	startedAt time.Time

	mu        sync.Mutex
	tickIndex int
	lastView  map[string]interface{}
}

func NewRuntimeInfoTool(profile string) *RuntimeInfoTool {
	return &RuntimeInfoTool{
		profile:   profile,
		startedAt: time.Now().UTC(),
	}
}

func (t *RuntimeInfoTool) Name() string { return "runtime_info" }

func (t *RuntimeInfoTool) Description() string {
	return "Inspect the current runtime: tick index, profile, uptime, host. Action 'diff' reports what changed since the previous call."
}

func (t *RuntimeInfoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"description": "snapshot (default) or diff",
			},
		},
	}
}

// SetTickIndex is called by the executor at each tick boundary.
func (t *RuntimeInfoTool) SetTickIndex(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tickIndex = i
}

func (t *RuntimeInfoTool) Execute(_ context.Context, args map[string]interface{}) *ToolResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	hostname, _ := os.Hostname()
	view := map[string]interface{}{
		"profile":        t.profile,
		"tick_index":     t.tickIndex,
		"uptime_seconds": int(time.Since(t.startedAt).Seconds()),
		"started_at":     t.startedAt.Format(time.RFC3339),
		"hostname":       hostname,
		"os":             runtime.GOOS,
		"arch":           runtime.GOARCH,
		"goroutines":     runtime.NumGoroutine(),
	}

	action := argString(args, "action")
	if action == "diff" {
		diff := diffViews(t.lastView, view)
		t.lastView = view
		return JSONResult(map[string]interface{}{"status": "ok", "changed": diff})
	}

	t.lastView = view
	return JSONResult(map[string]interface{}{"status": "ok", "runtime": view})
}

// diffViews reports keys whose value changed, with old and new.
// Volatile counters (uptime, goroutines) are skipped; they always
// change and say nothing.
func diffViews(prev, next map[string]interface{}) map[string]interface{} {
	diff := map[string]interface{}{}
	if prev == nil {
		return diff
	}
	skip := map[string]bool{"uptime_seconds": true, "goroutines": true}
	for key, newVal := range next {
		if skip[key] {
			continue
		}
		if oldVal, ok := prev[key]; !ok || oldVal != newVal {
			diff[key] = map[string]interface{}{"was": prev[key], "now": newVal}
		}
	}
	return diff
}
