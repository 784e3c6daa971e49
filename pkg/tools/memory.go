package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lanternsoft/reverie/pkg/memory"
)

// MemoryTool exposes the vault to the model: one tool, closed action
// dispatch, flat arguments, JSON-string results. Failures come back as
// {"status":"error",...} payloads so a bad write never ends the tick.
type MemoryTool struct {
	vault        *memory.Vault
	index        *memory.Index // optional; nil disables semantic search
	defaultScope string
}

// NewMemoryTool wires the vault (and, when present, its semantic
// index) into a tool. defaultScope backs writes that omit scope.
func NewMemoryTool(vault *memory.Vault, index *memory.Index, defaultScope string) *MemoryTool {
	if defaultScope == "" {
		defaultScope = memory.ScopeShared
	}
	return &MemoryTool{vault: vault, index: index, defaultScope: defaultScope}
}

func (t *MemoryTool) Name() string { return "memory" }

func (t *MemoryTool) Description() string {
	return "Durable memory vault. Actions: add, remember, search, recall, get, update, delete, bulk_delete, list, stats, compact, rebuild_index, promote. Store stable facts and working registers, not tick chatter."
}

func (t *MemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"description": "one of: add, remember, search, recall, get, update, delete, bulk_delete, list, stats, compact, rebuild_index, promote",
			},
			"text":     map[string]interface{}{"type": "string", "description": "memory text (add/update/promote)"},
			"query":    map[string]interface{}{"type": "string", "description": "search query"},
			"id":       map[string]interface{}{"type": "string", "description": "memory id (get/update/delete/promote)"},
			"ids":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "ids for bulk_delete"},
			"scope":    map[string]interface{}{"type": "string"},
			"category": map[string]interface{}{"type": "string"},
			"tier":     map[string]interface{}{"type": "string", "description": "canon or register"},
			"topic_id": map[string]interface{}{"type": "string", "description": "register key; add/update with topic_id upserts"},
			"tags":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"top_k":    map[string]interface{}{"type": "integer", "description": "search result count, default 5"},
			"limit":    map[string]interface{}{"type": "integer", "description": "list cap, default 20"},
		},
		"required": []string{"action"},
	}
}

func (t *MemoryTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	action := strings.ToLower(argString(args, "action"))
	switch action {
	case "add", "remember":
		return t.add(ctx, args)
	case "search", "recall":
		return t.search(ctx, args)
	case "get":
		return t.get(args)
	case "update":
		return t.update(ctx, args)
	case "delete":
		return t.delete(args)
	case "bulk_delete":
		return t.bulkDelete(args)
	case "list":
		return t.list(args)
	case "stats":
		return t.stats()
	case "compact":
		return t.compact()
	case "rebuild_index":
		return t.rebuildIndex(ctx)
	case "promote":
		return t.promote(args)
	case "":
		return CodedErrorResult("validation", "action is required")
	default:
		return CodedErrorResult("validation", fmt.Sprintf("unknown memory action %q", action))
	}
}

func (t *MemoryTool) add(ctx context.Context, args map[string]interface{}) *ToolResult {
	req := memory.AddRequest{
		Text:     argString(args, "text"),
		Scope:    t.scopeArg(args),
		Category: argString(args, "category"),
		Tags:     argStringSlice(args, "tags"),
		Tier:     memory.Tier(argString(args, "tier")),
		TopicID:  argString(args, "topic_id"),
		Source:   memory.SourceTool,
	}

	// A topic key means upsert: the register for that key gets a new
	// version instead of the vault gaining a near-twin.
	if req.TopicID != "" {
		m, err := t.vault.UpdateByTopic(req.TopicID, req.Scope, req.Text, req.Category)
		if err != nil {
			return vaultErrorResult(err)
		}
		t.reindex(ctx, m)
		return JSONResult(map[string]interface{}{"status": "ok", "id": m.ID, "version": m.Version, "topic_id": m.TopicID})
	}

	m, err := t.vault.Add(req)
	if err != nil {
		return vaultErrorResult(err)
	}
	t.reindex(ctx, m)
	return JSONResult(map[string]interface{}{"status": "ok", "id": m.ID, "version": m.Version})
}

func (t *MemoryTool) search(ctx context.Context, args map[string]interface{}) *ToolResult {
	query := argString(args, "query")
	if query == "" {
		query = argString(args, "text")
	}
	if strings.TrimSpace(query) == "" {
		return CodedErrorResult("validation", "query is required")
	}
	topK := argInt(args, "top_k", 5)
	scope := argString(args, "scope")
	category := argString(args, "category")

	type hit struct {
		ID       string  `json:"id"`
		Text     string  `json:"text"`
		Tier     string  `json:"tier"`
		Category string  `json:"category"`
		TopicID  string  `json:"topic_id,omitempty"`
		Score    float64 `json:"score"`
	}
	var hits []hit

	if t.index != nil {
		results, err := t.index.Search(ctx, query, memory.SearchOptions{Scope: scope, Category: category, TopK: topK})
		if err != nil {
			return ErrorResult("search: " + err.Error()).WithError(err)
		}
		for _, r := range results {
			hits = append(hits, hit{
				ID: r.Memory.ID, Text: r.Memory.Text, Tier: string(r.Memory.Tier),
				Category: r.Memory.Category, TopicID: r.Memory.TopicID, Score: r.Score,
			})
		}
	} else {
		// No embedder wired: lexical fallback over the active set.
		results, err := t.vault.SearchLexical(query, scope, category, topK)
		if err != nil {
			return ErrorResult("search: " + err.Error()).WithError(err)
		}
		for _, r := range results {
			hits = append(hits, hit{
				ID: r.Memory.ID, Text: r.Memory.Text, Tier: string(r.Memory.Tier),
				Category: r.Memory.Category, TopicID: r.Memory.TopicID, Score: r.Score,
			})
		}
	}
	return JSONResult(map[string]interface{}{"status": "ok", "results": hits, "count": len(hits)})
}

func (t *MemoryTool) get(args map[string]interface{}) *ToolResult {
	id := argString(args, "id")
	if id == "" {
		return CodedErrorResult("validation", "id is required")
	}
	m, err := t.vault.Get(id)
	if err != nil {
		return vaultErrorResult(err)
	}
	return JSONResult(map[string]interface{}{"status": "ok", "memory": m})
}

func (t *MemoryTool) update(ctx context.Context, args map[string]interface{}) *ToolResult {
	id := argString(args, "id")
	topicID := argString(args, "topic_id")
	if id == "" && topicID != "" {
		m, err := t.vault.UpdateByTopic(topicID, t.scopeArg(args), argString(args, "text"), argString(args, "category"))
		if err != nil {
			return vaultErrorResult(err)
		}
		t.reindex(ctx, m)
		return JSONResult(map[string]interface{}{"status": "ok", "id": m.ID, "version": m.Version, "topic_id": m.TopicID})
	}
	if id == "" {
		return CodedErrorResult("validation", "id or topic_id is required")
	}

	req := memory.UpdateRequest{}
	if text := argString(args, "text"); text != "" {
		req.Text = &text
	}
	if category := argString(args, "category"); category != "" {
		req.Category = &category
	}
	if tags := argStringSlice(args, "tags"); tags != nil {
		req.Tags = tags
	}
	if tier := argString(args, "tier"); tier != "" {
		tierVal := memory.Tier(tier)
		req.Tier = &tierVal
	}
	if topicID != "" {
		req.TopicID = &topicID
	}

	m, err := t.vault.Update(id, req)
	if err != nil {
		return vaultErrorResult(err)
	}
	t.reindex(ctx, m)
	return JSONResult(map[string]interface{}{"status": "ok", "id": m.ID, "version": m.Version})
}

func (t *MemoryTool) delete(args map[string]interface{}) *ToolResult {
	id := argString(args, "id")
	if id == "" {
		return CodedErrorResult("validation", "id is required")
	}
	ok, err := t.vault.Delete(id)
	if err != nil {
		return vaultErrorResult(err)
	}
	if !ok {
		return CodedErrorResult("not_found", fmt.Sprintf("no active memory %q", id))
	}
	if t.index != nil {
		t.index.Remove(id)
	}
	return JSONResult(map[string]interface{}{"status": "ok", "deleted": id})
}

func (t *MemoryTool) bulkDelete(args map[string]interface{}) *ToolResult {
	ids := argStringSlice(args, "ids")
	if len(ids) == 0 {
		return CodedErrorResult("validation", "ids is required")
	}
	result, err := t.vault.BulkDelete(ids)
	if err != nil {
		return vaultErrorResult(err)
	}
	if t.index != nil {
		for _, id := range result.Deleted {
			t.index.Remove(id)
		}
	}
	return JSONResult(map[string]interface{}{"status": "ok", "deleted": result.Deleted, "not_found": result.NotFound})
}

func (t *MemoryTool) list(args map[string]interface{}) *ToolResult {
	active, err := t.vault.ReadActive()
	if err != nil {
		return vaultErrorResult(err)
	}
	scope := argString(args, "scope")
	category := argString(args, "category")
	tier := argString(args, "tier")
	limit := argInt(args, "limit", 20)

	var filtered []memory.Memory
	for _, m := range active {
		if scope != "" && m.Scope != scope {
			continue
		}
		if category != "" && m.Category != category {
			continue
		}
		if tier != "" && string(m.Tier) != tier {
			continue
		}
		filtered = append(filtered, m)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].CreatedAt > filtered[j].CreatedAt })
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return JSONResult(map[string]interface{}{"status": "ok", "memories": filtered, "count": len(filtered)})
}

func (t *MemoryTool) stats() *ToolResult {
	s, err := t.vault.Stats()
	if err != nil {
		return vaultErrorResult(err)
	}
	return JSONResult(map[string]interface{}{"status": "ok", "stats": s})
}

func (t *MemoryTool) compact() *ToolResult {
	res, err := t.vault.Compact()
	if err != nil {
		return vaultErrorResult(err)
	}
	return JSONResult(map[string]interface{}{"status": "ok", "compaction": res})
}

func (t *MemoryTool) rebuildIndex(ctx context.Context) *ToolResult {
	if t.index == nil {
		return CodedErrorResult("validation", "semantic index is not configured")
	}
	n, err := t.index.Rebuild(ctx)
	if err != nil {
		return ErrorResult("rebuild index: " + err.Error()).WithError(err)
	}
	return JSONResult(map[string]interface{}{"status": "ok", "indexed": n})
}

func (t *MemoryTool) promote(args map[string]interface{}) *ToolResult {
	id := argString(args, "id")
	if id == "" {
		return CodedErrorResult("validation", "id is required")
	}
	m, err := t.vault.PromoteToCanon(id, argString(args, "text"), argStringSlice(args, "tags"))
	if err != nil {
		return vaultErrorResult(err)
	}
	return JSONResult(map[string]interface{}{"status": "ok", "id": m.ID, "version": m.Version, "tier": m.Tier})
}

func (t *MemoryTool) scopeArg(args map[string]interface{}) string {
	if scope := argString(args, "scope"); scope != "" {
		return scope
	}
	return t.defaultScope
}

// reindex keeps the semantic layer warm after a write; an index
// failure only costs search freshness, so it is swallowed.
func (t *MemoryTool) reindex(ctx context.Context, m memory.Memory) {
	if t.index == nil {
		return
	}
	_ = t.index.Upsert(ctx, m)
}

// vaultErrorResult maps the vault error taxonomy onto coded payloads
// the model can act on.
func vaultErrorResult(err error) *ToolResult {
	var verr *memory.ValidationError
	var perr *memory.PIIError
	var derr *memory.DuplicateError
	var cerr *memory.CapacityError
	switch {
	case errors.As(err, &verr):
		return CodedErrorResult("validation", verr.Error()).WithError(err)
	case errors.As(err, &perr):
		return CodedErrorResult("pii", perr.Error()).WithError(err)
	case errors.As(err, &derr):
		return CodedErrorResult("duplicate", derr.Error()).WithError(err)
	case errors.As(err, &cerr):
		return CodedErrorResult("capacity", cerr.Error()).WithError(err)
	case errors.Is(err, memory.ErrNotFound):
		return CodedErrorResult("not_found", err.Error()).WithError(err)
	default:
		return ErrorResult(err.Error()).WithError(err)
	}
}

// --- argument helpers, shared by every tool ------------------------

func argString(args map[string]interface{}, key string) string {
	if args == nil {
		return ""
	}
	if s, ok := args[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func argInt(args map[string]interface{}, key string, fallback int) int {
	if args == nil {
		return fallback
	}
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func argStringSlice(args map[string]interface{}, key string) []string {
	if args == nil {
		return nil
	}
	switch v := args[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
