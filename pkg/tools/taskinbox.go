package tools

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lanternsoft/reverie/pkg/logger"
)

// TaskInboxTool is the shared work queue between agents and the
// operator, backed by sqlite. The executor enforces a hard 1-per-tick
// budget on top of the general tool cap: the inbox is for deliberate
// coordination, not a scratchpad the agent polls in a loop.
type TaskInboxTool struct {
	db *sql.DB

	mu       sync.Mutex
	tickUsed int
	perTick  int
}

const taskSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'open',
	created_by  TEXT NOT NULL DEFAULT '',
	assigned_to TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
`

// NewTaskInboxTool opens (creating if needed) the task database.
// perTick <= 0 means the default budget of 1.
func NewTaskInboxTool(dbPath string, perTick int) (*TaskInboxTool, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create task db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open task db: %w", err)
	}
	if _, err := db.Exec(taskSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init task schema: %w", err)
	}
	if perTick <= 0 {
		perTick = 1
	}
	return &TaskInboxTool{db: db, perTick: perTick}, nil
}

func (t *TaskInboxTool) Name() string { return "task_inbox" }

func (t *TaskInboxTool) Description() string {
	return "Shared task queue. Actions: add_task, list_tasks, claim_task, close_task. Budget: one call per tick."
}

func (t *TaskInboxTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"description": "one of: add_task, list_tasks, claim_task, close_task",
			},
			"title":  map[string]interface{}{"type": "string"},
			"detail": map[string]interface{}{"type": "string"},
			"id":     map[string]interface{}{"type": "string", "description": "task id (claim_task/close_task)"},
			"status": map[string]interface{}{"type": "string", "description": "list filter: open, claimed, done (default open)"},
			"agent":  map[string]interface{}{"type": "string", "description": "acting agent name"},
		},
		"required": []string{"action"},
	}
}

// ResetTick restores the per-tick budget; the executor calls this at
// every tick boundary.
func (t *TaskInboxTool) ResetTick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tickUsed = 0
}

// Close releases the database handle.
func (t *TaskInboxTool) Close() error { return t.db.Close() }

type taskRow struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Detail     string `json:"detail,omitempty"`
	Status     string `json:"status"`
	CreatedBy  string `json:"created_by,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func (t *TaskInboxTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	t.mu.Lock()
	if t.tickUsed >= t.perTick {
		t.mu.Unlock()
		logger.WarnCF("task_inbox", "per-tick budget exhausted", map[string]interface{}{"per_tick": t.perTick})
		return CodedErrorResult("budget", fmt.Sprintf("task_inbox budget of %d per tick exhausted; try next tick", t.perTick))
	}
	t.tickUsed++
	t.mu.Unlock()

	action := strings.ToLower(argString(args, "action"))
	switch action {
	case "add_task":
		return t.addTask(ctx, args)
	case "list_tasks":
		return t.listTasks(ctx, args)
	case "claim_task":
		return t.setStatus(ctx, args, "claimed")
	case "close_task":
		return t.setStatus(ctx, args, "done")
	case "":
		return CodedErrorResult("validation", "action is required")
	default:
		return CodedErrorResult("validation", fmt.Sprintf("unknown task_inbox action %q", action))
	}
}

func (t *TaskInboxTool) addTask(ctx context.Context, args map[string]interface{}) *ToolResult {
	title := argString(args, "title")
	if title == "" {
		return CodedErrorResult("validation", "title is required")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, detail, status, created_by, created_at, updated_at) VALUES (?, ?, ?, 'open', ?, ?, ?)`,
		id, title, argString(args, "detail"), argString(args, "agent"), now, now,
	)
	if err != nil {
		return ErrorResult("add task: " + err.Error()).WithError(err)
	}
	return JSONResult(map[string]interface{}{"status": "ok", "task_id": id})
}

func (t *TaskInboxTool) listTasks(ctx context.Context, args map[string]interface{}) *ToolResult {
	status := argString(args, "status")
	if status == "" {
		status = "open"
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, title, detail, status, created_by, assigned_to, created_at, updated_at
		 FROM tasks WHERE status = ? ORDER BY created_at ASC LIMIT 50`, status)
	if err != nil {
		return ErrorResult("list tasks: " + err.Error()).WithError(err)
	}
	defer rows.Close()

	tasks := []taskRow{}
	for rows.Next() {
		var row taskRow
		if err := rows.Scan(&row.ID, &row.Title, &row.Detail, &row.Status, &row.CreatedBy, &row.AssignedTo, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return ErrorResult("scan task: " + err.Error()).WithError(err)
		}
		tasks = append(tasks, row)
	}
	if err := rows.Err(); err != nil {
		return ErrorResult("list tasks: " + err.Error()).WithError(err)
	}
	return JSONResult(map[string]interface{}{"status": "ok", "tasks": tasks, "count": len(tasks)})
}

func (t *TaskInboxTool) setStatus(ctx context.Context, args map[string]interface{}, status string) *ToolResult {
	id := argString(args, "id")
	if id == "" {
		return CodedErrorResult("validation", "id is required")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := t.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, assigned_to = ?, updated_at = ? WHERE id = ?`,
		status, argString(args, "agent"), now, id)
	if err != nil {
		return ErrorResult("update task: " + err.Error()).WithError(err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return CodedErrorResult("not_found", fmt.Sprintf("no task %q", id))
	}
	return JSONResult(map[string]interface{}{"status": "ok", "task_id": id, "task_status": status})
}
