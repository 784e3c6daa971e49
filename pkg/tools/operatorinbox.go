package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lanternsoft/reverie/pkg/boundary"
)

// OperatorInboxTool lets the agent leave messages for the human
// operator in an append-only JSONL outbox, and file formal capability
// requests through the boundary recorder. Messages are never pushed
// anywhere; the operator reads the file on their own schedule.
type OperatorInboxTool struct {
	path     string
	recorder *boundary.Recorder
	profile  string

	mu        sync.Mutex
	tickIndex int
}

type operatorMessage struct {
	Kind      string `json:"kind"`
	Subject   string `json:"subject"`
	Body      string `json:"body,omitempty"`
	Profile   string `json:"profile,omitempty"`
	Timestamp string `json:"timestamp"`
}

func NewOperatorInboxTool(path string, recorder *boundary.Recorder, profile string) *OperatorInboxTool {
	return &OperatorInboxTool{path: path, recorder: recorder, profile: profile}
}

func (o *OperatorInboxTool) Name() string { return "operator_inbox" }

// SetTickIndex tags capability requests with the tick they came from.
func (o *OperatorInboxTool) SetTickIndex(idx int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tickIndex = idx
}

func (o *OperatorInboxTool) Description() string {
	return "Leave a note for the human operator. Actions: send, request_capability, list_sent."
}

func (o *OperatorInboxTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"description": "one of: send, request_capability, list_sent",
			},
			"subject": map[string]interface{}{"type": "string"},
			"body":    map[string]interface{}{"type": "string"},
			"capability": map[string]interface{}{
				"type":        "string",
				"description": "capability being requested, e.g. web_search or shell.exec",
			},
			"reason": map[string]interface{}{"type": "string", "description": "why the capability is needed"},
		},
		"required": []string{"action"},
	}
}

func (o *OperatorInboxTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	action := strings.ToLower(argString(args, "action"))
	switch action {
	case "send":
		return o.send(args)
	case "request_capability":
		return o.requestCapability(args)
	case "list_sent":
		return o.listSent(args)
	case "":
		return CodedErrorResult("validation", "action is required")
	default:
		return CodedErrorResult("validation", fmt.Sprintf("unknown operator_inbox action %q", action))
	}
}

func (o *OperatorInboxTool) send(args map[string]interface{}) *ToolResult {
	subject := argString(args, "subject")
	if subject == "" {
		return CodedErrorResult("validation", "subject is required")
	}
	msg := operatorMessage{
		Kind:      "message",
		Subject:   subject,
		Body:      argString(args, "body"),
		Profile:   o.profile,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := o.appendMessage(msg); err != nil {
		return ErrorResult("write outbox: " + err.Error()).WithError(err)
	}
	return JSONResult(map[string]interface{}{"status": "ok", "delivered": "outbox"})
}

func (o *OperatorInboxTool) requestCapability(args map[string]interface{}) *ToolResult {
	capability := argString(args, "capability")
	if capability == "" {
		return CodedErrorResult("validation", "capability is required")
	}
	reason := argString(args, "reason")
	o.mu.Lock()
	tick := o.tickIndex
	o.mu.Unlock()
	if o.recorder != nil {
		o.recorder.RecordRequest(o.profile, capability, reason, tick, nil)
	}
	msg := operatorMessage{
		Kind:      "capability_request",
		Subject:   "capability request: " + capability,
		Body:      reason,
		Profile:   o.profile,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := o.appendMessage(msg); err != nil {
		return ErrorResult("write outbox: " + err.Error()).WithError(err)
	}
	return JSONResult(map[string]interface{}{
		"status":     "ok",
		"capability": capability,
		"note":       "request recorded; the operator enables capabilities in the profile allow-list",
	})
}

func (o *OperatorInboxTool) listSent(args map[string]interface{}) *ToolResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := os.Open(o.path)
	if err != nil {
		if os.IsNotExist(err) {
			return JSONResult(map[string]interface{}{"status": "ok", "messages": []operatorMessage{}, "count": 0})
		}
		return ErrorResult("read outbox: " + err.Error()).WithError(err)
	}
	defer f.Close()

	limit := argInt(args, "limit", 20)
	msgs := []operatorMessage{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var m operatorMessage
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	if err := scanner.Err(); err != nil {
		return ErrorResult("read outbox: " + err.Error()).WithError(err)
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return JSONResult(map[string]interface{}{"status": "ok", "messages": msgs, "count": len(msgs)})
}

func (o *OperatorInboxTool) appendMessage(msg operatorMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if dir := filepath.Dir(o.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(o.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}
