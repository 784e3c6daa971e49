// Package boundary handles capability denials: when the agent asks for
// a tool its profile does not allow, the request is answered with a
// deterministic denial payload and recorded as a structured event so an
// operator can review (and possibly grant) the capability later.
//
// Nothing in this package returns an error to the tick loop; a failed
// event write is logged and swallowed. A broken audit trail must not
// break the run.
package boundary

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lanternsoft/reverie/pkg/logger"
)

// Risk levels attached to boundary events.
const (
	RiskLow  = "low"
	RiskMed  = "med"
	RiskHigh = "high"
)

// riskByCapability classifies what the agent asked for. Lookup tries
// the full qualified name first, then the base tool name before the
// dot, then defaults to med: unknown requests deserve a second look.
var riskByCapability = map[string]string{
	"memory":                "low",
	"runtime_info":          "low",
	"task_inbox":            "low",
	"operator_inbox":        "low",
	"web_search":            "med",
	"http_request":          "med",
	"shell":                 "high",
	"shell.exec":            "high",
	"file_write":            "high",
	"send_email":            "high",
	"memory.bulk_delete":    "med",
	"task_inbox.close_task": "med",
}

// RiskLevel classifies a requested capability name.
func RiskLevel(capability string) string {
	if r, ok := riskByCapability[capability]; ok {
		return r
	}
	if base, _, found := strings.Cut(capability, "."); found {
		if r, ok := riskByCapability[base]; ok {
			return r
		}
	}
	return RiskMed
}

// ProposedLimits suggests the limits an operator could set when
// enabling a capability, keyed by the base tool name before the dot.
func ProposedLimits(capability string) map[string]any {
	base := capability
	if b, _, found := strings.Cut(capability, "."); found {
		base = b
	}
	switch base {
	case "web", "web_search":
		return map[string]any{"rate_limit": "5/min", "allowed_domains": []string{}, "max_response_bytes": 50_000}
	case "email", "send_email":
		return map[string]any{"rate_limit": "3/hour", "allowed_recipients": []string{}, "require_approval": true}
	case "filesystem", "file_write":
		return map[string]any{"allowed_paths": []string{}, "max_file_size_bytes": 1_000_000, "read_only": true}
	case "shell":
		return map[string]any{"allowed_commands": []string{}, "require_approval": true, "timeout_seconds": 10}
	case "http", "http_request":
		return map[string]any{"rate_limit": "10/min", "allowed_domains": []string{}, "max_response_bytes": 50_000}
	}
	return map[string]any{"note": "No predefined limits — configure per policy."}
}

// Denial is the payload returned to the model in place of a tool
// result. It is deterministic for a given tool and profile so repeated
// denials in a transcript are trivially comparable.
type Denial struct {
	Error       string `json:"error"`
	Tool        string `json:"tool"`
	HowToEnable string `json:"how_to_enable"`
}

// BuildDenial constructs the refusal for a disallowed tool.
func BuildDenial(tool, profile string) Denial {
	return Denial{
		Error:       "TOOL_NOT_ALLOWED",
		Tool:        tool,
		HowToEnable: "profiles/" + profile + ".yaml -> allowed_tools",
	}
}

// JSON renders the denial as the string handed back to the model.
func (d Denial) JSON() string {
	data, _ := json.Marshal(d)
	return string(data)
}

// Event is one boundary request, recorded whether or not anyone is
// watching.
type Event struct {
	Type                string         `json:"type"`
	Profile             string         `json:"profile"`
	TickIndex           int            `json:"tick_index"`
	RequestedCapability string         `json:"requested_capability"`
	Reason              string         `json:"reason"`
	RiskLevel           string         `json:"risk_level"`
	ProposedLimits      map[string]any `json:"proposed_limits,omitempty"`
	Timestamp           string         `json:"timestamp"`
	ToolArgs            map[string]any `json:"tool_args,omitempty"`
	DenialPayload       *Denial        `json:"denial_payload,omitempty"`
}

// Recorder appends boundary events to a JSONL file.
type Recorder struct {
	path string
	mu   sync.Mutex
}

// NewRecorder creates a recorder writing to path, creating parent
// directories as needed.
func NewRecorder(path string) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Recorder{path: path}, nil
}

// Path returns the event log location.
func (r *Recorder) Path() string { return r.path }

// RecordDenial builds, logs, and appends the event for a denied tool
// request, returning the denial the caller hands to the model. Write
// failures are logged, never returned.
func (r *Recorder) RecordDenial(profile, tool string, tickIndex int, toolArgs map[string]any) Denial {
	denial := BuildDenial(tool, profile)
	event := Event{
		Type:                "boundary_request",
		Profile:             profile,
		TickIndex:           tickIndex,
		RequestedCapability: tool,
		Reason:              "tool not in profile allow-list",
		RiskLevel:           RiskLevel(tool),
		ProposedLimits:      ProposedLimits(tool),
		Timestamp:           time.Now().UTC().Format(time.RFC3339),
		ToolArgs:            toolArgs,
		DenialPayload:       &denial,
	}
	r.append(event)
	logger.WarnCF("boundary", "tool request denied", map[string]interface{}{
		"tool":    tool,
		"profile": profile,
		"risk":    event.RiskLevel,
		"tick":    tickIndex,
	})
	return denial
}

// RecordRequest appends a non-denial boundary event, e.g. the agent
// explicitly asking for a capability via the operator inbox.
func (r *Recorder) RecordRequest(profile, capability, reason string, tickIndex int, proposedLimits map[string]any) {
	if proposedLimits == nil {
		proposedLimits = ProposedLimits(capability)
	}
	r.append(Event{
		Type:                "boundary_request",
		Profile:             profile,
		TickIndex:           tickIndex,
		RequestedCapability: capability,
		Reason:              reason,
		RiskLevel:           RiskLevel(capability),
		ProposedLimits:      proposedLimits,
		Timestamp:           time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Recorder) append(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.ErrorCF("boundary", "marshal event failed", map[string]interface{}{"error": err.Error()})
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.ErrorCF("boundary", "open event log failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		logger.ErrorCF("boundary", "append event failed", map[string]interface{}{"error": err.Error()})
	}
}

// ReadEvents loads every recorded event, oldest first. Missing file
// means no events yet.
func (r *Recorder) ReadEvents() ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var events []Event
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue // a torn write must not hide the rest
		}
		events = append(events, e)
	}
	return events, nil
}
