package memory

import (
	"strings"
	"time"
)

// Tier classifies the lifecycle of a memory record.
//
//	TierCanon    durable invariants: identity, mission, hard constraints.
//	TierRegister mutable state keyed by topic_id; latest version wins.
//	TierLog      ephemeral events. Never stored — the write gate rejects it.
type Tier string

const (
	TierCanon    Tier = "canon"
	TierRegister Tier = "register"
	TierLog      Tier = "log"
)

// Source records where a memory came from.
type Source string

const (
	SourceChat      Source = "chat"
	SourceManual    Source = "manual"
	SourceTool      Source = "tool"
	SourceOperator  Source = "operator"
	SourcePromotion Source = "promotion"
)

// ScopeShared is visible to every agent; any other scope is agent-private.
const ScopeShared = "shared"

// MaxTextLength bounds a single record's text, in characters.
const MaxTextLength = 1200

// journalOnlySignals are phrases that almost always mark ephemeral,
// journal-only content. The write gate rejects text containing any of
// them regardless of the requested tier.
var journalOnlySignals = []string{
	"tick marker",
	"runtime snapshot",
	"check-in",
	"heartbeat",
	"no changes",
	"nothing to report",
	"status unchanged",
	"routine scan",
	"ephemeral",
}

// Memory is a single fact record in the vault. The id is stable across
// versions; every mutation appends a new line with a higher version.
type Memory struct {
	ID        string   `json:"id"`
	Version   int      `json:"version"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at,omitempty"`
	Tier      Tier     `json:"tier"`
	TopicID   string   `json:"topic_id,omitempty"`
	Source    Source   `json:"source"`
	Scope     string   `json:"scope"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
	DeletedAt string   `json:"deleted_at,omitempty"`
	Text      string   `json:"text"`
}

// IsActive reports whether the record is not tombstoned.
func (m Memory) IsActive() bool { return m.DeletedAt == "" }

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func hasJournalOnlySignal(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, signal := range journalOnlySignals {
		if strings.Contains(lower, signal) {
			return signal, true
		}
	}
	return "", false
}
