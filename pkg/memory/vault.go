// Package memory implements the append-only memory vault: a JSONL fact
// store with versioned records, a PII write gate, duplicate detection,
// capacity accounting, and a rebuildable semantic index layered on top.
//
// Every write appends one line; the file is never edited in place
// except by Compact, which atomically replaces it with the active set.
// On read, each id resolves to its highest-version line.
package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lanternsoft/reverie/pkg/logger"
)

// Vault defaults. Thresholds are OR-ed: either one triggering rejects
// the write.
const (
	DefaultCapacity           = 600
	DefaultDuplicateThreshold = 0.85
	DefaultOverlapThreshold   = 0.70
)

// VaultConfig configures a Vault. Zero values fall back to defaults;
// Capacity < 0 disables the ceiling.
type VaultConfig struct {
	Path               string
	Capacity           int
	DuplicateThreshold float64
	OverlapThreshold   float64
}

// Vault is the append-only JSONL store. A single process may hold many
// readers; writes serialize through the internal mutex. Cross-process
// writers are out of scope.
type Vault struct {
	path               string
	capacity           int
	duplicateThreshold float64
	overlapThreshold   float64

	mu sync.Mutex
}

// NewVault opens (or creates the directory for) a vault at cfg.Path.
func NewVault(cfg VaultConfig) (*Vault, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("vault path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create vault dir: %w", err)
		}
	}
	capacity := cfg.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	dup := cfg.DuplicateThreshold
	if dup == 0 {
		dup = DefaultDuplicateThreshold
	}
	overlap := cfg.OverlapThreshold
	if overlap == 0 {
		overlap = DefaultOverlapThreshold
	}
	return &Vault{
		path:               cfg.Path,
		capacity:           capacity,
		duplicateThreshold: dup,
		overlapThreshold:   overlap,
	}, nil
}

// Path returns the vault file location.
func (v *Vault) Path() string { return v.path }

// AddRequest carries the fields for a new memory. Zero values default
// to tier=register, category=other, source=manual, scope=shared.
type AddRequest struct {
	Text     string
	Scope    string
	Category string
	Tags     []string
	Source   Source
	Tier     Tier
	TopicID  string
}

func (r *AddRequest) applyDefaults() {
	r.Text = strings.TrimSpace(r.Text)
	r.Scope = strings.ToLower(strings.TrimSpace(r.Scope))
	if r.Scope == "" {
		r.Scope = ScopeShared
	}
	r.Category = strings.ToLower(strings.TrimSpace(r.Category))
	if r.Category == "" {
		r.Category = "other"
	}
	if r.Source == "" {
		r.Source = SourceManual
	}
	if r.Tier == "" {
		r.Tier = TierRegister
	}
	r.Tier = Tier(strings.ToLower(string(r.Tier)))
}

// Add validates, gates, and appends a genuinely new record.
//
// Rejections, in order: empty or over-length text, log-tier or
// journal-only content, PII, near-duplicate in the same scope, and
// finally the capacity ceiling. A rejected write leaves no trace in
// the log.
func (v *Vault) Add(req AddRequest) (Memory, error) {
	req.applyDefaults()

	if err := v.gate(req.Text, req.Tier); err != nil {
		return Memory{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	active, err := v.readActiveLocked()
	if err != nil {
		return Memory{}, err
	}

	if id, score, dup := v.findDuplicate(req.Text, req.Scope, active); dup {
		return Memory{}, &DuplicateError{ExistingID: id, Score: score}
	}

	if v.capacity > 0 && len(active) >= v.capacity {
		logger.WarnCF("vault", "capacity ceiling reached", map[string]interface{}{
			"active":   len(active),
			"capacity": v.capacity,
		})
		return Memory{}, &CapacityError{Active: len(active), Ceiling: v.capacity}
	}

	mem := Memory{
		ID:        newMemoryID(),
		Version:   1,
		CreatedAt: nowISO(),
		Tier:      req.Tier,
		TopicID:   req.TopicID,
		Source:    req.Source,
		Scope:     req.Scope,
		Category:  req.Category,
		Tags:      req.Tags,
		Text:      req.Text,
	}
	if mem.Tags == nil {
		mem.Tags = []string{}
	}
	if err := v.appendLocked(mem); err != nil {
		return Memory{}, err
	}
	return mem, nil
}

// UpdateRequest carries optional field changes; nil pointers leave the
// current value untouched.
type UpdateRequest struct {
	Text     *string
	Category *string
	Tags     []string
	Tier     *Tier
	TopicID  *string
	Source   *Source
}

// Update appends a new version for id. Scope and created_at are
// immutable; source changes only when the request says so (promotion).
func (v *Vault) Update(id string, req UpdateRequest) (Memory, error) {
	if req.Text != nil {
		text := strings.TrimSpace(*req.Text)
		if text == "" {
			return Memory{}, &ValidationError{Reason: "text must not be empty"}
		}
		if len([]rune(text)) > MaxTextLength {
			return Memory{}, &ValidationError{Reason: fmt.Sprintf("text exceeds %d characters", MaxTextLength)}
		}
		if violations := CheckPII(text); len(violations) > 0 {
			return Memory{}, &PIIError{Violations: violations}
		}
		req.Text = &text
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	latest, err := v.resolveLatestLocked()
	if err != nil {
		return Memory{}, err
	}
	current, ok := latest[id]
	if !ok || !current.IsActive() {
		return Memory{}, fmt.Errorf("update %q: %w", id, ErrNotFound)
	}

	next := current
	next.Version++
	next.UpdatedAt = nowISO()
	if req.Text != nil {
		next.Text = *req.Text
	}
	if req.Category != nil {
		next.Category = strings.ToLower(strings.TrimSpace(*req.Category))
	}
	if req.Tags != nil {
		next.Tags = req.Tags
	}
	if req.Tier != nil {
		next.Tier = Tier(strings.ToLower(string(*req.Tier)))
		if next.Tier == TierLog {
			return Memory{}, &ValidationError{Reason: "tier 'log' never reaches the vault"}
		}
	}
	if req.TopicID != nil {
		next.TopicID = *req.TopicID
	}
	if req.Source != nil {
		next.Source = *req.Source
	}
	if err := v.appendLocked(next); err != nil {
		return Memory{}, err
	}
	return next, nil
}

// UpdateByTopic upserts the register record keyed by (scope, topic_id):
// a new version when one exists, otherwise a fresh register-tier add.
func (v *Vault) UpdateByTopic(topicID, scope, text, category string) (Memory, error) {
	scope = strings.ToLower(strings.TrimSpace(scope))
	if strings.TrimSpace(topicID) == "" {
		return Memory{}, &ValidationError{Reason: "topic_id is required"}
	}

	existing, err := v.findByTopic(topicID, scope)
	if err != nil {
		return Memory{}, err
	}
	if existing != nil {
		upd := UpdateRequest{Text: &text}
		if category != "" {
			upd.Category = &category
		}
		return v.Update(existing.ID, upd)
	}
	return v.Add(AddRequest{
		Text:     text,
		Scope:    scope,
		Category: category,
		Tier:     TierRegister,
		TopicID:  topicID,
	})
}

func (v *Vault) findByTopic(topicID, scope string) (*Memory, error) {
	active, err := v.ReadActive()
	if err != nil {
		return nil, err
	}
	for i := range active {
		m := active[i]
		if m.Tier == TierRegister && m.TopicID == topicID && m.Scope == scope {
			return &m, nil
		}
	}
	return nil, nil
}

// Delete appends a tombstone. Returns false when no active record
// exists for id.
func (v *Vault) Delete(id string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.deleteLocked(id, nowISO())
}

func (v *Vault) deleteLocked(id, stamp string) (bool, error) {
	latest, err := v.resolveLatestLocked()
	if err != nil {
		return false, err
	}
	current, ok := latest[id]
	if !ok || !current.IsActive() {
		return false, nil
	}
	tombstone := current
	tombstone.Version++
	tombstone.DeletedAt = stamp
	if err := v.appendLocked(tombstone); err != nil {
		return false, err
	}
	return true, nil
}

// BulkDeleteResult partitions requested ids by outcome.
type BulkDeleteResult struct {
	Deleted  []string `json:"deleted"`
	NotFound []string `json:"not_found"`
}

// BulkDelete tombstones each id that has an active record. It never
// fails on unknown ids; they land in NotFound.
func (v *Vault) BulkDelete(ids []string) (BulkDeleteResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	result := BulkDeleteResult{Deleted: []string{}, NotFound: []string{}}
	stamp := nowISO()
	for _, id := range ids {
		ok, err := v.deleteLocked(id, stamp)
		if err != nil {
			return result, err
		}
		if ok {
			result.Deleted = append(result.Deleted, id)
		} else {
			result.NotFound = append(result.NotFound, id)
		}
	}
	return result, nil
}

// Get returns the latest active version of id, or ErrNotFound.
func (v *Vault) Get(id string) (Memory, error) {
	latest, err := v.ResolveLatest()
	if err != nil {
		return Memory{}, err
	}
	m, ok := latest[id]
	if !ok || !m.IsActive() {
		return Memory{}, fmt.Errorf("get %q: %w", id, ErrNotFound)
	}
	return m, nil
}

// ReadAll returns every raw line: all versions, tombstones included.
func (v *Vault) ReadAll() ([]Memory, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.readAllLocked()
}

func (v *Vault) readAllLocked() ([]Memory, error) {
	f, err := os.Open(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open vault: %w", err)
	}
	defer f.Close()

	var records []Memory
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var m Memory
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			return nil, fmt.Errorf("parse vault line: %w", err)
		}
		if m.Tier == "" {
			m.Tier = TierCanon // records predating the tier field
		}
		records = append(records, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan vault: %w", err)
	}
	return records, nil
}

// ResolveLatest maps each id to its highest-version record. Ties go to
// the later line in the file; wall-clock fields are advisory only.
func (v *Vault) ResolveLatest() (map[string]Memory, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resolveLatestLocked()
}

func (v *Vault) resolveLatestLocked() (map[string]Memory, error) {
	records, err := v.readAllLocked()
	if err != nil {
		return nil, err
	}
	latest := make(map[string]Memory, len(records))
	for _, m := range records {
		prev, ok := latest[m.ID]
		if !ok || m.Version >= prev.Version {
			latest[m.ID] = m
		}
	}
	return latest, nil
}

// ReadActive returns the latest version of every non-deleted record.
func (v *Vault) ReadActive() ([]Memory, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.readActiveLocked()
}

func (v *Vault) readActiveLocked() ([]Memory, error) {
	latest, err := v.resolveLatestLocked()
	if err != nil {
		return nil, err
	}
	active := make([]Memory, 0, len(latest))
	for _, m := range latest {
		if m.IsActive() {
			active = append(active, m)
		}
	}
	return active, nil
}

// CompactResult reports what a compaction removed.
type CompactResult struct {
	LinesBefore  int `json:"lines_before"`
	LinesAfter   int `json:"lines_after"`
	LinesRemoved int `json:"lines_removed"`
}

// Compact rewrites the log to exactly the active latest-version
// records, sorted by (category, created_at) for deterministic diffing.
// The replacement is atomic: a temp file is renamed over the original,
// so a crash mid-compact cannot corrupt the log.
func (v *Vault) Compact() (CompactResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	all, err := v.readAllLocked()
	if err != nil {
		return CompactResult{}, err
	}
	active, err := v.readActiveLocked()
	if err != nil {
		return CompactResult{}, err
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].Category != active[j].Category {
			return active[i].Category < active[j].Category
		}
		return active[i].CreatedAt < active[j].CreatedAt
	})

	tmp := v.path + ".compact.tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return CompactResult{}, fmt.Errorf("create compact temp: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, m := range active {
		data, err := json.Marshal(m)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return CompactResult{}, fmt.Errorf("marshal record: %w", err)
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return CompactResult{}, fmt.Errorf("flush compact temp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return CompactResult{}, fmt.Errorf("close compact temp: %w", err)
	}
	if err := os.Rename(tmp, v.path); err != nil {
		os.Remove(tmp)
		return CompactResult{}, fmt.Errorf("replace vault: %w", err)
	}

	result := CompactResult{
		LinesBefore:  len(all),
		LinesAfter:   len(active),
		LinesRemoved: len(all) - len(active),
	}
	logger.InfoCF("vault", "compacted", map[string]interface{}{
		"before":  result.LinesBefore,
		"after":   result.LinesAfter,
		"removed": result.LinesRemoved,
	})
	return result, nil
}

// PromoteToCanon rewrites a record as durable canon state with
// source=promotion.
func (v *Vault) PromoteToCanon(id, newText string, tags []string) (Memory, error) {
	tier := TierCanon
	source := SourcePromotion
	req := UpdateRequest{Tier: &tier, Source: &source}
	if strings.TrimSpace(newText) != "" {
		req.Text = &newText
	}
	if tags != nil {
		req.Tags = tags
	}
	return v.Update(id, req)
}

// --- write gate -----------------------------------------------------

func (v *Vault) gate(text string, tier Tier) error {
	if text == "" {
		return &ValidationError{Reason: "text must not be empty"}
	}
	if len([]rune(text)) > MaxTextLength {
		return &ValidationError{Reason: fmt.Sprintf("text exceeds %d characters", MaxTextLength)}
	}
	if tier == TierLog {
		return &ValidationError{Reason: "tier 'log' is journal-only and never reaches the vault"}
	}
	if tier != TierCanon && tier != TierRegister {
		return &ValidationError{Reason: fmt.Sprintf("unknown tier %q", tier)}
	}
	if signal, ok := hasJournalOnlySignal(text); ok {
		return &ValidationError{Reason: fmt.Sprintf("journal-only signal %q; keep ephemeral notes out of the vault", signal)}
	}
	if violations := CheckPII(text); len(violations) > 0 {
		return &PIIError{Violations: violations}
	}
	return nil
}

// findDuplicate compares candidate text against every active record in
// the same scope. Either threshold alone is sufficient to reject.
// Identical text in a different scope is always allowed.
func (v *Vault) findDuplicate(text, scope string, active []Memory) (string, float64, bool) {
	for _, m := range active {
		if m.Scope != scope {
			continue
		}
		if overlap := tokenOverlap(text, m.Text); overlap >= v.overlapThreshold {
			return m.ID, overlap, true
		}
		if score := similarityScore(text, m.Text); score >= v.duplicateThreshold {
			return m.ID, score, true
		}
	}
	return "", 0, false
}

// --- internals ------------------------------------------------------

func (v *Vault) appendLocked(m Memory) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	f, err := os.OpenFile(v.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open vault for append: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append vault line: %w", err)
	}
	return nil
}

func newMemoryID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
