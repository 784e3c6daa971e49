package memory

import (
	"fmt"
	"sort"
	"strings"
)

// ConsolidationCandidate is a pair of active records whose texts are
// similar enough to be worth merging by an operator or the agent.
type ConsolidationCandidate struct {
	FirstID  string  `json:"first_id"`
	SecondID string  `json:"second_id"`
	Score    float64 `json:"score"`
	First    string  `json:"first_text"`
	Second   string  `json:"second_text"`
}

// FindConsolidationCandidates scores every active pair within scope
// and returns those at or above floor, highest first. Pairs never
// cross scopes. O(n^2) over the active set; the capacity ceiling keeps
// that tractable.
func (v *Vault) FindConsolidationCandidates(scope string, floor float64) ([]ConsolidationCandidate, error) {
	active, err := v.ReadActive()
	if err != nil {
		return nil, err
	}
	scope = strings.ToLower(strings.TrimSpace(scope))
	var pool []Memory
	for _, m := range active {
		if scope == "" || m.Scope == scope {
			pool = append(pool, m)
		}
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].CreatedAt < pool[j].CreatedAt })

	var out []ConsolidationCandidate
	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			if pool[i].Scope != pool[j].Scope {
				continue
			}
			score := similarityScore(pool[i].Text, pool[j].Text)
			if score >= floor {
				out = append(out, ConsolidationCandidate{
					FirstID:  pool[i].ID,
					SecondID: pool[j].ID,
					Score:    score,
					First:    pool[i].Text,
					Second:   pool[j].Text,
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// DeletionProposal flags a record that looks like noise. Proposals are
// advisory; nothing is deleted until an operator or the agent acts.
type DeletionProposal struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
	Text   string `json:"text"`
}

const shortRegisterCutoff = 40

// ProposeDeletions returns prune candidates: short register notes with
// no topic key, which tend to be drive-by observations nobody
// maintains.
func (v *Vault) ProposeDeletions(scope string) ([]DeletionProposal, error) {
	active, err := v.ReadActive()
	if err != nil {
		return nil, err
	}
	scope = strings.ToLower(strings.TrimSpace(scope))

	var out []DeletionProposal
	for _, m := range active {
		if scope != "" && m.Scope != scope {
			continue
		}
		if m.Tier == TierRegister && m.TopicID == "" && len([]rune(m.Text)) < shortRegisterCutoff {
			out = append(out, DeletionProposal{
				ID:     m.ID,
				Reason: fmt.Sprintf("short register note (<%d chars) without a topic key", shortRegisterCutoff),
				Text:   m.Text,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Stats summarizes vault health for the status surface.
type Stats struct {
	Active         int            `json:"active"`
	Deleted        int            `json:"deleted"`
	RawLines       int            `json:"raw_lines"`
	Capacity       int            `json:"capacity"`
	UtilizationPct float64        `json:"utilization_pct"`
	ByTier         map[string]int `json:"by_tier"`
	ByScope        map[string]int `json:"by_scope"`
	ByCategory     map[string]int `json:"by_category"`
	RegisterTopics int            `json:"register_topics"`
	CompactSavings int            `json:"compact_savings"`
	BloatRatio     float64        `json:"bloat_ratio"`
}

// Stats reports counts over the raw log and the resolved active set.
// CompactSavings is the number of lines a Compact would remove.
func (v *Vault) Stats() (Stats, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	all, err := v.readAllLocked()
	if err != nil {
		return Stats{}, err
	}
	latest, err := v.resolveLatestLocked()
	if err != nil {
		return Stats{}, err
	}

	s := Stats{
		RawLines:   len(all),
		Capacity:   v.capacity,
		ByTier:     map[string]int{},
		ByScope:    map[string]int{},
		ByCategory: map[string]int{},
	}
	topics := map[string]struct{}{}
	for _, m := range latest {
		if !m.IsActive() {
			s.Deleted++
			continue
		}
		s.Active++
		s.ByTier[string(m.Tier)]++
		s.ByScope[m.Scope]++
		s.ByCategory[m.Category]++
		if m.Tier == TierRegister && m.TopicID != "" {
			topics[m.Scope+"\x00"+m.TopicID] = struct{}{}
		}
	}
	s.RegisterTopics = len(topics)
	s.CompactSavings = s.RawLines - s.Active
	active := s.Active
	if active == 0 {
		active = 1
	}
	s.BloatRatio = float64(s.RawLines) / float64(active)
	if v.capacity > 0 {
		s.UtilizationPct = float64(s.Active) / float64(v.capacity) * 100
	}
	return s, nil
}
