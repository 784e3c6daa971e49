package memory

import (
	"fmt"
	"sort"
	"strings"
)

// BuildSnapshot renders the prompt-injection view of a scope: durable
// canon facts first, then the active registers keyed by topic.
// Registers without a topic key are deliberately left out; they are
// still searchable and counted, but the snapshot only carries state
// the agent maintains on purpose.
func (v *Vault) BuildSnapshot(scope string) (string, error) {
	active, err := v.ReadActive()
	if err != nil {
		return "", err
	}
	scope = strings.ToLower(strings.TrimSpace(scope))

	var canon, registers []Memory
	for _, m := range active {
		if scope != "" && m.Scope != scope && m.Scope != ScopeShared {
			continue
		}
		switch m.Tier {
		case TierCanon:
			canon = append(canon, m)
		case TierRegister:
			if m.TopicID != "" {
				registers = append(registers, m)
			}
		}
	}
	sort.Slice(canon, func(i, j int) bool {
		if canon[i].Category != canon[j].Category {
			return canon[i].Category < canon[j].Category
		}
		return canon[i].CreatedAt < canon[j].CreatedAt
	})
	sort.Slice(registers, func(i, j int) bool { return registers[i].TopicID < registers[j].TopicID })

	var b strings.Builder
	b.WriteString("# Memory Snapshot\n")
	if len(canon) == 0 && len(registers) == 0 {
		b.WriteString("\n(no stored memories)\n")
		return b.String(), nil
	}

	if len(canon) > 0 {
		b.WriteString("\n## Canon\n")
		lastCategory := ""
		for _, m := range canon {
			if m.Category != lastCategory {
				fmt.Fprintf(&b, "\n### %s\n", m.Category)
				lastCategory = m.Category
			}
			fmt.Fprintf(&b, "- %s\n", m.Text)
		}
	}
	if len(registers) > 0 {
		b.WriteString("\n## Active Registers\n")
		for _, m := range registers {
			fmt.Fprintf(&b, "- [%s] %s\n", m.TopicID, m.Text)
		}
	}
	return b.String(), nil
}
