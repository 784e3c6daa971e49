package memory

import "testing"

func TestFindConsolidationCandidates(t *testing.T) {
	v := newTestVault(t, 0)
	// Thresholds here sit below the vault's duplicate gate, so near
	// misses get stored and later surface as merge candidates.
	a := mustAdd(t, v, AddRequest{Text: "alpha runs the platform team"})
	b := mustAdd(t, v, AddRequest{Text: "the platform team moved desks yesterday"})
	mustAdd(t, v, AddRequest{Text: "deploy window opens friday"})

	cands, err := v.FindConsolidationCandidates("shared", 0.5)
	if err != nil {
		t.Fatalf("FindConsolidationCandidates: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("candidates = %d, want 1: %+v", len(cands), cands)
	}
	top := cands[0]
	if top.FirstID != a.ID || top.SecondID != b.ID {
		t.Errorf("pair = (%s, %s), want (%s, %s)", top.FirstID, top.SecondID, a.ID, b.ID)
	}
	if top.Score < 0.5 {
		t.Errorf("score = %v, want >= 0.5", top.Score)
	}
}

func TestFindConsolidationCandidatesScopeBound(t *testing.T) {
	v := newTestVault(t, 0)
	mustAdd(t, v, AddRequest{Text: "alpha runs the platform team at the office", Scope: "shared"})
	mustAdd(t, v, AddRequest{Text: "alpha runs the platform team at the office", Scope: "ops"})

	cands, err := v.FindConsolidationCandidates("", 0.5)
	if err != nil {
		t.Fatalf("FindConsolidationCandidates: %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("cross-scope pair proposed: %+v", cands)
	}
}

func TestProposeDeletions(t *testing.T) {
	v := newTestVault(t, 0)
	short := mustAdd(t, v, AddRequest{Text: "weird log line seen", Tier: TierRegister})
	mustAdd(t, v, AddRequest{Text: "billing cutover", Tier: TierRegister, TopicID: "current_focus"})
	mustAdd(t, v, AddRequest{Text: "alpha runs the platform team at the office and owns oncall", Tier: TierRegister})
	mustAdd(t, v, AddRequest{Text: "release train leaves thursdays", Tier: TierCanon})

	props, err := v.ProposeDeletions("shared")
	if err != nil {
		t.Fatalf("ProposeDeletions: %v", err)
	}
	if len(props) != 1 {
		t.Fatalf("proposals = %d, want 1: %+v", len(props), props)
	}
	if props[0].ID != short.ID {
		t.Errorf("proposed %s, want %s", props[0].ID, short.ID)
	}
}
