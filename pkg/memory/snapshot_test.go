package memory

import (
	"strings"
	"testing"
)

func TestBuildSnapshotSections(t *testing.T) {
	v := newTestVault(t, 0)
	mustAdd(t, v, AddRequest{Text: "alpha runs the platform team", Tier: TierCanon, Category: "people"})
	mustAdd(t, v, AddRequest{Text: "release train leaves thursdays", Tier: TierCanon, Category: "ops"})
	mustAdd(t, v, AddRequest{Text: "migrating billing to the new schema", Tier: TierRegister, TopicID: "current_focus"})
	mustAdd(t, v, AddRequest{Text: "untracked scratch observation", Tier: TierRegister})

	snap, err := v.BuildSnapshot("shared")
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}

	if !strings.Contains(snap, "## Canon") {
		t.Errorf("snapshot missing canon section:\n%s", snap)
	}
	if !strings.Contains(snap, "## Active Registers") {
		t.Errorf("snapshot missing registers section:\n%s", snap)
	}
	if !strings.Contains(snap, "[current_focus] migrating billing to the new schema") {
		t.Errorf("snapshot missing keyed register:\n%s", snap)
	}
	// Topic-less registers stay out of the snapshot but remain active.
	if strings.Contains(snap, "untracked scratch observation") {
		t.Errorf("topic-less register leaked into snapshot:\n%s", snap)
	}
	active, err := v.ReadActive()
	if err != nil {
		t.Fatalf("ReadActive: %v", err)
	}
	if len(active) != 4 {
		t.Errorf("active = %d, want 4", len(active))
	}

	// Canon lines group under their category.
	peopleIdx := strings.Index(snap, "### people")
	opsIdx := strings.Index(snap, "### ops")
	if peopleIdx < 0 || opsIdx < 0 {
		t.Fatalf("category headings missing:\n%s", snap)
	}
	if opsIdx > peopleIdx {
		t.Errorf("categories not sorted: ops at %d, people at %d", opsIdx, peopleIdx)
	}
}

func TestBuildSnapshotEmpty(t *testing.T) {
	v := newTestVault(t, 0)
	snap, err := v.BuildSnapshot("shared")
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}
	if !strings.Contains(snap, "(no stored memories)") {
		t.Errorf("empty snapshot = %q", snap)
	}
}

func TestBuildSnapshotExcludesDeleted(t *testing.T) {
	v := newTestVault(t, 0)
	m := mustAdd(t, v, AddRequest{Text: "release train leaves thursdays", Tier: TierCanon})
	if _, err := v.Delete(m.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	snap, err := v.BuildSnapshot("shared")
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}
	if strings.Contains(snap, "release train") {
		t.Errorf("tombstoned memory in snapshot:\n%s", snap)
	}
}
