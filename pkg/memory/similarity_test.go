package memory

import "testing"

func TestTokenOverlapSymmetric(t *testing.T) {
	a := "alpha prefers green tea"
	b := "green tea is what alpha prefers most days"
	if got, rev := tokenOverlap(a, b), tokenOverlap(b, a); got != rev {
		t.Errorf("tokenOverlap not symmetric: %v vs %v", got, rev)
	}
	// All four tokens of a appear in b, so the max-side ratio is 1.
	if got := tokenOverlap(a, b); got != 1 {
		t.Errorf("tokenOverlap = %v, want 1", got)
	}
}

func TestTokenOverlapDisjoint(t *testing.T) {
	if got := tokenOverlap("alpha beta", "gamma delta"); got != 0 {
		t.Errorf("disjoint overlap = %v, want 0", got)
	}
	if got := tokenOverlap("", "anything"); got != 0 {
		t.Errorf("empty overlap = %v, want 0", got)
	}
}

func TestSimilarityScoreOrdering(t *testing.T) {
	base := "the deploy window opens on friday afternoon"
	near := "the deploy window opens on friday"
	far := "alpha prefers green tea"

	nearScore := similarityScore(base, near)
	farScore := similarityScore(base, far)
	if nearScore <= farScore {
		t.Errorf("near %v should beat far %v", nearScore, farScore)
	}
	if similarityScore(base, near) != similarityScore(near, base) {
		t.Errorf("similarityScore not symmetric")
	}
}

func TestSimilarityScoreSubstringBonus(t *testing.T) {
	whole := "the deploy window opens on friday"
	part := "deploy window opens"
	with := similarityScore(whole, part)

	// Same token overlap, no containment.
	shuffled := "opens window deploy"
	without := similarityScore(whole, shuffled)
	if with <= without {
		t.Errorf("substring bonus missing: contained %v vs shuffled %v", with, without)
	}
}

func TestSimilarityScoreZeroWithoutOverlap(t *testing.T) {
	// "abc" and "abd" share characters but no tokens; the score must
	// stay zero so unrelated short strings never look similar.
	if got := similarityScore("abc", "abd"); got != 0 {
		t.Errorf("no-overlap score = %v, want 0", got)
	}
}

func TestSequenceRatio(t *testing.T) {
	if got := sequenceRatio("abc", "abc"); got != 1 {
		t.Errorf("identical ratio = %v, want 1", got)
	}
	if got := sequenceRatio("abc", "xyz"); got != 0 {
		t.Errorf("disjoint ratio = %v, want 0", got)
	}
	// Ratcliff/Obershelp on abcd/bcde: longest block bcd (3 chars),
	// 2*3/(4+4) = 0.75.
	if got := sequenceRatio("abcd", "bcde"); got != 0.75 {
		t.Errorf("ratio = %v, want 0.75", got)
	}
}
