package memory

import (
	"regexp"
	"strings"
)

var tokenRe = regexp.MustCompile(`\w+`)

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, t := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		tokens[t] = struct{}{}
	}
	return tokens
}

// tokenOverlap returns the symmetric token-set overlap ratio: the
// larger of (shared tokens / a's tokens) and (shared tokens / b's
// tokens). This catches a short paraphrase fully contained in a longer
// record even when the strict similarity metric misses it.
func tokenOverlap(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	if shared == 0 {
		return 0
	}
	ra := float64(shared) / float64(len(ta))
	rb := float64(shared) / float64(len(tb))
	if ra > rb {
		return ra
	}
	return rb
}

// similarityScore is the composite used for both duplicate rejection
// and consolidation candidates:
//
//	token overlap ratio
//	+ 0.3 substring bonus when one text literally contains the other
//	+ Ratcliff/Obershelp sequence ratio weighted by 0.4
func similarityScore(a, b string) float64 {
	la := strings.ToLower(a)
	lb := strings.ToLower(b)

	overlap := tokenOverlap(a, b)
	if overlap == 0 {
		return 0
	}

	score := overlap
	if strings.Contains(la, lb) || strings.Contains(lb, la) {
		score += 0.3
	}
	score += sequenceRatio(la, lb) * 0.4
	return score
}

// sequenceRatio computes the Ratcliff/Obershelp similarity of two
// strings: twice the total length of matching blocks divided by the
// combined length. Matching blocks are found by recursively splitting
// around the longest common substring.
func sequenceRatio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	matched := matchingChars([]rune(a), []rune(b))
	return 2 * float64(matched) / float64(len([]rune(a))+len([]rune(b)))
}

func matchingChars(a, b []rune) int {
	ai, bi, size := longestCommonBlock(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingChars(a[:ai], b[:bi])
	total += matchingChars(a[ai+size:], b[bi+size:])
	return total
}

func longestCommonBlock(a, b []rune) (ai, bi, size int) {
	// Dynamic-programming longest common substring with a rolling row.
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > size {
					size = cur[j]
					ai = i - size
					bi = j - size
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return ai, bi, size
}
