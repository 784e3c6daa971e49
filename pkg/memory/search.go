package memory

import (
	"sort"
	"strings"
)

// SearchLexical ranks the active set against query with the same
// composite similarity used for dedup. It is the retrieval path when
// no embedder is configured; the semantic Index supersedes it when one
// is.
func (v *Vault) SearchLexical(query, scope, category string, topK int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}
	scope = strings.ToLower(strings.TrimSpace(scope))
	category = strings.ToLower(strings.TrimSpace(category))

	active, err := v.ReadActive()
	if err != nil {
		return nil, err
	}

	var out []SearchResult
	for _, m := range active {
		if scope != "" && m.Scope != scope {
			continue
		}
		if category != "" && m.Category != category {
			continue
		}
		score := similarityScore(query, m.Text)
		if score <= 0 {
			continue
		}
		out = append(out, SearchResult{Memory: m, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
