package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/lanternsoft/reverie/pkg/logger"
)

// Embedder turns text into a vector. Implementations live under
// pkg/memory/embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// SearchResult is one semantic hit over the active set.
type SearchResult struct {
	Memory Memory  `json:"memory"`
	Score  float64 `json:"score"`
}

// SearchOptions narrows a semantic query. TopK <= 0 means 5.
type SearchOptions struct {
	Scope    string
	Category string
	TopK     int
}

const indexCollection = "vault"

// searchOverfetch compensates for post-filtering: scope and category
// filters run on our side, after the vector query.
const searchOverfetch = 5

// Index is the derived semantic layer over a Vault: an in-memory
// chromem-go collection rebuilt from the log. It is a cache, never a
// source of truth; losing it costs a rebuild and nothing else.
type Index struct {
	vault    *Vault
	embedder Embedder

	mu       sync.Mutex
	db       *chromem.DB
	col      *chromem.Collection
	indexed  map[string]struct{}
	excluded map[string]struct{}
}

// NewIndex builds an empty index over vault. Call Rebuild to load it.
func NewIndex(vault *Vault, embedder Embedder) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	idx := &Index{
		vault:    vault,
		embedder: embedder,
		db:       chromem.NewDB(),
		indexed:  map[string]struct{}{},
		excluded: map[string]struct{}{},
	}
	col, err := idx.db.CreateCollection(indexCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create index collection: %w", err)
	}
	idx.col = col
	return idx, nil
}

// Rebuild drops the collection and re-embeds every active record.
// This is the only way stale vectors leave the index wholesale; Remove
// handles the incremental case.
func (x *Index) Rebuild(ctx context.Context) (int, error) {
	active, err := x.vault.ReadActive()
	if err != nil {
		return 0, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.db.DeleteCollection(indexCollection); err != nil {
		return 0, fmt.Errorf("drop index collection: %w", err)
	}
	col, err := x.db.CreateCollection(indexCollection, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("create index collection: %w", err)
	}
	x.col = col
	x.indexed = map[string]struct{}{}
	x.excluded = map[string]struct{}{}

	for _, m := range active {
		if err := x.addLocked(ctx, m); err != nil {
			return len(x.indexed), err
		}
	}
	logger.InfoCF("index", "rebuilt", map[string]interface{}{"documents": len(x.indexed)})
	return len(x.indexed), nil
}

// Upsert indexes (or re-indexes) one record after a vault write. A new
// version replaces the old vector under the same document id.
func (x *Index) Upsert(ctx context.Context, m Memory) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.excluded, m.ID)
	return x.addLocked(ctx, m)
}

// Remove masks an id after a tombstone. chromem keeps the vector; the
// exclusion set hides it from results until the next Rebuild.
func (x *Index) Remove(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.excluded[id] = struct{}{}
}

func (x *Index) addLocked(ctx context.Context, m Memory) error {
	vec, err := x.embedder.Embed(ctx, m.Text)
	if err != nil {
		return fmt.Errorf("embed %s: %w", m.ID, err)
	}
	doc := chromem.Document{
		ID:        m.ID,
		Content:   m.Text,
		Embedding: vec,
		Metadata: map[string]string{
			"scope":    m.Scope,
			"category": m.Category,
			"tier":     string(m.Tier),
		},
	}
	if err := x.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index %s: %w", m.ID, err)
	}
	// Re-indexing an existing id replaces the document in place, so
	// only genuinely new ids grow the collection.
	x.indexed[m.ID] = struct{}{}
	return nil
}

// Search embeds the query and returns the best active matches, scope
// and category filtered, best first. Results are resolved back through
// the vault so callers always see the latest text, not the indexed
// copy.
func (x *Index) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}

	vec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	x.mu.Lock()
	col := x.col
	docs := len(x.indexed)
	excluded := make(map[string]struct{}, len(x.excluded))
	for id := range x.excluded {
		excluded[id] = struct{}{}
	}
	x.mu.Unlock()

	if docs == 0 {
		return nil, nil
	}
	fetch := topK * searchOverfetch
	if fetch > docs {
		fetch = docs
	}
	results, err := col.QueryEmbedding(ctx, vec, fetch, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("index query: %w", err)
	}

	latest, err := x.vault.ResolveLatest()
	if err != nil {
		return nil, err
	}

	scope := strings.ToLower(strings.TrimSpace(opts.Scope))
	category := strings.ToLower(strings.TrimSpace(opts.Category))
	out := make([]SearchResult, 0, topK)
	for _, r := range results {
		if _, gone := excluded[r.ID]; gone {
			continue
		}
		m, ok := latest[r.ID]
		if !ok || !m.IsActive() {
			continue
		}
		if scope != "" && m.Scope != scope {
			continue
		}
		if category != "" && m.Category != category {
			continue
		}
		out = append(out, SearchResult{Memory: m, Score: float64(r.Similarity)})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}
