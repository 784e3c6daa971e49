// Package mock provides a deterministic embedder for tests: vectors
// derive from an FNV hash of the text, so identical text always maps
// to an identical unit vector with no network or model involved.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

const dimensions = 384

// Embedder generates hash-based embeddings.
type Embedder struct{}

// New returns a mock embedder.
func New() *Embedder { return &Embedder{} }

// Embed derives a deterministic unit vector from text.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dimensions)
	state := seed
	for i := range vec {
		// xorshift64 keeps components spread without any allocation
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		vec[i] = float32(int64(state%2000)-1000) / 1000
	}
	return normalize(vec), nil
}

// Dimensions returns the vector size.
func (e *Embedder) Dimensions() int { return dimensions }

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
