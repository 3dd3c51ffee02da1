package domain

import (
	"context"
	"math"
)

// Embedding represents a fixed-dimension numerical vector representation of text.
type Embedding []float32

// Embedder defines the interface for generating embeddings from text.
// Implementations are pure with respect to a fixed model identifier: the
// same text always yields the same vector.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) (Embedding, error)
	// EmbedBatch generates embeddings for the given texts. The result
	// order matches the input order, one-to-one.
	EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error)
	// Dimensions returns the fixed output dimension of the model.
	Dimensions() int
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
// Mismatched or zero-magnitude vectors score 0.
func CosineSimilarity(a, b Embedding) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
