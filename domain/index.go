package domain

import "context"

// IndexEntry pairs a chunk with its embedding. The vector and the chunk
// metadata share the same lifetime inside one index generation.
type IndexEntry struct {
	Chunk  Chunk     `json:"chunk"`
	Vector Embedding `json:"vector"`
}

// ScoredChunk is a chunk paired with its similarity score for one query.
type ScoredChunk struct {
	Chunk Chunk
	Score float32
}

// VectorIndex defines the interface for a similarity index over chunk
// embeddings. One Build call produces one complete, immutable generation;
// the swap to a new generation is atomic, so readers always see either the
// old generation in full or the new one, never a mix.
type VectorIndex interface {
	// Build constructs a fresh generation from all entries in one pass and
	// replaces any prior generation atomically on success. If any entry is
	// malformed the whole build fails with ErrIndexBuildFailed and the
	// previous generation remains queryable unchanged. Builds are
	// serialized; queries never block on a build.
	Build(ctx context.Context, entries []IndexEntry) error

	// Query returns up to k nearest entries by cosine similarity, ordered
	// by descending score. Ties are broken by insertion order (entries
	// built earlier rank first). Querying an empty index returns an empty
	// slice, not an error.
	Query(ctx context.Context, embedding Embedding, k int) ([]ScoredChunk, error)

	// Size returns the number of entries in the current generation.
	Size() int
}

// PersistentVectorIndex is a VectorIndex whose generations can be saved to
// and restored from durable storage. A persist/load round-trip reproduces
// identical query results, score values included, to floating-point
// equality. Loading an artifact with an unrecognized format version fails
// with ErrUnsupportedIndexVersion.
type PersistentVectorIndex interface {
	VectorIndex
	Persist(path string) error
	Load(path string) error
}
