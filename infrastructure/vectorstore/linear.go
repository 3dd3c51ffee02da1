package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"dev-copilot/domain"
)

// generation is one complete, immutable snapshot of the index. It is never
// mutated after the pointer swap, so queries read it without locking.
type generation struct {
	entries []domain.IndexEntry
}

// LinearIndex implements domain.PersistentVectorIndex with an exact
// cosine-similarity scan. O(n) per query, but a correct baseline: results
// are exact and fully deterministic.
type LinearIndex struct {
	dimension int
	buildMu   sync.Mutex // serializes builds and loads
	current   atomic.Pointer[generation]
}

// NewLinearIndex creates an empty linear index for vectors of the given
// dimension.
func NewLinearIndex(dimension int) *LinearIndex {
	idx := &LinearIndex{dimension: dimension}
	idx.current.Store(&generation{})
	return idx
}

// Build validates all entries, then swaps in the new generation with a
// single atomic pointer update. On any validation failure nothing is
// committed and the previous generation stays queryable.
func (s *LinearIndex) Build(ctx context.Context, entries []domain.IndexEntry) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateEntries(entries, s.dimension); err != nil {
		return err
	}

	next := make([]domain.IndexEntry, len(entries))
	copy(next, entries)
	s.current.Store(&generation{entries: next})
	return nil
}

// Query scans the current generation and returns up to k entries by
// descending cosine similarity. Equal scores keep insertion order.
func (s *LinearIndex) Query(ctx context.Context, embedding domain.Embedding, k int) ([]domain.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("query embedding has dimension %d, index expects %d", len(embedding), s.dimension)
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d", k)
	}

	gen := s.current.Load()
	if len(gen.entries) == 0 {
		return []domain.ScoredChunk{}, nil
	}

	results := make([]domain.ScoredChunk, 0, len(gen.entries))
	for _, e := range gen.entries {
		results = append(results, domain.ScoredChunk{
			Chunk: e.Chunk,
			Score: domain.CosineSimilarity(embedding, e.Vector),
		})
	}

	// Stable sort preserves insertion order among equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Size returns the entry count of the current generation.
func (s *LinearIndex) Size() int {
	return len(s.current.Load().entries)
}

// Persist writes the current generation to path as a versioned artifact.
func (s *LinearIndex) Persist(path string) error {
	gen := s.current.Load()
	return writeArtifact(path, artifact{
		Version:   artifactVersion,
		Dimension: s.dimension,
		Entries:   gen.entries,
	})
}

// Load restores a generation from a persisted artifact. Query results
// against the loaded index match the original bit for bit: the vectors are
// stored exactly and the scoring code path is identical.
func (s *LinearIndex) Load(path string) error {
	art, err := readArtifact(path)
	if err != nil {
		return err
	}
	if art.Dimension != s.dimension {
		return fmt.Errorf("index artifact has dimension %d, index expects %d", art.Dimension, s.dimension)
	}

	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	s.current.Store(&generation{entries: art.Entries})
	return nil
}

var _ domain.PersistentVectorIndex = (*LinearIndex)(nil)
