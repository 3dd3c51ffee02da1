package vectorstore

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"dev-copilot/domain"
)

// levelSeed fixes the graph's level generation. The library seeds its RNG
// from the clock by default, which would give two builds of the same
// entries different graphs and different rankings.
const levelSeed = 1

// HNSWIndex implements domain.PersistentVectorIndex on top of the
// coder/hnsw pure-Go graph for sub-linear query time. Entries are keyed by
// insertion position, which doubles as the deterministic tie-breaker.
type HNSWIndex struct {
	mu        sync.RWMutex
	dimension int
	m         int
	efSearch  int
	graph     *hnsw.Graph[uint64]
	entries   []domain.IndexEntry // indexed by graph key
}

// NewHNSWIndex creates an empty HNSW index. m and efSearch fall back to
// the library's recommended defaults when zero.
func NewHNSWIndex(dimension, m, efSearch int) *HNSWIndex {
	if m == 0 {
		m = 16
	}
	if efSearch == 0 {
		efSearch = 20
	}
	return &HNSWIndex{
		dimension: dimension,
		m:         m,
		efSearch:  efSearch,
	}
}

func (s *HNSWIndex) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = s.m
	g.EfSearch = s.efSearch
	g.Ml = 0.25
	g.Rng = rand.New(rand.NewSource(levelSeed))
	return g
}

// Build constructs a fresh graph from all entries and swaps it in under
// the write lock. The graph is assembled before the swap, so queries keep
// reading the previous generation until the build succeeds.
func (s *HNSWIndex) Build(ctx context.Context, entries []domain.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateEntries(entries, s.dimension); err != nil {
		return err
	}

	graph := s.newGraph()
	next := make([]domain.IndexEntry, len(entries))
	copy(next, entries)

	for i, e := range next {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		normalizeInPlace(vec)
		graph.Add(hnsw.MakeNode(uint64(i), vec))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = graph
	s.entries = next
	return nil
}

// Query returns up to k approximate nearest entries by cosine similarity,
// descending, ties broken by insertion order.
func (s *HNSWIndex) Query(ctx context.Context, embedding domain.Embedding, k int) ([]domain.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("query embedding has dimension %d, index expects %d", len(embedding), s.dimension)
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d", k)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph == nil || s.graph.Len() == 0 {
		return []domain.ScoredChunk{}, nil
	}

	query := make([]float32, len(embedding))
	copy(query, embedding)
	normalizeInPlace(query)

	nodes := s.graph.Search(query, k)

	type hit struct {
		key   uint64
		score float32
	}
	hits := make([]hit, 0, len(nodes))
	for _, node := range nodes {
		if int(node.Key) >= len(s.entries) {
			continue
		}
		// CosineDistance is 1 - cos, so this recovers the similarity.
		hits = append(hits, hit{
			key:   node.Key,
			score: 1 - s.graph.Distance(query, node.Value),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].key < hits[j].key
	})

	results := make([]domain.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		results = append(results, domain.ScoredChunk{
			Chunk: s.entries[h.key].Chunk,
			Score: h.score,
		})
	}
	return results, nil
}

// Size returns the entry count of the current generation.
func (s *HNSWIndex) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Persist writes the entry artifact to path and the graph structure to
// path+".graph". Exporting the graph (rather than rebuilding on load)
// keeps the loaded index bit-for-bit identical to the persisted one.
func (s *HNSWIndex) Persist(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := writeArtifact(path, artifact{
		Version:   artifactVersion,
		Dimension: s.dimension,
		Entries:   s.entries,
	}); err != nil {
		return err
	}

	if s.graph == nil {
		return nil
	}

	graphPath := path + ".graph"
	tmp := graphPath + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close graph file: %w", err)
	}
	return os.Rename(tmp, graphPath)
}

// Load restores a generation from the artifact and graph files.
func (s *HNSWIndex) Load(path string) error {
	art, err := readArtifact(path)
	if err != nil {
		return err
	}
	if art.Dimension != s.dimension {
		return fmt.Errorf("index artifact has dimension %d, index expects %d", art.Dimension, s.dimension)
	}

	graph := s.newGraph()
	if len(art.Entries) > 0 {
		file, err := os.Open(path + ".graph")
		if err != nil {
			return fmt.Errorf("open graph file: %w", err)
		}
		defer file.Close()

		// Import requires an io.ByteReader.
		if err := graph.Import(bufio.NewReader(file)); err != nil {
			return fmt.Errorf("import graph: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = graph
	s.entries = art.Entries
	return nil
}

var _ domain.PersistentVectorIndex = (*HNSWIndex)(nil)

// normalizeInPlace scales a vector to unit length so cosine distance
// behaves well in the graph.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
