package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"dev-copilot/config"
	"dev-copilot/domain"
)

// embedWorkers bounds the number of concurrent embedding batches during a
// build. Chunk embedding is independent and side-effect free, so batches
// parallelize safely; the generation swap itself stays serialized inside
// the index.
const embedWorkers = 4

// Directories that never contain project source worth indexing.
var skippedDirs = map[string]bool{
	".git":         true,
	"vendor":       true,
	"node_modules": true,
	"__pycache__":  true,
}

// BuildStats summarizes one index build.
type BuildStats struct {
	FilesIndexed int
	FilesSkipped int
	Chunks       int
}

// IndexingService handles the process of chunking, embedding, and indexing
// source files. One call to IndexDirectory produces one index generation;
// any failure past chunking aborts the whole build and leaves the previous
// generation untouched.
type IndexingService struct {
	chunker  domain.Chunker
	embedder domain.Embedder
	index    domain.VectorIndex

	maxChunkTokens int
	overlapTokens  int
	batchSize      int
}

// NewIndexingService creates a new IndexingService.
func NewIndexingService(chunker domain.Chunker, embedder domain.Embedder, index domain.VectorIndex, cfg *config.Config) *IndexingService {
	return &IndexingService{
		chunker:        chunker,
		embedder:       embedder,
		index:          index,
		maxChunkTokens: cfg.Chunker.MaxChunkTokens,
		overlapTokens:  cfg.Chunker.OverlapTokens,
		batchSize:      cfg.Embedder.BatchSize,
	}
}

// IndexDirectory walks rootDir recursively, chunks every regular text
// file, embeds all chunks, and builds a fresh index generation from the
// result. Unreadable files are skipped with a log line; every other error
// aborts the build before anything is committed.
func (s *IndexingService) IndexDirectory(ctx context.Context, rootDir string) (*BuildStats, error) {
	log.Printf("Starting indexing for directory: %s\n", rootDir)

	stats := &BuildStats{}
	chunks, err := s.chunkDirectory(ctx, rootDir, stats)
	if err != nil {
		return nil, err
	}
	stats.Chunks = len(chunks)

	if len(chunks) == 0 {
		log.Println("No files produced chunks; building empty index.")
		if err := s.index.Build(ctx, nil); err != nil {
			return nil, err
		}
		return stats, nil
	}

	log.Printf("Created %d chunks from %d files. Generating embeddings...\n", len(chunks), stats.FilesIndexed)

	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.IndexEntry, len(chunks))
	for i := range chunks {
		entries[i] = domain.IndexEntry{Chunk: chunks[i], Vector: vectors[i]}
	}

	if err := s.index.Build(ctx, entries); err != nil {
		return nil, err
	}

	log.Printf("Successfully indexed %d chunks from %s (%d files skipped)\n",
		len(chunks), rootDir, stats.FilesSkipped)
	return stats, nil
}

// chunkDirectory walks the tree and chunks every regular file, skipping
// hidden entries, vendored directories, and unreadable (binary) files.
func (s *IndexingService) chunkDirectory(ctx context.Context, rootDir string, stats *BuildStats) ([]domain.Chunk, error) {
	var chunks []domain.Chunk

	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		name := d.Name()
		if d.IsDir() {
			if path != rootDir && (strings.HasPrefix(name, ".") || skippedDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(rootDir, path)
		if err != nil {
			rel = path
		}

		content, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Skipping %s: %v\n", rel, err)
			stats.FilesSkipped++
			return nil
		}

		fileChunks, err := s.chunker.Chunk(rel, content, s.maxChunkTokens, s.overlapTokens)
		if errors.Is(err, domain.ErrUnreadableSource) {
			log.Printf("Skipping unreadable file: %s\n", rel)
			stats.FilesSkipped++
			return nil
		}
		if err != nil {
			return fmt.Errorf("chunking %s: %w", rel, err)
		}

		if len(fileChunks) > 0 {
			stats.FilesIndexed++
			chunks = append(chunks, fileChunks...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory %s: %w", rootDir, err)
	}
	return chunks, nil
}

// embedChunks embeds all chunks in parallel batches. Result order matches
// the chunk order. Any batch failure fails the whole build.
func (s *IndexingService) embedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.Embedding, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = embeddingText(chunk)
	}

	vectors := make([]domain.Embedding, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedWorkers)

	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end

		g.Go(func() error {
			batch, err := s.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embedding chunks %d-%d: %w", start+1, end, err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("embedding chunks %d-%d: got %d vectors for %d texts",
					start+1, end, len(batch), end-start)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// embeddingText builds the text sent to the embedder. Prefixing the file
// path and symbols lets location semantics contribute to the vector; the
// stored chunk content stays raw.
func embeddingText(chunk domain.Chunk) string {
	if len(chunk.Symbols) > 0 {
		return fmt.Sprintf("File: %s\nSymbols: %s\n%s",
			chunk.FilePath, strings.Join(chunk.Symbols, ", "), chunk.Content)
	}
	return fmt.Sprintf("File: %s\n%s", chunk.FilePath, chunk.Content)
}
