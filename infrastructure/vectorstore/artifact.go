package vectorstore

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"dev-copilot/domain"
)

// artifactVersion is the persisted index format version. Bump it whenever
// the artifact layout changes; loaders reject anything they don't know.
const artifactVersion = 1

// artifact is the self-contained on-disk form of one index generation:
// the declared embedding dimension plus every entry with its chunk
// metadata and vector, in insertion order.
type artifact struct {
	Version   int
	Dimension int
	Entries   []domain.IndexEntry
}

// writeArtifact encodes the artifact with gob and installs it with a
// temp-file-plus-rename so a crash never leaves a torn file behind.
func writeArtifact(path string, art artifact) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create index directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}

	if err := gob.NewEncoder(file).Encode(art); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode index: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	return os.Rename(tmp, path)
}

// readArtifact decodes an artifact and checks its format version.
func readArtifact(path string) (artifact, error) {
	var art artifact

	file, err := os.Open(path)
	if err != nil {
		return art, fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(&art); err != nil {
		return art, fmt.Errorf("decode index: %w", err)
	}
	if art.Version != artifactVersion {
		return art, fmt.Errorf("%w: got version %d, want %d",
			domain.ErrUnsupportedIndexVersion, art.Version, artifactVersion)
	}
	return art, nil
}

// validateEntries checks every entry before a build commits. One malformed
// entry fails the whole build: a silently dropped entry would break the
// retrieval completeness guarantee.
func validateEntries(entries []domain.IndexEntry, dimension int) error {
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		switch {
		case e.Chunk.ID == "":
			return fmt.Errorf("%w: entry %d has empty chunk id", domain.ErrIndexBuildFailed, i)
		case e.Chunk.Content == "":
			return fmt.Errorf("%w: entry %d (%s) has empty content", domain.ErrIndexBuildFailed, i, e.Chunk.ID)
		case e.Chunk.StartLine < 1 || e.Chunk.EndLine < e.Chunk.StartLine:
			return fmt.Errorf("%w: entry %d (%s) has invalid line range %d-%d",
				domain.ErrIndexBuildFailed, i, e.Chunk.ID, e.Chunk.StartLine, e.Chunk.EndLine)
		case len(e.Vector) != dimension:
			return fmt.Errorf("%w: entry %d (%s) has dimension %d, index expects %d",
				domain.ErrIndexBuildFailed, i, e.Chunk.ID, len(e.Vector), dimension)
		}
		if _, dup := seen[e.Chunk.ID]; dup {
			return fmt.Errorf("%w: duplicate chunk id %s", domain.ErrIndexBuildFailed, e.Chunk.ID)
		}
		seen[e.Chunk.ID] = struct{}{}
	}
	return nil
}
