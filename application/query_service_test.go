package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev-copilot/domain"
	"dev-copilot/infrastructure/vectorstore"
)

// fakeEmbedder returns a fixed vector for every input, or a canned error.
type fakeEmbedder struct {
	vec domain.Embedding
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Embedding, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return len(f.vec) }

// fakeSynthesizer records the prompt it was handed.
type fakeSynthesizer struct {
	answer    string
	err       error
	gotPrompt string
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, prompt string) (string, error) {
	f.gotPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// fakeIndex returns canned results regardless of the query vector.
type fakeIndex struct {
	results []domain.ScoredChunk
}

func (f *fakeIndex) Build(ctx context.Context, entries []domain.IndexEntry) error { return nil }
func (f *fakeIndex) Query(ctx context.Context, embedding domain.Embedding, k int) ([]domain.ScoredChunk, error) {
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}
func (f *fakeIndex) Size() int { return len(f.results) }

func scoredChunk(id string, tokens int, score float32) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk: domain.Chunk{
			ID:         id,
			FilePath:   "pkg/" + id + ".go",
			StartLine:  1,
			EndLine:    4,
			Content:    "func " + id + "() {\n\t// body\n\treturn\n}",
			TokenCount: tokens,
		},
		Score: score,
	}
}

func builtLinearIndex(t *testing.T, entries []domain.IndexEntry) *vectorstore.LinearIndex {
	t.Helper()
	idx := vectorstore.NewLinearIndex(4)
	require.NoError(t, idx.Build(context.Background(), entries))
	return idx
}

func TestQueryService_RetrieveStopsAtBudget(t *testing.T) {
	ctx := context.Background()

	entries := []domain.IndexEntry{
		{Chunk: scoredChunk("best", 40, 0).Chunk, Vector: domain.Embedding{1, 0, 0, 0}},
		{Chunk: scoredChunk("good", 40, 0).Chunk, Vector: domain.Embedding{0.9, 0.1, 0, 0}},
		{Chunk: scoredChunk("far", 40, 0).Chunk, Vector: domain.Embedding{0.5, 0.5, 0, 0}},
	}
	svc := NewQueryService(
		&fakeEmbedder{vec: domain.Embedding{1, 0, 0, 0}},
		builtLinearIndex(t, entries),
		&fakeSynthesizer{},
	)

	result, err := svc.Retrieve(ctx, domain.Query{Text: "how does it work", TopK: 5, MaxContextTokens: 100})
	require.NoError(t, err)

	// The third chunk would push the total to 120, over the 100 budget.
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "best", result.Chunks[0].Chunk.ID)
	assert.Equal(t, "good", result.Chunks[1].Chunk.ID)
	assert.Equal(t, 80, result.TotalTokens)
	assert.False(t, result.Truncated)

	for i := 1; i < len(result.Chunks); i++ {
		assert.GreaterOrEqual(t, result.Chunks[i-1].Score, result.Chunks[i].Score)
	}
}

func TestQueryService_RetrieveTruncatesOversizeTopChunk(t *testing.T) {
	ctx := context.Background()

	big := domain.Chunk{
		ID:         "huge",
		FilePath:   "pkg/huge.go",
		StartLine:  1,
		Content:    strings.Repeat("some moderately long line of code\n", 200),
		TokenCount: 1700,
	}
	big.EndLine = 200
	entries := []domain.IndexEntry{{Chunk: big, Vector: domain.Embedding{1, 0, 0, 0}}}

	svc := NewQueryService(
		&fakeEmbedder{vec: domain.Embedding{1, 0, 0, 0}},
		builtLinearIndex(t, entries),
		&fakeSynthesizer{},
	)

	result, err := svc.Retrieve(ctx, domain.Query{Text: "what is in huge", TopK: 1, MaxContextTokens: 50})
	require.NoError(t, err)

	require.Len(t, result.Chunks, 1)
	assert.True(t, result.Truncated)

	got := result.Chunks[0].Chunk
	assert.LessOrEqual(t, got.TokenCount, 50)
	assert.True(t, strings.HasPrefix(big.Content, got.Content))
	assert.Less(t, got.EndLine, big.EndLine, "line range shrinks with the content")
	assert.Equal(t, result.TotalTokens, got.TokenCount)
}

func TestQueryService_RetrieveEmptyIndex(t *testing.T) {
	ctx := context.Background()
	svc := NewQueryService(
		&fakeEmbedder{vec: domain.Embedding{1, 0, 0, 0}},
		builtLinearIndex(t, nil),
		&fakeSynthesizer{},
	)

	result, err := svc.Retrieve(ctx, domain.Query{Text: "anything", TopK: 5, MaxContextTokens: 100})
	require.NoError(t, err)
	assert.Empty(t, result.Chunks)
	assert.Equal(t, 0, result.TotalTokens)
}

func TestQueryService_RetrieveDeduplicatesResults(t *testing.T) {
	ctx := context.Background()

	dup := scoredChunk("dup", 10, 0.9)
	idx := &fakeIndex{results: []domain.ScoredChunk{dup, dup, scoredChunk("other", 10, 0.5)}}

	svc := NewQueryService(&fakeEmbedder{vec: domain.Embedding{1, 0, 0, 0}}, idx, &fakeSynthesizer{})

	result, err := svc.Retrieve(ctx, domain.Query{Text: "q", TopK: 3, MaxContextTokens: 100})
	require.NoError(t, err)
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "dup", result.Chunks[0].Chunk.ID)
	assert.Equal(t, "other", result.Chunks[1].Chunk.ID)
}

func TestQueryService_RetrieveValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewQueryService(
		&fakeEmbedder{vec: domain.Embedding{1, 0, 0, 0}},
		builtLinearIndex(t, nil),
		&fakeSynthesizer{},
	)

	for name, q := range map[string]domain.Query{
		"empty text":     {Text: "  ", TopK: 5, MaxContextTokens: 100},
		"zero top_k":     {Text: "q", TopK: 0, MaxContextTokens: 100},
		"zero budget":    {Text: "q", TopK: 5, MaxContextTokens: 0},
		"negative top_k": {Text: "q", TopK: -1, MaxContextTokens: 100},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Retrieve(ctx, q)
			assert.Error(t, err)
		})
	}
}

func TestQueryService_RetrievePropagatesEmbedderError(t *testing.T) {
	ctx := context.Background()
	svc := NewQueryService(
		&fakeEmbedder{err: fmt.Errorf("%w: rate limited", domain.ErrEmbeddingUnavailable)},
		builtLinearIndex(t, nil),
		&fakeSynthesizer{},
	)

	_, err := svc.Retrieve(ctx, domain.Query{Text: "q", TopK: 5, MaxContextTokens: 100})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmbeddingUnavailable))
}

func TestQueryService_Ask(t *testing.T) {
	ctx := context.Background()

	entries := []domain.IndexEntry{
		{Chunk: scoredChunk("handler", 40, 0).Chunk, Vector: domain.Embedding{1, 0, 0, 0}},
	}
	synth := &fakeSynthesizer{answer: "The handler validates the request and returns early on error."}
	svc := NewQueryService(
		&fakeEmbedder{vec: domain.Embedding{1, 0, 0, 0}},
		builtLinearIndex(t, entries),
		synth,
	)

	answer, result, err := svc.Ask(ctx, domain.Query{Text: "what does the handler do", TopK: 3, MaxContextTokens: 200})
	require.NoError(t, err)

	assert.Equal(t, synth.answer, answer)
	require.Len(t, result.Chunks, 1)

	assert.Contains(t, synth.gotPrompt, "--- File: pkg/handler.go (Lines: 1-4) ---")
	assert.Contains(t, synth.gotPrompt, "func handler()")
	assert.Contains(t, synth.gotPrompt, "Question: what does the handler do")
}

func TestQueryService_AskSynthesisFailure(t *testing.T) {
	ctx := context.Background()

	entries := []domain.IndexEntry{
		{Chunk: scoredChunk("a", 40, 0).Chunk, Vector: domain.Embedding{1, 0, 0, 0}},
	}
	svc := NewQueryService(
		&fakeEmbedder{vec: domain.Embedding{1, 0, 0, 0}},
		builtLinearIndex(t, entries),
		&fakeSynthesizer{err: fmt.Errorf("%w: api error", domain.ErrSynthesisFailed)},
	)

	answer, result, err := svc.Ask(ctx, domain.Query{Text: "q", TopK: 3, MaxContextTokens: 200})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSynthesisFailed))
	assert.Empty(t, answer)
	// The retrieval result survives for citation display even when
	// synthesis fails.
	assert.Len(t, result.Chunks, 1)
}

func TestBuildPrompt_NoResults(t *testing.T) {
	prompt := BuildPrompt("where is the config loaded", domain.RetrievalResult{})

	assert.Contains(t, prompt, "No relevant code chunks found.")
	assert.Contains(t, prompt, "Question: where is the config loaded")
}

func TestBuildPrompt_WithSymbolsAndTruncation(t *testing.T) {
	sc := scoredChunk("load", 40, 0.9)
	sc.Chunk.Symbols = []string{"Load", "applyDefaults"}
	result := domain.RetrievalResult{
		Chunks:      []domain.ScoredChunk{sc},
		TotalTokens: 40,
		Truncated:   true,
	}

	prompt := BuildPrompt("how is config loaded", result)

	assert.Contains(t, prompt, "--- File: pkg/load.go (Lines: 1-4) ---")
	assert.Contains(t, prompt, "Symbols: Load, applyDefaults")
	assert.Contains(t, prompt, "truncated to fit the context budget")
}
