package application

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"dev-copilot/domain"
)

// QueryService orchestrates one retrieval call: embed the question, query
// the index, assemble a token-bounded context, and hand the prompt to the
// answer synthesizer. Retrieval is read-only with respect to the index.
type QueryService struct {
	embedder    domain.Embedder
	index       domain.VectorIndex
	synthesizer domain.AnswerSynthesizer
}

// NewQueryService creates a new QueryService.
func NewQueryService(embedder domain.Embedder, index domain.VectorIndex, synthesizer domain.AnswerSynthesizer) *QueryService {
	return &QueryService{
		embedder:    embedder,
		index:       index,
		synthesizer: synthesizer,
	}
}

// Retrieve embeds the query text, fetches the top-k nearest chunks, and
// greedily accepts them in descending score order until adding the next
// chunk would exceed the token budget. If even the highest-scoring chunk
// exceeds the budget on its own it is truncated to fit rather than
// dropped: a partial but relevant context beats an empty one.
func (s *QueryService) Retrieve(ctx context.Context, query domain.Query) (domain.RetrievalResult, error) {
	var result domain.RetrievalResult

	if strings.TrimSpace(query.Text) == "" {
		return result, fmt.Errorf("query text must not be empty")
	}
	if query.TopK < 1 {
		return result, fmt.Errorf("top_k must be >= 1, got %d", query.TopK)
	}
	if query.MaxContextTokens < 1 {
		return result, fmt.Errorf("max_context_tokens must be >= 1, got %d", query.MaxContextTokens)
	}

	embedding, err := s.embedder.Embed(ctx, query.Text)
	if err != nil {
		return result, err
	}

	scored, err := s.index.Query(ctx, embedding, query.TopK)
	if err != nil {
		return result, err
	}

	seen := make(map[string]struct{}, len(scored))
	for _, sc := range scored {
		if _, dup := seen[sc.Chunk.ID]; dup {
			continue
		}
		if result.TotalTokens+sc.Chunk.TokenCount > query.MaxContextTokens {
			if len(result.Chunks) == 0 {
				truncated := truncateChunk(sc.Chunk, query.MaxContextTokens)
				result.Chunks = append(result.Chunks, domain.ScoredChunk{Chunk: truncated, Score: sc.Score})
				result.TotalTokens += truncated.TokenCount
				result.Truncated = true
			}
			break
		}
		seen[sc.Chunk.ID] = struct{}{}
		result.Chunks = append(result.Chunks, sc)
		result.TotalTokens += sc.Chunk.TokenCount
	}

	return result, nil
}

// Ask retrieves context for the question, builds the prompt, and returns
// the synthesized answer together with the retrieval result for citation
// display. Synthesis failures surface to the caller verbatim.
func (s *QueryService) Ask(ctx context.Context, query domain.Query) (string, domain.RetrievalResult, error) {
	result, err := s.Retrieve(ctx, query)
	if err != nil {
		return "", domain.RetrievalResult{}, err
	}

	prompt := BuildPrompt(query.Text, result)
	answer, err := s.synthesizer.Synthesize(ctx, prompt)
	if err != nil {
		return "", result, err
	}
	return answer, result, nil
}

// truncateChunk cuts a chunk down to roughly budget tokens, preferring a
// line boundary and never splitting a UTF-8 rune. The line range shrinks
// with the content so citations stay honest.
func truncateChunk(chunk domain.Chunk, budget int) domain.Chunk {
	maxChars := budget * 4
	if maxChars >= len(chunk.Content) {
		return chunk
	}

	cut := maxChars
	for cut > 0 && !utf8.RuneStart(chunk.Content[cut]) {
		cut--
	}
	content := chunk.Content[:cut]
	if nl := strings.LastIndexByte(content, '\n'); nl > 0 {
		content = content[:nl]
	}

	chunk.Content = content
	chunk.EndLine = chunk.StartLine + strings.Count(content, "\n")
	chunk.TokenCount = domain.EstimateTokens(content)
	return chunk
}
