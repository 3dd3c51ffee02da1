package domain

import "context"

// Query describes one retrieval call. Ephemeral, scoped to the call.
type Query struct {
	Text             string // The user's question
	TopK             int    // Maximum number of chunks to retrieve (>= 1)
	MaxContextTokens int    // Token budget for the assembled context (>= 1)
}

// RetrievalResult is the ranked, budget-bounded context assembled for one
// query. Scores are monotonically non-increasing across Chunks, chunk ids
// are unique, and TotalTokens never exceeds the query's MaxContextTokens
// (a single over-budget top chunk is truncated rather than dropped).
type RetrievalResult struct {
	Chunks      []ScoredChunk
	TotalTokens int
	// Truncated reports that the highest-scoring chunk alone exceeded the
	// budget and was cut down to fit.
	Truncated bool
}

// AnswerSynthesizer consumes an assembled prompt and returns answer text.
// Failures are reported as ErrSynthesisFailed and surfaced to the end user
// verbatim; callers do not retry.
type AnswerSynthesizer interface {
	Synthesize(ctx context.Context, prompt string) (string, error)
}
