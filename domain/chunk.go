package domain

// Chunk represents a contiguous span of source text with its location metadata.
type Chunk struct {
	ID         string   `json:"id"`          // Unique identifier (UUID, unique within one index build)
	FilePath   string   `json:"file_path"`   // Path to the source file
	StartLine  int      `json:"start_line"`  // Starting line number (1-based)
	EndLine    int      `json:"end_line"`    // Ending line number (inclusive, >= StartLine)
	Content    string   `json:"content"`     // The actual source text
	TokenCount int      `json:"token_count"` // Estimated token count of Content
	Symbols    []string `json:"symbols"`     // Symbols defined in this chunk (e.g., function names)
}

// EstimateTokens approximates the token count of a text.
// Uses the common 4-characters-per-token heuristic, rounded up.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}
