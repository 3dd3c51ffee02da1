package application

import (
	"fmt"
	"strings"

	"dev-copilot/domain"
)

// BuildPrompt assembles the single text prompt handed to the answer
// synthesizer: the retrieved snippets, each headed by its file path and
// line range, followed by the original question.
func BuildPrompt(question string, result domain.RetrievalResult) string {
	var b strings.Builder

	b.WriteString("You are an AI coding assistant. Answer the following question about the codebase based on the provided context.\n\nContext:\n")

	if len(result.Chunks) == 0 {
		b.WriteString("No relevant code chunks found.\n")
	} else {
		b.WriteString("Here are the relevant code snippets:\n\n")
		for _, sc := range result.Chunks {
			fmt.Fprintf(&b, "--- File: %s (Lines: %d-%d) ---\n", sc.Chunk.FilePath, sc.Chunk.StartLine, sc.Chunk.EndLine)
			if len(sc.Chunk.Symbols) > 0 {
				fmt.Fprintf(&b, "Symbols: %s\n", strings.Join(sc.Chunk.Symbols, ", "))
			}
			b.WriteString(sc.Chunk.Content)
			b.WriteString("\n\n")
		}
		if result.Truncated {
			b.WriteString("(The snippet above was truncated to fit the context budget.)\n\n")
		}
	}

	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Please provide a clear, concise, and helpful answer. If the context doesn't contain enough information to answer the question, say so and suggest what additional information might be needed.\n")

	return b.String()
}
