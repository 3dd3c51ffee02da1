package application

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"dev-copilot/domain"
)

// QuestionProvider is an interface that provides user questions. It
// abstracts the input source so the chat loop can read from the console,
// a test fixture, or any other stream.
type QuestionProvider interface {
	GetQuestion() (string, bool)
}

// ConsoleQuestionProvider provides questions from standard input.
type ConsoleQuestionProvider struct {
	scanner *bufio.Scanner
}

// NewConsoleQuestionProvider creates a QuestionProvider reading stdin.
func NewConsoleQuestionProvider() *ConsoleQuestionProvider {
	return &ConsoleQuestionProvider{scanner: bufio.NewScanner(os.Stdin)}
}

// GetQuestion reads one question from the console. It returns false when
// input is exhausted (EOF).
func (p *ConsoleQuestionProvider) GetQuestion() (string, bool) {
	fmt.Print("\x1b[95mYou\x1b[0m: ")
	if !p.scanner.Scan() {
		return "", false
	}
	return p.scanner.Text(), true
}

// ChatService runs an interactive question-answering loop over an indexed
// codebase.
type ChatService struct {
	queries   *QueryService
	questions QuestionProvider
	defaults  domain.Query // TopK and MaxContextTokens per question
}

// NewChatService creates a new ChatService.
func NewChatService(queries *QueryService, questions QuestionProvider, defaults domain.Query) *ChatService {
	return &ChatService{
		queries:   queries,
		questions: questions,
		defaults:  defaults,
	}
}

// Run reads questions until input is exhausted, answering each one.
// Per-question failures are printed and the loop continues; the user
// decides whether to retry.
func (s *ChatService) Run(ctx context.Context) error {
	fmt.Println("Ask questions about the codebase (use 'ctrl-c' or EOF to quit)")

	for {
		question, ok := s.questions.GetQuestion()
		if !ok {
			break
		}
		if question == "" {
			continue
		}

		query := s.defaults
		query.Text = question

		answer, result, err := s.queries.Ask(ctx, query)
		if err != nil {
			fmt.Printf("\x1b[31mError\x1b[0m: %s\n", err.Error())
			continue
		}

		fmt.Printf("\x1b[96mCopilot\x1b[0m: %s\n", answer)
		if len(result.Chunks) > 0 {
			fmt.Printf("\x1b[90m(based on %d snippets, %d tokens of context)\x1b[0m\n",
				len(result.Chunks), result.TotalTokens)
		}
	}

	return nil
}
