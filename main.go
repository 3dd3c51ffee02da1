package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"dev-copilot/application"
	"dev-copilot/config"
	"dev-copilot/domain"
	"dev-copilot/infrastructure/embedding"
	"dev-copilot/infrastructure/synthesizer"
	"dev-copilot/infrastructure/vectorstore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "dev-copilot",
		Short: "Answer natural-language questions about a codebase",
		Long: `dev-copilot indexes a codebase into a vector index and answers
natural-language questions about it by retrieving the most relevant
code chunks and feeding them, with the question, to a language model.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the configuration file")

	root.AddCommand(newIndexCmd(&configPath))
	root.AddCommand(newAskCmd(&configPath))
	root.AddCommand(newChatCmd(&configPath))
	return root
}

func newIndexCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "index <directory>",
		Short: "Build the vector index from a source directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			embedder, err := embedding.NewOpenAIEmbeddingClient(&cfg.Embedder)
			if err != nil {
				return err
			}
			index, err := newVectorIndex(cfg)
			if err != nil {
				return err
			}

			service := application.NewIndexingService(domain.NewCodeChunker(), embedder, index, cfg)
			stats, err := service.IndexDirectory(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if persistent, ok := index.(domain.PersistentVectorIndex); ok {
				if err := persistent.Persist(cfg.Index.Path); err != nil {
					return fmt.Errorf("persisting index: %w", err)
				}
				log.Printf("Index persisted to %s\n", cfg.Index.Path)
			}

			fmt.Printf("Indexed %d chunks from %d files (%d skipped)\n",
				stats.Chunks, stats.FilesIndexed, stats.FilesSkipped)
			return nil
		},
	}
}

func newAskCmd(configPath *string) *cobra.Command {
	var (
		topK             int
		maxContextTokens int
		showContext      bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question about the indexed codebase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			queries, err := newQueryService(cfg)
			if err != nil {
				return err
			}

			query := domain.Query{
				Text:             args[0],
				TopK:             cfg.Retrieval.TopK,
				MaxContextTokens: cfg.Retrieval.MaxContextTokens,
			}
			if topK > 0 {
				query.TopK = topK
			}
			if maxContextTokens > 0 {
				query.MaxContextTokens = maxContextTokens
			}

			answer, result, err := queries.Ask(cmd.Context(), query)
			if err != nil {
				return err
			}

			fmt.Println(answer)
			if showContext {
				fmt.Println("\nRetrieved context:")
				for _, sc := range result.Chunks {
					fmt.Printf("  %.4f  %s:%d-%d\n", sc.Score, sc.Chunk.FilePath, sc.Chunk.StartLine, sc.Chunk.EndLine)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "number of chunks to retrieve (default from config)")
	cmd.Flags().IntVar(&maxContextTokens, "max-context-tokens", 0, "token budget for the assembled context (default from config)")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "print the retrieved chunks with their scores")
	return cmd
}

func newChatCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactively ask questions about the indexed codebase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			queries, err := newQueryService(cfg)
			if err != nil {
				return err
			}

			defaults := domain.Query{
				TopK:             cfg.Retrieval.TopK,
				MaxContextTokens: cfg.Retrieval.MaxContextTokens,
			}
			chat := application.NewChatService(queries, application.NewConsoleQuestionProvider(), defaults)
			return chat.Run(cmd.Context())
		},
	}
}

// newQueryService wires the query-time pipeline: embedder, loaded index,
// and synthesizer.
func newQueryService(cfg *config.Config) (*application.QueryService, error) {
	embedder, err := embedding.NewOpenAIEmbeddingClient(&cfg.Embedder)
	if err != nil {
		return nil, err
	}

	index, err := newVectorIndex(cfg)
	if err != nil {
		return nil, err
	}
	if persistent, ok := index.(domain.PersistentVectorIndex); ok {
		if err := persistent.Load(cfg.Index.Path); err != nil {
			if errors.Is(err, domain.ErrUnsupportedIndexVersion) {
				return nil, fmt.Errorf("%w (run 'dev-copilot index' to rebuild)", err)
			}
			return nil, fmt.Errorf("loading index from %s (run 'dev-copilot index' first): %w", cfg.Index.Path, err)
		}
	}

	synth, err := synthesizer.NewAnthropicClient(&cfg.Synthesizer)
	if err != nil {
		return nil, err
	}

	return application.NewQueryService(embedder, index, synth), nil
}

// newVectorIndex builds the configured index backend.
func newVectorIndex(cfg *config.Config) (domain.VectorIndex, error) {
	switch cfg.Index.Backend {
	case "linear":
		return vectorstore.NewLinearIndex(cfg.Embedder.Dimensions), nil
	case "hnsw":
		return vectorstore.NewHNSWIndex(cfg.Embedder.Dimensions, cfg.Index.M, cfg.Index.EfSearch), nil
	case "qdrant":
		return vectorstore.NewQdrantIndex(cfg.Index.Qdrant.Addr, cfg.Index.Qdrant.Collection, cfg.Embedder.Dimensions)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}
