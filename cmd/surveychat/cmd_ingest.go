package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"surveychat/internal/codebook"
)

var ingestSource string

var ingestCmd = &cobra.Command{
	Use:   "ingest [codebook-file...]",
	Short: "Load codebook documentation into the passage store",
	Long: `Splits each file into passages, embeds them, and stores them for
retrieval. Re-ingesting a file replaces its previous passages.

Example:
  surveychat ingest docs/ess_codebook.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "Source label (default: file name)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("cannot ingest: %w", err)
	}
	defer store.Close()

	total := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		passages := codebook.SplitPassages(string(data))
		if len(passages) == 0 {
			logger.Warn("no passages found", zap.String("file", path))
			continue
		}

		source := ingestSource
		if source == "" {
			source = filepath.Base(path)
		}

		n, err := store.Ingest(ctx, passages, source)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		logger.Info("Ingested codebook file",
			zap.String("file", path),
			zap.String("source", source),
			zap.Int("passages", n))
		fmt.Printf("%s: %d passages\n", path, n)
		total += n
	}

	fmt.Printf("Done. %d passages stored in %s\n", total, cfg.Retrieval.DatabasePath)
	return nil
}
