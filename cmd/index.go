package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagehq/sage/internal/app"
	"github.com/sagehq/sage/internal/knowledge"
)

var indexExtensions []string

var indexCmd = &cobra.Command{
	Use:   "index <path>...",
	Short: "Ingest documents into the knowledge base",
	Long: `Index local files or directories into the knowledge base.

Directories are walked recursively, honoring .gitignore. Supported file
types by default: .txt, .md, .html, .json, .yaml, .yml.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd.Context(), args)
	},
}

func init() {
	indexCmd.Flags().StringSliceVar(&indexExtensions, "ext", nil,
		"file extensions to index (e.g. --ext .txt,.md), overrides the defaults")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(ctx context.Context, paths []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	indexer := knowledge.NewIndexer(a.Knowledge, indexExtensions)

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("inspecting %s: %w", path, err)
		}

		if info.IsDir() {
			result, err := indexer.AddDirectory(ctx, path)
			if err != nil {
				return fmt.Errorf("indexing %s: %w", path, err)
			}
			fmt.Printf("%s: %d files indexed, %d passages, %d skipped, %d failed (%s)\n",
				path, result.FilesAdded, result.PassagesAdded,
				result.FilesSkipped, result.FilesFailed, result.Duration.Round(timeUnit))
			continue
		}

		passages, err := indexer.AddFile(ctx, path)
		if err != nil {
			return fmt.Errorf("indexing %s: %w", path, err)
		}
		fmt.Printf("%s: %d passages\n", path, passages)
	}

	total, err := a.Knowledge.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting passages: %w", err)
	}
	fmt.Printf("knowledge base now holds %d passages\n", total)
	return nil
}
