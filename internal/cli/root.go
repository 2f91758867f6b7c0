// Package cli implements the kbindex CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kbindex/internal/chunker"
	"kbindex/internal/config"
	"kbindex/internal/index"
)

var dbPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "kbindex",
	Short: "Document indexing and ranked retrieval for a knowledge base",
	Long:  "Indexes PDF, Word, Markdown, and plain-text documents into a searchable SQLite store and serves BM25+activation ranked retrieval.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $KBINDEX_DB or config)")
}

func loadConfig() *config.Config {
	cfg, err := config.LoadDefault()
	if err != nil {
		exitErr("load config", err)
	}
	if env := os.Getenv("KBINDEX_DB"); env != "" {
		cfg.DBPath = env
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg
}

func openIndexer() *index.Indexer {
	cfg := loadConfig()
	ix, err := index.New(index.Config{
		DBPath: cfg.DBPath,
		Chunker: chunker.Options{
			MaxChunkSize: cfg.Chunker.MaxChunkSize,
			Overlap:      cfg.Chunker.Overlap,
		},
		Weight: cfg.Search.Weight,
		Decay:  cfg.Search.Decay,
	})
	if err != nil {
		exitErr("open index", err)
	}
	return ix
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
