package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/specd/internal/config"
	"github.com/fyrsmithlabs/specd/internal/embeddings"
	"github.com/fyrsmithlabs/specd/internal/logging"
	"github.com/fyrsmithlabs/specd/internal/retrieval"
)

var (
	indexConfigPath string
	indexCollection string
	indexBatchSize  int
)

// indexCmd indexes a directory of source files into the vector store.
// It writes to the store directly rather than through the server, so it
// can run while specd is down.
var indexCmd = &cobra.Command{
	Use:   "index <directory>",
	Short: "Index a codebase directory into the vector store",
	Long: `Walk a directory, read its text files, and index them into the
configured vector store so the extraction pipeline can retrieve them.

The collection name defaults to the directory's base name.

Examples:
  # Index a codebase
  specctl index ~/src/shop-backend

  # Index under an explicit collection name
  specctl index --collection shop-backend ~/src/shop-backend/services`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexConfigPath, "config", "", "path to specd YAML config file")
	indexCmd.Flags().StringVar(&indexCollection, "collection", "", "collection name (default: directory base name)")
	indexCmd.Flags().IntVar(&indexBatchSize, "batch-size", 32, "documents per embedding batch")
}

// indexable file extensions: source, config, and build files.
var indexableExts = map[string]bool{
	".go": true, ".java": true, ".py": true, ".js": true, ".ts": true,
	".rb": true, ".php": true, ".cs": true, ".kt": true, ".scala": true,
	".sql": true, ".yaml": true, ".yml": true, ".json": true, ".xml": true,
	".properties": true, ".toml": true, ".ini": true, ".env": true,
	".gradle": true, ".tf": true, ".sh": true, ".md": true,
}

const maxIndexFileSize = 512 * 1024 // 512KB

// runIndex handles the index command
func runIndex(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving directory: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("reading directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}

	collection := indexCollection
	if collection == "" {
		collection = filepath.Base(root)
	}

	cfg, err := config.Load(indexConfigPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	embedder, err := embeddings.NewService(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("initializing embeddings: %w", err)
	}
	store, err := retrieval.New(cfg.Retrieval, embedder, logger)
	if err != nil {
		return fmt.Errorf("initializing retrieval: %w", err)
	}

	var batch []retrieval.Document
	indexed := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := store.Add(cmd.Context(), collection, batch); err != nil {
			return err
		}
		indexed += len(batch)
		batch = batch[:0]
		return nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// skip VCS and dependency directories
			switch d.Name() {
			case ".git", "node_modules", "vendor", "target", ".idea":
				return filepath.SkipDir
			}
			return nil
		}
		if !indexableExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		fi, err := d.Info()
		if err != nil || fi.Size() > maxIndexFileSize {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", path, err)
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}

		batch = append(batch, retrieval.Document{
			ID:         rel,
			Content:    string(content),
			SourcePath: rel,
		})
		if len(batch) >= indexBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("indexing %s: %w", root, err)
	}
	if err := flush(); err != nil {
		return fmt.Errorf("indexing %s: %w", root, err)
	}

	fmt.Printf("Indexed %d files into collection %q\n", indexed, collection)
	return nil
}
