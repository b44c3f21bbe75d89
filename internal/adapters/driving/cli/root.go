// Package cli implements the coachkb command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillon/coachkb/internal/adapters/driven/config/file"
	"github.com/quillon/coachkb/internal/adapters/driven/embedding/ollama"
	"github.com/quillon/coachkb/internal/adapters/driven/embedding/openai"
	"github.com/quillon/coachkb/internal/adapters/driven/source/filesystem"
	"github.com/quillon/coachkb/internal/adapters/driven/storage/sqlite"
	vectormemory "github.com/quillon/coachkb/internal/adapters/driven/vectorindex/memory"
	"github.com/quillon/coachkb/internal/adapters/driven/vectorindex/qdrant"
	"github.com/quillon/coachkb/internal/chunker"
	"github.com/quillon/coachkb/internal/core/ports/driven"
	"github.com/quillon/coachkb/internal/core/ports/driving"
	"github.com/quillon/coachkb/internal/core/services"
	"github.com/quillon/coachkb/internal/logger"
	"github.com/quillon/coachkb/internal/parser"
)

// version is set at build time via -ldflags.
var version = "dev"

// Persistent flags.
var (
	configPath string
	verbose    bool
)

// Services wired by initApp and consumed by the subcommands.
var (
	syncOrchestrator driving.SyncOrchestrator
	retrievalService driving.RetrievalService
	auditService     driving.AuditService
	healthService    driving.HealthService
	metadataStore    driven.MetadataStore
	watchSource      driven.WatchableSource

	appConfig *file.Config
	closers   []io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "coachkb",
	Short: "Knowledge base sync and retrieval for contact-centre coaching",
	Long: `coachkb keeps a versioned corpus of policy and coaching documents
synchronised into a vector index and serves filtered, audited retrieval
queries over the active versions.`,
	SilenceUsage:      true,
	PersistentPreRunE: initApp,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.coachkb/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// Execute runs the CLI.
func Execute() error {
	defer closeApp()
	return rootCmd.Execute()
}

// initApp loads configuration and wires the service graph. Commands that
// need no services (version, help) skip it.
func initApp(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	switch cmd.Name() {
	case "version", "help", "completion":
		return nil
	}

	path := configPath
	if path == "" {
		var err error
		path, err = file.DefaultPath()
		if err != nil {
			return err
		}
	}
	cfg, err := file.Load(path)
	if err != nil {
		return err
	}
	appConfig = cfg
	logger.Debug("Config loaded from %s", path)

	store, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening metadata store: %w", err)
	}
	closers = append(closers, store)
	metadataStore = store.MetadataStore()

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	closers = append(closers, closerFunc(embedder.Close))

	index, err := buildIndex(cmd.Context(), cfg, embedder.Dimensions())
	if err != nil {
		return err
	}
	closers = append(closers, closerFunc(index.Close))

	source, err := filesystem.NewSource(cfg.Source.Dir)
	if err != nil {
		return fmt.Errorf("opening document source: %w", err)
	}
	watchSource = source

	syncOrchestrator = services.NewSyncOrchestrator(
		source,
		parser.New(),
		chunker.New(),
		embedder,
		metadataStore,
		index,
		store.LeaseStore(),
		services.WithConcurrency(cfg.Sync.Concurrency),
		services.WithLeaseTTL(cfg.LeaseTTL()),
	)

	retrieval := services.NewRetrievalService(
		embedder,
		index,
		metadataStore,
		store.RetrievalLogStore(),
		services.WithDefaultK(cfg.Retrieval.K),
		services.WithMinScore(cfg.Retrieval.MinScore),
		services.WithTimeout(cfg.RetrievalTimeout()),
	)
	retrievalService = retrieval
	auditService = retrieval

	healthService = services.NewHealthService(metadataStore, index)

	return nil
}

func buildEmbedder(cfg *file.Config) (driven.EmbeddingService, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return openai.NewEmbeddingService(openai.Config{
			APIKey:     os.Getenv(cfg.Embedding.APIKeyEnv),
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
	case "ollama":
		return ollama.NewEmbeddingService(ollama.Config{
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func buildIndex(ctx context.Context, cfg *file.Config, dimensions int) (driven.VectorIndex, error) {
	switch cfg.Vector.Provider {
	case "qdrant":
		if ctx == nil {
			ctx = context.Background()
		}
		setupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		idx, err := qdrant.NewIndex(setupCtx, qdrant.Config{
			URL:        cfg.Vector.URL,
			APIKey:     os.Getenv(cfg.Vector.APIKeyEnv),
			Collection: cfg.Vector.Collection,
			Dimensions: dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		return idx, nil
	case "memory":
		// Volatile; only useful together with a fresh sync in the same
		// process or for experiments.
		return vectormemory.NewIndex(), nil
	default:
		return nil, fmt.Errorf("unknown vector provider %q", cfg.Vector.Provider)
	}
}

func closeApp() {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Warn("Close failed: %v", err)
		}
	}
	closers = nil
}

// closerFunc adapts a close function to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }
