package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wavyrai/rm-mcp/internal/adapters/cloud"
	"github.com/wavyrai/rm-mcp/internal/adapters/extract"
	mcpadapter "github.com/wavyrai/rm-mcp/internal/adapters/mcp"
	"github.com/wavyrai/rm-mcp/internal/adapters/sqlite"
	"github.com/wavyrai/rm-mcp/internal/application"
	"github.com/wavyrai/rm-mcp/internal/config"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "rm-mcp",
	Short: "MCP server for a reMarkable tablet's cloud library",
	Long: `rm-mcp mirrors a reMarkable cloud library for AI agents over the
Model Context Protocol: browse folders, read extracted document text,
and search everything that has been read.

Configuration is taken from REMARKABLE_* environment variables;
REMARKABLE_TOKEN is required. Without a subcommand the server speaks
MCP on stdin/stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// services is everything a subcommand needs, plus the teardown.
type services struct {
	mcpadapter.Services
	close func()
}

// buildServices loads configuration and wires the full stack. Stdout carries
// the MCP transport, so all logging goes to stderr.
func buildServices(ctx context.Context) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	client, err := cloud.New(cfg.Token, cloud.Options{
		Attempts: cfg.RetryAttempts,
		Workers:  cfg.Workers,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("cloud client: %w", err)
	}

	db, recreated, err := sqlite.Open(cfg.IndexPath, log)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.IndexPath, err)
	}
	store, err := sqlite.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	index := sqlite.NewIndex(db)

	engine := application.NewSyncEngine(client, cfg.CacheTTL, log)
	paths := application.NewPathResolver(engine, cfg.RootPath)
	search := application.NewSearchService(engine, index, store, paths, log)
	cache := application.NewCacheStore(application.CacheDeps{
		Sync:    engine,
		Remote:  client,
		Store:   store,
		Index:   index,
		Paths:   paths,
		Extract: extract.New(log),
		Render:  extract.NewRenderer(),
		Logger:  log,
	})

	if cfg.RebuildIndex || recreated {
		if n, err := search.Rebuild(ctx); err != nil {
			log.Warn("index rebuild failed, continuing with empty index", "err", err)
		} else {
			log.Info("index rebuilt on startup", "documents", n)
		}
	}

	return &services{
		Services: mcpadapter.Services{
			Resolver: paths,
			Cache:    cache,
			Search:   search,
			Sync:     engine,
			Config:   cfg,
			Log:      log,
		},
		close: func() {
			store.Close()
			db.Close()
		},
	}, nil
}
