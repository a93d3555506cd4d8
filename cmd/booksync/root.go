package main

import (
	"booksync/internal/adapters/bunstore"
	"booksync/internal/adapters/cache"
	"booksync/internal/config"
	"booksync/internal/core/service"
	"booksync/internal/logging"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// rootOptions carries what every subcommand needs once PersistentPreRunE has run.
type rootOptions struct {
	configFile string
	v          *viper.Viper

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:           "booksync",
		Short:         "Incremental ebook library sync for e-reader devices",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.v.BindPFlag("log_level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
				return err
			}
			if err := opts.v.BindPFlag("database_dsn", cmd.Root().PersistentFlags().Lookup("db")); err != nil {
				return err
			}
			cfg, err := config.Load(opts.v, opts.configFile)
			if err != nil {
				return err
			}
			logger, err := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogEncoding)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cfg := config.Default()
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (yaml, toml or json)")
	cmd.PersistentFlags().String("log-level", cfg.LogLevel, "log level (debug|info|warn|error)")
	cmd.PersistentFlags().String("db", cfg.DatabaseDSN, "sqlite data source name")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newDeviceCommand(opts))
	cmd.AddCommand(newShelfCommand(opts))

	return cmd
}

func (o *rootOptions) openStore() (*bunstore.BunStore, error) {
	store, err := bunstore.Open(o.cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// newSyncService wires the cycle orchestrator onto the store. The catalog
// cache is only enabled with a positive TTL, since imports running in another
// process never purge it.
func newSyncService(store *bunstore.BunStore, cfg *config.Config, logger *zap.Logger) (*service.SyncService, error) {
	formats, err := cfg.Sync.Formats()
	if err != nil {
		return nil, err
	}

	svcOpts := []service.Opt{
		service.WithLogger(logger.Named("sync")),
		service.WithConfig(service.SyncConfig{
			BookCap:         cfg.Sync.BookCap,
			ReadingStateCap: cfg.Sync.ReadingStateCap,
			CatalogPageSize: cfg.Sync.CatalogPageSize,
			CatalogMaxPages: cfg.Sync.CatalogMaxPages,
			ReadableFormats: formats,
		}),
	}
	if cfg.Sync.CatalogCacheTTL > 0 {
		listings, err := cache.NewCatalogCache(cfg.Sync.CatalogCacheSize, cfg.Sync.CatalogCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create catalog cache: %w", err)
		}
		svcOpts = append(svcOpts, service.WithCatalogCache(listings))
		logger.Info("catalog cache enabled",
			zap.Int("size", cfg.Sync.CatalogCacheSize),
			zap.Duration("ttl", cfg.Sync.CatalogCacheTTL),
		)
	}

	return service.NewSyncService(service.SyncStores{
		Catalog:   store,
		States:    store,
		Delivered: store,
		Archive:   store,
		Shelves:   store,
	}, svcOpts...), nil
}
