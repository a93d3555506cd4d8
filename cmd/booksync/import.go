package main

import (
	"booksync/internal/adapters/source"
	"booksync/internal/adapters/tracker"
	"booksync/internal/core/service"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newImportCommand(opts *rootOptions) *cobra.Command {
	var libraryID int64

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import new and updated books from the OPDS catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.cfg.OPDS.BaseURL == "" {
				return fmt.Errorf("BS_OPDS_BASE_URL is required for import")
			}
			if libraryID <= 0 {
				return fmt.Errorf("--library must be positive")
			}

			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			state, err := tracker.NewFileStateStore(opts.cfg.StateFilePath)
			if err != nil {
				return fmt.Errorf("failed to initialize state: %w", err)
			}

			logger := opts.logger.Named("import")
			src := source.NewOPDSAdapter(opts.cfg.OPDS.BaseURL, opts.cfg.OPDS.Username, opts.cfg.OPDS.Password, libraryID,
				source.WithLogger(logger.Named("opds")),
			)
			worker := service.NewImportWorker(opts.cfg.OPDS, src, store, state, service.WithImportLogger(logger))

			report, err := worker.Run(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("import finished",
				zap.Int("fetched", report.Fetched),
				zap.Int("imported", report.Imported),
				zap.Int("failed", report.Failed),
				zap.Int64("watermark", report.Watermark),
			)
			return nil
		},
	}

	cmd.Flags().Int64Var(&libraryID, "library", 1, "library the imported books belong to")

	return cmd
}
