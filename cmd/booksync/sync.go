package main

import (
	"booksync/internal/adapters/destination"
	"booksync/internal/adapters/tracker"
	"booksync/internal/core/domain/models"
	"booksync/internal/core/service"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	var (
		deviceToken string
		maxCycles   int
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Drain pending changes for a device and print them as JSON lines",
		Long: `Runs sync cycles for a registered device until it is caught up, writing
each entry to stdout. The cursor is kept in the state file, so the next run
only reports what changed since.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			device, err := store.ResolveDevice(cmd.Context(), deviceToken)
			if err != nil {
				return fmt.Errorf("failed to resolve device: %w", err)
			}

			state, err := tracker.NewFileStateStore(opts.cfg.StateFilePath)
			if err != nil {
				return fmt.Errorf("failed to initialize state: %w", err)
			}

			syncer, err := newSyncService(store, opts.cfg, opts.logger)
			if err != nil {
				return err
			}

			logger := opts.logger.Named("drain")
			worker := service.NewDrainWorker(syncer, state, destination.NewWriterSink(cmd.OutOrStdout()),
				service.WithDrainLogger(logger),
				service.WithMaxCycles(maxCycles),
			)
			report, err := worker.Drain(cmd.Context(), models.SyncRequest{
				UserID:         device.UserID,
				LibraryID:      device.LibraryID,
				ScopeToShelves: device.ScopeToShelves,
			})
			if err != nil {
				return err
			}

			logger.Info("device caught up",
				zap.String("device", device.Name),
				zap.Int("cycles", report.Cycles),
				zap.Int("entries", report.Entries),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&deviceToken, "device", "", "device token (required)")
	cmd.Flags().IntVar(&maxCycles, "max-cycles", 1000, "give up after this many cycles (0 for no limit)")
	_ = cmd.MarkFlagRequired("device")

	return cmd
}
