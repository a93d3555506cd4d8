package main

import (
	"booksync/internal/adapters/kobo"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the device sync API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			syncer, err := newSyncService(store, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			handler := kobo.NewServer(kobo.Deps{
				Syncer:  syncer,
				Devices: store,
				Catalog: store,
				States:  store,
				Archive: store,
			},
				kobo.WithLogger(opts.logger.Named("http")),
				kobo.WithRequestTimeout(opts.cfg.RequestTimeout),
			).RegisterRoutes()

			ln, err := net.Listen("tcp", opts.cfg.HTTPAddr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", opts.cfg.HTTPAddr, err)
			}
			srv := &http.Server{
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}
			return serve(ctx, ln, srv, opts.cfg.ShutdownTimeout, opts.logger)
		},
	}
}

// serve runs srv on ln until ctx is cancelled or the server fails, then shuts
// it down within shutdownTimeout.
func serve(ctx context.Context, ln net.Listener, srv *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.Duration("timeout", shutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}
