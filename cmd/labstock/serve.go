package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"labstock/internal/adapters/inventory"
	"labstock/internal/backup"
	"labstock/internal/core"
	"labstock/internal/infra/persistence/csvfile"
)

func newServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the inventory HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			logger := newLogger(cfg)

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			registry := prometheus.NewRegistry()
			recorder, err := core.NewPrometheusMetricsRecorder(registry)
			if err != nil {
				return err
			}
			svc := newService(store, cfg, core.WithMetrics(recorder))

			handler := inventory.NewHandler(svc)
			if client := newLookup(cfg, logger); client != nil {
				handler.Lookup = client
			}
			target, err := openBackupTarget(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			handler.Backups = backup.NewService(store, target)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cfg.Watch {
				if fileStore, ok := store.(*csvfile.Store); ok {
					go func() {
						// Watch blocks until shutdown.
						err := fileStore.Watch(ctx, func(err error) {
							if err != nil {
								logger.Warn().Err(err).Msg("reload after external edit failed")
								return
							}
							logger.Info().Str("path", fileStore.Path()).Msg("reloaded data file after external edit")
						})
						if err != nil && !errors.Is(err, context.Canceled) {
							logger.Warn().Err(err).Msg("file watcher stopped")
						}
					}()
				}
			}

			server := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           inventory.NewMux(handler, logger, registry),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", cfg.ListenAddr).Str("storage", cfg.StorageDriver).Msg("inventory service listening")
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				logger.Info().Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides config)")
	return cmd
}
