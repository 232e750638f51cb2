package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/slidedeck/explainer/internal/api"
	"github.com/slidedeck/explainer/internal/service"
)

var noWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background worker",
	Long: `Run the upload/status HTTP API. The background worker runs in the same
process unless --no-worker is given, in which case a separate "explainer worker"
process must share the storage directory and the file ledger.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noWorker, "no-worker", false, "serve the API only")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signalContext()
	defer stop()

	var (
		view service.LedgerView = rt.ledger
		wg   sync.WaitGroup
	)
	if !noWorker {
		w := newWorker(cfg, rt, logger)
		// The worker's snapshot is authoritative even when a ledger save failed.
		view = w
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("worker exited")
			}
		}()
	}

	svc := service.New(rt.files, rt.registry, view, logger)
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(cfg, svc, logger),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 0, // status streams are long-lived
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr()).Str("node_id", cfg.NodeID).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("server: %w", err)
		}
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	wg.Wait()
	logger.Info().Msg("stopped")
	return nil
}
