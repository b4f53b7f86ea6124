package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Wire the store and engine and serve Prometheus metrics until signaled",
	Long: `serve opens the configured store, builds the engine (and with it
the initial graph cache), and mounts /metrics on server.metrics_addr. It
is the long-running counterpart to the one-shot admin commands: a
process that holds the engine and its cache in memory so application
plumbing embedding ledgerd in the same binary, or a sidecar scraping
metrics, has something to talk to. ledgerd itself exposes no payment RPC
surface; that is left to the embedding application (spec.md §6).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := loadProvider()
		if err != nil {
			return err
		}

		// Force the engine (and its store/cache) to wire eagerly rather
		// than on first use, so a broken store fails fast at startup.
		if _, err := provider.GetEngine(); err != nil {
			return fmt.Errorf("serve: wiring engine: %w", err)
		}
		store, err := provider.GetStore()
		if err != nil {
			return err
		}
		defer store.Close()

		metrics, err := provider.GetMetrics()
		if err != nil {
			return err
		}

		addr := provider.GetConfig().Server.MetricsAddr
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}

		errCh := make(chan error, 1)
		go func() {
			fmt.Printf("serving metrics on %s/metrics\n", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			fmt.Printf("received %s, shutting down\n", sig)
		case err := <-errCh:
			return fmt.Errorf("serve: metrics server: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
