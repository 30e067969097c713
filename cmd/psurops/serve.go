package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"psurops/internal/api"
	"psurops/internal/auth"
)

type serveOptions struct {
	host string
	port int
}

func newServeCmd(g *globalOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the psurops HTTP API. Operations are called with POST /tool,
records are browsable under /records, and change events stream to WebSocket
clients on /ws. Health, readiness and Prometheus metrics are served on /health,
/ready and /metrics.

Set server.authTokenHash (see "psurops token") to require a bearer token.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, g, opts)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "", "Host to bind to (overrides config)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "Port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, g *globalOptions, opts *serveOptions) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := openApp(ctx, g, true)
	if err != nil {
		return err
	}
	defer a.Close()

	sc := a.cfg.Server
	if opts.host != "" {
		sc.Host = opts.host
	}
	if opts.port != 0 {
		sc.Port = opts.port
	}

	limiter := auth.NewRateLimiter(auth.RateLimitConfig{Limit: sc.RateLimit, BurstSize: sc.RateBurst}, a.logger)
	if limiter.Enabled() {
		limiter.StartCleanup(ctx)
	}
	server := api.NewServer(sc, api.Deps{
		Dispatcher: a.dispatcher,
		Notifier:   a.notifier,
		Metrics:    a.metrics,
		Auth:       auth.NewAuthenticator(sc.AuthTokenHash, limiter, a.logger),
	}, a.logger)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	serverErr := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "psurops HTTP API listening on http://%s (storage: %s)\n", sc.Addr(), a.store.Backend().Name())
		fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		return err
	case sig := <-shutdown:
		a.logger.Info("Received shutdown signal", "signal", sig.String())
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Server stopped")
	return nil
}
