package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"docvet/internal/logging"
	"docvet/internal/rpc"
	"docvet/internal/server"
)

var serveHTTPAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON-RPC server",
	Long: `Starts the docvet server on stdio: newline-delimited JSON-RPC 2.0 requests
on stdin, one response line per request on stdout.

With http.enabled in the config (or --http ADDR) the same dispatcher is
also served on POST /rpc with a WebSocket at /ws, a health probe at
/healthz, and Prometheus metrics at /metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http", "", "Also serve HTTP on this address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if serveHTTPAddr != "" {
		cfg.HTTP.Enabled = true
		cfg.HTTP.Addr = serveHTTPAddr
	}

	s, err := server.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	var metrics *rpc.Metrics
	if cfg.HTTP.Enabled && cfg.HTTP.Metrics {
		metrics = rpc.NewMetrics()
	}
	d := s.Dispatcher(metrics)

	var httpSrv *rpc.HTTPServer
	if cfg.HTTP.Enabled {
		httpSrv = rpc.NewHTTPServer(cfg.HTTP.Addr, rpc.NewAsync(d, cfg.Server.AsyncWorkers), metrics)
		go func() {
			if err := httpSrv.Start(); err != nil {
				logging.HTTP("http server failed: %v", err)
				cancel()
			}
		}()
		logging.Server("http listening on %s", cfg.HTTP.Addr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Server("received shutdown signal")
		cancel()
	}()

	stdioDone := make(chan error, 1)
	go func() {
		stdioDone <- rpc.ServeStdio(ctx, d, os.Stdin, os.Stdout)
	}()

	select {
	case err = <-stdioDone:
		if err == nil && httpSrv != nil {
			// stdin closed but the HTTP surface is up; stay alive until a
			// signal arrives.
			<-ctx.Done()
		}
	case <-ctx.Done():
		// Signal during a blocked stdin read; the read ends with the
		// process.
		err = nil
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
			logging.HTTP("http shutdown failed: %v", serr)
		}
	}
	return err
}
