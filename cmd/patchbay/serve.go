package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/patchbay/internal/cli"
	"github.com/aretw0/patchbay/internal/metrics"
	"github.com/aretw0/patchbay/internal/runtime"
	httpadapter "github.com/aretw0/patchbay/pkg/adapters/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve [patch.yaml]",
	Short: "Run the engine with the HTTP control API",
	Long: `Starts the engine on a simulated device and exposes the patch over HTTP:
REST editing, an SSE event stream at /events and Prometheus metrics at
/metrics. The stored patch is saved on shutdown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.HTTP.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}
		autoCommit, _ := cmd.Flags().GetBool("auto-commit")
		debug, _ := cmd.Flags().GetBool("debug")

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		stack, err := cli.NewStack(sc.Context, cfg, logger, debug)
		if err != nil {
			return err
		}
		defer stack.Close()
		host := stack.Host

		patchPath := ""
		if len(args) > 0 {
			patchPath = args[0]
		}
		if err := cli.LoadPatch(sc.Context, host, patchPath, logger); err != nil {
			return err
		}
		if err := host.Graph.Commit(); err != nil {
			return err
		}

		registry := metrics.NewRegistry(metrics.NewCollector(host.Graph.Name(), host.Engine, host.Graph))
		opts := []httpadapter.Option{
			httpadapter.WithCatalog(host.Registry),
			httpadapter.WithStats(host.Engine),
			httpadapter.WithEvents(host.Graph.Events()),
			httpadapter.WithAutoCommit(autoCommit),
			httpadapter.WithMetrics(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
			httpadapter.WithLogger(logger),
		}
		if cfg.HTTP.JWTSecret != "" {
			opts = append(opts, httpadapter.WithAuth([]byte(cfg.HTTP.JWTSecret)))
		} else {
			logger.Warn("HTTP API is unauthenticated; set http.jwt_secret to require tokens")
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           httpadapter.NewHandler(host.Graph, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		driver := host.NewDriver(
			runtime.WithChannels(cfg.Audio.Inputs, cfg.Audio.Outputs),
			runtime.WithDriverLogger(logger),
		)
		driverDone := make(chan error, 1)
		go func() { driverDone <- driver.Run(sc.Context) }()

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("patchbay server listening", "addr", addr, "patch", host.Graph.Name())
			serverErrors <- srv.ListenAndServe()
		}()

		var serveErr error
		select {
		case err := <-serverErrors:
			serveErr = fmt.Errorf("server error: %w", err)
			sc.Cancel()
		case <-sc.Done():
			logger.Info("shutting down", "signal", sc.Signal())
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				_ = srv.Close()
			}
		}
		serveErr = errors.Join(serveErr, <-driverDone)

		if name := host.Graph.Name(); cfg.Patch != "" && name != "" {
			if err := host.Save(context.Background(), name); err != nil {
				serveErr = errors.Join(serveErr, fmt.Errorf("save %q: %w", name, err))
			} else {
				logger.Info("patch saved", "name", name)
			}
		}
		return serveErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides http.addr)")
	serveCmd.Flags().Bool("auto-commit", true, "Publish a new render sequence after every edit")
	serveCmd.Flags().Bool("debug", false, "Log every node and sequence change")
}
