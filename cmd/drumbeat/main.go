// Command drumbeat serves linked building data collections over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/systemshift/drumbeat/internal/server/api"
	"github.com/systemshift/drumbeat/internal/server/config"
	"github.com/systemshift/drumbeat/internal/server/graph"
	"github.com/systemshift/drumbeat/internal/server/ingest"
	"github.com/systemshift/drumbeat/internal/server/logging"
	"github.com/systemshift/drumbeat/internal/server/managers"
	"github.com/systemshift/drumbeat/internal/server/media"
	"github.com/systemshift/drumbeat/internal/server/metrics"
	"github.com/systemshift/drumbeat/internal/server/subscriptions"
	"github.com/systemshift/drumbeat/internal/server/tracing"
)

const (
	Version = "0.1.0"
	appName = "drumbeat"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Linked building data REST server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	serve.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.AddCommand(serve)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func run(cfg *config.Config) error {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	var store graph.Store
	store, err = openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())
	logger.Info("Connected to triple store", zap.String("backend", cfg.Store.Backend))

	var tracer *tracing.TracerProvider
	if cfg.Tracing.Enabled {
		tracer, err = tracing.InitTracing(ctx, appName, cfg.Tracing.Endpoint, cfg.Tracing.Insecure)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := tracer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Flushing spans failed", zap.Error(err))
			}
		}()
		store = tracing.TraceStore(store, tracer.Tracer())
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(appName)
		store = collector.InstrumentStore(store)
	}

	b := managers.NewBase(store, managers.NewNaming(cfg.BaseURI), cfg.MetadataGraph, logger)
	dataSets := managers.NewDataSetManager(b)

	subMgr := subscriptions.NewManager(
		subscriptions.NewStoreRepository(store, b.Metadata, cfg.BaseURI),
		subscriptions.NewNotifier(nil, logger),
		logger,
	)
	if err := subMgr.Start(ctx); err != nil {
		return fmt.Errorf("starting subscription manager: %w", err)
	}
	defer subMgr.Stop()

	uploadOpts := []ingest.Option{ingest.WithLogger(logger), ingest.WithEvents(subMgr)}
	if collector != nil {
		uploadOpts = append(uploadOpts, ingest.WithObserver(collector.ObserveUpload))
	}
	uploads := ingest.NewService(store, dataSets, ingest.Config{
		Dir:            cfg.Uploads.Dir,
		Save:           cfg.Uploads.Save,
		ServerFileRoot: cfg.Uploads.ServerFileRoot,
		FetchTimeout:   cfg.Uploads.FetchTimeout,
		MaxBytes:       cfg.Uploads.MaxBytes,
	}, uploadOpts...)

	apiServer := api.New(api.Deps{
		Collections:   managers.NewCollectionManager(b),
		DataSources:   managers.NewDataSourceManager(b),
		DataSets:      dataSets,
		Objects:       managers.NewDataSetObjectManager(b, dataSets),
		Uploads:       uploads,
		Converter:     media.NewConverter(cfg.BaseURI),
		Subscriptions: subMgr,
		Logger:        logger,
	})

	// Middleware
	mw := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.RealIP,
		logging.Middleware(logger),
		middleware.Recoverer,
	}
	if collector != nil {
		mw = append(mw, collector.Middleware)
	}
	if tracer != nil {
		mw = append(mw, tracing.Middleware(tracer.Tracer()))
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		mw = append(mw, cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}
	r := apiServer.Routes(mw...)
	if collector != nil {
		r.Handle("/metrics", collector.Handler())
	}

	// HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting drumbeat server",
			zap.String("address", cfg.Server.Address),
			zap.String("baseUri", cfg.BaseURI))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}
