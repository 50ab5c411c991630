package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vjranagit/tsengine/internal/config"
	"github.com/vjranagit/tsengine/internal/logging"
	"github.com/vjranagit/tsengine/pkg/api"
	"github.com/vjranagit/tsengine/pkg/metrics"
	"github.com/vjranagit/tsengine/pkg/service"
	"github.com/vjranagit/tsengine/pkg/storage"
)

const (
	version = "0.1.0"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger, level := logging.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	slog.SetDefault(logger)

	logger.Info("starting tsengine",
		slog.String("version", version),
		slog.String("listen_addr", cfg.Server.ListenAddr),
		slog.String("storage_path", cfg.Storage.Path),
		slog.Bool("in_memory", cfg.Storage.InMemory),
		slog.Int("retention_days", cfg.Storage.RetentionDays),
		slog.Int("compression_level", cfg.Storage.CompressionLevel))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	store, err := storage.NewStorage(cfg.ToStorageConfig())
	if err != nil {
		logger.Error("failed to initialize storage", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Cache.Enabled {
		store = storage.NewCachedStorage(store, cfg.Cache.Capacity, cfg.Cache.TTL)
	}
	if err := metrics.RegisterStorage(reg, store); err != nil {
		logger.Error("failed to register storage metrics", slog.Any("error", err))
		store.Close()
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close storage", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, logger, func(next *config.Config) {
				level.Set(logging.ParseLevel(next.Logging.Level))
				logger.Info("log level updated", slog.String("level", next.Logging.Level))
			})
			if err != nil {
				logger.Warn("config watch stopped", slog.Any("error", err))
			}
		}()
	}

	svc := service.NewTimeSeriesService(logger, store)
	server := api.NewServer(api.Config{
		Addr:         cfg.Server.ListenAddr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, svc, reg, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server listening", slog.String("addr", cfg.Server.ListenAddr))
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping server")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped")
}
