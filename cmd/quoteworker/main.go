package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/quote-relay/internal/activation"
	"github.com/rickgao/quote-relay/internal/auth"
	"github.com/rickgao/quote-relay/internal/broadcast"
	"github.com/rickgao/quote-relay/internal/catalog"
	"github.com/rickgao/quote-relay/internal/config"
	"github.com/rickgao/quote-relay/internal/connection"
	"github.com/rickgao/quote-relay/internal/database"
	"github.com/rickgao/quote-relay/internal/health"
	"github.com/rickgao/quote-relay/internal/publish"
	"github.com/rickgao/quote-relay/internal/refdata"
	"github.com/rickgao/quote-relay/internal/resolver"
	"github.com/rickgao/quote-relay/internal/subscription"
	"github.com/rickgao/quote-relay/internal/version"
	"github.com/rickgao/quote-relay/internal/worker"
)

func main() {
	configPath := flag.String("config", "configs/quoteworker.local.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional .env file loaded before the config")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := config.LoadDotEnv(*envPath); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = newLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting quoteworker",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
		"mode", cfg.Engine.Mode,
		"publisher", cfg.Publisher.Backend,
	)
	if cfg.Engine.AllowSynthetic {
		logger.Warn("synthetic quotes enabled; unresolved symbols will be fabricated")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("quoteworker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("quoteworker stopped")
}

func run(ctx context.Context, cfg *config.WorkerConfig, logger *slog.Logger) error {
	creds, err := auth.NewCredentials(cfg.Provider.Login, cfg.Provider.Password, cfg.Provider.Server)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}

	conns := connection.NewManager(connection.ManagerConfig{
		RestURL:           cfg.Provider.RestURL,
		WSURL:             cfg.Provider.WSURL,
		APITimeout:        cfg.Provider.Timeout,
		APIRetries:        cfg.Provider.MaxRetries,
		CommandTimeout:    cfg.Engine.CallTimeout,
		TickMaxAge:        cfg.Provider.TickMaxAge,
		PingTimeout:       cfg.Provider.PingTimeout,
		ReconnectBaseWait: time.Second,
		ReconnectMaxWait:  cfg.Provider.ReconnectMax,
	}, database.Opener(cfg.Database.Reference), logger)

	calendar, err := catalog.NewCalendar(cfg.Engine.ExchangeTimezone)
	if err != nil {
		return err
	}
	symbols := catalog.New(catalog.DefaultConfig(), logger)

	act := activation.New(activation.Config{
		MaxRetries:  cfg.Engine.MaxActivationRetries,
		CallTimeout: cfg.Engine.CallTimeout,
		RetryPause:  time.Second,
		Concurrency: 4,
	}, logger)

	store := refdata.New(refdata.FromPoolOwner(conns), 10*time.Minute, logger)

	res := resolver.New(resolver.Config{
		CallTimeout:    cfg.Engine.CallTimeout,
		AllowSynthetic: cfg.Engine.AllowSynthetic,
		BasePrices:     cfg.Engine.BasePrices,
	}, act, symbols, store, logger)

	registry := subscription.New(logger)

	pub, err := publish.New(ctx, cfg.Publisher, logger)
	if err != nil {
		return fmt.Errorf("publisher: %w", err)
	}
	defer pub.Close()

	loop := broadcast.New(broadcast.Config{
		Interval:     cfg.Engine.PollInterval,
		ErrorBackoff: cfg.Engine.ErrorBackoff,
		Concurrency:  cfg.Engine.Concurrency,
	}, registry, res, pub, logger)

	w := worker.New(worker.Config{
		DefaultSymbols: cfg.Engine.DefaultSymbols,
		StopTimeout:    cfg.Engine.StopTimeout,
		Mode:           cfg.Engine.Mode,
		Version:        version.Version,
	}, worker.Deps{
		Connections: conns,
		Credentials: creds,
		Catalog:     symbols,
		Activation:  act,
		Resolver:    res,
		Registry:    registry,
		Loop:        loop,
		Calendar:    calendar,
	}, logger)

	// Status endpoints come up first so startup can be watched
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           newHandler(w, store, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting http server", "port", cfg.Server.HTTPPort)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	var grpcHealth *health.Server
	if cfg.Server.GRPCPort > 0 {
		grpcHealth, err = health.NewServer(health.Config{
			Addr:     fmt.Sprintf(":%d", cfg.Server.GRPCPort),
			Interval: cfg.Engine.PollInterval,
		}, w, logger)
		if err != nil {
			return err
		}
		grpcHealth.Start(ctx)
	}

	if err := w.Start(ctx); err != nil {
		shutdown(httpServer, grpcHealth, logger)
		return fmt.Errorf("start worker: %w", err)
	}

	logger.Info("quoteworker running",
		"instance_id", cfg.Instance.ID,
		"status_url", fmt.Sprintf("http://localhost:%d/status", cfg.Server.HTTPPort),
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*cfg.Engine.StopTimeout+5*time.Second)
	defer stopCancel()
	if err := w.Stop(stopCtx); err != nil {
		logger.Warn("worker stop failed", "error", err)
	}

	shutdown(httpServer, grpcHealth, logger)
	return nil
}

func shutdown(httpServer *http.Server, grpcHealth *health.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if grpcHealth != nil {
		if err := grpcHealth.Stop(ctx); err != nil {
			logger.Warn("grpc shutdown", "error", err)
		}
	}
}

// newLogger builds the process logger from config.
func newLogger(out io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}
