package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/shame-alarm/backend/internal/app"
	"github.com/zhouzirui/shame-alarm/backend/internal/config"
	"github.com/zhouzirui/shame-alarm/backend/internal/handler"
	shamehandler "github.com/zhouzirui/shame-alarm/backend/internal/handler/shame"
	"github.com/zhouzirui/shame-alarm/backend/internal/logging"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/live"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/session"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/shame"
	"github.com/zhouzirui/shame-alarm/backend/internal/service/stats"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	supabaseClient, err := app.NewSupabaseClient(cfg.Supabase)
	if err != nil {
		return err
	}

	backend, err := app.NewStatsBackend(cfg.Store, supabaseClient)
	if err != nil {
		return err
	}
	statsSvc := stats.NewService(backend,
		stats.WithLocation(cfg.Store.Location),
		stats.WithTimeout(cfg.Session.StatsTimeout),
		stats.WithLogger(logger.Named("stats")),
	)
	defer statsSvc.Close()
	logger.Info("stats store ready", zap.String("type", cfg.Store.Type))

	generator, err := shame.NewFromConfig(ctx, cfg, logger.Named("shame"))
	if err != nil {
		return err
	}

	resolver, err := app.NewResolver(cfg.Auth, supabaseClient, logger)
	if err != nil {
		return err
	}

	hub := live.NewHub(logger.Named("live"))
	registry := session.NewRegistry(app.NewControllerFactory(ctx, app.ControllerDeps{
		Hub:        hub,
		Generator:  generator,
		Stats:      statsSvc,
		MaxMinutes: cfg.Session.MaxMinutes,
		Logger:     logger,
	}))
	defer registry.Close()

	router := handler.NewRouter(handler.Deps{
		Resolver:  resolver,
		Registry:  registry,
		Hub:       hub,
		Stats:     statsSvc,
		Generator: generator,
		Providers: shamehandler.Providers{Text: shame.TextProvider(cfg), Speech: shame.TTSProvider(cfg)},
		Logger:    logger,
	})

	return startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("Shame Alarm backend listening", zap.String("addr", addr))
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
