package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaysync/relaysync-api/internal/config"
	"github.com/relaysync/relaysync-api/internal/credential"
	"github.com/relaysync/relaysync-api/internal/db"
	"github.com/relaysync/relaysync-api/internal/httpapi"
	"github.com/relaysync/relaysync-api/internal/objectclass"
	"github.com/relaysync/relaysync-api/internal/storage"
	"github.com/relaysync/relaysync-api/internal/synccount"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "relaysync-api").Logger()

	cfg := config.MustLoad(os.Getenv("RELAYSYNC_CONFIG"))

	// Pretty logging for local dev (only when explicitly set to "dev")
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx := context.Background()

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{
		MaxConns:          cfg.PoolMaxConns,
		MinConns:          cfg.PoolMinConns,
		MaxConnLifetime:   cfg.PoolMaxConnLifetime,
		MaxConnIdleTime:   cfg.PoolMaxConnIdleTime,
		HealthCheckPeriod: cfg.PoolHealthCheckPeriod,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap schema")
	}

	gw := storage.New(pool)

	syncEngine, err := synccount.NewEngine(gw, cfg.SessionExpiryWindow)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct sync counter engine")
	}

	srv := &httpapi.Server{
		Config:     cfg,
		Gateway:    gw,
		Credential: credential.NewStore(gw),
		SyncEngine: syncEngine,
		Registry:   objectclass.Default(),
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
