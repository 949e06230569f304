package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mkohler/loop/internal/clock"
	"github.com/mkohler/loop/internal/config"
	"github.com/mkohler/loop/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	store := server.NewStore(server.StoreConfig{
		Clock:   clock.Real(),
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Expiry:  cfg.RoomExpiry,
		MaxSize: cfg.RoomMaxSize,
	})
	hub := server.NewHub(store, cfg.PingPeriod, cfg.ReadLimit)
	limiter := server.NewRateLimiter(clock.Real(), cfg.CreateLimit, cfg.CreateInterval)
	go store.RunEviction(ctx, cfg.EvictInterval)

	r := server.SetupRouter(cfg, &server.API{Store: store, Hub: hub, Limiter: limiter})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("loopd started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
