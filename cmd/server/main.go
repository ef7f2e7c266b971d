// Command server runs the finreport HTTP API backed by Firestore.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rumor-ml/commons.systems/finreport/internal/config"
	"github.com/rumor-ml/commons.systems/finreport/internal/logger"
	"github.com/rumor-ml/commons.systems/finreport/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New("info")
		l.Fatal().Err(err).Msg("failed to load configuration")
	}
	log := logger.New(cfg.LogLevel)

	ctx := logger.WithContext(context.Background(), log)

	// Log if using Firebase emulators
	if host := os.Getenv("FIRESTORE_EMULATOR_HOST"); host != "" {
		log.Info().Str("host", host).Msg("using Firestore emulator")
	}
	if host := os.Getenv("FIREBASE_AUTH_EMULATOR_HOST"); host != "" {
		log.Info().Str("host", host).Msg("using Firebase Auth emulator")
	}

	srv, err := server.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	httpServer := &http.Server{
		Addr:              srv.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown did not complete")
		}
	}()

	log.Info().Str("addr", httpServer.Addr).Msg("server starting")
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
	<-done

	// Background commits finish before the Firestore client closes.
	if err := srv.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close server resources")
	}
	log.Info().Msg("server stopped")
}
