// Package main is the entry point for the snake market service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"snake-market/internal/app"
	"snake-market/internal/config"
	"snake-market/internal/pkg/logger"
)

func main() {
	// Console logging until the configured level and file are known
	logger.Setup(config.LogConfig{Level: "info"})

	live, err := config.Watch("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	cfg := live.Current()

	logFile := logger.Setup(cfg.Log)
	defer logFile.Close()

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, live)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start market")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := application.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Market stopped with error")
		return
	}
	log.Info().Msg("Market stopped gracefully")
}
