package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"tradingboard/internal/clock"
	"tradingboard/internal/config"
	"tradingboard/internal/engine"
	"tradingboard/internal/metrics"
	"tradingboard/internal/net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load config")
	}
	setupLogging(cfg)

	settings, err := cfg.Settings()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid board settings")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	// Setup the board, its observers and the viewer-facing server. Everything
	// that reports into the board must be attached before it starts.
	registry := prometheus.NewRegistry()
	board := engine.NewBoard(settings, clock.Real{})
	m := metrics.New(registry)
	board.AddObserver(m)
	board.AddReporter(m)
	srv := net.New(cfg.Listen, board, cfg.AllowedOrigins, registry)

	if err := board.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("unable to start board")
	}
	defer func() {
		if err := board.Stop(); err != nil {
			log.Error().Err(err).Msg("board stopped with error")
		}
	}()

	// Block on running the server.
	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server exited")
	}
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
