package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/cpugovernor/internal/config"
	"github.com/adred-codev/cpugovernor/internal/governor"
)

func main() {
	var debug = flag.Bool("debug", false, "enable debug logging (overrides GOV_LOG_LEVEL)")
	flag.Parse()

	bootstrap := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	cfg, err := config.Load(&bootstrap)
	if err != nil {
		bootstrap.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := newLogger(*cfg)
	maxProcs := runtime.GOMAXPROCS(0)
	logger.Info().Int("gomaxprocs", maxProcs).Msg("starting governor")
	cfg.LogConfig(logger)

	ctrl, err := governor.Build(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build governor")
	}

	if cfg.EnablePromSink {
		go serveMetrics(cfg.PromAddr, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	ctrl.Run(ctx)
	logger.Info().Msg("governor stopped")
}

func newLogger(cfg config.Config) zerolog.Logger {
	var w = zerolog.ConsoleWriter{Out: os.Stdout}
	var logger zerolog.Logger
	if cfg.LogFormat == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(w)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level).With().Timestamp().Str("component", "governor").Logger()
}

func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server stopped")
	}
}
