package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"taskpulse/internal/api"
	"taskpulse/internal/config"
	"taskpulse/internal/notify"
	"taskpulse/internal/realtime"
	"taskpulse/internal/scheduler"
	"taskpulse/internal/store"
	"taskpulse/internal/worker"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	setupLogging(cfg)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", cfg.DBPath).Msg("open db")
	}
	defer db.Close()

	repo := store.NewSQLiteRepo(db)
	registry := realtime.NewRegistry()
	notifier := notify.New(repo, registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.NewService(repo, repo, notifier, worker.NewPool(cfg.Workers))
	sched.Start(ctx)

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.NewServer(api.Options{
			Repo:           repo,
			Notifier:       notifier,
			Registry:       registry,
			JWTSecret:      cfg.JWTSecret,
			AllowedOrigins: cfg.AllowedOrigins,
			EnableDebug:    cfg.Debug,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	shutdown(5*time.Second, cancel, sched, srv)
}

type stopper interface {
	Stop(ctx context.Context)
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown lets in-flight scheduler passes finish before the root context
// is canceled, then drains the HTTP server.
func shutdown(timeout time.Duration, cancel context.CancelFunc, sched stopper, srv shutdowner) {
	ctx, cancelTimeout := context.WithTimeout(context.Background(), timeout)
	defer cancelTimeout()

	sched.Stop(ctx)
	cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
}

func setupLogging(cfg config.Config) {
	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
