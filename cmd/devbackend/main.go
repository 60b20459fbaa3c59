package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"servisca-quickmatch/internal/config"
	"servisca-quickmatch/internal/devbackend"
	"servisca-quickmatch/internal/log"
)

func main() {
	cfg := config.NewDefaultBackend()
	logger := log.New(os.Stderr, "devbackend", cfg.LogLevel)
	if err := cfg.LoadFromEnv(); err != nil {
		logger.Error("bad environment", log.Error(err))
		os.Exit(1)
	}
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()
	logger = log.New(os.Stderr, "devbackend", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("bad config", log.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := devbackend.NewHub(logger)
	if cfg.RedisURL != "" {
		rdb, err := devbackend.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("redis unavailable", log.Error(err))
			os.Exit(1)
		}
		defer func() { _ = rdb.Close() }()

		relay := devbackend.NewRedisRelay(rdb, logger)
		if err := relay.Start(ctx, hub.Deliver); err != nil {
			logger.Error("redis relay failed", log.Error(err))
			os.Exit(1)
		}
		hub.SetRelay(relay)
	}

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: devbackend.NewServer(hub,
			devbackend.WithSearchDelay(cfg.SearchDelay),
			devbackend.WithServerLogger(logger),
		).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("devbackend listening", slog.String("addr", cfg.Listen), slog.String("ws_path", "/ws"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", log.Error(err))
			os.Exit(1)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	_ = srv.Close()
}
