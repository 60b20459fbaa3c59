package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"servisca-quickmatch/internal/config"
	"servisca-quickmatch/internal/log"
	"servisca-quickmatch/internal/shell"
)

func main() {
	cfg := config.NewDefaultClient()
	cfg.LoadFromEnv()
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()

	logOut, err := shell.LogOutput(os.Stdout, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quickmatch: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logOut.Close() }()
	logger := log.New(logOut, "quickmatch", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// shutdown signals
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	if err := shell.Run(ctx, cfg, os.Stdin, os.Stdout, logger); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "quickmatch: %v\n", err)
		cancel()
		_ = logOut.Close()
		os.Exit(1)
	}
}
