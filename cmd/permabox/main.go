package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	permabox "github.com/permabox/permabox"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		dataPath   = flag.String("data", "./data", "path to data directory")
		listenAddr = flag.String("listen", ":1984", "HTTP listen address")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	conf := permabox.Config{
		Paths:      []string{*dataPath},
		ListenAddr: *listenAddr,
	}
	if *configPath != "" {
		loaded, err := permabox.LoadConfig(*configPath)
		if err != nil {
			logger.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		conf = loaded
	}
	conf.Logger = logger

	gw, err := permabox.New(conf)
	if err != nil {
		logger.Error("failed to construct gateway", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gw.Run(ctx); err != nil {
		logger.Error("gateway error", "error", err)
		os.Exit(1)
	}
}
