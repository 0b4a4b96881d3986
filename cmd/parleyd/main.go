package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/luciancaetano/parley/tcp"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}
	setupLogger()

	cfg := tcp.NewConfigFromEnv()
	flag.StringVar(&cfg.Addr, "ip", cfg.Addr, "interface to listen on")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "TCP port to listen on")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "worker pool size")
	flag.StringVar(&cfg.Format, "format", cfg.Format, `pin every connection to one wire format ("json" or "binary")`)
	flag.StringVar(&cfg.WSAddr, "ws-addr", cfg.WSAddr, "WebSocket gateway address (empty disables the gateway)")
	flag.Parse()

	server := tcp.New(cfg, slog.Default())

	ctx := context.Background()
	if err := server.Start(ctx); err != nil {
		slog.Error("server start failed", "error", err)
		os.Exit(1)
	}
	slog.Info("parleyd running", "addr", server.Addr())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func setupLogger() {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
