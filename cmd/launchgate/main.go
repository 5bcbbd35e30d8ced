package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/launchgate/internal/pkg/config"
	"github.com/tjfontaine/launchgate/internal/runtime"
	"github.com/tjfontaine/launchgate/internal/server"
	"github.com/tjfontaine/launchgate/internal/telemetry"
)

func main() {
	if code := run(); code != 0 {
		os.Exit(code)
	}
}

func run() int {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	engine, err := runtime.New(
		runtime.WithConfig(cfg),
		runtime.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer(telemetry.Config{
		Enabled:     cfg.Telemetry.Tracing,
		ServiceName: cfg.Telemetry.ServiceName,
		SessionID:   engine.SessionID(),
		PrettyPrint: cfg.Telemetry.PrettyPrint,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	srv := server.New(server.Config{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
		Limiter:        server.NewClientLimiter(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst, 0),
		Metrics:        engine.Metrics().Handler(),
	}, engine, logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Session.LaunchTimeout)
	err = engine.Start(ctx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	logger.Info("launchgate started",
		slog.String("session_id", engine.SessionID()),
		slog.Int("port", cfg.Server.Port),
		slog.String("storage", cfg.Storage.Type))

	// Wait for shutdown signal or server failure
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping session...")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", slog.String("error", err.Error()))
			exitCode = 1
		}
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
		exitCode = 1
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Error("session shutdown error", slog.String("error", err.Error()))
		exitCode = 1
	}

	logger.Info("launchgate shutdown complete")
	return exitCode
}
