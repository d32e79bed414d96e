package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nextmind-ai/app-verification/internal/config"
	"github.com/nextmind-ai/app-verification/internal/logging"
	"github.com/nextmind-ai/app-verification/internal/observability"
	"github.com/nextmind-ai/app-verification/internal/services"
	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	// Initialize logging
	if err := logging.InitLogger(); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}

	code := run(*once)
	_ = logging.Logger.Sync()
	os.Exit(code)
}

// run owns every resource of the process and returns the exit code, so its
// deferred cleanup completes before main exits.
func run(once bool) int {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logging.Logger.Error("failed to load config", zap.Error(err))
		return 1
	}
	if config.AppConfig.StorageBackend != "mongo" {
		logging.Logger.Error("the reaper requires STORAGE_BACKEND=mongo",
			zap.String("storage", config.AppConfig.StorageBackend))
		return 1
	}

	if err := observability.InitTracer(context.Background()); err != nil {
		logging.Logger.Error("failed to initialize tracer", zap.Error(err))
	}
	defer observability.ShutdownTracer()

	logging.Logger.Info("starting email verification reaper", zap.Bool("once", once))

	// Initialize MongoDB
	if err := config.InitMongoDB(); err != nil {
		logging.Logger.Error("failed to initialize MongoDB", zap.Error(err))
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = config.MongoDB.Client().Disconnect(ctx)
	}()

	store := services.NewMongoChallengeStore(config.MongoDB.Collection(config.AppConfig.VerificationCollection))
	registry := services.NewVerificationRegistry(store, services.WithLogger(logging.Logger))

	reaper, err := services.NewReaper(registry, config.AppConfig.ReaperSchedule, logging.Logger)
	if err != nil {
		logging.Logger.Error("failed to create reaper", zap.Error(err))
		return 1
	}

	if once {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		deleted, err := reaper.RunOnce(ctx)
		if err != nil {
			logging.Logger.Error("sweep failed", zap.Error(err))
			return 1
		}
		logging.Logger.Info("sweep completed", zap.Int64("deleted", deleted))
		return 0
	}

	reaper.Start()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logging.Logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	reaper.Stop(ctx)

	last := reaper.LastRun()
	logging.Logger.Info("email verification reaper stopped",
		zap.Time("last_run", last.StartedAt),
		zap.Int64("last_deleted", last.Deleted))
	return 0
}
