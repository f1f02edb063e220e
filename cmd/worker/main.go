package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/dochub/backend/internal/app"
	"github.com/OFFIS-RIT/dochub/backend/internal/queue"
	"github.com/OFFIS-RIT/dochub/backend/internal/util"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()
	cfg := app.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
		JSON:  util.GetEnvBool("LOG_JSON", false),
	})
	logger.Init(consoleLogger)

	services, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		logger.Fatal("Failed to initialise services", "err", err)
	}
	defer services.Close()

	if err := services.Executor.StartCleanup(cfg.CleanupSchedule); err != nil {
		logger.Fatal("Failed to schedule cleanup", "schedule", cfg.CleanupSchedule, "err", err)
	}
	// Documents left in processing by a crashed worker are failed on start.
	if n, err := services.Executor.Cleanup(ctx); err != nil {
		logger.Error("Initial cleanup failed", "err", err)
	} else if n > 0 {
		logger.Info("Failed stuck documents", "count", n)
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch, []string{queue.DocumentQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.DocumentQueue, "workers", cfg.WorkerPoolSize)
	err = queue.Consume(ctx, ch, queue.DocumentQueue, cfg.WorkerPoolSize, func(ctx context.Context, body []byte) error {
		return queue.ProcessDocumentMessage(ctx, services.Executor.Dispatch, body)
	})
	if err != nil {
		logger.Fatal("Consumer failed", "err", err)
	}

	logger.Info("Shutdown signal received, waiting for running pipelines")
	services.Executor.Wait()
}
