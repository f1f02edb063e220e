package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/dochub/backend/internal/app"
	"github.com/OFFIS-RIT/dochub/backend/internal/queue"
	"github.com/OFFIS-RIT/dochub/backend/internal/server"
	mid "github.com/OFFIS-RIT/dochub/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/dochub/backend/internal/util"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger/console"

	"github.com/MicahParks/keyfunc/v3"
	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()
	cfg := app.LoadConfig()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
		JSON:  util.GetEnvBool("LOG_JSON", false),
	})
	logger.Init(consoleLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Migrate(cfg); err != nil {
		logger.Fatal("Failed to migrate database", "err", err)
	}

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch, []string{queue.DocumentQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	publisher := queue.NewPublisher(ch)
	services, err := app.New(ctx, cfg, app.Options{Publisher: publisher.PublishDocument})
	if err != nil {
		logger.Fatal("Failed to initialise services", "err", err)
	}
	defer services.Close()

	a := &mid.App{
		Services:     services,
		MasterAPIKey: cfg.MasterAPIKey,
		MasterUserID: cfg.MasterUserID,
	}
	if cfg.AuthURL != "" {
		k, err := keyfunc.NewDefault([]string{cfg.AuthURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		a.Key = k
	} else {
		logger.Warn("AUTH_URL is not set, only the master API key is accepted")
	}

	if err := server.Run(ctx, server.New(a), cfg.Port); err != nil {
		logger.Fatal("Server failed", "err", err)
	}
}
