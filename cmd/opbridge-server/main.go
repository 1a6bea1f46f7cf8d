package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opbridge/opbridge/internal/broker"
	"github.com/opbridge/opbridge/internal/config"
	"github.com/opbridge/opbridge/internal/eventbus"
	"github.com/opbridge/opbridge/internal/interaction"
	"github.com/opbridge/opbridge/internal/notification"
	"github.com/opbridge/opbridge/internal/promptqueue"
	"github.com/opbridge/opbridge/internal/subscription"
	subscriptionrepo "github.com/opbridge/opbridge/internal/subscription/repositoryimpl"
	"github.com/opbridge/opbridge/internal/telegram"
	"github.com/opbridge/opbridge/pkg/clog"
	"github.com/opbridge/opbridge/pkg/storage"

	server "github.com/opbridge/opbridge/internal"
)

func main() {
	// Without the "run" subcommand the process acts as its own supervisor
	// and spawns the actual server as a child.
	if len(os.Args) < 2 || os.Args[1] != "run" {
		runSentinel()
		return
	}
	run()
}

func run() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewContextHandler(handler)))

	// Setup storage
	var store storage.Storage
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(context.Background(), env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
		if err != nil {
			slog.Error("failed to create S3 storage", "error", err)
			os.Exit(1)
		}
	default:
		store, err = storage.NewLocalStorage(env.StorageEnv.BaseDir)
		if err != nil {
			slog.Error("failed to create local storage", "error", err)
			os.Exit(1)
		}
	}

	// Core bridge components
	bus := eventbus.New()
	responseBroker := broker.New()
	registry := interaction.NewRegistry(config.InteractionEnvFromEnv(env), bus, responseBroker)
	queue := promptqueue.NewQueue(config.PromptEnvFromEnv(env), bus)

	// Telegram channel
	telegramEnv := config.TelegramEnvFromEnv(env)
	bot := telegram.NewBot(telegramEnv)
	telegramService := telegram.NewService(telegramEnv, bot, registry, queue, bus)

	// Notifications
	subRepo := subscriptionrepo.NewYAMLRepository(store)
	vapidEnv := config.VAPIDEnvFromEnv(env)
	manager := notification.NewManager(
		notification.NewWebPushNotifier(vapidEnv, subRepo),
		notification.NewWebhookNotifier(&env.WebhookEnv),
	)
	dispatcher := notification.NewDispatcher(bus, manager, notification.NewTelegramNotifier(telegramEnv, bot))

	srv := server.NewServer(
		env,
		interaction.NewHandler(registry, responseBroker),
		promptqueue.NewHandler(queue),
		subscription.NewHandler(subRepo, vapidEnv),
	)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	go registry.StartSweeper(ctx)
	go dispatcher.Run(ctx)
	go func() {
		if err := telegramService.Start(ctx); err != nil {
			slog.Error("telegram service error", "error", err)
		}
	}()

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	// Fail blocked waiters before the listener closes so they get a
	// Cancelled verdict instead of a dropped connection.
	registry.CancelAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
