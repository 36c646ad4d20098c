// Package main contains the entrypoint for the LINE sensor-chart bot.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"github.com/ycwu/pulseline/internal/bot"
	"github.com/ycwu/pulseline/internal/chart"
	"github.com/ycwu/pulseline/internal/config"
	"github.com/ycwu/pulseline/internal/database"
	"github.com/ycwu/pulseline/internal/imgur"
	"github.com/ycwu/pulseline/internal/logger"
	"github.com/ycwu/pulseline/internal/openai"
	"github.com/ycwu/pulseline/internal/thingspeak"
	"github.com/ycwu/pulseline/internal/timefmt"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger,
// clients, webhook server, scheduler), handles graceful shutdown, and returns
// an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	converter, err := timefmt.NewConverter(cfg.Chart.Timezone)
	if err != nil {
		log.Error("Failed to initialize timezone converter", "timezone", cfg.Chart.Timezone, "error", err)
		return 1
	}

	tsClient := thingspeak.NewClient(cfg.ThingSpeak, log)
	renderer := chart.NewRenderer(cfg.Chart)
	aiClient := openai.NewClient(cfg.OpenAI, log)

	var uploader imgur.Uploader
	var bearerUploader *imgur.BearerUploader
	if cfg.Imgur.AccessToken != "" {
		// Bearer mode: restore the freshest token pair from the store so a
		// pair refreshed before the last restart is not lost.
		db, dbErr := database.NewDB(cfg.Database.Path)
		if dbErr != nil {
			log.Error("Failed to open database", "path", cfg.Database.Path, "error", dbErr)
			return 1
		}
		defer database.CloseDB(db)
		store := database.NewStore(db, log)

		creds := imgur.NewCredentials(cfg.Imgur.ClientID, cfg.Imgur.ClientSecret,
			cfg.Imgur.AccessToken, cfg.Imgur.RefreshToken)
		if saved, tokErr := store.GetToken(ctx); tokErr != nil {
			log.Warn("Failed to load persisted token pair, using configured pair", "error", tokErr)
		} else if saved != nil {
			creds.Replace(saved.AccessToken, saved.RefreshToken)
			log.Info("Restored persisted token pair", "updated_at", saved.UpdatedAt)
		}

		bearerUploader = imgur.NewBearerUploader(cfg.Imgur, creds, store, log)
		uploader = bearerUploader
	} else {
		uploader = imgur.NewClientIDUploader(cfg.Imgur, log)
	}

	lineClient, err := linebot.New(cfg.Line.ChannelSecret, cfg.Line.ChannelToken)
	if err != nil {
		log.Error("Failed to create LINE client", "error", err)
		return 1
	}

	dispatcher := bot.NewDispatcher(log, cfg, tsClient, converter, renderer, uploader, aiClient)
	handler := bot.NewHandler(log, lineClient, bot.NewLineReplier(lineClient), dispatcher)

	var sched *bot.Scheduler
	if cfg.Scheduler.TokenRefreshEnabled {
		sched, err = bot.NewScheduler(log)
		if err != nil {
			log.Error("Failed to create scheduler", "error", err)
			return 1
		}
		if err := sched.AddCronJob("imgur_token_refresh", cfg.Scheduler.TokenRefreshSchedule, bearerUploader.Refresh); err != nil {
			log.Error("Failed to schedule token refresh", "error", err)
			return 1
		}
	}

	app := bot.NewBot(log, cfg, handler, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx) // Run blocks until context is cancelled or an error occurs
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	return 0
}
