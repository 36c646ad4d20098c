// Package bot implements the webhook server, command dispatching, and
// component orchestration for the LINE sensor-chart bot.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/ycwu/pulseline/internal/config"
)

// Bot represents the main bot application and manages its components' lifecycle.
type Bot struct {
	logger    *slog.Logger
	cfg       *config.Config
	server    *http.Server
	scheduler *Scheduler // optional; nil when no jobs are configured
}

// NewBot creates the bot around the webhook handler and an optional scheduler.
func NewBot(logger *slog.Logger, cfg *config.Config, handler *Handler, scheduler *Scheduler) *Bot {
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.WebhookPath, handler.HandleWebhook)
	mux.HandleFunc("/healthz", handler.HandleHealth)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		cfg:       cfg,
		server:    server,
		scheduler: scheduler,
	}
}

// Run starts the webhook server and the scheduler, handling graceful shutdown
// on context cancellation. It returns an error if any component fails during
// startup or execution.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting webhook server...", "addr", b.cfg.Server.Addr, "path", b.cfg.Server.WebhookPath)
		if err := b.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webhook server failed: %w", err)
		}
		b.logger.Info("Webhook server stopped.")
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping webhook server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), b.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := b.server.Shutdown(shutdownCtx); err != nil {
			b.logger.Error("Error during server shutdown", "error", err)
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if b.scheduler != nil {
		g.Go(func() error {
			b.logger.Info("Starting scheduler...")
			if err := b.scheduler.Start(gCtx); err != nil {
				b.logger.Error("Failed to start scheduler", "error", err)
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			<-gCtx.Done()
			b.logger.Info("Shutdown signal received, stopping scheduler...")

			if err := b.scheduler.Stop(); err != nil {
				b.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}
