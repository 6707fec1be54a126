package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrevargas22/websub-github-middleware/cmd/config"
	"github.com/andrevargas22/websub-github-middleware/internal/github"
	"github.com/andrevargas22/websub-github-middleware/internal/websub"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSub callback server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, cfg, err := setup()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), logger, cfg)
		},
	}
}

func runServe(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	secrets := config.LoadSecrets()
	if secrets.WebhookSecret == "" {
		// The handler rejects unsigned deliveries with 503 on its own;
		// flag the misconfiguration up front too.
		logger.Warn("webhook secret not configured, notifications will be rejected")
	}

	handler := websub.NewCallbackHandler(secrets.WebhookSecret, buildEventFunc(logger, cfg, secrets), logger)

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.CallbackPath, handler)

	server := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			slog.String("addr", cfg.Server.Addr),
			slog.String("callback_path", cfg.Server.CallbackPath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		logger.Warn("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server gracefully", slog.String("err", err.Error()))
		return err
	}
	logger.Info("server shutdown gracefully")
	return nil
}

// buildEventFunc wires parsed notifications to the GitHub dispatcher. When the
// App credentials are absent or unusable, events are logged and dropped while
// the callback endpoint stays up: delivery acknowledgement must not depend on
// the downstream side.
func buildEventFunc(logger *slog.Logger, cfg *config.Config, secrets config.Secrets) websub.EventFunc {
	dropped := func(ctx context.Context, ev websub.VideoEvent) {
		logger.Info("video event dropped, dispatch disabled", slog.String("video_id", ev.VideoID))
	}

	if !secrets.GitHubComplete() {
		logger.Warn("github app configuration incomplete, notifications will not be forwarded")
		return dropped
	}

	client, err := github.NewClient(github.Options{
		AppID:          secrets.AppID,
		InstallationID: secrets.InstallationID,
		PrivateKeyPEM:  secrets.PrivateKey,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("github client unavailable, notifications will not be forwarded",
			slog.String("err", err.Error()))
		return dropped
	}

	dispatcher := github.NewDispatcher(client, cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.GitHub.EventType, logger)
	return func(ctx context.Context, ev websub.VideoEvent) {
		if err := dispatcher.Dispatch(ctx, ev); err != nil {
			logger.Error("dispatch failed",
				slog.String("video_id", ev.VideoID),
				slog.String("err", err.Error()))
		}
	}
}
