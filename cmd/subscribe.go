package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrevargas22/websub-github-middleware/cmd/config"
	"github.com/andrevargas22/websub-github-middleware/internal/websub"
)

func newSubscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe",
		Short: "Register every configured channel with the WebSub hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscription(cmd.Context(), false)
		},
	}
}

func newUnsubscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe",
		Short: "Deregister every configured channel from the WebSub hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscription(cmd.Context(), true)
		},
	}
}

// runSubscription performs one subscription run. The command exits non-zero
// unless every topic succeeded, so a scheduler can alert on partial failures.
func runSubscription(ctx context.Context, unsubscribe bool) error {
	logger, cfg, err := setup()
	if err != nil {
		return err
	}
	secrets := config.LoadSecrets()

	manager := websub.NewManager(websub.ManagerOptions{
		HubURL:       cfg.Hub.URL,
		CallbackURL:  cfg.CallbackURL(),
		Secret:       secrets.WebhookSecret,
		LeaseSeconds: cfg.Hub.LeaseSeconds,
		Client:       &http.Client{Timeout: time.Duration(cfg.Hub.TimeoutSeconds) * time.Second},
		Logger:       logger,
	})

	topics := make([]websub.Topic, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		topics = append(topics, websub.Topic{Name: ch.Name, ChannelID: ch.ChannelID})
	}

	var report websub.Report
	if unsubscribe {
		report, err = manager.Unsubscribe(ctx, topics)
	} else {
		report, err = manager.Subscribe(ctx, topics)
	}
	if err != nil {
		return err
	}
	if !report.AllOK() {
		return fmt.Errorf("%d of %d topics failed", report.Failed, report.Total)
	}
	return nil
}
