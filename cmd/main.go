package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andrevargas22/websub-github-middleware/cmd/config"
)

var configPath string

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "websub-github-middleware",
		Short:         "YouTube WebSub to GitHub repository_dispatch middleware",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")
	root.AddCommand(newServeCmd(), newSubscribeCmd(), newUnsubscribeCmd())
	return root
}

// setup builds the process logger and loads the configuration file. Every
// command starts here.
func setup() (*slog.Logger, *config.Config, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config %s failed: %w", configPath, err)
	}
	return logger, cfg, nil
}
