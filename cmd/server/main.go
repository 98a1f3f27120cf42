package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/bancho-server/internal/app"
	"github.com/vovakirdan/bancho-server/internal/config"
	"github.com/vovakirdan/bancho-server/internal/log"
)

func main() {
	var (
		configPath string
		logLevel   string
		overrides  config.Config
	)

	root := &cobra.Command{
		Use:   "bancho-server",
		Short: "Real-time multiplayer server for the Bancho protocol",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := log.New(logLevel)

			cfg, path, err := config.Load(logger, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.UpdateFrom(overrides)
			logger.Info().Str("config", path).Str("addr", cfg.Addr).Msg("starting bancho server")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}
			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	serve.Flags().StringVar(&configPath, "config", "", "path to config file")
	serve.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	serve.Flags().StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	serve.Flags().StringVar(&overrides.DBPath, "db", "", "path to the SQLite database")
	serve.Flags().StringVar(&overrides.BotName, "bot-name", "", "username of the in-process bot")

	root.AddCommand(serve)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
