package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fortifit-backend/internal/app"
	"fortifit-backend/internal/config"
	"fortifit-backend/internal/logger"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewFromEnv()
			if err != nil {
				return err
			}
			log := logger.New(cfg.ServiceName, cfg.LogLevel, cfg.LogPretty)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.GeminiAPIKey == "" {
				log.Warn().Msg("GEMINI_API_KEY is not set, plan requests will fail")
			}
			return a.Serve(ctx)
		},
	}
}
