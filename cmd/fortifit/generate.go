package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fortifit-backend/internal/app"
	"fortifit-backend/internal/config"
	"fortifit-backend/internal/logger"
	"fortifit-backend/internal/planner"
)

func newGenerateCmd() *cobra.Command {
	var formPath string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the draft and audit stages once and print the plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadForm(formPath)
			if err != nil {
				return err
			}
			cfg, err := config.NewFromEnv()
			if err != nil {
				return err
			}
			log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.ServiceName, cfg.LogLevel)

			a, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			plan, err := a.GeneratePlan(cmd.Context(), f)
			if err != nil {
				var stageErr *planner.StageError
				if errors.As(err, &stageErr) && stageErr.Raw != nil {
					log.Debug().Interface("raw", stageErr.Raw).Msg("model response")
				}
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), plan.Text)
			return err
		},
	}
	cmd.Flags().StringVarP(&formPath, "form", "f", "", "questionnaire file (.json, .yaml or - for stdin)")
	_ = cmd.MarkFlagRequired("form")
	return cmd
}
