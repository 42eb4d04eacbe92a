package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fortifit-backend/internal/calendar"
	"fortifit-backend/internal/config"
	"fortifit-backend/internal/form"
	"fortifit-backend/internal/prompt"
)

func newPromptCmd() *cobra.Command {
	var (
		formPath string
		zone     string
	)
	promptCmd := &cobra.Command{
		Use:   "prompt",
		Short: "Render the draft or audit prompt for a questionnaire file",
	}
	promptCmd.PersistentFlags().StringVarP(&formPath, "form", "f", "", "questionnaire file (.json, .yaml or - for stdin)")
	promptCmd.PersistentFlags().StringVar(&zone, "tz", "Europe/Warsaw", "time zone for the date context")
	_ = promptCmd.MarkPersistentFlagRequired("form")

	draftCmd := &cobra.Command{
		Use:   "draft",
		Short: "Print the stage 1 prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, pc, err := loadPromptInput(formPath, zone)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), prompt.BuildDraft(f, pc))
			return err
		},
	}

	var draftPath string
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Print the stage 2 prompt for a saved draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, pc, err := loadPromptInput(formPath, zone)
			if err != nil {
				return err
			}
			draft, err := os.ReadFile(draftPath)
			if err != nil {
				return fmt.Errorf("failed to read draft: %w", err)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), prompt.BuildAudit(string(draft), f, pc))
			return err
		},
	}
	auditCmd.Flags().StringVarP(&draftPath, "draft", "d", "", "file holding the stage 1 output")
	_ = auditCmd.MarkFlagRequired("draft")

	promptCmd.AddCommand(draftCmd, auditCmd)
	return promptCmd
}

func loadPromptInput(formPath, zone string) (form.Form, prompt.Context, error) {
	f, err := loadForm(formPath)
	if err != nil {
		return nil, prompt.Context{}, err
	}
	loc, err := (&config.Config{TimeZone: zone}).Location()
	if err != nil {
		return nil, prompt.Context{}, err
	}
	now := time.Now()
	return f, prompt.Context{
		Now:   calendar.NewTimeContext(now, loc),
		Event: calendar.Event(f.String("eventDate"), now),
	}, nil
}

// loadForm reads a questionnaire as YAML when the extension says so and as
// JSON otherwise. "-" reads stdin.
func loadForm(path string) (form.Form, error) {
	if path == "-" {
		return form.Decode(os.Stdin)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read form: %w", err)
		}
		return form.DecodeYAML(data)
	default:
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read form: %w", err)
		}
		defer file.Close()
		return form.Decode(file)
	}
}
