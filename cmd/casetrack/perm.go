package main

import (
	"context"
	"errors"
	"log/slog"

	"casetrack-backend/lib/serviceutil"
	"casetrack-backend/lib/telemetry"
	"casetrack-backend/services/notify"
	"casetrack-backend/services/permupdate"
	"casetrack-backend/services/tracker"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(permCmd)
}

var permCmd = &cobra.Command{
	Use:   "perm",
	Short: "Check a PERM application on permupdate.com and email the status and ETA.",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		if config.Perm.BaseUrl == "" || config.Perm.ApiBaseUrl == "" {
			return errors.New("perm.base_url and perm.api_base_url are required")
		}
		submitted, err := config.Case.ParsedSubmissionDate()
		if err != nil {
			return err
		}

		ctx := serviceutil.SignalContext()
		tel, err := telemetry.SetupFromEnv(ctx, "casetrack-perm")
		if err != nil {
			slog.Warn("telemetry setup failed, continuing without it", "err", err)
		}
		defer func() {
			if err := tel.Shutdown(context.Background()); err != nil {
				slog.Warn("telemetry shutdown failed", "err", err)
			}
		}()

		client := permupdate.NewClient(permupdate.Options{
			Config:         config.Perm,
			Timeout:        config.Http.Timeout(),
			Retries:        config.Http.Retries,
			Mock:           config.Mock,
			SubmissionDate: submitted,
			EmployerLetter: config.Case.EmployerLetter,
		})
		mailer := notify.NewMailer(notify.Options{
			Smtp:         config.Smtp,
			Variant:      "PERM",
			EmployerName: config.Case.EmployerName,
		})

		runner := tracker.Runner{
			Source:   client,
			Notifier: mailer,
			Estimate: config.Estimate,
		}
		report, err := runner.Run(ctx, config.Case.Number)
		if err != nil {
			return err
		}
		printSummary(report)
		return nil
	},
}
