package main

import (
	"context"
	"errors"
	"log/slog"

	"casetrack-backend/lib/serviceutil"
	"casetrack-backend/lib/telemetry"
	"casetrack-backend/services/notify"
	"casetrack-backend/services/tracker"
	"casetrack-backend/services/uscis"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(uscisCmd)
}

var uscisCmd = &cobra.Command{
	Use:   "uscis",
	Short: "Check a USCIS case through the official API and email the status.",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		if config.Uscis.ClientId == "" || config.Uscis.ClientSecret == "" ||
			config.Uscis.TokenUrl == "" || config.Uscis.ApiBaseUrl == "" {
			return errors.New("uscis.client_id, uscis.client_secret, uscis.token_url and uscis.api_base_url are required")
		}

		ctx := serviceutil.SignalContext()
		tel, err := telemetry.SetupFromEnv(ctx, "casetrack-uscis")
		if err != nil {
			slog.Warn("telemetry setup failed, continuing without it", "err", err)
		}
		defer func() {
			if err := tel.Shutdown(context.Background()); err != nil {
				slog.Warn("telemetry shutdown failed", "err", err)
			}
		}()

		client := uscis.NewClient(uscis.Options{
			Config:  config.Uscis,
			Timeout: config.Http.Timeout(),
			Retries: config.Http.Retries,
			Mock:    config.Mock,
		})
		mailer := notify.NewMailer(notify.Options{
			Smtp:         config.Smtp,
			Variant:      "USCIS Case",
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
