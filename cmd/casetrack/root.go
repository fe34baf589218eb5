package main

import (
	"errors"
	"fmt"
	"time"

	"casetrack-backend/lib/casestatus"
	"casetrack-backend/lib/configutil"
	"casetrack-backend/lib/telemetry"
	"casetrack-backend/lib/timezone"
	"casetrack-backend/services/estimate"
	"casetrack-backend/services/notify"
	"casetrack-backend/services/permupdate"
	"casetrack-backend/services/tracker"
	"casetrack-backend/services/uscis"

	"github.com/spf13/cobra"
)

var configPath string
var debug bool

var rootCmd = &cobra.Command{
	Use:   "casetrack",
	Short: "casetrack checks one immigration case's status and emails a summary.",
	Long: `casetrack runs a single fetch -> estimate -> notify cycle for one
immigration case and exits. Schedule it externally (cron, CI) for a
daily cadence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(debug)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json5", "path to the tracker configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

type CaseConfig struct {
	Number         string `json:"number"`
	SubmissionDate string `json:"submission_date"`
	EmployerName   string `json:"employer_name"`
	EmployerLetter string `json:"employer_letter"`
}

type HttpConfig struct {
	TimeoutSeconds int `json:"timeout_seconds"`
	Retries        int `json:"retries"`
}

func (h HttpConfig) Timeout() time.Duration {
	if h.TimeoutSeconds <= 0 {
		return time.Second * 30
	}
	return time.Duration(h.TimeoutSeconds) * time.Second
}

type Config struct {
	Case     CaseConfig             `json:"case"`
	Uscis    uscis.Config           `json:"uscis"`
	Perm     permupdate.Config      `json:"perm"`
	Http     HttpConfig             `json:"http"`
	Mock     casestatus.Mock        `json:"mock"`
	Estimate tracker.EstimateConfig `json:"estimate"`
	Smtp     notify.SmtpConfig      `json:"smtp"`
}

func (c Config) Validate() error {
	var errlist []error
	if c.Case.Number == "" {
		errlist = append(errlist, errors.New("case.number is required"))
	}
	if c.Smtp.Server == "" || c.Smtp.EmailAddress == "" {
		errlist = append(errlist, errors.New("smtp.server and smtp.email_address are required"))
	}
	if len(c.Smtp.Recipients) == 0 {
		errlist = append(errlist, errors.New("smtp.recipients must list at least one address"))
	}
	return errors.Join(errlist...)
}

func loadConfig() (Config, error) {
	config, err := configutil.ReadValidated[Config](configPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load %s: %w", configPath, err)
	}
	if config.Estimate.DefaultProcessingRate <= 0 {
		config.Estimate.DefaultProcessingRate = 50
	}
	if (config.Estimate.Confidence == estimate.Thresholds{}) {
		config.Estimate.Confidence = estimate.DefaultThresholds()
	}
	return config, nil
}

func (c CaseConfig) ParsedSubmissionDate() (time.Time, error) {
	if c.SubmissionDate == "" {
		return time.Time{}, nil
	}
	parsed, err := time.ParseInLocation("2006-01-02", c.SubmissionDate, timezone.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("case.submission_date must be YYYY-MM-DD: %w", err)
	}
	return parsed, nil
}
