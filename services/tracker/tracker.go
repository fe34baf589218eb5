// Package tracker runs the per-invocation pipeline: fetch status,
// estimate the queue ETA when queue data is present, send the email.
// One straight line per process, retries live inside the components.
package tracker

import (
	"context"
	"log/slog"

	"casetrack-backend/lib/casestatus"
	"casetrack-backend/lib/timezone"
	"casetrack-backend/services/estimate"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("casetrack/tracker")
var meter = otel.Meter("casetrack/tracker")

var runCounter, _ = meter.Int64Counter(
	"tracker_runs_total",
	metric.WithDescription("Completed tracker runs by final state."),
)

type State string

const (
	StateInit      State = "INIT"
	StateFetched   State = "FETCHED"
	StateEstimated State = "ESTIMATED"
	StateNotified  State = "NOTIFIED"
	StateFailed    State = "FAILED"
)

type Notifier interface {
	Send(ctx context.Context, record casestatus.CaseRecord, est *estimate.Estimate) error
}

type EstimateConfig struct {
	DefaultProcessingRate float64             `json:"default_processing_rate"`
	Confidence            estimate.Thresholds `json:"confidence"`
}

type Runner struct {
	Source   casestatus.Source
	Notifier Notifier
	Estimate EstimateConfig
}

// Report is what a finished run looked like, for the CLI summary.
type Report struct {
	State    State
	Origin   casestatus.Origin
	Record   casestatus.CaseRecord
	Estimate *estimate.Estimate
}

func (r Runner) Run(ctx context.Context, caseNumber string) (Report, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(attribute.String("case_number", caseNumber))

	report := Report{State: StateInit}
	fail := func(err error) (Report, error) {
		report.State = StateFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, string(report.State))
		runCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("state", string(StateFailed)),
		))
		return report, err
	}

	slog.InfoContext(ctx, "starting tracker run", "case_number", caseNumber)

	res, err := r.Source.FetchStatus(ctx, caseNumber)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch case status", "err", err)
		return fail(err)
	}
	report.State = StateFetched
	report.Origin = res.Origin
	report.Record = res.Record
	slog.InfoContext(ctx, "fetched case status",
		"status", res.Record.Status,
		"origin", res.Origin.String(),
		"form_type", res.Record.FormType,
	)

	if res.Queue != nil {
		queue := *res.Queue
		if queue.ProcessingRate <= 0 {
			queue.ProcessingRate = r.Estimate.DefaultProcessingRate
		}
		est, err := estimate.Compute(ctx, timezone.Now(), queue, r.Estimate.Confidence)
		if err != nil {
			slog.ErrorContext(ctx, "failed to estimate approval date", "err", err)
			return fail(err)
		}
		report.State = StateEstimated
		report.Estimate = &est
		slog.InfoContext(ctx, "estimated approval date",
			"date", est.Date.Format("2006-01-02"),
			"days_remaining", est.DaysRemaining,
			"confidence", est.Confidence,
		)
	}

	if err := r.Notifier.Send(ctx, report.Record, report.Estimate); err != nil {
		return fail(err)
	}
	report.State = StateNotified

	runCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", string(StateNotified)),
		attribute.String("origin", res.Origin.String()),
	))
	slog.InfoContext(ctx, "tracker run complete", "state", string(report.State))
	return report, nil
}
