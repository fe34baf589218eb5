// Package estimate derives an approval ETA for a PERM application from
// its queue position and an assumed daily processing rate. The
// thresholds and default rate are operator configuration, not a fitted
// model; treat the output as a rough indicator.
package estimate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"casetrack-backend/lib/casestatus"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("casetrack/estimate")

// ErrInvalidInput means the queue data cannot produce an estimate,
// usually a zero or negative processing rate from bad configuration.
var ErrInvalidInput = errors.New("invalid estimate input")

type Confidence string

const (
	ConfidenceHigh    Confidence = "High"
	ConfidenceMedium  Confidence = "Medium"
	ConfidenceLow     Confidence = "Low"
	ConfidenceUnknown Confidence = "Unknown"
)

// Thresholds are processed-fraction cutoffs for the confidence buckets.
type Thresholds struct {
	High   float64 `json:"high"`
	Medium float64 `json:"medium"`
	Low    float64 `json:"low"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.8, Medium: 0.6, Low: 0.4}
}

type Estimate struct {
	Position          int
	TotalApplications int
	ProcessingRate    float64
	DaysRemaining     int
	Date              time.Time
	ProcessedFraction float64
	Confidence        Confidence
}

// ProgressPercent is the processed fraction as a display percentage.
func (e Estimate) ProgressPercent() float64 {
	return math.Round(e.ProcessedFraction*1000) / 10
}

// Compute is pure: DaysRemaining = ceil(position/rate) and
// Date = midnight of now plus DaysRemaining days. Confidence follows
// the processed fraction (total - position) / total against the
// configured thresholds, strictly above each cutoff.
func Compute(ctx context.Context, now time.Time, q casestatus.QueueSnapshot, th Thresholds) (Estimate, error) {
	_, span := tracer.Start(ctx, "Compute")
	defer span.End()
	span.SetAttributes(
		attribute.Int("position", q.Position),
		attribute.Int("total_applications", q.TotalApplications),
		attribute.Float64("processing_rate", q.ProcessingRate),
	)

	if q.ProcessingRate <= 0 {
		err := fmt.Errorf("%w: processing rate %v must be > 0", ErrInvalidInput, q.ProcessingRate)
		span.RecordError(err)
		span.SetStatus(codes.Error, "non-positive processing rate")
		return Estimate{}, err
	}
	if q.Position < 0 {
		err := fmt.Errorf("%w: queue position %d must be >= 0", ErrInvalidInput, q.Position)
		span.RecordError(err)
		span.SetStatus(codes.Error, "negative queue position")
		return Estimate{}, err
	}

	daysRemaining := int(math.Ceil(float64(q.Position) / q.ProcessingRate))

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	date := today.AddDate(0, 0, daysRemaining)

	fraction := 0.0
	if q.TotalApplications > 0 {
		fraction = float64(q.TotalApplications-q.Position) / float64(q.TotalApplications)
		fraction = math.Max(0, math.Min(1, fraction))
	}

	return Estimate{
		Position:          q.Position,
		TotalApplications: q.TotalApplications,
		ProcessingRate:    q.ProcessingRate,
		DaysRemaining:     daysRemaining,
		Date:              date,
		ProcessedFraction: fraction,
		Confidence:        confidenceFor(fraction, th),
	}, nil
}

func confidenceFor(fraction float64, th Thresholds) Confidence {
	switch {
	case fraction > th.High:
		return ConfidenceHigh
	case fraction > th.Medium:
		return ConfidenceMedium
	case fraction > th.Low:
		return ConfidenceLow
	default:
		return ConfidenceUnknown
	}
}
