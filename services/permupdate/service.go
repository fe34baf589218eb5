// Package permupdate fetches PERM labor-certification queue data from
// the permupdate.com dashboard. The dashboard's own backend API is
// preferred, scraping the rendered page is the fallback, configured
// mock data is the last resort.
package permupdate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"casetrack-backend/lib/casestatus"
	"casetrack-backend/lib/telemetry"
	"casetrack-backend/lib/timezone"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("casetrack/permupdate")

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type Config struct {
	BaseUrl    string `json:"base_url"`
	ApiBaseUrl string `json:"api_base_url"`
}

type Options struct {
	Config         Config
	Timeout        time.Duration
	Retries        int
	Mock           casestatus.Mock
	SubmissionDate time.Time
	EmployerLetter string
}

type Client struct {
	http           *resty.Client
	config         Config
	retries        int
	mock           casestatus.Mock
	submissionDate time.Time
	employerLetter string
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second * 30
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = 3
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("user-agent", userAgent)
	client.SetHeader("origin", opts.Config.BaseUrl)
	client.SetHeader("referer", opts.Config.BaseUrl+"/")
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	telemetry.InstrumentResty(client, "casetrack/permupdate/http")

	return &Client{
		http:           client,
		config:         opts.Config,
		retries:        retries,
		mock:           opts.Mock,
		submissionDate: opts.SubmissionDate,
		employerLetter: opts.EmployerLetter,
	}
}

func (c *Client) FetchStatus(ctx context.Context, caseNumber string) (casestatus.Result, error) {
	ctx, span := tracer.Start(ctx, "FetchStatus")
	defer span.End()
	span.SetAttributes(attribute.String("case_number", caseNumber))

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		res, err := c.fetchFromDashboardApi(ctx, caseNumber)
		if err == nil {
			return res, nil
		}
		lastErr = err
		slog.WarnContext(ctx, "dashboard api fetch failed, scraping page",
			"attempt", attempt, "err", err)

		res, err = c.fetchFromPage(ctx, caseNumber)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, casestatus.ErrCaseNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "case not found")
			return casestatus.Result{}, err
		}
		lastErr = err
		c.sleepBackoff(ctx, attempt)
	}

	if c.mock.Enabled {
		slog.WarnContext(ctx, "live fetch failed, using mock data", "err", lastErr)
		span.SetAttributes(attribute.Bool("fallback", true))
		return c.mock.Result(caseNumber), nil
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "source unavailable")
	return casestatus.Result{}, lastErr
}

type dashboardMetrics struct {
	Metrics struct {
		CurrentBacklog  int     `json:"current_backlog"`
		ProcessedCases  float64 `json:"processed_cases"`
		ProcessingTimes struct {
			MedianDays int    `json:"median_days"`
			AsOfDate   string `json:"as_of_date"`
		} `json:"processing_times"`
	} `json:"metrics"`
}

func (c *Client) fetchFromDashboardApi(ctx context.Context, caseNumber string) (casestatus.Result, error) {
	ctx, span := tracer.Start(ctx, "fetchFromDashboardApi")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("accept", "application/json").
		SetQueryParam("days", "30").
		Get(c.config.ApiBaseUrl + "/api/data/dashboard")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dashboard request failed")
		return casestatus.Result{}, fmt.Errorf("%w: dashboard api: %v", casestatus.ErrSourceUnavailable, err)
	}
	if res.StatusCode() != http.StatusOK {
		err := fmt.Errorf(
			"%w: dashboard api returned %d", casestatus.ErrSourceUnavailable, res.StatusCode(),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "dashboard api returned non-200")
		return casestatus.Result{}, err
	}

	var data dashboardMetrics
	if err := json.Unmarshal(res.Body(), &data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unparseable dashboard response")
		return casestatus.Result{}, fmt.Errorf("%w: dashboard api: %v", casestatus.ErrSourceUnavailable, err)
	}
	if data.Metrics.CurrentBacklog <= 0 {
		return casestatus.Result{}, fmt.Errorf(
			"%w: dashboard response carries no backlog metrics", casestatus.ErrSourceUnavailable,
		)
	}

	return c.resultFromMetrics(caseNumber, data), nil
}

// the dashboard reports aggregate queue metrics, not per-case rows, so
// the case's position is derived from its submission date against the
// backlog and the daily processing rate
func (c *Client) resultFromMetrics(caseNumber string, data dashboardMetrics) casestatus.Result {
	now := timezone.Now()
	rate := data.Metrics.ProcessedCases

	position := data.Metrics.CurrentBacklog
	if !c.submissionDate.IsZero() && rate > 0 {
		daysSinceSubmission := calendarDaysBetween(c.submissionDate, now)
		if daysSinceSubmission > 0 {
			processed := int(math.Round(float64(daysSinceSubmission) * rate))
			position = data.Metrics.CurrentBacklog - processed
		}
	}
	if position < 1 {
		position = 1
	}

	record := casestatus.CaseRecord{
		CaseNumber:  caseNumber,
		Status:      "Pending Review",
		LastUpdated: &now,
		Office:      "Atlanta National Processing Center",
		FormType:    "ETA-9089",
		CaseType:    "Application for Permanent Employment Certification",
	}
	queue := &casestatus.QueueSnapshot{
		Position:          position,
		TotalApplications: data.Metrics.CurrentBacklog,
		ProcessingRate:    rate,
		AsOfDate:          data.Metrics.ProcessingTimes.AsOfDate,
	}
	return casestatus.Result{Record: record, Queue: queue, Origin: casestatus.OriginLive}
}

// midnight-to-midnight so DST shifts cannot skew the count
func calendarDaysBetween(from, to time.Time) int {
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, timezone.Location)
	to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, timezone.Location)
	return int(math.Round(to.Sub(from).Hours() / 24))
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) {
	if attempt >= c.retries {
		return
	}
	jitterMs, err := random.IntRange(0, 1000)
	if err != nil {
		jitterMs = 500
	}
	wait := time.Duration(math.Pow(2, float64(attempt-1)))*time.Second +
		time.Duration(jitterMs)*time.Millisecond
	slog.DebugContext(ctx, "backing off before retry", "wait", wait)
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}
