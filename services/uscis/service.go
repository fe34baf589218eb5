// Package uscis fetches case status from the official USCIS API using
// an OAuth2 client-credentials token, falling back to scraping the
// public case-status page and finally to configured mock data.
package uscis

import (
	"context"
	"encoding/base64"
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

	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("casetrack/uscis")

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type Config struct {
	ClientId     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TokenUrl     string `json:"token_url"`
	ApiBaseUrl   string `json:"api_base_url"`
	ScrapeUrl    string `json:"scrape_url"`
}

type Options struct {
	Config  Config
	Timeout time.Duration
	Retries int
	Mock    casestatus.Mock
}

type Client struct {
	http        *resty.Client
	config      Config
	retries     int
	mock        casestatus.Mock
	accessToken string
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
	client.SetHeader("accept", "application/json")

	telemetry.InstrumentResty(client, "casetrack/uscis/http")

	return &Client{
		http:    client,
		config:  opts.Config,
		retries: retries,
		mock:    opts.Mock,
	}
}

func (c *Client) FetchStatus(ctx context.Context, caseNumber string) (casestatus.Result, error) {
	ctx, span := tracer.Start(ctx, "FetchStatus")
	defer span.End()
	span.SetAttributes(attribute.String("case_number", caseNumber))

	record, err := c.fetchLive(ctx, caseNumber)
	if err == nil {
		return casestatus.Result{Record: record, Origin: casestatus.OriginLive}, nil
	}
	if errors.Is(err, casestatus.ErrCaseNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "case not found")
		return casestatus.Result{}, err
	}

	if c.mock.Enabled {
		slog.WarnContext(ctx, "live fetch failed, using mock data", "err", err)
		span.SetAttributes(attribute.Bool("fallback", true))
		return c.mock.Result(caseNumber), nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "source unavailable")
	return casestatus.Result{}, err
}

func (c *Client) fetchLive(ctx context.Context, caseNumber string) (casestatus.CaseRecord, error) {
	record, err := c.fetchFromApi(ctx, caseNumber)
	if err == nil || errors.Is(err, casestatus.ErrCaseNotFound) {
		return record, err
	}

	slog.WarnContext(ctx, "api fetch failed, trying scrape fallback", "err", err)
	return c.fetchFromScrape(ctx, caseNumber)
}

func (c *Client) fetchFromApi(ctx context.Context, caseNumber string) (casestatus.CaseRecord, error) {
	ctx, span := tracer.Start(ctx, "fetchFromApi")
	defer span.End()

	refreshed := false
	var lastErr error

	for attempt := 1; attempt <= c.retries; attempt++ {
		if c.accessToken == "" {
			token, err := c.requestAccessToken(ctx)
			if err != nil {
				lastErr = err
				c.sleepBackoff(ctx, attempt)
				continue
			}
			c.accessToken = token
		}

		res, err := c.http.R().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+c.accessToken).
			Get(fmt.Sprintf("%s/%s", c.config.ApiBaseUrl, caseNumber))
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", casestatus.ErrSourceUnavailable, err)
			c.sleepBackoff(ctx, attempt)
			continue
		}

		switch res.StatusCode() {
		case http.StatusOK:
			record, err := parseApiResponse(res.Body(), caseNumber)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "unparseable api response")
				return casestatus.CaseRecord{}, fmt.Errorf("%w: %v", casestatus.ErrSourceUnavailable, err)
			}
			return record, nil
		case http.StatusNotFound:
			return casestatus.CaseRecord{}, fmt.Errorf("%w: %s", casestatus.ErrCaseNotFound, caseNumber)
		case http.StatusUnauthorized:
			if refreshed {
				return casestatus.CaseRecord{}, fmt.Errorf(
					"%w: unauthorized after token refresh", casestatus.ErrSourceUnavailable,
				)
			}
			slog.InfoContext(ctx, "access token rejected, refreshing")
			refreshed = true
			c.accessToken = ""
			attempt--
		default:
			lastErr = fmt.Errorf(
				"%w: unexpected status %d", casestatus.ErrSourceUnavailable, res.StatusCode(),
			)
			slog.WarnContext(ctx, "api call failed",
				"status", res.StatusCode(), "attempt", attempt, "retries", c.retries)
			c.sleepBackoff(ctx, attempt)
		}
	}

	if lastErr == nil {
		lastErr = casestatus.ErrSourceUnavailable
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "retries exhausted")
	return casestatus.CaseRecord{}, lastErr
}

func (c *Client) requestAccessToken(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "requestAccessToken")
	defer span.End()

	credentials := base64.StdEncoding.EncodeToString(
		[]byte(c.config.ClientId + ":" + c.config.ClientSecret),
	)

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Basic "+credentials).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
			"scope":      "case-status",
		}).
		Post(c.config.TokenUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token request failed")
		return "", fmt.Errorf("%w: token request: %v", casestatus.ErrSourceUnavailable, err)
	}
	if res.StatusCode() != http.StatusOK {
		err := fmt.Errorf(
			"%w: token endpoint returned %d", casestatus.ErrSourceUnavailable, res.StatusCode(),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "token endpoint rejected credentials")
		return "", err
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(res.Body(), &body); err != nil || body.AccessToken == "" {
		err := fmt.Errorf("%w: token response carries no access_token", casestatus.ErrSourceUnavailable)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unparseable token response")
		return "", err
	}
	return body.AccessToken, nil
}

// exponential backoff with jitter between attempts, skipped after the
// final one
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

func parseApiResponse(body []byte, caseNumber string) (casestatus.CaseRecord, error) {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return casestatus.CaseRecord{}, err
	}

	status := firstString(data, "case_status", "caseStatus", "status", "statusText")
	if status == "" {
		return casestatus.CaseRecord{}, errors.New("response carries no status field")
	}

	record := casestatus.CaseRecord{
		CaseNumber: caseNumber,
		Status:     casestatus.Canonicalize(status),
		Office:     firstString(data, "office", "serviceCenter", "service_center"),
		FormType:   firstString(data, "form_type", "formType", "form"),
		Details:    firstString(data, "details", "description", "message"),
	}
	if record.FormType == "" {
		record.FormType = casestatus.FormTypeFromReceipt(caseNumber)
	}
	record.CaseType = casestatus.CaseTypeDescription(record.FormType)

	if raw := firstString(data, "last_updated", "lastUpdated", "updatedDate", "lastModified"); raw != "" {
		if parsed, err := parseDate(raw); err == nil {
			record.LastUpdated = &parsed
		}
	}
	return record, nil
}

func firstString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := data[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.ParseInLocation(layout, raw, timezone.Location); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", raw)
}
