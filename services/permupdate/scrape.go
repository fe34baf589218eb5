package permupdate

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"casetrack-backend/lib/casestatus"
	"casetrack-backend/lib/htmlutil"
	"casetrack-backend/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

// the rendered dashboard wraps the per-case lookup answer in this
// block, with the queue numbers attached as data attributes
const resultSelector = "div.prediction-result"

func (c *Client) fetchFromPage(ctx context.Context, caseNumber string) (casestatus.Result, error) {
	ctx, span := tracer.Start(ctx, "fetchFromPage")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("accept", "text/html").
		SetQueryParams(map[string]string{
			"case":     caseNumber,
			"employer": c.employerLetter,
		}).
		Get(c.config.BaseUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "page request failed")
		return casestatus.Result{}, fmt.Errorf("%w: page: %v", casestatus.ErrSourceUnavailable, err)
	}
	if res.StatusCode() != http.StatusOK {
		err := fmt.Errorf(
			"%w: page returned status %d", casestatus.ErrSourceUnavailable, res.StatusCode(),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "page returned non-200")
		return casestatus.Result{}, err
	}

	return parsePage(res.Body(), caseNumber)
}

func parsePage(markup []byte, caseNumber string) (casestatus.Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return casestatus.Result{}, fmt.Errorf("%w: parse markup: %v", casestatus.ErrSourceUnavailable, err)
	}

	block := doc.Find(resultSelector).First()
	if block.Length() == 0 {
		return casestatus.Result{}, fmt.Errorf(
			"%w: result block %q missing from markup", casestatus.ErrSourceUnavailable, resultSelector,
		)
	}

	rawStatus := htmlutil.CleanText(block.Find(".status-text").First().Text())
	if rawStatus == "" {
		rawStatus = htmlutil.CleanText(block.Text())
	}
	if rawStatus == "" {
		return casestatus.Result{}, fmt.Errorf(
			"%w: result block is empty", casestatus.ErrSourceUnavailable,
		)
	}
	if strings.Contains(strings.ToLower(rawStatus), "not found") {
		return casestatus.Result{}, fmt.Errorf("%w: %s", casestatus.ErrCaseNotFound, caseNumber)
	}

	now := timezone.Now()
	record := casestatus.CaseRecord{
		CaseNumber:  caseNumber,
		Status:      casestatus.Canonicalize(rawStatus),
		LastUpdated: &now,
		Office:      "Atlanta National Processing Center",
		FormType:    "ETA-9089",
		CaseType:    "Application for Permanent Employment Certification",
	}

	result := casestatus.Result{Record: record, Origin: casestatus.OriginLive}
	if queue := queueFromAttributes(block); queue != nil {
		result.Queue = queue
	}
	return result, nil
}

func queueFromAttributes(block *goquery.Selection) *casestatus.QueueSnapshot {
	position, okPosition := intAttribute(block, "data-queue-position")
	total, okTotal := intAttribute(block, "data-total-applications")
	if !okPosition || !okTotal {
		return nil
	}

	queue := &casestatus.QueueSnapshot{
		Position:          position,
		TotalApplications: total,
	}
	if rate, ok := block.Attr("data-processing-rate"); ok {
		if parsed, err := strconv.ParseFloat(rate, 64); err == nil {
			queue.ProcessingRate = parsed
		}
	}
	return queue
}

func intAttribute(block *goquery.Selection, name string) (int, bool) {
	raw, ok := block.Attr(name)
	if !ok {
		return 0, false
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return parsed, true
}
