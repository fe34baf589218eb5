package uscis

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"casetrack-backend/lib/casestatus"
	"casetrack-backend/lib/htmlutil"
	"casetrack-backend/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

// the public case-status page renders the result inside this block,
// stable across site revisions for years
const statusSelector = "div.rows.text-center"

// fetchFromScrape posts the public case-status form and pulls the
// status text out of the returned markup. It is the last live resort
// before mock data.
func (c *Client) fetchFromScrape(ctx context.Context, caseNumber string) (casestatus.CaseRecord, error) {
	ctx, span := tracer.Start(ctx, "fetchFromScrape")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("accept", "text/html").
		SetFormData(map[string]string{
			"appReceiptNum":  caseNumber,
			"initCaseSearch": "CHECK STATUS",
		}).
		Post(c.config.ScrapeUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scrape request failed")
		return casestatus.CaseRecord{}, fmt.Errorf("%w: scrape: %v", casestatus.ErrSourceUnavailable, err)
	}
	if res.StatusCode() != http.StatusOK {
		err := fmt.Errorf(
			"%w: scrape returned status %d", casestatus.ErrSourceUnavailable, res.StatusCode(),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "scrape returned non-200")
		return casestatus.CaseRecord{}, err
	}

	return parseScrapedStatus(res.Body(), caseNumber)
}

func parseScrapedStatus(markup []byte, caseNumber string) (casestatus.CaseRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return casestatus.CaseRecord{}, fmt.Errorf("%w: parse markup: %v", casestatus.ErrSourceUnavailable, err)
	}

	block := doc.Find(statusSelector).First()
	if block.Length() == 0 {
		return casestatus.CaseRecord{}, fmt.Errorf(
			"%w: status block %q missing from markup", casestatus.ErrSourceUnavailable, statusSelector,
		)
	}

	heading := htmlutil.CleanText(block.Find("h1").First().Text())
	details := htmlutil.CleanText(block.Find("p").First().Text())
	if heading == "" {
		heading = htmlutil.CleanText(block.Text())
		details = ""
	}
	if heading == "" {
		return casestatus.CaseRecord{}, fmt.Errorf(
			"%w: status block is empty", casestatus.ErrSourceUnavailable,
		)
	}
	// test the raw text, canonicalization would smooth a negative
	// result into the nearest known status
	if strings.Contains(strings.ToLower(heading), "not found") ||
		strings.Contains(strings.ToLower(details), "cannot be found") {
		return casestatus.CaseRecord{}, fmt.Errorf("%w: %s", casestatus.ErrCaseNotFound, caseNumber)
	}

	now := timezone.Now()
	record := casestatus.CaseRecord{
		CaseNumber:  caseNumber,
		Status:      casestatus.Canonicalize(heading),
		LastUpdated: &now,
		Office:      "USCIS Service Center",
		FormType:    casestatus.FormTypeFromReceipt(caseNumber),
		Details:     details,
	}
	record.CaseType = casestatus.CaseTypeDescription(record.FormType)
	return record, nil
}
