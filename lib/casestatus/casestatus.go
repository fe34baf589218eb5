// Package casestatus holds the status snapshot shared by every tracker
// variant, plus the tagged fetch result that lets callers tell a live
// fetch apart from a configured mock fallback.
package casestatus

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSourceUnavailable covers network errors, timeouts and
	// unparseable responses after retries are exhausted.
	ErrSourceUnavailable = errors.New("case status source unavailable")
	// ErrCaseNotFound is an explicit negative from the remote system.
	// It is never retried and never replaced with mock data.
	ErrCaseNotFound = errors.New("case not found")
)

// CaseRecord is the normalized status snapshot for one immigration case
// as of the current run. It is built fresh every invocation and never
// persisted.
type CaseRecord struct {
	CaseNumber  string
	Status      string
	LastUpdated *time.Time
	Office      string
	FormType    string
	CaseType    string
	Details     string
}

// QueueSnapshot is the PERM queue data a record was derived from.
type QueueSnapshot struct {
	Position          int
	TotalApplications int
	ProcessingRate    float64
	AsOfDate          string
}

type Origin int

const (
	// OriginLive means the record came from the remote system.
	OriginLive Origin = iota
	// OriginFallback means the live fetch failed and the record is the
	// statically configured mock.
	OriginFallback
)

func (o Origin) String() string {
	if o == OriginFallback {
		return "fallback"
	}
	return "live"
}

// Result is the tagged outcome of a fetch. Hard failures are returned
// as errors instead, so a Result always carries a usable record.
type Result struct {
	Record CaseRecord
	Queue  *QueueSnapshot
	Origin Origin
}

type Source interface {
	FetchStatus(ctx context.Context, caseNumber string) (Result, error)
}
