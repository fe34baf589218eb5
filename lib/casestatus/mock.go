package casestatus

import (
	"casetrack-backend/lib/timezone"
)

// Mock is the statically configured substitute status used when the
// live source is unreachable, to keep the notification pipeline
// exercised on days the remote site is down.
type Mock struct {
	Enabled           bool    `json:"enabled"`
	Status            string  `json:"status"`
	Office            string  `json:"office"`
	Position          int     `json:"position"`
	TotalApplications int     `json:"total_applications"`
	ProcessingRate    float64 `json:"processing_rate"`
}

// Result builds the fallback fetch result for the given case.
func (m Mock) Result(caseNumber string) Result {
	status := m.Status
	if status == "" {
		status = "Pending Review"
	}
	now := timezone.Now()

	record := CaseRecord{
		CaseNumber:  caseNumber,
		Status:      status,
		LastUpdated: &now,
		Office:      m.Office,
		FormType:    FormTypeFromReceipt(caseNumber),
		Details:     "Live source unreachable, reporting configured mock data.",
	}
	record.CaseType = CaseTypeDescription(record.FormType)

	res := Result{Record: record, Origin: OriginFallback}
	if m.Position > 0 || m.TotalApplications > 0 {
		res.Queue = &QueueSnapshot{
			Position:          m.Position,
			TotalApplications: m.TotalApplications,
			ProcessingRate:    m.ProcessingRate,
		}
	}
	return res
}
