package casestatus

import (
	"strings"

	"casetrack-backend/lib/htmlutil"

	"github.com/antzucaro/matchr"
)

// statuses we know how to phrase, scraped text gets snapped onto these
// when it is close enough
var knownStatuses = []string{
	"Case Was Received",
	"Case Was Approved",
	"Case Was Denied",
	"Pending Review",
	"In Process",
	"Request For Evidence Was Sent",
	"Card Was Mailed",
}

const canonicalSimilarity = 0.92

// Canonicalize cleans scraped status text and, when it closely matches
// one of the known status phrasings, returns the canonical form. Sites
// vary capitalization and trailing punctuation between page revisions,
// which otherwise produces spurious "status changed" emails.
func Canonicalize(raw string) string {
	cleaned := htmlutil.CleanText(raw)
	if cleaned == "" {
		return cleaned
	}

	var best string
	var bestSim float64
	for _, known := range knownStatuses {
		sim := matchr.JaroWinkler(strings.ToLower(cleaned), strings.ToLower(known), false)
		if sim > bestSim {
			bestSim = sim
			best = known
		}
	}
	if bestSim >= canonicalSimilarity {
		return best
	}
	return cleaned
}
