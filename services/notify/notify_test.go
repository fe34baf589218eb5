package notify

import (
	"context"
	"net"
	"testing"
	"time"

	"casetrack-backend/lib/casestatus"
	"casetrack-backend/lib/timezone"
	"casetrack-backend/services/estimate"

	"github.com/stretchr/testify/require"
)

func testMailer(recipients ...string) Mailer {
	return NewMailer(Options{
		Smtp: SmtpConfig{
			Server:       "smtp.example.com",
			Port:         587,
			EmailAddress: "bot@example.com",
			Password:     "secret",
			Recipients:   recipients,
		},
		Variant:      "PERM",
		EmployerName: "Example Corp",
	})
}

func testRecord() casestatus.CaseRecord {
	updated := time.Date(2026, 8, 20, 0, 0, 0, 0, timezone.Location)
	return casestatus.CaseRecord{
		CaseNumber:  "A-20123-45678",
		Status:      "Pending Review",
		LastUpdated: &updated,
		Office:      "Atlanta National Processing Center",
		FormType:    "ETA-9089",
		CaseType:    "Application for Permanent Employment Certification",
	}
}

func TestBuildMessage(t *testing.T) {
	mailer := testMailer("a@example.com")
	est := &estimate.Estimate{
		Position:          1500,
		TotalApplications: 5000,
		ProcessingRate:    50,
		DaysRemaining:     30,
		Date:              time.Date(2026, 9, 25, 0, 0, 0, 0, timezone.Location),
		ProcessedFraction: 0.7,
		Confidence:        estimate.ConfidenceMedium,
	}

	msg := mailer.BuildMessage(testRecord(), est)
	require.Equal(t, "PERM Status Update – Pending Review", msg.Subject)
	require.Equal(t, []string{"a@example.com"}, msg.Recipients)

	require.Contains(t, msg.Body, "Pending Review")
	require.Contains(t, msg.Body, "A-20123-45678")
	require.Contains(t, msg.Body, "1500 of 5000")
	require.Contains(t, msg.Body, "50 applications/day")
	require.Contains(t, msg.Body, "September 25, 2026")
	require.Contains(t, msg.Body, "Days Remaining:</strong> 30")
	require.Contains(t, msg.Body, "Medium")
	require.Contains(t, msg.Body, "70.0%")
	require.Contains(t, msg.Body, "Example Corp")
	// pending statuses render amber
	require.Contains(t, msg.Body, "#ffc107")
}

func TestBuildMessageWithoutEstimate(t *testing.T) {
	msg := testMailer("a@example.com").BuildMessage(testRecord(), nil)
	require.NotContains(t, msg.Body, "Position in Queue")
	require.Contains(t, msg.Body, "Pending Review")
}

func TestStatusColor(t *testing.T) {
	require.Equal(t, "#28a745", statusColor("Case Was Approved"))
	require.Equal(t, "#dc3545", statusColor("Case Was Denied"))
	require.Equal(t, "#ffc107", statusColor("Pending Review"))
	require.Equal(t, "#007bff", statusColor("In Process"))
}

func TestCleanRecipients(t *testing.T) {
	out := cleanRecipients([]string{" a@example.com , b@example.com", "", "c@example.com"})
	require.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, out)
}

func TestSendDeliveryFailed(t *testing.T) {
	// grab a port nothing is listening on
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().(*net.TCPAddr)
	require.NoError(t, listener.Close())

	mailer := NewMailer(Options{
		Smtp: SmtpConfig{
			Server:       "127.0.0.1",
			Port:         addr.Port,
			EmailAddress: "bot@example.com",
			Password:     "secret",
			Recipients:   []string{"a@example.com"},
		},
		Variant: "USCIS Case",
	})

	err = mailer.Send(context.Background(), testRecord(), nil)
	require.ErrorIs(t, err, ErrDeliveryFailed)
}
