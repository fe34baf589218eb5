// Package notify formats a case status snapshot into an HTML email and
// submits it over SMTP. One best-effort attempt per run: a failed send
// surfaces to the caller with the status detail already logged, so the
// run's result is never silently lost.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"casetrack-backend/lib/casestatus"
	"casetrack-backend/lib/timezone"
	"casetrack-backend/services/estimate"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("casetrack/notify")

// ErrDeliveryFailed covers SMTP handshake, authentication and send
// failures.
var ErrDeliveryFailed = errors.New("notification delivery failed")

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	Recipients   []string `json:"recipients"`
}

type Options struct {
	Smtp SmtpConfig
	// Variant labels the subject line, e.g. "PERM" or "USCIS Case".
	Variant      string
	EmployerName string
}

type Mailer struct {
	config Options
}

func NewMailer(options Options) Mailer {
	return Mailer{config: options}
}

// Message is built per run and consumed once by the SMTP transport.
type Message struct {
	Subject    string
	Body       string
	Recipients []string
}

func (m Mailer) Send(ctx context.Context, record casestatus.CaseRecord, est *estimate.Estimate) error {
	ctx, span := tracer.Start(ctx, "Send")
	defer span.End()

	msg := m.BuildMessage(record, est)
	span.SetAttributes(
		attribute.String("subject", msg.Subject),
		attribute.Int("recipients", len(msg.Recipients)),
	)

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Case Tracker <%s>", m.config.Smtp.EmailAddress)
	mail.To = msg.Recipients
	mail.Subject = msg.Subject
	mail.HTML = []byte(msg.Body)

	addr := fmt.Sprintf("%s:%d", m.config.Smtp.Server, m.config.Smtp.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", m.config.Smtp.EmailAddress, m.config.Smtp.Password, m.config.Smtp.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		slog.ErrorContext(ctx, "status email failed to send",
			"case_number", record.CaseNumber,
			"status", record.Status,
			"err", err,
		)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	slog.InfoContext(ctx, "status email sent",
		"recipients", len(msg.Recipients),
		"subject", msg.Subject,
	)
	return nil
}

func (m Mailer) BuildMessage(record casestatus.CaseRecord, est *estimate.Estimate) Message {
	variant := m.config.Variant
	if variant == "" {
		variant = "Case"
	}
	return Message{
		Subject:    fmt.Sprintf("%s Status Update – %s", variant, record.Status),
		Body:       m.buildBody(record, est),
		Recipients: cleanRecipients(m.config.Smtp.Recipients),
	}
}

func cleanRecipients(raw []string) []string {
	var out []string
	for _, r := range raw {
		// allow comma-joined entries inside a single config value
		for _, addr := range strings.Split(r, ",") {
			addr = strings.TrimSpace(addr)
			if addr != "" {
				out = append(out, addr)
			}
		}
	}
	return out
}

func statusColor(status string) string {
	lower := strings.ToLower(status)
	switch {
	case strings.Contains(lower, "approved"):
		return "#28a745"
	case strings.Contains(lower, "denied"):
		return "#dc3545"
	case strings.Contains(lower, "pending"):
		return "#ffc107"
	default:
		return "#007bff"
	}
}

func (m Mailer) buildBody(record casestatus.CaseRecord, est *estimate.Estimate) string {
	color := statusColor(record.Status)

	var b strings.Builder
	fmt.Fprintf(&b, `<html>
<body style="font-family: Arial, sans-serif; max-width: 700px; margin: 0 auto; padding: 20px;">
<div style="background-color: #f8f9fa; padding: 20px; border-radius: 10px; border-left: 5px solid %s;">
`, color)
	fmt.Fprintf(&b, `<h2 style="color: %s; margin-top: 0;">%s Status Update – %s</h2>
`, color, m.config.Variant, record.CaseNumber)
	fmt.Fprintf(&b, `<p style="font-size: 1.2em;"><strong>Current Status:</strong> <span style="color: %s;">%s</span></p>
`, color, record.Status)

	if record.FormType != "" {
		fmt.Fprintf(&b, "<p><strong>Form Type:</strong> %s (%s)</p>\n", record.FormType, record.CaseType)
	}
	if record.Office != "" {
		fmt.Fprintf(&b, "<p><strong>Office:</strong> %s</p>\n", record.Office)
	}
	if m.config.EmployerName != "" {
		fmt.Fprintf(&b, "<p><strong>Employer:</strong> %s</p>\n", m.config.EmployerName)
	}
	if record.LastUpdated != nil {
		fmt.Fprintf(&b, "<p><strong>Last Updated:</strong> %s</p>\n",
			record.LastUpdated.Format("January 2, 2006"))
	}
	if record.Details != "" {
		fmt.Fprintf(&b, "<p>%s</p>\n", record.Details)
	}

	if est != nil {
		fmt.Fprintf(&b, `<hr style="border: none; border-top: 1px solid #dee2e6;">
<p><strong>Position in Queue:</strong> %d of %d</p>
<p><strong>Processing Rate:</strong> %.0f applications/day</p>
<p><strong>Estimated Approval Date:</strong> %s</p>
<p><strong>Days Remaining:</strong> %d</p>
<p><strong>Confidence:</strong> %s</p>
<p><strong>Progress:</strong> %.1f%%</p>
`,
			est.Position, est.TotalApplications,
			est.ProcessingRate,
			est.Date.Format("January 2, 2006"),
			est.DaysRemaining,
			est.Confidence,
			est.ProgressPercent(),
		)
	}

	fmt.Fprintf(&b, `<p style="color: #666; font-size: 12px; margin-top: 20px;">Report generated on %s</p>
</div>
</body>
</html>`, timezone.Now().Format("January 2, 2006 at 3:04 PM MST"))

	return b.String()
}
