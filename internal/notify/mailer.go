package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"bursary/internal/applications"
	"bursary/internal/payments"
)

// ApplicationDirectory resolves an application reference to its record, so
// the mailer knows who to address.
type ApplicationDirectory interface {
	FindByID(ctx context.Context, id string) (applications.Application, error)
}

// MailerConfig configures the SMTP confirmation mailer.
type MailerConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Logf     func(format string, args ...any)
}

// Mailer sends payment-confirmation emails over SMTP. It implements
// payments.Notifier; delivery failures are reported to the caller, which
// logs and moves on.
type Mailer struct {
	addr string
	auth smtp.Auth
	from string
	apps ApplicationDirectory
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logf func(format string, args ...any)
}

// NewMailer constructs a Mailer.
func NewMailer(cfg MailerConfig, apps ApplicationDirectory) *Mailer {
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &Mailer{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth: auth,
		from: cfg.From,
		apps: apps,
		send: smtp.SendMail,
		logf: logf,
	}
}

// PaymentCompleted sends the confirmation mail for a completed payment.
func (m *Mailer) PaymentCompleted(ctx context.Context, notice payments.CompletedNotice) error {
	app, err := m.apps.FindByID(ctx, notice.ApplicationRef)
	if err != nil {
		return fmt.Errorf("lookup application %s: %w", notice.ApplicationRef, err)
	}

	msg := m.render(app, notice)
	if err := m.send(m.addr, m.auth, m.from, []string{app.Email}, msg); err != nil {
		return fmt.Errorf("send confirmation to %s: %w", app.Email, err)
	}
	m.logf("notify: confirmation sent to %s for order %s", app.Email, notice.OrderKey)
	return nil
}

func (m *Mailer) render(app applications.Application, notice payments.CompletedNotice) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", app.Email)
	b.WriteString("Subject: Scholarship Application Confirmed\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString("<h2>Application Received Successfully!</h2>")
	fmt.Fprintf(&b, "<p>Dear %s,</p>", app.Name)
	b.WriteString("<p>Your scholarship application has been submitted and payment received.</p>")
	b.WriteString("<ul>")
	fmt.Fprintf(&b, "<li>Application ID: <strong>%s</strong></li>", app.ID)
	fmt.Fprintf(&b, "<li>Payment Order ID: <strong>%s</strong></li>", notice.RemoteOrderID)
	fmt.Fprintf(&b, "<li>Amount Paid: ₹%d.%02d</li>", notice.AmountMinor/100, notice.AmountMinor%100)
	b.WriteString("<li>Status: Under Review</li>")
	b.WriteString("</ul>")
	b.WriteString("<p>We will contact you soon regarding the next steps.</p>")
	return []byte(b.String())
}
