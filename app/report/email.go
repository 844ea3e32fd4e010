package report

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"
)

// EmailConfig carries SMTP settings and the report templates. DeliveryMode
// "log" writes the rendered message to the log instead of sending, which
// is the mode used in development.
type EmailConfig struct {
	Host            string
	Port            int
	From            string
	User            string
	Password        string
	SubjectTemplate string
	BodyTemplate    string
	AttachCSV       bool
	DeliveryMode    string // "smtp" or "log"
}

// Message holds the values substituted into the subject and body
// templates.
type Message struct {
	URL           string
	Score         int
	ItemsScanned  int
	Errors        int
	Warnings      int
	RuleVersion   string
	OverrideCount int
	ReportURL     string // public report link, empty when sharing is off
}

type Mailer struct {
	cfg EmailConfig
}

func NewMailer(cfg EmailConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// RenderTokens substitutes the {token} placeholders supported in subject
// and body templates.
func RenderTokens(template string, msg Message) string {
	r := strings.NewReplacer(
		"{url}", msg.URL,
		"{score}", fmt.Sprintf("%d", msg.Score),
		"{items_scanned}", fmt.Sprintf("%d", msg.ItemsScanned),
		"{errors}", fmt.Sprintf("%d", msg.Errors),
		"{warnings}", fmt.Sprintf("%d", msg.Warnings),
		"{date}", time.Now().Format("2006-01-02"),
		"{rule_version}", msg.RuleVersion,
		"{override_count}", fmt.Sprintf("%d", msg.OverrideCount),
	)
	return r.Replace(template)
}

// Send delivers the report email to the recipient, optionally attaching
// the issues CSV.
func (m *Mailer) Send(to string, msg Message, csvAttachment []byte) error {
	subject := RenderTokens(m.cfg.SubjectTemplate, msg)
	body := RenderTokens(m.cfg.BodyTemplate, msg)
	if msg.ReportURL != "" {
		body += "\r\n\r\nView the full report: " + msg.ReportURL
	}

	if m.cfg.DeliveryMode == "log" {
		slog.Info("Email delivery skipped (log mode)",
			"to", to, "subject", subject, "attachment_bytes", len(csvAttachment))
		return nil
	}

	var raw []byte
	var err error
	if m.cfg.AttachCSV && len(csvAttachment) > 0 {
		raw, err = m.buildMultipart(to, subject, body, csvAttachment)
	} else {
		raw = m.buildPlain(to, subject, body)
	}
	if err != nil {
		return fmt.Errorf("failed to build email: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, raw); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func (m *Mailer) buildPlain(to, subject, body string) []byte {
	var b strings.Builder
	writeHeaders(&b, m.cfg.From, to, subject)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func (m *Mailer) buildMultipart(to, subject, body string, attachment []byte) ([]byte, error) {
	var b strings.Builder
	writeHeaders(&b, m.cfg.From, to, subject)

	w := multipart.NewWriter(&b)
	b.WriteString("Content-Type: multipart/mixed; boundary=" + w.Boundary() + "\r\n\r\n")

	textPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=UTF-8"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := textPart.Write([]byte(body)); err != nil {
		return nil, err
	}

	csvPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/csv; charset=UTF-8"},
		"Content-Disposition":       {`attachment; filename="feed-issues.csv"`},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(attachment)
	if _, err := csvPart.Write([]byte(encoded)); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return []byte(b.String()), nil
}

func writeHeaders(b *strings.Builder, from, to, subject string) {
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
}
