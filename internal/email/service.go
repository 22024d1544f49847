// Package email sends run summaries to the OSC distribution list over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// RunSummary is the content of the mail sent after a run completes.
type RunSummary struct {
	RunID      string
	Period     string
	CreatedBy  string
	Categories []CategoryCount
	Pending    int
	Suppressed int
	Link       string
}

type CategoryCount struct {
	Title string
	Rows  int
}

func (r RunSummary) Total() int {
	n := 0
	for _, c := range r.Categories {
		n += c.Rows
	}
	return n
}

// SendRunSummary mails the per-category counts of a run.
func (s *Service) SendRunSummary(to []string, summary RunSummary) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if len(to) == 0 {
		return nil
	}
	htmlBody, err := renderTemplate(runSummaryTemplate, summary)
	if err != nil {
		return fmt.Errorf("render run summary: %w", err)
	}
	subject := fmt.Sprintf("Lampiran G %s: %d rekod", summary.Period, summary.Total())
	return s.send(s.server, s.auth, s.config.From, to, s.buildMessage(to, subject, plainSummary(summary), htmlBody))
}

// buildMessage assembles a multipart/alternative message.
func (s *Service) buildMessage(to []string, subject, textBody, htmlBody string) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	boundary := "boundary-lampiran"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

func plainSummary(summary RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lampiran G %s (run %s) oleh %s\r\n", summary.Period, summary.RunID, summary.CreatedBy)
	for i, c := range summary.Categories {
		fmt.Fprintf(&b, "%d. %s: %d\r\n", i+1, c.Title, c.Rows)
	}
	fmt.Fprintf(&b, "Jumlah: %d (belum diputuskan %d, ditapis agenda %d)", summary.Total(), summary.Pending, summary.Suppressed)
	if summary.Link != "" {
		fmt.Fprintf(&b, "\r\n%s", summary.Link)
	}
	return b.String()
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const runSummaryTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Lampiran G {{.Period}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.5; color: #222; max-width: 640px; margin: 0 auto; padding: 20px; }
        table { border-collapse: collapse; width: 100%; }
        td, th { border: 1px solid #999; padding: 6px 8px; text-align: left; }
        td.n { text-align: right; }
        .footer { margin-top: 24px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <h2>Lampiran G {{.Period}}</h2>
    <p>Run {{.RunID}} oleh {{.CreatedBy}}.</p>
    <table>
        <tr><th>Kategori</th><th>Rekod</th></tr>
        {{range .Categories}}<tr><td>{{.Title}}</td><td class="n">{{.Rows}}</td></tr>
        {{end}}<tr><th>Jumlah</th><th class="n">{{.Total}}</th></tr>
    </table>
    <p>Belum diputuskan: {{.Pending}}. Ditapis oleh agenda mesyuarat: {{.Suppressed}}.</p>
    {{if .Link}}<p><a href="{{.Link}}">{{.Link}}</a></p>{{end}}
    <div class="footer">Dijana secara automatik.</div>
</body>
</html>`
