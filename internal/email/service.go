// Package email sends poll invitations over SMTP.
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

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

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

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart message with a plain-text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if len(to) == 0 {
		return errors.New("no recipients")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	boundary := "trip-planner-boundary"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", textBody)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	if err := s.send(s.server, s.auth, s.config.From, to, msg.Bytes()); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

type PollInviteData struct {
	InviterName string
	Question    string
	TripName    string
	Options     []string
	PollURL     string
}

func (s *Service) SendPollInvite(to []string, data PollInviteData) error {
	subject := fmt.Sprintf("%s wants your vote: %s", inviterOrDefault(data.InviterName), data.Question)
	html, err := renderTemplate(pollInviteTemplate, data)
	if err != nil {
		return fmt.Errorf("render poll invite template: %w", err)
	}
	text := fmt.Sprintf("%s\n\nVote here: %s", data.Question, data.PollURL)
	return s.SendHTMLEmail(to, subject, text, html)
}

func inviterOrDefault(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Your travel group"
	}
	return name
}

var templateFuncs = template.FuncMap{"inviter": inviterOrDefault}

func renderTemplate(tmpl string, data any) (string, error) {
	t, err := template.New("email").Funcs(templateFuncs).Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const pollInviteTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Question}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0f766e; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0f766e; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .options li { margin: 4px 0; }
        .link { word-break: break-all; color: #0f766e; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{if .TripName}}{{.TripName}}{{else}}Trip poll{{end}}</h1>
    </div>

    <p>{{inviter .InviterName}} asked the group to vote:</p>
    <h2>{{.Question}}</h2>
    {{if .Options}}
    <ul class="options">
        {{range .Options}}<li>{{.}}</li>{{end}}
    </ul>
    {{end}}

    <p>
        <a href="{{.PollURL}}" class="button">Cast your vote</a>
    </p>

    <p>Or open this link in your browser:</p>
    <p class="link">{{.PollURL}}</p>
</body>
</html>`
