package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/obaatanpa/internal/models"
)

// EmailMessage is a rendered HTML email.
type EmailMessage struct {
	To      string
	Subject string
	HTML    string
	// Link is the action URL embedded in HTML, kept for transports that
	// only log.
	Link string
}

// Mailer hands a message to an outbound transport.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// SMTPMailer delivers mail through an authenticated SMTP relay. Port 465 uses
// implicit TLS; other ports upgrade with STARTTLS when the server offers it.
type SMTPMailer struct {
	host     string
	port     string
	username string
	password string
	from     string
}

// NewSMTPMailer builds a mailer sending as "fromName <fromEmail>".
func NewSMTPMailer(host, port, user, pass, fromName, fromEmail string) *SMTPMailer {
	return &SMTPMailer{
		host:     host,
		port:     port,
		username: user,
		password: pass,
		from:     fmt.Sprintf("%s <%s>", fromName, fromEmail),
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg EmailMessage) error {
	addr := net.JoinHostPort(m.host, m.port)
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	var conn net.Conn
	var err error
	if m.port == "465" {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: m.host}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if m.port != "465" {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
				return err
			}
		}
	}

	if err := client.Auth(smtp.PlainAuth("", m.username, m.password, m.host)); err != nil {
		return err
	}

	fromAddr := m.username
	if addr, ok := extractAddress(m.from); ok {
		fromAddr = addr
	}
	if err := client.Mail(fromAddr); err != nil {
		return err
	}
	if err := client.Rcpt(msg.To); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(m.compose(msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return client.Quit()
}

func (m *SMTPMailer) compose(msg EmailMessage) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return b.Bytes()
}

func extractAddress(from string) (string, bool) {
	start := strings.LastIndex(from, "<")
	end := strings.LastIndex(from, ">")
	if start < 0 || end <= start+1 {
		return "", false
	}
	return from[start+1 : end], true
}

// LogMailer writes messages to the log instead of sending them. Used when no
// SMTP relay is configured.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg EmailMessage) error {
	m.logger.Info("email not sent, no SMTP relay configured",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("link", msg.Link),
	)
	return nil
}

var verificationTemplate = template.Must(template.New("verify").Parse(`
<h1>Welcome to Obaatanpa!</h1>
<p>Hello {{.Name}},</p>
<p>Thank you for signing up with Obaatanpa. Please verify your email address by clicking the link below:</p>
<a href="{{.Link}}" style="background-color: #4CAF50; color: white; padding: 14px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">Verify Email</a>
<p>If the button doesn't work, copy and paste this link into your browser:</p>
<p>{{.Link}}</p>
<p>This link will expire in {{.ValidFor}}.</p>
<p>Best regards,<br>The Obaatanpa Team</p>
`))

var resetTemplate = template.Must(template.New("reset").Parse(`
<h1>Password Reset Request</h1>
<p>Hello {{.Name}},</p>
<p>You requested a password reset. Click the link below to reset your password:</p>
<a href="{{.Link}}" style="background-color: #4CAF50; color: white; padding: 14px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">Reset Password</a>
<p>If the button doesn't work, copy and paste this link into your browser:</p>
<p>{{.Link}}</p>
<p>This link will expire in {{.ValidFor}}.</p>
<p>If you didn't request this, please ignore this email.</p>
<p>Best regards,<br>The Obaatanpa Team</p>
`))

type emailData struct {
	Name     string
	Link     string
	ValidFor string
}

func actionLink(frontendURL, path, token string) string {
	return strings.TrimRight(frontendURL, "/") + path + "?token=" + url.QueryEscape(token)
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		if d == time.Minute {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}

func renderEmail(tmpl *template.Template, to, subject string, data emailData) (EmailMessage, error) {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return EmailMessage{}, err
	}
	return EmailMessage{To: to, Subject: subject, HTML: body.String(), Link: data.Link}, nil
}

func verificationEmail(frontendURL string, user *models.User, token string, validFor time.Duration) (EmailMessage, error) {
	return renderEmail(verificationTemplate, user.Email, "Verify Your Email - Obaatanpa", emailData{
		Name:     user.FirstName,
		Link:     actionLink(frontendURL, "/verify-email", token),
		ValidFor: humanDuration(validFor),
	})
}

func passwordResetEmail(frontendURL string, user *models.User, token string, validFor time.Duration) (EmailMessage, error) {
	return renderEmail(resetTemplate, user.Email, "Password Reset - Obaatanpa", emailData{
		Name:     user.FirstName,
		Link:     actionLink(frontendURL, "/reset-password", token),
		ValidFor: humanDuration(validFor),
	})
}
