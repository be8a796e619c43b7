// Package notify emails users when a direct message arrives.
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
	"strings"
	"unicode/utf8"
)

const previewRunes = 140

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	AppURL   string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends message notifications over SMTP.
type Mailer struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

// NewMailer creates a new SMTP mailer
func NewMailer(config Config) *Mailer {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Mailer{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (m *Mailer) IsConfigured() bool {
	return m.config.Host != "" && m.config.Port != "" && m.config.From != ""
}

// NewMessage describes a delivered direct message.
type NewMessage struct {
	To            string
	RecipientName string
	SenderName    string
	Content       string
}

type newMessageData struct {
	RecipientName string
	SenderName    string
	Preview       string
	InboxURL      string
}

// NotifyNewMessage emails the recipient a short preview with a link to the inbox.
func (m *Mailer) NotifyNewMessage(msg NewMessage) error {
	if !m.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("recipient has no email address")
	}

	html, err := renderTemplate(newMessageTemplate, newMessageData{
		RecipientName: msg.RecipientName,
		SenderName:    msg.SenderName,
		Preview:       Preview(msg.Content),
		InboxURL:      strings.TrimRight(m.config.AppURL, "/") + "/inbox",
	})
	if err != nil {
		return fmt.Errorf("render message template: %w", err)
	}
	subject := fmt.Sprintf("New message from %s", msg.SenderName)
	return m.sendHTML([]string{msg.To}, subject, html)
}

// NotifyAsync sends in the background and logs failures.
func (m *Mailer) NotifyAsync(msg NewMessage) {
	if !m.IsConfigured() {
		return
	}
	go func() {
		if err := m.NotifyNewMessage(msg); err != nil {
			log.Printf("notify: message email to %s failed: %v", msg.To, err)
		}
	}()
}

// Preview trims message content to a single short line.
func Preview(content string) string {
	text := strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:previewRunes])) + "…"
}

func (m *Mailer) sendHTML(to []string, subject, htmlBody string) error {
	from := m.config.From
	if m.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.config.FromName, m.config.From)
	}

	boundary := "boundary-writepad"

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
	fmt.Fprintf(&msg, "%s\r\n", subject)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return m.send(m.server, m.auth, m.config.From, to, msg.Bytes())
}

func renderTemplate(tmpl string, data any) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const newMessageTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New message from {{.SenderName}}</title>
    <style>
        body { font-family: Georgia, serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .quote { border-left: 3px solid #6366f1; padding-left: 12px; color: #555; }
        .button { display: inline-block; padding: 10px 20px; background: #6366f1; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <p>Hi {{.RecipientName}},</p>
    <p>{{.SenderName}} sent you a message:</p>
    <p class="quote">{{.Preview}}</p>
    <p><a href="{{.InboxURL}}" class="button">Open inbox</a></p>
    <div class="footer">
        <p>You receive this because someone messaged you on Writepad.</p>
    </div>
</body>
</html>`
