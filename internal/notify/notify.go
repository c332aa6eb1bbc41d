// Package notify tells the site owner about new contact messages.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/padillasconcrete/siteapi/internal/config"
	"github.com/padillasconcrete/siteapi/internal/core"
	"github.com/padillasconcrete/siteapi/internal/i18n"
	"github.com/padillasconcrete/siteapi/internal/metrics"
)

const (
	ChannelSMTP = "smtp"
	ChannelLog  = "log"
)

// Notifier delivers a contact message to the business owner.
type Notifier interface {
	Notify(ctx context.Context, msg core.ContactMessage) error
	Channel() string
}

// New returns an SMTP notifier when mail is enabled and a log notifier
// otherwise.
func New(cfg config.MailConfig, logger *logging.Logger) (Notifier, error) {
	if !cfg.Enabled {
		return &LogNotifier{Logger: logger}, nil
	}
	return NewSMTPNotifier(cfg)
}

// Sender abstracts gomail.Dialer so tests can capture messages.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPNotifier struct {
	sender   Sender
	from     string
	to       []string
	language string
}

func NewSMTPNotifier(cfg config.MailConfig) (*SMTPNotifier, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("mail host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("mail from address is required")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("at least one mail recipient is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	dialer := gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password)
	return NewSMTPNotifierWithSender(dialer, cfg), nil
}

func NewSMTPNotifierWithSender(sender Sender, cfg config.MailConfig) *SMTPNotifier {
	return &SMTPNotifier{
		sender:   sender,
		from:     cfg.From,
		to:       cfg.To,
		language: cfg.Language,
	}
}

func (n *SMTPNotifier) Channel() string { return ChannelSMTP }

func (n *SMTPNotifier) Notify(ctx context.Context, msg core.ContactMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := n.compose(msg)
	err := n.sender.DialAndSend(m)
	metrics.RecordNotification(ChannelSMTP, err == nil)
	if err != nil {
		return fmt.Errorf("send contact notification: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) compose(msg core.ContactMessage) *gomail.Message {
	p := i18n.For(n.language)

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(n.from, "Padilla's Concrete website"))
	m.SetHeader("To", n.to...)
	if msg.Email != "" {
		m.SetHeader("Reply-To", m.FormatAddress(msg.Email, msg.Name))
	}
	m.SetHeader("Subject", Subject(p, msg))
	m.SetBody("text/plain", PlainBody(p, msg))
	m.AddAlternative("text/html", htmlBody(p, msg))
	return m
}

// Subject is the localized notification subject line.
func Subject(p *i18n.Printer, msg core.ContactMessage) string {
	return p.T(i18n.KeyNotifySubject, msg.Name, msg.Service)
}

// PlainBody renders the message as text.
func PlainBody(p *i18n.Printer, msg core.ContactMessage) string {
	var b strings.Builder
	b.WriteString(p.T(i18n.KeyNotifyIntro))
	b.WriteString("\n\n")
	for _, row := range rows(msg) {
		fmt.Fprintf(&b, "%s: %s\n", row[0], row[1])
	}
	b.WriteString("\n")
	b.WriteString(msg.Message)
	b.WriteString("\n")
	return b.String()
}

func htmlBody(p *i18n.Printer, msg core.ContactMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>%s</p><table>", html.EscapeString(p.T(i18n.KeyNotifyIntro)))
	for _, row := range rows(msg) {
		fmt.Fprintf(&b, "<tr><th align=\"left\">%s</th><td>%s</td></tr>", row[0], html.EscapeString(row[1]))
	}
	fmt.Fprintf(&b, "</table><p style=\"white-space:pre-wrap\">%s</p>", html.EscapeString(msg.Message))
	return b.String()
}

func rows(msg core.ContactMessage) [][2]string {
	out := [][2]string{
		{"Name", msg.Name},
		{"Email", msg.Email},
		{"Phone", msg.Phone},
		{"Service", msg.Service},
		{"Submitted", msg.Timestamp},
	}
	if msg.Language != "" {
		out = append(out, [2]string{"Language", msg.Language})
	}
	if msg.ClientIP != "" {
		out = append(out, [2]string{"IP", msg.ClientIP})
	}
	return out
}

// LogNotifier writes notifications to the server log. It is used when SMTP
// is not configured.
type LogNotifier struct {
	Logger *logging.Logger
}

func (n *LogNotifier) Channel() string { return ChannelLog }

func (n *LogNotifier) Notify(ctx context.Context, msg core.ContactMessage) error {
	if n.Logger != nil {
		n.Logger.Info("New contact message",
			zap.String("id", msg.ID),
			zap.String("name", msg.Name),
			zap.String("email", msg.Email),
			zap.String("service", msg.Service))
	}
	metrics.RecordNotification(ChannelLog, true)
	return nil
}
