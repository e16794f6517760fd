package alerting

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// MailOptions configure the SMTP transport.
type MailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Timeout  time.Duration
}

// MailNotifier sends plain text mail through an SMTP relay.
type MailNotifier struct {
	opts   MailOptions
	logger zerolog.Logger
}

// NewMailNotifier constructs a mail notifier.
func NewMailNotifier(opts MailOptions, logger zerolog.Logger) *MailNotifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Port == 0 {
		opts.Port = 587
	}
	return &MailNotifier{opts: opts, logger: logger.With().Str("component", "alert_mail").Logger()}
}

// Name implements Notifier.
func (m *MailNotifier) Name() string { return "mail" }

// Notify delivers the notification to every recipient in one transaction.
func (m *MailNotifier) Notify(ctx context.Context, note Notification) error {
	addr := net.JoinHostPort(m.opts.Host, strconv.Itoa(m.opts.Port))

	deadline := time.Now().Add(m.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("set smtp deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, m.opts.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.opts.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if m.opts.Username != "" {
		auth := smtp.PlainAuth("", m.opts.Username, m.opts.Password, m.opts.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.opts.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range m.opts.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(m.message(note)); err != nil {
		return fmt.Errorf("write smtp body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish smtp body: %w", err)
	}
	if err := client.Quit(); err != nil {
		m.logger.Debug().Err(err).Msg("smtp quit failed")
	}

	m.logger.Info().Str("subject", note.Subject).Int("recipients", len(m.opts.To)).Msg("alert mailed")
	return nil
}

func (m *MailNotifier) message(note Notification) []byte {
	var b strings.Builder
	b.WriteString("From: " + m.opts.From + "\r\n")
	b.WriteString("To: " + strings.Join(m.opts.To, ", ") + "\r\n")
	b.WriteString("Subject: " + note.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(note.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

var _ Notifier = (*MailNotifier)(nil)
