package sender

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

// SMTPConfig configures the email sender. Username and Password are held here
// and nowhere else; they never appear in returned errors or outcomes.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	StartTLS bool
	Timeout  time.Duration
}

// SMTP delivers email reminders through a configured mail transport.
type SMTP struct {
	cfg SMTPConfig
}

var _ Sender = (*SMTP)(nil)

func NewSMTP(cfg SMTPConfig) *SMTP {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTP{cfg: cfg}
}

func (s *SMTP) Send(ctx context.Context, msg Message) (Outcome, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
	}
	if s.cfg.StartTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return Outcome{}, fmt.Errorf("smtp client: %s", s.redact(err))
	}

	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return Outcome{}, fmt.Errorf("smtp from address: %s", s.redact(err))
	}
	if err := m.To(msg.Recipient); err != nil {
		return Outcome{}, fmt.Errorf("smtp recipient rejected: %s", s.redact(err))
	}
	m.Subject("Reminder: " + msg.Title)
	m.SetBodyString(mail.TypeTextPlain, fmt.Sprintf("Reminder for: %s\nScheduled at: %s\n", msg.Title, msg.ScheduledAt))

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return Outcome{}, fmt.Errorf("smtp delivery failed: %s", s.redact(err))
	}
	return Outcome{Delivered: true, Note: "delivered via smtp"}, nil
}

// redact strips credential material from transport errors before they are
// persisted or logged.
func (s *SMTP) redact(err error) string {
	out := err.Error()
	for _, secret := range []string{s.cfg.Password, s.cfg.Username} {
		if secret != "" {
			out = strings.ReplaceAll(out, secret, "[redacted]")
		}
	}
	return out
}
