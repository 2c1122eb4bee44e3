package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gomail "gopkg.in/gomail.v2"

	"github.com/wahret-zmen/api/internal/platform/config"
)

// Message describes an outbound email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender delivers outbound email messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts ordinary functions to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

// Send delivers the message using the wrapped function.
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

type dialSendFunc func(m ...*gomail.Message) error

// SMTPSender delivers email through an SMTP relay.
type SMTPSender struct {
	from       string
	subjectTag string
	send       dialSendFunc
}

// SMTPOption customises SMTPSender construction.
type SMTPOption func(*SMTPSender)

// WithSendFunc overrides the SMTP dial-and-send step, primarily for tests.
func WithSendFunc(send func(m ...*gomail.Message) error) SMTPOption {
	return func(s *SMTPSender) {
		if send != nil {
			s.send = send
		}
	}
}

// NewSMTPSender constructs an SMTPSender from mail configuration.
func NewSMTPSender(cfg config.MailConfig, opts ...SMTPOption) (*SMTPSender, error) {
	from := strings.TrimSpace(cfg.FromAddress)
	if from == "" {
		from = strings.TrimSpace(cfg.Username)
	}
	if from == "" {
		return nil, errors.New("mail: from address is required")
	}

	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password)

	sender := &SMTPSender{
		from:       from,
		subjectTag: strings.TrimSpace(cfg.SubjectTag),
		send:       dialer.DialAndSend,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(sender)
		}
	}

	if sender.send == nil {
		return nil, errors.New("mail: smtp host is required")
	}
	return sender, nil
}

// Send delivers the message through the configured relay.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if s == nil || s.send == nil {
		return errors.New("mail: sender not initialised")
	}
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return errors.New("mail: recipient is required")
	}
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	subject := strings.TrimSpace(msg.Subject)
	if s.subjectTag != "" {
		subject = fmt.Sprintf("[%s] %s", s.subjectTag, subject)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	if msg.TextBody != "" {
		m.SetBody("text/plain", msg.TextBody)
		if msg.HTMLBody != "" {
			m.AddAlternative("text/html", msg.HTMLBody)
		}
	} else {
		m.SetBody("text/html", msg.HTMLBody)
	}

	if err := s.send(m); err != nil {
		return fmt.Errorf("mail: send to %s: %w", maskRecipient(to), err)
	}
	return nil
}

func maskRecipient(addr string) string {
	at := strings.IndexByte(addr, '@')
	if at <= 1 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}
