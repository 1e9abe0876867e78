// Package mail delivers transactional email over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

const defaultSendTimeout = 30 * time.Second

// Attachment is a named file streamed into the message.
type Attachment struct {
	Name    string
	Content io.Reader
}

// Message is a plain-text email.
type Message struct {
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Config captures SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPMailer sends messages through a single SMTP relay.
type SMTPMailer struct {
	client sender
	from   string
	logger *zap.Logger
}

// NewSMTPMailer validates cfg and prepares the SMTP client. No connection is opened until Send.
func NewSMTPMailer(cfg Config, logger *zap.Logger) (*SMTPMailer, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errors.New("mail: smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("mail: from address is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	opts := []gomail.Option{
		gomail.WithTimeout(timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if strings.TrimSpace(cfg.Username) != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail: create smtp client: %w", err)
	}
	return newSMTPMailer(client, cfg.From, logger), nil
}

func newSMTPMailer(client sender, from string, logger *zap.Logger) *SMTPMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPMailer{client: client, from: strings.TrimSpace(from), logger: logger}
}

// Send delivers msg. Addresses are validated before dialing.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	built, err := m.build(msg)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, built); err != nil {
		return fmt.Errorf("mail: send %q: %w", msg.Subject, err)
	}
	m.logger.Debug("mail: message sent",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}

func (m *SMTPMailer) build(msg Message) (*gomail.Msg, error) {
	recipients := make([]string, 0, len(msg.To))
	for _, to := range msg.To {
		if to = strings.TrimSpace(to); to != "" {
			recipients = append(recipients, to)
		}
	}
	if len(recipients) == 0 {
		return nil, errors.New("mail: at least one recipient is required")
	}

	out := gomail.NewMsg()
	if err := out.From(m.from); err != nil {
		return nil, fmt.Errorf("mail: invalid from address: %w", err)
	}
	if err := out.To(recipients...); err != nil {
		return nil, fmt.Errorf("mail: invalid recipient: %w", err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(gomail.TypeTextPlain, msg.Body)
	for _, att := range msg.Attachments {
		if att.Content == nil || strings.TrimSpace(att.Name) == "" {
			continue
		}
		if err := out.AttachReader(att.Name, att.Content); err != nil {
			return nil, fmt.Errorf("mail: attach %s: %w", att.Name, err)
		}
	}
	return out, nil
}
