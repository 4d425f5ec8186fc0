package notify

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/config"
	"github.com/iliyamo/showtime-booking/internal/logger"
)

// Mailer sends a single email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewMailer returns an SMTP mailer when a host is configured and a log
// mailer otherwise.
func NewMailer(cfg config.SMTPConfig) Mailer {
	if cfg.Host == "" {
		return LogMailer{}
	}
	return &SMTPMailer{cfg: cfg, timeout: 15 * time.Second}
}

// SMTPMailer delivers plain-text mail through an SMTP relay.  STARTTLS is
// used when the relay offers it.
type SMTPMailer struct {
	cfg     config.SMTPConfig
	timeout time.Duration
}

// Send delivers one message.  The connection is closed as soon as ctx is
// done, so a relay that stalls mid-session cannot hold the caller.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("smtp: empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := composeMessage(m.cfg.From, to, subject, body, time.Now())
	if err != nil {
		return err
	}

	var stop func() bool
	dial := func(dctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := (&net.Dialer{}).DialContext(dctx, network, addr)
		if err != nil {
			return nil, err
		}
		stop = context.AfterFunc(ctx, func() { _ = conn.Close() })
		return conn, nil
	}

	timeout := m.timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithDialContextFunc(dial),
	}
	if m.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.User),
			mail.WithPassword(m.cfg.Pass))
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	err = client.DialAndSendWithContext(ctx, msg)
	if stop != nil {
		stop()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp send: %w", ctxErr)
		}
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func composeMessage(from, to, subject, body string, at time.Time) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("smtp sender %q: %w", from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("smtp recipient %q: %w", to, err)
	}
	msg.Subject(sanitizeHeader(subject))
	msg.SetDateWithValue(at)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// LogMailer writes the email to the log instead of sending it.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, to, subject, body string) error {
	logger.Info("email (log mailer)",
		zap.String("to", to), zap.String("subject", subject), zap.String("body", body))
	return nil
}

// MailerSink delivers dispatcher messages straight to a Mailer.  It is
// used when no broker is configured.
type MailerSink struct {
	Mailer Mailer
}

func (s MailerSink) Deliver(ctx context.Context, msg Message) error {
	return s.Mailer.Send(ctx, msg.To, msg.Subject, msg.Body)
}
