// Package mailer sends the failure report by e-mail, either through the local
// MTA or through an authenticated STARTTLS relay.
package mailer

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

// Defaults for the mail reporter.
const (
	DefaultSubject = "OBTMON ERROR!"
	DefaultFrom    = "obtbot@obtdev.com"
	LocalRelay     = "localhost:25"
)

// ErrEmptyMessage is returned when no report text arrived on stdin.
var ErrEmptyMessage = errors.New("no message text sent through STDIN")

// Config selects the relay. An empty SMTPAddr delivers through LocalRelay
// without authentication.
type Config struct {
	SMTPAddr string
	Username string
	Password string
	From     string
	Subject  string
}

// Transport delivers a prepared message.
type Transport interface {
	Send(addr string, auth smtp.Auth, em *email.Email) error
	SendWithStartTLS(addr string, auth smtp.Auth, tlsConfig *tls.Config, em *email.Email) error
}

type smtpTransport struct{}

func (smtpTransport) Send(addr string, auth smtp.Auth, em *email.Email) error {
	return em.Send(addr, auth)
}

func (smtpTransport) SendWithStartTLS(addr string, auth smtp.Auth, tlsConfig *tls.Config, em *email.Email) error {
	return em.SendWithStartTLS(addr, auth, tlsConfig)
}

// Mailer sends reports.
type Mailer struct {
	cfg       Config
	transport Transport
}

// New creates a mailer. A nil transport uses SMTP.
func New(cfg Config, transport Transport) *Mailer {
	if cfg.From == "" {
		cfg.From = DefaultFrom
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if transport == nil {
		transport = smtpTransport{}
	}
	return &Mailer{cfg: cfg, transport: transport}
}

// ReadBody reads the whole report from r.
func ReadBody(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read message: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmptyMessage
	}
	return string(data), nil
}

// Build prepares the message for recipients.
func (m *Mailer) Build(body string, to []string) *email.Email {
	em := email.NewEmail()
	em.From = m.cfg.From
	em.To = append([]string{}, to...)
	em.Subject = m.cfg.Subject
	em.Text = []byte(body)
	return em
}

// Send delivers body to every recipient.
func (m *Mailer) Send(body string, to []string) error {
	if len(to) == 0 {
		return errors.New("missing recipient address")
	}
	if body == "" {
		return ErrEmptyMessage
	}
	em := m.Build(body, to)

	if m.cfg.SMTPAddr == "" {
		if err := m.transport.Send(LocalRelay, nil, em); err != nil {
			return fmt.Errorf("send via %s: %w", LocalRelay, err)
		}
		return nil
	}

	host, _, err := net.SplitHostPort(m.cfg.SMTPAddr)
	if err != nil {
		return fmt.Errorf("invalid smtp address %q: %w", m.cfg.SMTPAddr, err)
	}
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, host)
	}
	if err := m.transport.SendWithStartTLS(m.cfg.SMTPAddr, auth, &tls.Config{ServerName: host}, em); err != nil {
		return fmt.Errorf("send via %s: %w", m.cfg.SMTPAddr, err)
	}
	return nil
}

// Describe returns a one-line summary of where mail goes.
func (m *Mailer) Describe(to []string) string {
	relay := m.cfg.SMTPAddr
	if relay == "" {
		relay = LocalRelay
	}
	if m.cfg.Username != "" {
		return fmt.Sprintf("sending with user %s via %s to e-mail addresses: %s", m.cfg.Username, relay, strings.Join(to, ", "))
	}
	return fmt.Sprintf("sending e-mail via %s to addresses: %s", relay, strings.Join(to, ", "))
}
