package mailer

import (
	"crypto/tls"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/jordan-wright/email"
)

type call struct {
	addr     string
	auth     smtp.Auth
	startTLS bool
	tls      *tls.Config
	em       *email.Email
}

type fakeTransport struct {
	calls []call
	err   error
}

func (f *fakeTransport) Send(addr string, auth smtp.Auth, em *email.Email) error {
	f.calls = append(f.calls, call{addr: addr, auth: auth, em: em})
	return f.err
}

func (f *fakeTransport) SendWithStartTLS(addr string, auth smtp.Auth, cfg *tls.Config, em *email.Email) error {
	f.calls = append(f.calls, call{addr: addr, auth: auth, startTLS: true, tls: cfg, em: em})
	return f.err
}

func TestSendLocalRelay(t *testing.T) {
	tr := &fakeTransport{}
	m := New(Config{}, tr)
	if err := m.Send("The following monitors FAILED: disk\n", []string{"ops@example.com", "dev@example.com"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(tr.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(tr.calls))
	}
	c := tr.calls[0]
	if c.addr != LocalRelay || c.startTLS || c.auth != nil {
		t.Fatalf("unexpected local delivery: %+v", c)
	}
	if c.em.Subject != DefaultSubject || c.em.From != DefaultFrom {
		t.Fatalf("defaults not applied: subject=%q from=%q", c.em.Subject, c.em.From)
	}
	if len(c.em.To) != 2 || string(c.em.Text) != "The following monitors FAILED: disk\n" {
		t.Fatalf("unexpected message: to=%v text=%q", c.em.To, c.em.Text)
	}
}

func TestSendAuthenticatedRelay(t *testing.T) {
	tr := &fakeTransport{}
	m := New(Config{SMTPAddr: "smtp.gmail.com:587", Username: "bot", Password: "pw", Subject: "down"}, tr)
	if err := m.Send("report", []string{"ops@example.com"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	c := tr.calls[0]
	if !c.startTLS || c.addr != "smtp.gmail.com:587" || c.auth == nil {
		t.Fatalf("expected authenticated STARTTLS delivery: %+v", c)
	}
	if c.tls.ServerName != "smtp.gmail.com" {
		t.Fatalf("tls server name = %q", c.tls.ServerName)
	}
	if c.em.Subject != "down" {
		t.Fatalf("subject = %q", c.em.Subject)
	}
}

func TestSendErrors(t *testing.T) {
	m := New(Config{}, &fakeTransport{})
	if err := m.Send("report", nil); err == nil {
		t.Fatalf("expected error without recipients")
	}
	if err := m.Send("", []string{"a@example.com"}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if err := New(Config{SMTPAddr: "no-port"}, &fakeTransport{}).Send("r", []string{"a@example.com"}); err == nil {
		t.Fatalf("expected error for bad smtp address")
	}
	failing := New(Config{}, &fakeTransport{err: errors.New("connection refused")})
	if err := failing.Send("r", []string{"a@example.com"}); err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("transport error not propagated: %v", err)
	}
}

func TestReadBody(t *testing.T) {
	if _, err := ReadBody(strings.NewReader("")); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	body, err := ReadBody(strings.NewReader("line1\nline2\n"))
	if err != nil || body != "line1\nline2\n" {
		t.Fatalf("ReadBody = %q, %v", body, err)
	}
}

func TestBuildRendersHeaders(t *testing.T) {
	m := New(Config{From: "mon@example.com"}, nil)
	raw, err := m.Build("body text", []string{"ops@example.com"}).Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	for _, want := range []string{"Subject: OBTMON ERROR!", "From: mon@example.com", "To: ops@example.com", "body text"} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("message missing %q:\n%s", want, raw)
		}
	}
}

func TestDescribe(t *testing.T) {
	local := New(Config{}, nil).Describe([]string{"a@example.com", "b@example.com"})
	if local != "sending e-mail via localhost:25 to addresses: a@example.com, b@example.com" {
		t.Fatalf("local describe = %q", local)
	}
	auth := New(Config{SMTPAddr: "smtp.gmail.com:587", Username: "bot"}, nil).Describe([]string{"a@example.com"})
	if !strings.Contains(auth, "user bot") {
		t.Fatalf("auth describe = %q", auth)
	}
}
