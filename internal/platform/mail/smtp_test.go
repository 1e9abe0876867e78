package mail

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	gomail "github.com/wneessen/go-mail"
)

type stubSender struct {
	sent []*gomail.Msg
	err  error
}

func (s *stubSender) DialAndSendWithContext(_ context.Context, messages ...*gomail.Msg) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, messages...)
	return nil
}

func TestSMTPMailerSendBuildsPlainTextMessage(t *testing.T) {
	sender := &stubSender{}
	mailer := newSMTPMailer(sender, "DSport <orders@dsport.example>", nil)

	err := mailer.Send(context.Background(), Message{
		To:      []string{" buyer@example.com ", ""},
		Subject: "Your invoice is ready",
		Body:    "Download it at https://cdn.example.com/invoices/Invoice_ord_1.pdf",
		Attachments: []Attachment{
			{Name: "Invoice_ord_1.pdf", Content: strings.NewReader("%PDF-1.3")},
			{Name: "", Content: strings.NewReader("ignored")},
		},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.sent))
	}

	var buf bytes.Buffer
	if _, err := sender.sent[0].WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{"buyer@example.com", "Your invoice is ready", "text/plain", "orders@dsport.example", "Invoice_ord_1.pdf"} {
		if !strings.Contains(raw, want) {
			t.Fatalf("expected message to contain %q:\n%s", want, raw)
		}
	}
}

func TestSMTPMailerSendRequiresRecipient(t *testing.T) {
	sender := &stubSender{}
	mailer := newSMTPMailer(sender, "orders@dsport.example", nil)
	if err := mailer.Send(context.Background(), Message{To: []string{" "}, Subject: "x"}); err == nil {
		t.Fatal("expected error without recipients")
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected nothing sent")
	}
}

func TestSMTPMailerSendWrapsTransportError(t *testing.T) {
	sender := &stubSender{err: errors.New("connection refused")}
	mailer := newSMTPMailer(sender, "orders@dsport.example", nil)
	err := mailer.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "Order cancelled"})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	if _, err := NewSMTPMailer(Config{From: "a@example.com"}, nil); err == nil {
		t.Fatal("expected error for missing host")
	}
	if _, err := NewSMTPMailer(Config{Host: "smtp.example.com"}, nil); err == nil {
		t.Fatal("expected error for missing from")
	}
	if _, err := NewSMTPMailer(Config{Host: "smtp.example.com", Port: 2525, Username: "u", Password: "p", From: "a@example.com"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
