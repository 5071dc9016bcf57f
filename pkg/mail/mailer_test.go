package mail

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

type recordingClient struct {
	from  string
	rcpts []string
	data  bytes.Buffer
	quit  bool
}

func (c *recordingClient) Mail(from string) error { c.from = from; return nil }
func (c *recordingClient) Rcpt(to string) error   { c.rcpts = append(c.rcpts, to); return nil }
func (c *recordingClient) Data() (io.WriteCloser, error) {
	return nopWriteCloser{&c.data}, nil
}
func (c *recordingClient) Quit() error          { c.quit = true; return nil }
func (c *recordingClient) Close() error         { return nil }
func (c *recordingClient) Auth(smtp.Auth) error { return nil }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func newRecordingMailer(t *testing.T) (*smtpMailer, *recordingClient) {
	t.Helper()
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "troop@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}
	sm := mailer.(*smtpMailer)
	client := &recordingClient{}
	sm.dialFn = func(context.Context, SMTPSettings) (net.Conn, smtpClient, error) {
		local, remote := net.Pipe()
		_ = remote.Close()
		return local, client, nil
	}
	return sm, client
}

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true})
	if err == nil || !strings.Contains(err.Error(), "host is required") {
		t.Fatalf("expected host validation error, got %v", err)
	}

	_, err = NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com"})
	if err == nil || !strings.Contains(err.Error(), "port is required") {
		t.Fatalf("expected port validation error, got %v", err)
	}

	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	if err != nil {
		t.Fatalf("expected disabled configuration to succeed: %v", err)
	}
	if mailer == nil {
		t.Fatal("expected mailer to be returned")
	}
}

func TestSMTPMailerSendDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		To:      []string{"guardian@example.com"},
		Subject: "Permission needed",
		Body:    "Hello",
	})
	if err != ErrSMTPDisabled {
		t.Fatalf("expected ErrSMTPDisabled, got %v", err)
	}
}

func TestSMTPMailerDefaultTimeout(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    465,
		UseTLS:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}
	if got := mailer.(*smtpMailer).cfg.Timeout; got != 10*time.Second {
		t.Fatalf("expected timeout to be 10s, got %v", got)
	}
}

func TestSMTPMailerSendValidatesAddresses(t *testing.T) {
	sm, _ := newRecordingMailer(t)

	err := sm.Send(context.Background(), Message{To: []string{"   ", "\t"}})
	if err == nil || !strings.Contains(err.Error(), "at least one recipient") {
		t.Fatalf("expected missing recipient error, got %v", err)
	}

	err = sm.Send(context.Background(), Message{From: "invalid-from", To: []string{"a@example.com"}})
	if err == nil || !strings.Contains(err.Error(), "invalid from address") {
		t.Fatalf("expected invalid from error, got %v", err)
	}

	err = sm.Send(context.Background(), Message{To: []string{"a@example.com", "bad-address"}})
	if err == nil || !strings.Contains(err.Error(), "invalid recipient address") {
		t.Fatalf("expected invalid recipient error, got %v", err)
	}
}

func TestSMTPMailerSendPlainText(t *testing.T) {
	sm, client := newRecordingMailer(t)

	err := sm.Send(context.Background(), Message{
		To:      []string{"guardian@example.com", "guardian@example.com"},
		Subject: "Permission\r\nneeded",
		Body:    "Please sign.",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if client.from != "troop@example.com" {
		t.Fatalf("expected default sender, got %q", client.from)
	}
	if len(client.rcpts) != 1 {
		t.Fatalf("expected deduplicated recipients, got %v", client.rcpts)
	}
	content := client.data.String()
	if !strings.Contains(content, "Content-Type: text/plain; charset=UTF-8") {
		t.Fatalf("expected plain text content type, got %q", content)
	}
	if !strings.Contains(content, "Subject: Permission  needed") {
		t.Fatalf("expected sanitised subject, got %q", content)
	}
	if !strings.HasSuffix(content, "Please sign.") {
		t.Fatalf("expected body suffix, got %q", content)
	}
	if !client.quit {
		t.Fatal("expected QUIT to be sent")
	}
}

func TestSMTPMailerSendWithAttachment(t *testing.T) {
	sm, client := newRecordingMailer(t)

	err := sm.Send(context.Background(), Message{
		To:       []string{"admin@example.com"},
		Subject:  "Signed waiver",
		Body:     "A waiver was signed.",
		HTMLBody: "<p>A waiver was signed.</p>",
		Attachments: []Attachment{{
			Filename:    "waiver.pdf",
			ContentType: "application/pdf",
			Content:     []byte("%PDF-1.3"),
		}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	content := client.data.String()
	for _, want := range []string{
		"multipart/mixed",
		"multipart/alternative",
		"text/html; charset=UTF-8",
		"<p>A waiver was signed.</p>",
		`attachment; filename=waiver.pdf`,
		"JVBERi0xLjM=",
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in message, got %q", want, content)
		}
	}
}

func TestUniqueAddresses(t *testing.T) {
	addresses := []string{"alice@example.com", "bob@example.com", " alice@example.com ", "", "bob@example.com"}
	result := uniqueAddresses(addresses)
	if len(result) != 2 {
		t.Fatalf("expected 2 unique addresses, got %d: %v", len(result), result)
	}
	if result[0] != "alice@example.com" || result[1] != "bob@example.com" {
		t.Fatalf("unexpected result order/content: %v", result)
	}
}
