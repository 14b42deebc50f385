package email

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"

	"gopkg.in/gomail.v2"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{name: "empty config", config: Config{}, expected: false},
		{name: "missing host", config: Config{Port: "587", From: "test@example.com"}, expected: false},
		{name: "missing port", config: Config{Host: "smtp.example.com", From: "test@example.com"}, expected: false},
		{name: "missing from", config: Config{Host: "smtp.example.com", Port: "587"}, expected: false},
		{name: "fully configured", config: Config{Host: "smtp.example.com", Port: "587", From: "test@example.com"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestSendWelcomeEmail(t *testing.T) {
	svc := NewService(Config{
		Host: "smtp.example.com", Port: "587", From: "noreply@example.com", FromName: "TaskHub",
		AppURL: "https://taskhub.example.com/",
	})
	var sent *gomail.Message
	svc.send = func(m *gomail.Message) error {
		sent = m
		return nil
	}

	if err := svc.SendWelcomeEmail("new@example.com", "New Person"); err != nil {
		t.Fatalf("SendWelcomeEmail() error = %v", err)
	}
	if svc.dialer.Host != "smtp.example.com" || svc.dialer.Port != 587 {
		t.Fatalf("unexpected dialer %s:%d", svc.dialer.Host, svc.dialer.Port)
	}
	if sent == nil {
		t.Fatal("expected a message to be sent")
	}
	if to := sent.GetHeader("To"); len(to) != 1 || to[0] != "new@example.com" {
		t.Fatalf("unexpected recipients %v", to)
	}
	if subject := sent.GetHeader("Subject"); len(subject) != 1 || subject[0] != "Your TaskHub account is ready" {
		t.Fatalf("unexpected subject %v", subject)
	}

	header, parts := readMessage(t, sent)
	if from := header.Get("From"); !strings.Contains(from, "TaskHub") || !strings.Contains(from, "<noreply@example.com>") {
		t.Fatalf("unexpected from %q", from)
	}
	html := parts["text/html"]
	for _, want := range []string{"New Person", "https://taskhub.example.com/login"} {
		if !strings.Contains(html, want) {
			t.Errorf("html body missing %q", want)
		}
	}
	if !strings.Contains(parts["text/plain"], "HTML-capable") {
		t.Errorf("missing plain text fallback, got %q", parts["text/plain"])
	}
}

func TestSendWrapsTransportError(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "587", From: "noreply@example.com"})
	dialErr := errors.New("connection refused")
	svc.send = func(*gomail.Message) error { return dialErr }

	if err := svc.SendHTMLEmail([]string{"a@example.com"}, "Hi", "<p>hi</p>"); !errors.Is(err, dialErr) {
		t.Fatalf("expected wrapped dial error, got %v", err)
	}
}

func TestSendRejectsInvalidPort(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "smtp", From: "noreply@example.com"})
	svc.send = func(*gomail.Message) error {
		t.Fatal("send should not be called")
		return nil
	}
	if err := svc.SendHTMLEmail([]string{"a@example.com"}, "Hi", "<p>hi</p>"); err == nil || !strings.Contains(err.Error(), "invalid SMTP port") {
		t.Fatalf("expected invalid port error, got %v", err)
	}
}

func TestSendRequiresConfiguration(t *testing.T) {
	svc := NewService(Config{})
	svc.send = func(*gomail.Message) error {
		t.Fatal("send should not be called")
		return nil
	}
	if err := svc.SendProjectInviteEmail("a@example.com", "A", "prj_1", "Launch"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

// readMessage serializes m and returns its headers and decoded parts keyed by media type.
func readMessage(t *testing.T, m *gomail.Message) (mail.Header, map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("write message: %v", err)
	}
	msg, err := mail.ReadMessage(&buf)
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/alternative" {
		t.Fatalf("unexpected content type %q: %v", msg.Header.Get("Content-Type"), err)
	}
	parts := map[string]string{}
	reader := multipart.NewReader(msg.Body, params["boundary"])
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next part: %v", err)
		}
		body, err := io.ReadAll(part)
		if err != nil {
			t.Fatalf("read part: %v", err)
		}
		partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		parts[partType] = string(body)
	}
	return msg.Header, parts
}

func TestRenderProjectInviteEscapesName(t *testing.T) {
	html, err := renderTemplate(projectInviteEmailTemplate, ProjectInviteData{
		AppName: "TaskHub", UserName: "A", ProjectName: "<script>", ProjectURL: "https://x/projects/1",
	})
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Error("project name should be escaped")
	}
}
