// Package email sends account notifications over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"gopkg.in/gomail.v2"
)

var ErrNotConfigured = errors.New("email not configured")

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	AppURL   string
}

type sendFunc func(m *gomail.Message) error

type Service struct {
	config  Config
	dialer  *gomail.Dialer
	portErr error
	send    sendFunc
}

func NewService(config Config) *Service {
	s := &Service{config: config}
	port, err := strconv.Atoi(strings.TrimSpace(config.Port))
	if config.Port != "" && err != nil {
		s.portErr = fmt.Errorf("invalid SMTP port %q: %w", config.Port, err)
	}
	// An empty username makes the dialer skip AUTH.
	s.dialer = gomail.NewDialer(config.Host, port, config.Username, config.Password)
	s.send = func(m *gomail.Message) error {
		return s.dialer.DialAndSend(m)
	}
	return s
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if s.portErr != nil {
		return s.portErr
	}
	if err := s.send(s.buildMessage(to, subject, htmlBody)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (s *Service) buildMessage(to []string, subject, htmlBody string) *gomail.Message {
	m := gomail.NewMessage()
	if s.config.FromName != "" {
		m.SetAddressHeader("From", s.config.From, s.config.FromName)
	} else {
		m.SetHeader("From", s.config.From)
	}
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", "Please view this email in an HTML-capable email client.")
	m.AddAlternative("text/html", htmlBody)
	return m
}

type WelcomeData struct {
	AppName   string
	UserName  string
	Email     string
	SignInURL string
}

type ProjectInviteData struct {
	AppName     string
	UserName    string
	ProjectName string
	ProjectURL  string
}

// SendWelcomeEmail tells an admin-provisioned user their account exists.
func (s *Service) SendWelcomeEmail(to, userName string) error {
	html, err := renderTemplate(welcomeEmailTemplate, WelcomeData{
		AppName:   "TaskHub",
		UserName:  userName,
		Email:     to,
		SignInURL: strings.TrimRight(s.config.AppURL, "/") + "/login",
	})
	if err != nil {
		return fmt.Errorf("render welcome template: %w", err)
	}
	return s.SendHTMLEmail([]string{to}, "Your TaskHub account is ready", html)
}

func (s *Service) SendProjectInviteEmail(to, userName, projectID, projectName string) error {
	html, err := renderTemplate(projectInviteEmailTemplate, ProjectInviteData{
		AppName:     "TaskHub",
		UserName:    userName,
		ProjectName: projectName,
		ProjectURL:  strings.TrimRight(s.config.AppURL, "/") + "/projects/" + projectID,
	})
	if err != nil {
		return fmt.Errorf("render invite template: %w", err)
	}
	return s.SendHTMLEmail([]string{to}, "You were added to "+projectName, html)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const welcomeEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Welcome to {{.AppName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #2f6f4f; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <h2>Hi {{.UserName}},</h2>
    <p>An administrator created a {{.AppName}} account for <strong>{{.Email}}</strong>.</p>
    <p><a href="{{.SignInURL}}" class="button">Sign in</a></p>
    <p>Ask your administrator for the initial password and change it after your first sign-in.</p>
    <div class="footer">
        <p>If you were not expecting this, you can ignore this email.</p>
    </div>
</body>
</html>`

const projectInviteEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.ProjectName}} on {{.AppName}}</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
    <p>Hi {{.UserName}},</p>
    <p>You are now a member of <strong>{{.ProjectName}}</strong>.</p>
    <p><a href="{{.ProjectURL}}">Open the project</a></p>
</body>
</html>`
