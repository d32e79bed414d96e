package services

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	texttemplate "text/template"
	"time"
)

// RenderedEmail is a message ready to hand to a mail provider
type RenderedEmail struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type verificationTemplateData struct {
	Email       string
	Name        string
	Code        string
	URL         string
	TTLMinutes  int
	MaxAttempts int
	Year        int
}

type welcomeTemplateData struct {
	Email     string
	Name      string
	ClientURL string
}

const (
	verificationSubject = "Verify Your Email Address - NextMind AI"
	welcomeSubject      = "Welcome to NextMind AI!"
)

var verificationHTML = htmltemplate.Must(htmltemplate.New("verification_html").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Verify Your Email - NextMind AI</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 0; padding: 0; background-color: #f8fafc;">
  <div style="max-width: 600px; margin: 0 auto; background-color: #ffffff;">
    <div style="background: linear-gradient(135deg, #3b82f6, #8b5cf6); padding: 40px 20px; text-align: center;">
      <h1 style="color: #ffffff; margin: 0;">NextMind AI</h1>
      <p style="color: #e2e8f0; margin: 10px 0 0 0;">Verify Your Email Address</p>
    </div>
    <div style="padding: 40px 20px;">
      <h2 style="color: #1e293b;">{{if .Name}}Hi {{.Name}}!{{else}}Hello!{{end}}</h2>
      <p style="color: #475569; line-height: 1.6;">Thank you for signing up with NextMind AI! To complete your registration, please verify your email address.</p>
      <div style="background-color: #f1f5f9; border: 2px dashed #3b82f6; border-radius: 12px; padding: 20px; text-align: center; margin: 30px 0;">
        <h3 style="color: #1e293b; margin: 0 0 10px 0;">Your Verification Code</h3>
        <div style="font-size: 32px; font-weight: bold; color: #1e293b; letter-spacing: 4px;">{{.Code}}</div>
        <p style="color: #64748b; font-size: 14px;">Enter this code in the verification form</p>
      </div>
      <p style="color: #475569; text-align: center;"><strong>Or click the button below to verify automatically:</strong></p>
      <div style="text-align: center;">
        <a href="{{.URL}}" style="display: inline-block; background: #3b82f6; color: #ffffff; text-decoration: none; padding: 16px 32px; border-radius: 8px; font-weight: 600;">Verify Email Address</a>
      </div>
      <div style="background-color: #fef3c7; border-left: 4px solid #f59e0b; padding: 16px; margin: 20px 0; border-radius: 4px;">
        <ul style="color: #92400e; margin: 0; padding-left: 20px; font-size: 14px;">
          <li>This verification code expires in {{.TTLMinutes}} minutes</li>
          <li>You have {{.MaxAttempts}} attempts to verify your email</li>
          <li>If you didn't request this, please ignore this email</li>
        </ul>
      </div>
      <p style="color: #64748b; font-size: 14px;">If the button doesn't work, copy and paste this link into your browser:<br>
        <a href="{{.URL}}" style="color: #3b82f6; word-break: break-all;">{{.URL}}</a></p>
    </div>
    <div style="background-color: #f8fafc; padding: 20px; text-align: center; color: #64748b; font-size: 14px;">
      <p>&copy; {{.Year}} NextMind AI. All rights reserved.</p>
      <p>This email was sent to {{.Email}}</p>
    </div>
  </div>
</body>
</html>
`))

var verificationText = texttemplate.Must(texttemplate.New("verification_text").Parse(`NextMind AI - Email Verification

{{if .Name}}Hi {{.Name}}!{{else}}Hello!{{end}}

Thank you for signing up with NextMind AI! To complete your registration, please verify your email address.

VERIFICATION CODE: {{.Code}}

You can either:
1. Enter the code above in the verification form
2. Click this link: {{.URL}}

Security Information:
- This code expires in {{.TTLMinutes}} minutes
- You have {{.MaxAttempts}} attempts to verify
- If you didn't request this, please ignore this email

(c) {{.Year}} NextMind AI. All rights reserved.
This email was sent to {{.Email}}
`))

var welcomeHTML = htmltemplate.Must(htmltemplate.New("welcome_html").Parse(`<div style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto;">
  <div style="background: linear-gradient(135deg, #3b82f6, #8b5cf6); padding: 40px 20px; text-align: center; color: white;">
    <h1>Welcome to NextMind AI!</h1>
  </div>
  <div style="padding: 40px 20px;">
    <h2>Hi {{if .Name}}{{.Name}}{{else}}there{{end}}!</h2>
    <p>Your email has been successfully verified! You're now ready to start creating amazing AI-powered content.</p>
    <div style="text-align: center; margin: 30px 0;">
      <a href="{{.ClientURL}}" style="background: #3b82f6; color: white; text-decoration: none; padding: 16px 32px; border-radius: 8px; font-weight: 600;">Start Creating Content</a>
    </div>
  </div>
</div>
`))

var welcomeText = texttemplate.Must(texttemplate.New("welcome_text").Parse(`Hi {{if .Name}}{{.Name}}{{else}}there{{end}}!

Your email has been successfully verified! You're now ready to start creating amazing AI-powered content.

Start here: {{.ClientURL}}
`))

// EmailRenderer renders verification and welcome messages
type EmailRenderer struct {
	clientURL   string
	ttl         time.Duration
	maxAttempts int
}

// NewEmailRenderer creates a renderer linking to clientURL
func NewEmailRenderer(clientURL string, ttl time.Duration, maxAttempts int) *EmailRenderer {
	return &EmailRenderer{
		clientURL:   clientURL,
		ttl:         ttl,
		maxAttempts: maxAttempts,
	}
}

// VerificationURL returns the link that verifies token
func (r *EmailRenderer) VerificationURL(token string) string {
	return r.clientURL + "/verify-email?token=" + url.QueryEscape(token)
}

// Verification renders the verification message of msg
func (r *EmailRenderer) Verification(msg VerificationMessage) (*RenderedEmail, error) {
	data := verificationTemplateData{
		Email:       msg.Email,
		Name:        msg.DisplayName,
		Code:        msg.Code,
		URL:         r.VerificationURL(msg.Token),
		TTLMinutes:  int(r.ttl.Minutes()),
		MaxAttempts: r.maxAttempts,
		Year:        time.Now().Year(),
	}

	var html, text bytes.Buffer
	if err := verificationHTML.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render verification html: %w", err)
	}
	if err := verificationText.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render verification text: %w", err)
	}

	return &RenderedEmail{
		To:      msg.Email,
		Subject: verificationSubject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

// Welcome renders the message sent after a successful verification
func (r *EmailRenderer) Welcome(email, name string) (*RenderedEmail, error) {
	data := welcomeTemplateData{Email: email, Name: name, ClientURL: r.clientURL}

	var html, text bytes.Buffer
	if err := welcomeHTML.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render welcome html: %w", err)
	}
	if err := welcomeText.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render welcome text: %w", err)
	}

	return &RenderedEmail{
		To:      email,
		Subject: welcomeSubject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
