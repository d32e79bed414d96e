package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/nextmind-ai/app-verification/internal/config"
	"github.com/nextmind-ai/app-verification/internal/logging"
	"github.com/nextmind-ai/app-verification/internal/observability"
	"github.com/nextmind-ai/app-verification/internal/utils"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// VerificationMessage is what a mailer needs to deliver a challenge
type VerificationMessage struct {
	Email       string
	Token       string
	Code        string
	DisplayName string
}

// VerificationMailer delivers verification and welcome emails
type VerificationMailer interface {
	SendVerification(ctx context.Context, msg VerificationMessage) error
	SendWelcome(ctx context.Context, email, name string) error
}

// Sender is the provider specific part of a mailer
type Sender interface {
	Send(ctx context.Context, email *RenderedEmail) error
	Name() string
}

// TemplateMailer renders messages and hands them to a Sender
type TemplateMailer struct {
	renderer *EmailRenderer
	sender   Sender
	logger   *logging.SafeLogger
}

// NewTemplateMailer creates a mailer rendering with renderer and sending with sender
func NewTemplateMailer(renderer *EmailRenderer, sender Sender, logger *logging.SafeLogger) *TemplateMailer {
	return &TemplateMailer{
		renderer: renderer,
		sender:   sender,
		logger:   logger.Named("mailer").With(zap.String("provider", sender.Name())),
	}
}

func (m *TemplateMailer) SendVerification(ctx context.Context, msg VerificationMessage) error {
	email, err := m.renderer.Verification(msg)
	if err != nil {
		return err
	}
	return m.send(ctx, "verification", email)
}

func (m *TemplateMailer) SendWelcome(ctx context.Context, address, name string) error {
	email, err := m.renderer.Welcome(address, name)
	if err != nil {
		return err
	}
	return m.send(ctx, "welcome", email)
}

func (m *TemplateMailer) send(ctx context.Context, kind string, email *RenderedEmail) error {
	ctx, span := utils.TraceExternalService(ctx, m.sender.Name(), "send_"+kind)
	defer span.End()

	start := time.Now()
	if err := m.sender.Send(ctx, email); err != nil {
		utils.RecordErrorInSpan(span, err, map[string]interface{}{"mail.kind": kind})
		m.logger.Error("failed to send email",
			zap.String("kind", kind),
			zap.String("to", observability.MaskEmail(email.To)),
			zap.Error(err))
		return err
	}

	m.logger.Info("email sent",
		zap.String("kind", kind),
		zap.String("to", observability.MaskEmail(email.To)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// SMTPConfig holds the settings of an SMTP relay
type SMTPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	From     string
	FromName string
}

// SMTPSender sends through an SMTP relay with go-mail
type SMTPSender struct {
	cfg    SMTPConfig
	client *gomail.Client
}

// NewSMTPSender creates an SMTP sender for cfg
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(30 * time.Second),
	}

	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	if cfg.TLS {
		opts = append(opts,
			gomail.WithTLSConfig(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}),
			gomail.WithTLSPolicy(gomail.TLSMandatory),
		)
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return &SMTPSender{cfg: cfg, client: client}, nil
}

func (s *SMTPSender) Name() string { return "smtp" }

// buildMessage converts a rendered email into a MIME message
func (s *SMTPSender) buildMessage(email *RenderedEmail) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(email.To); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, email.Text)
	msg.AddAlternativeString(gomail.TypeTextHTML, email.HTML)
	return msg, nil
}

func (s *SMTPSender) Send(ctx context.Context, email *RenderedEmail) error {
	msg, err := s.buildMessage(email)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp delivery failed: %w", err)
	}
	return nil
}

// SendGridSender sends through the SendGrid v3 API
type SendGridSender struct {
	client   *sendgrid.Client
	from     string
	fromName string
}

// NewSendGridSender creates a SendGrid sender
func NewSendGridSender(apiKey, from, fromName string) *SendGridSender {
	return &SendGridSender{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		fromName: fromName,
	}
}

func (s *SendGridSender) Name() string { return "sendgrid" }

func (s *SendGridSender) buildMessage(email *RenderedEmail) *sgmail.SGMailV3 {
	from := sgmail.NewEmail(s.fromName, s.from)
	to := sgmail.NewEmail("", email.To)
	return sgmail.NewSingleEmail(from, email.Subject, to, email.Text, email.HTML)
}

func (s *SendGridSender) Send(ctx context.Context, email *RenderedEmail) error {
	resp, err := s.client.SendWithContext(ctx, s.buildMessage(email))
	if err != nil {
		return fmt.Errorf("sendgrid delivery failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid delivery failed: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them. The code
// and link are logged in full, so it is only allowed outside production.
type LogSender struct {
	logger *logging.SafeLogger
}

// NewLogSender creates a development sender
func NewLogSender(logger *logging.SafeLogger) *LogSender {
	return &LogSender{logger: logger.Named("log_sender")}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(_ context.Context, email *RenderedEmail) error {
	s.logger.Info("development email",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
		zap.String("body", email.Text))
	return nil
}

// NewMailerFromConfig builds the mailer selected by EMAIL_SERVICE
func NewMailerFromConfig(cfg *config.Config, logger *logging.SafeLogger) (*TemplateMailer, error) {
	renderer := NewEmailRenderer(cfg.ClientURL, cfg.VerificationTTL, cfg.VerificationMaxAttempts)

	var sender Sender
	switch cfg.EmailService {
	case "smtp", "gmail":
		smtp, err := NewSMTPSender(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			TLS:      cfg.SMTPTLS,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
			FromName: cfg.EmailFromName,
		})
		if err != nil {
			return nil, err
		}
		sender = smtp
	case "sendgrid":
		sender = NewSendGridSender(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName)
	case "log":
		sender = NewLogSender(logger)
	default:
		return nil, fmt.Errorf("unsupported email service: %q", cfg.EmailService)
	}

	return NewTemplateMailer(renderer, sender, logger), nil
}
