package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"referral-ledger-backend/internal/config"
	"referral-ledger-backend/internal/domain"
	"referral-ledger-backend/internal/logger"
)

type emailService struct {
	mailer  Mailer
	baseURL string
	appName string
}

func NewEmailService(mailer Mailer, app config.AppConfig) EmailService {
	return &emailService{
		mailer:  mailer,
		baseURL: strings.TrimRight(app.BaseURL, "/"),
		appName: app.Name,
	}
}

func (s *emailService) SendInvitation(ctx context.Context, inv *domain.Invitation, sender *domain.Account) error {
	subject := fmt.Sprintf("%s invited you to join %s", sender.DisplayName(), s.appName)
	if inv.IsTeamScoped() {
		subject = fmt.Sprintf("%s invited you to their team on %s", sender.DisplayName(), s.appName)
	}

	link := fmt.Sprintf("%s/invitations/accept?code=%s", s.baseURL, url.QueryEscape(inv.Code))
	var body strings.Builder
	fmt.Fprintf(&body, "Hello,\n\n%s has invited you to join %s as a %s.\n\n", sender.DisplayName(), s.appName, strings.ToLower(string(inv.Role)))
	if inv.Message != "" {
		fmt.Fprintf(&body, "Their message:\n%s\n\n", inv.Message)
	}
	fmt.Fprintf(&body, "Accept the invitation here:\n%s\n\nThis invitation expires on %s.\n\nBest regards,\nThe %s Team",
		link, inv.ExpiresAt.Format("January 2, 2006"), s.appName)

	return s.mailer.Send(ctx, domain.EmailMessage{
		To:      inv.Email,
		Subject: subject,
		Text:    body.String(),
	})
}

// SendGridMailer delivers mail through the SendGrid v3 API.
type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
}

func NewSendGridMailer(cfg config.EmailConfig) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.From),
	}
}

func (m *SendGridMailer) Send(ctx context.Context, msg domain.EmailMessage) error {
	logger.ExternalServiceCall("sendgrid", "Send", "to", msg.To)

	message := mail.NewSingleEmail(m.from, msg.Subject, mail.NewEmail("", msg.To), msg.Text, "")
	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		err = fmt.Errorf("failed to send email: %w", err)
		logger.ExternalServiceResult("sendgrid", "Send", err)
		return err
	}
	if response.StatusCode >= 400 {
		err := fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
		logger.ExternalServiceResult("sendgrid", "Send", err)
		return err
	}

	logger.ExternalServiceResult("sendgrid", "Send", nil, "status", response.StatusCode)
	return nil
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg domain.EmailMessage) error {
	logger.Info("Email (log provider)", "to", msg.To, "subject", msg.Subject, "body", msg.Text)
	return nil
}

// NewMailer picks the delivery backend named by the email config.
func NewMailer(cfg config.EmailConfig) Mailer {
	if cfg.Provider == "sendgrid" {
		return NewSendGridMailer(cfg)
	}
	return LogMailer{}
}
