package mailer

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/epigram-app/entitlement-service/pkg/config"
	"github.com/epigram-app/entitlement-service/pkg/logctx"
	brevo "github.com/getbrevo/brevo-go/lib"
	"go.uber.org/zap"
)

// ContactMessage is one contact-form submission forwarded to support.
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Sender delivers contact-form messages to the support inbox.
type Sender interface {
	SendContactMessage(ctx context.Context, msg *ContactMessage) error
}

// BrevoSender implements Sender on the Brevo transactional email API.
// Without an API key configured it logs and drops messages, so dev setups
// work without a mail account.
type BrevoSender struct {
	api *brevo.APIClient
	cfg *config.Config
	log *zap.SugaredLogger
}

func NewBrevoSender(cfg *config.Config, log *zap.SugaredLogger) Sender {
	s := &BrevoSender{cfg: cfg, log: log}
	if cfg.Mailer.APIKey != "" {
		apiCfg := brevo.NewConfiguration()
		apiCfg.AddDefaultHeader("api-key", cfg.Mailer.APIKey)
		s.api = brevo.NewAPIClient(apiCfg)
	}
	return s
}

func (s *BrevoSender) SendContactMessage(ctx context.Context, msg *ContactMessage) error {
	if msg == nil {
		return fmt.Errorf("nil contact message")
	}

	if s.api == nil {
		logctx.FromCtx(ctx, s.log).Infow("mailer disabled, dropping contact message",
			"from", msg.Email, "subject", msg.Subject)
		return nil
	}

	email := brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Name:  s.cfg.Mailer.SenderName,
			Email: s.cfg.Mailer.SenderEmail,
		},
		To: []brevo.SendSmtpEmailTo{
			{Email: s.cfg.Mailer.SupportEmail},
		},
		ReplyTo: &brevo.SendSmtpEmailReplyTo{
			Email: msg.Email,
			Name:  msg.Name,
		},
		Subject:     contactSubject(msg),
		HtmlContent: contactHTML(msg),
		TextContent: contactText(msg),
	}

	_, _, err := s.api.TransactionalEmailsApi.SendTransacEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to send contact message: %w", err)
	}

	logctx.FromCtx(ctx, s.log).Infow("contact message forwarded", "from", msg.Email)
	return nil
}

func contactSubject(msg *ContactMessage) string {
	subject := strings.TrimSpace(msg.Subject)
	if subject == "" {
		subject = "(no subject)"
	}
	return fmt.Sprintf("[Contact] %s", subject)
}

func contactText(msg *ContactMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\n\n", msg.Name, msg.Email)
	b.WriteString(msg.Message)
	return b.String()
}

func contactHTML(msg *ContactMessage) string {
	body := strings.ReplaceAll(html.EscapeString(msg.Message), "\n", "<br>")
	return fmt.Sprintf(
		"<p><strong>From:</strong> %s &lt;%s&gt;</p><hr><p>%s</p>",
		html.EscapeString(msg.Name), html.EscapeString(msg.Email), body,
	)
}
