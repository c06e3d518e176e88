package notification

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/clipforge/highlights-api/internal/config"
)

// MagicLinkMailer is responsible for delivering sign-in link emails.
type MagicLinkMailer interface {
	SendMagicLink(recipientEmail, tenantName, linkURL string) error
}

// SMTPMagicLinkMailer sends magic link emails using an SMTP server.
type SMTPMagicLinkMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPMagicLinkMailer constructs a new SMTPMagicLinkMailer from config.
func NewSMTPMagicLinkMailer(cfg config.EmailConfig) (*SMTPMagicLinkMailer, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, fmt.Errorf("smtp_host is required")
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("email from address is required")
	}

	return &SMTPMagicLinkMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
	}, nil
}

// SendMagicLink dispatches a single-use sign-in link to a user.
func (m *SMTPMagicLinkMailer) SendMagicLink(recipientEmail, tenantName, linkURL string) error {
	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n",
		m.from, recipientEmail, fmt.Sprintf("Sign in to %s", tenantName))

	body := strings.Builder{}
	body.WriteString("Hello,\n\n")
	body.WriteString(fmt.Sprintf("Use the link below to sign in to the %s workspace on ClipForge.\n\n", tenantName))
	body.WriteString(linkURL + "\n\n")
	body.WriteString("The link can be used once and expires shortly. If you did not request it, you can ignore this email.\n\n")
	body.WriteString("Thanks,\nThe ClipForge Team\n")

	message := []byte(headers + body.String())

	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	var auth smtp.Auth
	if strings.TrimSpace(m.username) != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	return smtp.SendMail(addr, auth, m.from, []string{recipientEmail}, message)
}
