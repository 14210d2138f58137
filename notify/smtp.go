package notify

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"
)

// subjects maps notification kinds to mail subjects.
var subjects = map[Kind]string{
	KindTwoFactorEnabled:       "Two-factor authentication enabled",
	KindTwoFactorDisabled:      "Two-factor authentication disabled",
	KindBackupCodeUsed:         "A backup code was used to sign in",
	KindBackupCodesRegenerated: "Your backup codes were regenerated",
}

// SMTPConfig holds mail server settings.
type SMTPConfig struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	SSL                bool
	InsecureSkipVerify bool
}

// SMTP sends one plain-text mail per notification. The handle is assumed
// to be a deliverable address; callers with non-email handles should wrap
// this with their own address lookup.
type SMTP struct {
	config SMTPConfig
}

// NewSMTP creates an [SMTP] notifier.
func NewSMTP(cfg SMTPConfig) *SMTP {
	return &SMTP{config: cfg}
}

func (s *SMTP) Notify(_ context.Context, n Notification) error {
	subject, ok := subjects[n.Kind]
	if !ok {
		subject = "Security notification"
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.config.From)
	m.SetHeader("To", n.Handle)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", s.body(n))

	d := mail.NewDialer(s.config.Host, s.config.Port, s.config.User, s.config.Pass)
	d.SSL = s.config.SSL
	d.TLSConfig = &tls.Config{
		ServerName:         s.config.Host,
		InsecureSkipVerify: s.config.InsecureSkipVerify,
	}

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTP) body(n Notification) string {
	switch n.Kind {
	case KindTwoFactorEnabled:
		return "Two-factor authentication was just enabled on your account. If this was not you, contact your administrator immediately."
	case KindTwoFactorDisabled:
		return "Two-factor authentication was just disabled on your account. If this was not you, contact your administrator immediately."
	case KindBackupCodeUsed:
		return fmt.Sprintf("A backup code was used to sign in to your account from %s. Each code works once; consider regenerating your set.", n.Details["addr"])
	case KindBackupCodesRegenerated:
		return "Your two-factor backup codes were regenerated. Previous codes no longer work."
	default:
		return "A security-relevant change was made to your account."
	}
}
