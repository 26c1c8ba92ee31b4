package tools

import (
	"context"
	"fmt"
	"strings"

	mail "github.com/wneessen/go-mail"
)

// Mailer sends plain-text email over SMTP.
type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Security string // tls, starttls, none
}

// SendEmail delivers one message and returns its Message-ID.
// inReplyTo, when set, threads the message under the customer's email.
func (m Mailer) SendEmail(ctx context.Context, to, subject, body, inReplyTo string) (string, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.From); err != nil {
		return "", fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return "", fmt.Errorf("set to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	if ref := strings.TrimSpace(inReplyTo); ref != "" {
		msg.SetGenHeader(mail.HeaderInReplyTo, ref)
		msg.SetGenHeader(mail.HeaderReferences, ref)
	}
	msg.SetMessageID()

	port := m.Port
	if port <= 0 {
		port = 587
	}
	opts := []mail.Option{mail.WithPort(port)}
	if m.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.Username),
			mail.WithPassword(m.Password),
		)
	}
	switch m.Security {
	case "tls":
		opts = append(opts, mail.WithSSLPort(false), mail.WithTLSPolicy(mail.TLSMandatory))
	case "starttls":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(m.Host, opts...)
	if err != nil {
		return "", fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	return msg.GetMessageID(), nil
}
