// Package delivery hands recorded replies to the SMS and email providers.
package delivery

import (
	"context"
	"errors"
	"log/slog"

	"switchboard/config"
	"switchboard/models"
	"switchboard/tools"
)

// ErrNoSender is returned for channels without a configured provider.
var ErrNoSender = errors.New("no sender configured for channel")

// Outbound is one message to hand to a provider.
type Outbound struct {
	Channel   string
	To        string
	Subject   string
	Body      string
	InReplyTo string
}

// Sender is the send(to, body) -> receipt capability of one channel.
type Sender interface {
	Send(ctx context.Context, out Outbound) (receipt string, err error)
}

type SMSSender struct {
	Client tools.TwilioClient
}

func (s SMSSender) Send(ctx context.Context, out Outbound) (string, error) {
	return s.Client.SendSMS(ctx, out.To, out.Body)
}

type EmailSender struct {
	Mailer tools.Mailer
}

func (s EmailSender) Send(ctx context.Context, out Outbound) (string, error) {
	return s.Mailer.SendEmail(ctx, out.To, out.Subject, out.Body, out.InReplyTo)
}

// InAppSender accepts in-app replies without a provider: the app reads them from the conversation.
type InAppSender struct{}

func (InAppSender) Send(context.Context, Outbound) (string, error) {
	return "in_app", nil
}

// SenderFunc adapts a plain function to Sender.
type SenderFunc func(ctx context.Context, out Outbound) (string, error)

func (f SenderFunc) Send(ctx context.Context, out Outbound) (string, error) { return f(ctx, out) }

// Registry resolves the sender of a channel.
type Registry map[string]Sender

func (r Registry) For(channel string) (Sender, error) {
	if s, ok := r[channel]; ok && s != nil {
		return s, nil
	}
	return nil, ErrNoSender
}

// NewRegistry builds the senders the configuration enables. Channels left out
// fail their deliveries with ErrNoSender.
func NewRegistry(cfg config.DeliveryConfig, logger *slog.Logger) Registry {
	r := Registry{models.CHANNEL_IN_APP: InAppSender{}}
	if cfg.Twilio.Enabled() {
		r[models.CHANNEL_SMS] = SMSSender{Client: tools.TwilioClient{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			From:       cfg.Twilio.From,
			BaseURL:    cfg.Twilio.BaseURL,
		}}
	} else {
		logger.Warn("twilio not configured, sms replies will not be delivered")
	}
	switch {
	case cfg.Mailgun.Enabled():
		r[models.CHANNEL_EMAIL] = NewMailgunSender(cfg.Mailgun)
	case cfg.SMTP.Enabled():
		r[models.CHANNEL_EMAIL] = EmailSender{Mailer: tools.Mailer{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Security: cfg.SMTP.Security,
		}}
	default:
		logger.Warn("neither mailgun nor smtp configured, email replies will not be delivered")
	}
	return r
}
