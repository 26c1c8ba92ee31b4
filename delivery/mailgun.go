package delivery

import (
	"context"
	"fmt"
	"strings"

	mg "github.com/mailgun/mailgun-go/v5"

	"switchboard/config"
)

// MailgunSender delivers email replies through the Mailgun messages API.
type MailgunSender struct {
	Client *mg.Client
	Domain string
	From   string
}

func NewMailgunSender(cfg config.MailgunConfig) MailgunSender {
	client := mg.NewMailgun(cfg.APIKey)
	if strings.EqualFold(cfg.Region, "eu") {
		client.SetAPIBase(mg.APIBaseEU)
	}
	from := cfg.From
	if from == "" {
		from = fmt.Sprintf("noreply@%s", cfg.Domain)
	}
	return MailgunSender{Client: client, Domain: cfg.Domain, From: from}
}

func (s MailgunSender) Send(ctx context.Context, out Outbound) (string, error) {
	m := mg.NewMessage(s.Domain, s.From, out.Subject, out.Body, out.To)
	if out.InReplyTo != "" {
		m.AddHeader("In-Reply-To", out.InReplyTo)
		m.AddHeader("References", out.InReplyTo)
	}

	resp, err := s.Client.Send(ctx, m)
	if err != nil {
		return "", fmt.Errorf("mailgun send: %w", err)
	}
	return resp.ID, nil
}
