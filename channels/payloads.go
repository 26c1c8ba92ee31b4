// Package channels turns provider payloads into the one canonical inbound shape the router ingests.
package channels

import (
	"strings"
	"unicode/utf8"

	"switchboard/models"
	"switchboard/tools"
)

// Limits bounds the content accepted from the outside.
type Limits struct {
	MaxInboundLength int
	MaxReplyLength   int
}

// Inbound is the canonical (identity, content, channel, metadata) tuple.
type Inbound struct {
	Identity   string
	Content    string
	Channel    string
	BusinessID string
	Metadata   models.Metadata
}

// InboundPayload is implemented by every customer-facing payload shape.
type InboundPayload interface {
	Normalize(limits Limits) (Inbound, error)
}

// SMSPayload is the form-encoded Twilio message webhook.
type SMSPayload struct {
	From       string `form:"From" validate:"required"`
	To         string `form:"To"`
	Body       string `form:"Body" validate:"required"`
	MessageSid string `form:"MessageSid"`
}

func (p SMSPayload) Normalize(limits Limits) (Inbound, error) {
	ve := &ValidationError{}
	checkStruct(ve, p)

	identity, err := tools.NormalizePhoneNumber(p.From)
	if p.From != "" && err != nil {
		ve.add("From", "invalid phone number")
	}
	content := checkContent(ve, "Body", p.Body, limits.MaxInboundLength, p.Body != "")

	if err := ve.orNil(); err != nil {
		return Inbound{}, err
	}
	return Inbound{
		Identity: identity,
		Content:  content,
		Channel:  models.CHANNEL_SMS,
		Metadata: metadata(
			models.META_PROVIDER_MESSAGE_ID, p.MessageSid,
			models.META_RECIPIENT, strings.TrimSpace(p.To),
		),
	}, nil
}

// EmailPayload is the generic inbound-email webhook JSON. Providers disagree on
// field names, so from/sender, to/recipient and text/plain are aliases.
type EmailPayload struct {
	From      string `json:"from" validate:"required_without=Sender"`
	Sender    string `json:"sender"`
	To        string `json:"to"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject" validate:"max=998"`
	Text      string `json:"text"`
	Plain     string `json:"plain"`
	HTML      string `json:"html"`
	MessageID string `json:"messageId"`
}

func (p EmailPayload) Normalize(limits Limits) (Inbound, error) {
	ve := &ValidationError{}
	checkStruct(ve, p)

	rawFrom := firstNonEmpty(p.From, p.Sender)
	identity := tools.ExtractEmailAddress(rawFrom)
	switch {
	case rawFrom == "":
		// a tag só vê string não vazia; "   " passa por ela
		if p.From != "" || p.Sender != "" {
			ve.add("from", "required")
		}
	case !tools.ValidateEmail(identity):
		ve.add("from", "invalid email address")
	}

	body := firstNonEmpty(p.Text, p.Plain)
	if body == "" {
		body = tools.HTMLToText(p.HTML)
	}
	content := checkContent(ve, "text", body, limits.MaxInboundLength, true)

	if err := ve.orNil(); err != nil {
		return Inbound{}, err
	}
	return Inbound{
		Identity: identity,
		Content:  content,
		Channel:  models.CHANNEL_EMAIL,
		Metadata: metadata(
			models.META_SUBJECT, strings.TrimSpace(p.Subject),
			models.META_PROVIDER_MESSAGE_ID, strings.TrimSpace(p.MessageID),
			models.META_RECIPIENT, tools.ExtractEmailAddress(firstNonEmpty(p.To, p.Recipient)),
		),
	}, nil
}

// ContactFormPayload is a submission of the public in-app contact form. The
// customer is identified by email when given, otherwise by phone.
type ContactFormPayload struct {
	Name       string `json:"name" validate:"max=120"`
	Email      string `json:"email" validate:"required_without=Phone"`
	Phone      string `json:"phone"`
	Message    string `json:"message" validate:"required"`
	BusinessID string `json:"businessId" validate:"max=64"`
}

func (p ContactFormPayload) Normalize(limits Limits) (Inbound, error) {
	ve := &ValidationError{}
	checkStruct(ve, p)

	var identity string
	switch {
	case strings.TrimSpace(p.Email) != "":
		identity = strings.ToLower(strings.TrimSpace(p.Email))
		if !tools.ValidateEmail(identity) {
			ve.add("email", "invalid email address")
		}
	case strings.TrimSpace(p.Phone) != "":
		var err error
		if identity, err = tools.NormalizePhoneNumber(p.Phone); err != nil {
			ve.add("phone", "invalid phone number")
		}
	default:
		if p.Email != "" || p.Phone != "" {
			ve.add("email", "required")
		}
	}
	content := checkContent(ve, "message", p.Message, limits.MaxInboundLength, p.Message != "")

	if err := ve.orNil(); err != nil {
		return Inbound{}, err
	}
	return Inbound{
		Identity:   identity,
		Content:    content,
		Channel:    models.CHANNEL_IN_APP,
		BusinessID: strings.TrimSpace(p.BusinessID),
		Metadata:   metadata("name", strings.TrimSpace(p.Name)),
	}, nil
}

// Reply is a normalized agent reply.
type Reply struct {
	ConversationID     string
	Content            string
	AgentIdentity      string
	InReplyToMessageID string
}

// InAppPayload is the authenticated dashboard reply. Identity comes from the
// auth layer, never from the body.
type InAppPayload struct {
	ConversationID     string `json:"conversationId" validate:"required,max=64"`
	ReplyContent       string `json:"replyContent"`
	InReplyToMessageID string `json:"inReplyToMessageId" validate:"max=64"`
	Identity           string `json:"-"`
}

func (p InAppPayload) Normalize(limits Limits) (Reply, error) {
	ve := &ValidationError{}
	checkStruct(ve, p)

	if strings.TrimSpace(p.Identity) == "" {
		ve.add("identity", "required")
	}
	content := checkContent(ve, "replyContent", p.ReplyContent, limits.MaxReplyLength, true)

	if err := ve.orNil(); err != nil {
		return Reply{}, err
	}
	return Reply{
		ConversationID:     strings.TrimSpace(p.ConversationID),
		Content:            content,
		AgentIdentity:      strings.TrimSpace(p.Identity),
		InReplyToMessageID: strings.TrimSpace(p.InReplyToMessageID),
	}, nil
}

// checkContent sanitizes raw and records empty or over-length content.
// report=false skips the empty check when the struct tags already flagged the field.
func checkContent(ve *ValidationError, field, raw string, max int, report bool) string {
	content := tools.SanitizeText(raw)
	switch {
	case content == "":
		if report {
			ve.add(field, "empty content")
		}
	case max > 0 && utf8.RuneCountInString(content) > max:
		ve.add(field, "content too long")
	}
	return content
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// metadata builds a Metadata from key/value pairs, skipping empty values.
func metadata(kv ...string) models.Metadata {
	md := models.Metadata{}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			md[kv[i]] = kv[i+1]
		}
	}
	if len(md) == 0 {
		return nil
	}
	return md
}
