package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"switchboard/channels"
	"switchboard/events"
	"switchboard/messaging"
	"switchboard/security"

	"github.com/gin-gonic/gin"
)

// Admit counts one operation of class for identity and answers 429 when the
// limit is reached. It always sets the X-RateLimit-* headers.
func Admit(c *gin.Context, svc *Services, identity, class string) bool {
	res := svc.Limiter.Check(identity, class)
	rule := svc.Limiter.RuleFor(class)

	c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	if res.Allowed {
		return true
	}

	retryAfter := int(time.Until(res.ResetAt).Seconds()) + 1
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	svc.Auditor.LogSecurityEvent(security.KindRateLimited, map[string]string{
		"identity": identity,
		"class":    class,
		"path":     c.FullPath(),
		"ip":       c.ClientIP(),
	}, security.SeverityLow)
	RespondAPIError(c, newAPIError(ErrorRateLimited, "too many requests", nil))
	return false
}

// screen rejects content that hits a suspicious-content signature and records it.
func screen(c *gin.Context, svc *Services, identity, field, content string) bool {
	sig, hit := svc.Scanner.Scan(content)
	if !hit {
		return true
	}
	severity := sig.Severity
	if severity == security.SeverityLow {
		severity = security.SeverityMedium
	}
	svc.Auditor.LogSecurityEvent(security.KindSuspiciousContent, map[string]string{
		"identity":  identity,
		"field":     field,
		"signature": sig.Name,
		"category":  sig.Category,
		"path":      c.FullPath(),
		"ip":        c.ClientIP(),
		"excerpt":   content,
	}, severity)
	RespondAPIError(c, newAPIError(ErrorValidationFailed, "content rejected", nil))
	return false
}

// rejectPayload answers 400 for a payload the adapter refused.
func rejectPayload(c *gin.Context, svc *Services, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		svc.Auditor.LogSecurityEvent(security.KindInvalidPayload, map[string]string{
			"path":  c.FullPath(),
			"ip":    c.ClientIP(),
			"error": "request body too large",
			"limit": strconv.FormatInt(tooLarge.Limit, 10),
		}, security.SeverityMedium)
		RespondAPIError(c, newAPIError(ErrorValidationFailed, "request body too large", err))
		return
	}

	kind := security.KindInvalidPayload
	var ve *channels.ValidationError
	if errors.As(err, &ve) {
		for _, is := range ve.Issues {
			if is.Reason == "invalid phone number" || is.Reason == "invalid email address" {
				kind = security.KindInvalidIdentity
				break
			}
		}
	}
	svc.Auditor.LogSecurityEvent(kind, map[string]string{
		"path":  c.FullPath(),
		"ip":    c.ClientIP(),
		"error": err.Error(),
	}, security.SeverityLow)
	RespondAPIError(c, newAPIError(ErrorValidationFailed, err.Error(), err))
}

// ingestFailure answers a failed HandleIncomingMessage: arguments the router
// refuses are a validation failure (400), anything else is internal.
func ingestFailure(c *gin.Context, svc *Services, op string, err error) {
	if errors.Is(err, messaging.ErrInvalidInput) {
		rejectPayload(c, svc, err)
		return
	}
	internalFailure(c, svc, op, err)
}

// internalFailure logs err, records a diagnostic event and answers 500. Nothing is retried here.
func internalFailure(c *gin.Context, svc *Services, op string, err error) {
	svc.Logger.Error(op+" failed", slog.String("path", c.FullPath()), slog.Any("error", err))
	svc.Auditor.LogSecurityEvent(security.KindInternalFailure, map[string]string{
		"op":    op,
		"path":  c.FullPath(),
		"error": err.Error(),
	}, security.SeverityMedium)
	RespondAPIError(c, newAPIError(ErrorInternal, "internal error", err))
}

func (s *Services) publish(key, correlationID string, data any) {
	events.PublishAsync(s.Publisher, s.Logger, key, events.NewEnvelope(key, data).WithCorrelation(correlationID))
}
