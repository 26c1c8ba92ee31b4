package controllers

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

// verifyTwilioSignature checks X-Twilio-Signature: base64(HMAC-SHA1(authToken,
// full URL + every POST param name and value, sorted by name)).
func verifyTwilioSignature(c *gin.Context, authToken, publicBaseURL string) (bool, string) {
	sig := strings.TrimSpace(c.GetHeader("X-Twilio-Signature"))
	if sig == "" {
		return false, "missing X-Twilio-Signature"
	}
	provided, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return false, "invalid signature encoding"
	}

	expected := TwilioSignature(authToken, requestURL(c, publicBaseURL), c.Request.PostForm)
	if !hmac.Equal(provided, expected) {
		return false, "signature mismatch"
	}
	return true, ""
}

// TwilioSignature computes the raw (not base64) Twilio request signature.
func TwilioSignature(authToken, fullURL string, params url.Values) []byte {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	_, _ = mac.Write([]byte(b.String()))
	return mac.Sum(nil)
}

// requestURL rebuilds the URL the provider called. Behind a proxy the configured
// public base URL wins over the Host header.
func requestURL(c *gin.Context, publicBaseURL string) string {
	if base := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"); base != "" {
		return base + c.Request.URL.RequestURI()
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if p := c.GetHeader("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}

// verifyEmailSignature checks X-Webhook-Signature: sha256=<hex HMAC-SHA256(secret, body)>.
func verifyEmailSignature(c *gin.Context, secret string, rawBody []byte) (bool, string) {
	sig := strings.TrimSpace(c.GetHeader("X-Webhook-Signature"))
	if sig == "" {
		return false, "missing X-Webhook-Signature"
	}
	if !strings.HasPrefix(sig, "sha256=") {
		return false, "invalid X-Webhook-Signature format"
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(sig, "sha256="))
	if err != nil {
		return false, "invalid signature hex"
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	expected := mac.Sum(nil)

	if !hmac.Equal(provided, expected) {
		return false, "signature mismatch"
	}
	return true, ""
}
