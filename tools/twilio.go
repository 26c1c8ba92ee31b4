package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwilioClient is a thin client for the Twilio Messages API.
type TwilioClient struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string // e.g. https://api.twilio.com
	HTTPClient *http.Client
}

type twilioMessage struct {
	SID       string `json:"sid"`
	Status    string `json:"status"`
	ErrorCode *int   `json:"error_code"`
	Message   string `json:"message"`
}

// SendSMS posts one outbound SMS and returns the Twilio message sid.
func (c TwilioClient) SendSMS(ctx context.Context, to string, body string) (string, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", baseURL, url.PathEscape(strings.TrimSpace(c.AccountSID)))

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.From)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(strings.TrimSpace(c.AccountSID), strings.TrimSpace(c.AuthToken))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("twilio api error: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var msg twilioMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", fmt.Errorf("twilio api: decode response: %w", err)
	}
	if msg.SID == "" {
		return "", fmt.Errorf("twilio api: response without sid (status=%s)", msg.Status)
	}
	return msg.SID, nil
}
