package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwilioClient_SendSMS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "+15551234567", r.PostForm.Get("To"))
		assert.Equal(t, "+15550000000", r.PostForm.Get("From"))
		assert.Equal(t, "We have those in stock", r.PostForm.Get("Body"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM999","status":"queued"}`))
	}))
	defer srv.Close()

	c := TwilioClient{AccountSID: "AC123", AuthToken: "secret", From: "+15550000000", BaseURL: srv.URL}
	sid, err := c.SendSMS(context.Background(), "+15551234567", "We have those in stock")
	require.NoError(t, err)
	assert.Equal(t, "SM999", sid)
}

func TestTwilioClient_SendSMSError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"invalid To"}`))
	}))
	defer srv.Close()

	c := TwilioClient{AccountSID: "AC123", AuthToken: "secret", From: "+15550000000", BaseURL: srv.URL}
	_, err := c.SendSMS(context.Background(), "nope", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")
}
