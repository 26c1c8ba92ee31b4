package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultBusinessID, cfg.Messaging.DefaultBusinessID)
	assert.Equal(t, DefaultMaxReplyLength, cfg.Messaging.MaxReplyLength)
	assert.Equal(t, "gorm", cfg.Messaging.Store)
	assert.Equal(t, 120, cfg.RateLimits["api"].Limit)
	assert.Equal(t, time.Minute, cfg.RateLimits["api"].Window)
}

func TestLoad_FileOverridesAndKeepsMissingClasses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[server]
addr = ":9090"

[messaging]
store = "memory"
auto_reply = "Thanks, we got your message."

[security]
admin_identities = ["agent@tgs.example"]
signatures = ["(?i)free\\s+money"]

[rate_limits.api]
limit = 5
window = "30s"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Messaging.Store)
	assert.Equal(t, "Thanks, we got your message.", cfg.Messaging.AutoReply)
	assert.Equal(t, []string{"(?i)free\\s+money"}, cfg.Security.Signatures)
	assert.Equal(t, RateLimitRule{Limit: 5, Window: 30 * time.Second}, cfg.RateLimits["api"])
	assert.Equal(t, 30, cfg.RateLimits["reply"].Limit)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SWITCHBOARD_JWT_SECRET", "from-env")
	t.Setenv("SWITCHBOARD_ADMIN_IDENTITIES", "a@x.io, b@x.io ,")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Security.JWTSecret)
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, cfg.Security.AdminIdentities)
}

func TestValidate_RejectsUnknownStore(t *testing.T) {
	cfg := Default()
	cfg.Messaging.Store = "redis"
	require.Error(t, cfg.Validate())
}

func TestValidate_MailgunRegion(t *testing.T) {
	cfg := Default()
	cfg.Delivery.Mailgun.Region = "EU"
	require.NoError(t, cfg.Validate())

	cfg.Delivery.Mailgun.Region = "ap"
	require.Error(t, cfg.Validate())
}

func TestIsAdmin(t *testing.T) {
	open := SecurityConfig{}
	assert.True(t, open.IsAdmin("anyone"))

	restricted := SecurityConfig{AdminIdentities: []string{"Agent@TGS.example"}}
	assert.True(t, restricted.IsAdmin("agent@tgs.example "))
	assert.False(t, restricted.IsAdmin("intruder@tgs.example"))
}
