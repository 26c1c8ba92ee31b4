package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath        = "config.toml"
	DefaultAddr              = ":8080"
	DefaultBusinessID        = "tgs-default"
	DefaultMaxReplyLength    = 2000
	DefaultMaxInboundLength  = 10000
	DefaultAuditQueueSize    = 1024
	DefaultFloodRunLength    = 20
	DefaultDeliveryInterval  = 2 * time.Second
	DefaultDeliveryBatchSize = 50
	DefaultDeliveryAttempts  = 5
	DefaultSweepInterval     = 5 * time.Minute
	DefaultDeliveryRetention = 30 * 24 * time.Hour
	DefaultJWTExpiresIn      = 24 * time.Hour
	DefaultMaxBodyBytes      = 1 << 20
	DefaultDeliveryLease     = 5 * time.Minute
)

// Configuration is the whole service configuration, decoded from TOML.
type Configuration struct {
	Server     ServerConfig             `toml:"server"`
	Log        LogConfig                `toml:"log"`
	Database   DatabaseConfig           `toml:"database"`
	Messaging  MessagingConfig          `toml:"messaging"`
	Security   SecurityConfig           `toml:"security"`
	RateLimits map[string]RateLimitRule `toml:"rate_limits"`
	Delivery   DeliveryConfig           `toml:"delivery"`
	Events     EventsConfig             `toml:"events"`
}

type ServerConfig struct {
	Addr    string `toml:"addr"`
	GinMode string `toml:"gin_mode"`
	// CORSOrigins restringe as origens do dashboard; vazio libera todas.
	CORSOrigins []string `toml:"cors_origins"`
	// MaxBodyBytes limita o corpo das rotas públicas (webhooks e formulário).
	MaxBodyBytes int64 `toml:"max_body_bytes"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" ou "json"
}

type DatabaseConfig struct {
	Driver      string `toml:"driver"` // "sqlite3" ou "postgres"
	Path        string `toml:"path"`   // sqlite file
	Host        string `toml:"host"`
	Port        string `toml:"port"`
	User        string `toml:"user"`
	Name        string `toml:"name"`
	Pass        string `toml:"pass"`
	SSLMode     string `toml:"sslmode"`
	AutoMigrate bool   `toml:"automigrate"`
	LogMode     bool   `toml:"log_mode"`
}

type MessagingConfig struct {
	DefaultBusinessID string `toml:"default_business_id"`
	// Store selects the conversation store backend: "memory" or "gorm".
	Store            string `toml:"store"`
	MaxReplyLength   int    `toml:"max_reply_length"`
	MaxInboundLength int    `toml:"max_inbound_length"`
	// AutoReply, when set, is returned inside the SMS webhook acknowledgment.
	AutoReply string `toml:"auto_reply"`
}

type SecurityConfig struct {
	JWTSecret       string        `toml:"jwt_secret"`
	JWTExpiresIn    time.Duration `toml:"jwt_expires_in"`
	AdminIdentities []string      `toml:"admin_identities"`
	// Signatures are extra suspicious-content regular expressions, added to the built-in set.
	Signatures         []string `toml:"signatures"`
	FloodRunLength     int      `toml:"flood_run_length"`
	AuditQueueSize     int      `toml:"audit_queue_size"`
	TwilioAuthToken    string   `toml:"twilio_auth_token"`
	EmailWebhookSecret string   `toml:"email_webhook_secret"`
	// PublicBaseURL is the externally visible scheme+host used to rebuild signed webhook URLs.
	PublicBaseURL string `toml:"public_base_url"`
}

type RateLimitRule struct {
	Limit  int           `toml:"limit"`
	Window time.Duration `toml:"window"`
}

type DeliveryConfig struct {
	Twilio       TwilioConfig  `toml:"twilio"`
	SMTP         SMTPConfig    `toml:"smtp"`
	Mailgun      MailgunConfig `toml:"mailgun"`
	PollInterval time.Duration `toml:"poll_interval"`
	BatchSize    int           `toml:"batch_size"`
	MaxAttempts  int           `toml:"max_attempts"`
	// Retention is how long sent and failed deliveries stay in the outbox.
	Retention time.Duration `toml:"retention"`
	// Lease is how long a claimed delivery may stay in processing before it is retried.
	Lease time.Duration `toml:"lease"`
}

type TwilioConfig struct {
	AccountSID string `toml:"account_sid"`
	AuthToken  string `toml:"auth_token"`
	From       string `toml:"from"`
	BaseURL    string `toml:"base_url"`
}

func (t TwilioConfig) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.From != ""
}

type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	Security string `toml:"security"` // tls, starttls, none
}

func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != ""
}

// MailgunConfig sends email replies through the Mailgun API instead of SMTP.
type MailgunConfig struct {
	Domain string `toml:"domain"`
	APIKey string `toml:"api_key"`
	Region string `toml:"region"` // us ou eu
	From   string `toml:"from"`
}

func (m MailgunConfig) Enabled() bool {
	return m.Domain != "" && m.APIKey != ""
}

type EventsConfig struct {
	AMQPURL  string `toml:"amqp_url"`
	Exchange string `toml:"exchange"`
}

// Default returns a configuration with every default applied.
func Default() Configuration {
	return Configuration{
		Server: ServerConfig{Addr: DefaultAddr, GinMode: "release", MaxBodyBytes: DefaultMaxBodyBytes},
		Log:    LogConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			Path:   "db/database.db",
			Port:   "5432",
		},
		Messaging: MessagingConfig{
			DefaultBusinessID: DefaultBusinessID,
			Store:             "gorm",
			MaxReplyLength:    DefaultMaxReplyLength,
			MaxInboundLength:  DefaultMaxInboundLength,
		},
		Security: SecurityConfig{
			JWTSecret:      "CHANGE_ME",
			JWTExpiresIn:   DefaultJWTExpiresIn,
			FloodRunLength: DefaultFloodRunLength,
			AuditQueueSize: DefaultAuditQueueSize,
		},
		RateLimits: DefaultRateLimits(),
		Delivery: DeliveryConfig{
			Twilio:       TwilioConfig{BaseURL: "https://api.twilio.com"},
			SMTP:         SMTPConfig{Port: 587, Security: "starttls"},
			PollInterval: DefaultDeliveryInterval,
			BatchSize:    DefaultDeliveryBatchSize,
			MaxAttempts:  DefaultDeliveryAttempts,
			Retention:    DefaultDeliveryRetention,
			Lease:        DefaultDeliveryLease,
		},
		Events: EventsConfig{Exchange: "switchboard.events"},
	}
}

// DefaultRateLimits are the per operation class thresholds used when the file does not set them.
func DefaultRateLimits() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"api":           {Limit: 120, Window: time.Minute},
		"reply":         {Limit: 30, Window: time.Minute},
		"sms_inbound":   {Limit: 10, Window: time.Minute},
		"email_inbound": {Limit: 10, Window: time.Minute},
		"form_inbound":  {Limit: 5, Window: time.Minute},
	}
}

// Load reads the TOML file at path (a missing file means defaults only),
// applies SWITCHBOARD_* environment overrides and fills zero values with defaults.
func Load(path string) (Configuration, error) {
	cfg := Default()
	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, cfg.Validate()
}

// Validate reports settings the service cannot run with.
func (c Configuration) Validate() error {
	switch c.Messaging.Store {
	case "memory", "gorm":
	default:
		return fmt.Errorf("messaging.store must be memory or gorm, got %q", c.Messaging.Store)
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres", "postgresql":
	default:
		return fmt.Errorf("database.driver must be sqlite3 or postgres, got %q", c.Database.Driver)
	}
	switch strings.ToLower(c.Delivery.Mailgun.Region) {
	case "", "us", "eu":
	default:
		return fmt.Errorf("delivery.mailgun.region must be us or eu, got %q", c.Delivery.Mailgun.Region)
	}
	for class, rule := range c.RateLimits {
		if rule.Limit <= 0 || rule.Window <= 0 {
			return fmt.Errorf("rate_limits.%s: limit and window must be positive", class)
		}
	}
	return nil
}

// IsAdmin reports whether identity is in the admin allow-list.
// An empty allow-list admits every authenticated identity.
func (s SecurityConfig) IsAdmin(identity string) bool {
	if len(s.AdminIdentities) == 0 {
		return true
	}
	identity = strings.ToLower(strings.TrimSpace(identity))
	for _, admin := range s.AdminIdentities {
		if strings.ToLower(strings.TrimSpace(admin)) == identity {
			return true
		}
	}
	return false
}

func applyDefaults(c *Configuration) {
	d := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Database.Driver == "" {
		c.Database.Driver = d.Database.Driver
	}
	if c.Database.Path == "" {
		c.Database.Path = d.Database.Path
	}
	if c.Messaging.DefaultBusinessID == "" {
		c.Messaging.DefaultBusinessID = d.Messaging.DefaultBusinessID
	}
	if c.Messaging.Store == "" {
		c.Messaging.Store = d.Messaging.Store
	}
	if c.Messaging.MaxReplyLength <= 0 {
		c.Messaging.MaxReplyLength = d.Messaging.MaxReplyLength
	}
	if c.Messaging.MaxInboundLength <= 0 {
		c.Messaging.MaxInboundLength = d.Messaging.MaxInboundLength
	}
	if c.Security.JWTSecret == "" {
		c.Security.JWTSecret = d.Security.JWTSecret
	}
	if c.Security.JWTExpiresIn <= 0 {
		c.Security.JWTExpiresIn = d.Security.JWTExpiresIn
	}
	if c.Security.FloodRunLength <= 0 {
		c.Security.FloodRunLength = d.Security.FloodRunLength
	}
	if c.Security.AuditQueueSize <= 0 {
		c.Security.AuditQueueSize = d.Security.AuditQueueSize
	}
	if c.RateLimits == nil {
		c.RateLimits = map[string]RateLimitRule{}
	}
	for class, rule := range d.RateLimits {
		if _, ok := c.RateLimits[class]; !ok {
			c.RateLimits[class] = rule
		}
	}
	if c.Delivery.Twilio.BaseURL == "" {
		c.Delivery.Twilio.BaseURL = d.Delivery.Twilio.BaseURL
	}
	if c.Delivery.SMTP.Port <= 0 {
		c.Delivery.SMTP.Port = d.Delivery.SMTP.Port
	}
	if c.Delivery.SMTP.Security == "" {
		c.Delivery.SMTP.Security = d.Delivery.SMTP.Security
	}
	if c.Delivery.PollInterval <= 0 {
		c.Delivery.PollInterval = d.Delivery.PollInterval
	}
	if c.Delivery.BatchSize <= 0 {
		c.Delivery.BatchSize = d.Delivery.BatchSize
	}
	if c.Delivery.MaxAttempts <= 0 {
		c.Delivery.MaxAttempts = d.Delivery.MaxAttempts
	}
	if c.Delivery.Retention <= 0 {
		c.Delivery.Retention = d.Delivery.Retention
	}
	if c.Delivery.Lease <= 0 {
		c.Delivery.Lease = d.Delivery.Lease
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = d.Events.Exchange
	}
}

// applyEnv deixa trocar segredos e endpoints sem rebuild nem arquivo.
func applyEnv(c *Configuration) {
	setString(&c.Server.Addr, "SWITCHBOARD_ADDR")
	setString(&c.Log.Level, "SWITCHBOARD_LOG_LEVEL")
	setString(&c.Database.Driver, "SWITCHBOARD_DB_DRIVER")
	setString(&c.Database.Host, "SWITCHBOARD_DB_HOST")
	setString(&c.Database.Port, "SWITCHBOARD_DB_PORT")
	setString(&c.Database.User, "SWITCHBOARD_DB_USER")
	setString(&c.Database.Name, "SWITCHBOARD_DB_NAME")
	setString(&c.Database.Pass, "SWITCHBOARD_DB_PASS")
	setString(&c.Messaging.Store, "SWITCHBOARD_STORE")
	setString(&c.Security.JWTSecret, "SWITCHBOARD_JWT_SECRET")
	setString(&c.Security.TwilioAuthToken, "SWITCHBOARD_TWILIO_WEBHOOK_TOKEN")
	setString(&c.Security.EmailWebhookSecret, "SWITCHBOARD_EMAIL_WEBHOOK_SECRET")
	setString(&c.Delivery.Twilio.AccountSID, "SWITCHBOARD_TWILIO_ACCOUNT_SID")
	setString(&c.Delivery.Twilio.AuthToken, "SWITCHBOARD_TWILIO_AUTH_TOKEN")
	setString(&c.Delivery.SMTP.Password, "SWITCHBOARD_SMTP_PASSWORD")
	setString(&c.Delivery.Mailgun.APIKey, "SWITCHBOARD_MAILGUN_API_KEY")
	setString(&c.Events.AMQPURL, "SWITCHBOARD_AMQP_URL")

	if v := strings.TrimSpace(os.Getenv("SWITCHBOARD_ADMIN_IDENTITIES")); v != "" {
		c.Security.AdminIdentities = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("SWITCHBOARD_AUTOMIGRATE")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Database.AutoMigrate = b
		}
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
