// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN or the SQLite file path.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// DatabaseDriver selects the dialect: "postgres" or "sqlite".
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	// SessionsTable, FeedbackTable and AuditTable name the tables used by the stores.
	SessionsTable string `mapstructure:"SESSIONS_TABLE"`
	FeedbackTable string `mapstructure:"FEEDBACK_TABLE"`
	AuditTable    string `mapstructure:"AUDIT_TABLE"`

	// OperationTimeout bounds one lifecycle operation, persistence and notifications included (e.g. "30s").
	OperationTimeout string `mapstructure:"OPERATION_TIMEOUT"`
	// NotifyCooldown is the minimum gap between two feedback notifications to one organiser (e.g. "1h").
	NotifyCooldown string `mapstructure:"NOTIFY_COOLDOWN"`
	// OverridePINHash is a bcrypt hash of the administrative override PIN; empty disables it.
	OverridePINHash string `mapstructure:"OVERRIDE_PIN_HASH"`
	// BcryptCost is the bcrypt cost used when hashing a new override PIN (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// PostmarkServerToken and PostmarkAccountToken enable Postmark delivery when both are set.
	PostmarkServerToken  string `mapstructure:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `mapstructure:"POSTMARK_ACCOUNT_TOKEN"`
	// SenderEmail is the From address of every notification.
	SenderEmail string `mapstructure:"SENDER_EMAIL"`
	// SupportEmail is the Reply-To address of every notification.
	SupportEmail string `mapstructure:"SUPPORT_EMAIL"`
	// MailDevDir is where the development sender writes emails when Postmark is not configured.
	MailDevDir string `mapstructure:"MAIL_DEV_DIR"`
	// AppBaseURL is used to build links in emails (e.g. https://feedback.example.com).
	AppBaseURL string `mapstructure:"APP_BASE_URL"`

	// AccessPolicyFile optionally replaces the built-in Rego access policy.
	AccessPolicyFile string `mapstructure:"ACCESS_POLICY_FILE"`

	// OTLPEndpoint enables OpenTelemetry export when set (e.g. localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext OTLP connection.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is reported as the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// TelemetryKafkaBrokers is a comma-separated broker list; when set, change events are also
	// published to TelemetryKafkaTopic.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	TelemetryKafkaTopic   string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATABASE_DRIVER", "postgres")
	v.SetDefault("SESSIONS_TABLE", "sessions")
	v.SetDefault("FEEDBACK_TABLE", "feedback")
	v.SetDefault("AUDIT_TABLE", "audit_logs")
	v.SetDefault("OPERATION_TIMEOUT", "30s")
	v.SetDefault("NOTIFY_COOLDOWN", "1h")
	v.SetDefault("OVERRIDE_PIN_HASH", "")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("POSTMARK_SERVER_TOKEN", "")
	v.SetDefault("POSTMARK_ACCOUNT_TOKEN", "")
	v.SetDefault("SENDER_EMAIL", "feedback@localhost.test")
	v.SetDefault("SUPPORT_EMAIL", "support@localhost.test")
	v.SetDefault("MAIL_DEV_DIR", "tmp/mail")
	v.SetDefault("APP_BASE_URL", "http://localhost:8080")
	v.SetDefault("ACCESS_POLICY_FILE", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "feedback-collector")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "feedback-events")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite" {
		return nil, fmt.Errorf("config: DATABASE_DRIVER must be postgres or sqlite, got %q", cfg.DatabaseDriver)
	}
	for _, t := range []string{cfg.SessionsTable, cfg.FeedbackTable, cfg.AuditTable} {
		if !tableName.MatchString(t) {
			return nil, fmt.Errorf("config: invalid table name %q", t)
		}
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.Env == "production" && cfg.PostmarkServerToken == "" {
		return nil, errors.New("config: POSTMARK_SERVER_TOKEN must be set when APP_ENV=production")
	}

	return &cfg, nil
}

// Timeout parses OperationTimeout. Returns 30s if unset or invalid.
func (c *Config) Timeout() time.Duration {
	return parsePositive(c.OperationTimeout, 30*time.Second)
}

// Cooldown parses NotifyCooldown. Returns 1h if unset or invalid; "0s" is rejected as well so
// a misconfiguration cannot turn every submission into an email.
func (c *Config) Cooldown() time.Duration {
	return parsePositive(c.NotifyCooldown, time.Hour)
}

// PostmarkEnabled reports whether both Postmark tokens are configured.
func (c *Config) PostmarkEnabled() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}

// TelemetryKafkaBrokersList returns the trimmed, non-empty entries of KAFKA_BROKERS.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parsePositive(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
