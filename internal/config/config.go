package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"

	"github.com/go-notify-nosql/internal/domain"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string `env:"APP_PORT" envDefault:"3000"`
	AppEnv  string `env:"APP_ENV" envDefault:"development"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	AWS          AWS          `envPrefix:"AWS_"`
	StoreDriver  string       `env:"STORE_DRIVER" envDefault:"dynamo"`
	SQLitePath   string       `env:"SQLITE_PATH" envDefault:"file:notifications.db?_pragma=busy_timeout(5000)"`
	DynamoTables DynamoTables `envPrefix:"DYNAMO_TABLE_"`
	Bootstrap    bool         `env:"DYNAMO_BOOTSTRAP" envDefault:"false"`

	Poller   Poller   `envPrefix:"POLLER_"`
	Breaker  Breaker  `envPrefix:"BREAKER_"`
	Redis    Redis    `envPrefix:"REDIS_"`
	Kafka    Kafka    `envPrefix:"KAFKA_"`
	SMTP     SMTP     `envPrefix:"SMTP_"`
	SNS      SNS      `envPrefix:"SNS_"`
	Firebase Firebase `envPrefix:"FIREBASE_"`

	DeadLetterBucket string `env:"DEAD_LETTER_BUCKET"`

	JWTPrivateKeyPath string        `env:"JWT_PRIVATE_KEY_PATH" envDefault:"./private_key.pem"`
	JWTPublicKeyPath  string        `env:"JWT_PUBLIC_KEY_PATH" envDefault:"./public_key.pem"`
	JWTExpiry         time.Duration `env:"JWT_EXPIRY" envDefault:"168h"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST" envDefault:"40"`
}

type AWS struct {
	Region      string `env:"REGION" envDefault:"us-east-1"`
	EndpointURL string `env:"ENDPOINT_URL"` // empty in prod, set to LocalStack URL in dev
	AccessKeyID string `env:"ACCESS_KEY_ID"`
	SecretKey   string `env:"SECRET_ACCESS_KEY"`
}

// DynamoTables holds the DynamoDB table name for each recipient category plus devices.
type DynamoTables struct {
	Restaurant string `env:"RESTAURANT" envDefault:"notifications_restaurant"`
	Customer   string `env:"CUSTOMER" envDefault:"notifications_customer"`
	Agency     string `env:"AGENCY" envDefault:"notifications_agency"`
	Admin      string `env:"ADMIN" envDefault:"notifications_admin"`
	Devices    string `env:"DEVICES" envDefault:"devices"`
}

// ByCategory maps every category to its notification table.
func (t DynamoTables) ByCategory() map[domain.Category]string {
	return map[domain.Category]string{
		domain.CategoryRestaurant: t.Restaurant,
		domain.CategoryCustomer:   t.Customer,
		domain.CategoryAgency:     t.Agency,
		domain.CategoryAdmin:      t.Admin,
	}
}

type Poller struct {
	BatchSize  int `env:"BATCH_SIZE" envDefault:"100"`
	MaxRetries int `env:"MAX_RETRIES" envDefault:"5"`

	PushInterval  time.Duration `env:"PUSH_INTERVAL" envDefault:"10s"`
	EmailInterval time.Duration `env:"EMAIL_INTERVAL" envDefault:"30s"`
	SMSInterval   time.Duration `env:"SMS_INTERVAL" envDefault:"60s"`

	PushEnabled  bool `env:"PUSH_ENABLED" envDefault:"true"`
	EmailEnabled bool `env:"EMAIL_ENABLED" envDefault:"true"`
	SMSEnabled   bool `env:"SMS_ENABLED" envDefault:"true"`
}

// Interval returns the polling period for a polled channel.
func (p Poller) Interval(ch domain.Channel) time.Duration {
	switch ch {
	case domain.ChannelPush:
		return p.PushInterval
	case domain.ChannelEmail:
		return p.EmailInterval
	case domain.ChannelSMS:
		return p.SMSInterval
	}
	return 0
}

// Enabled reports whether the loop for ch should be started.
func (p Poller) Enabled(ch domain.Channel) bool {
	switch ch {
	case domain.ChannelPush:
		return p.PushEnabled
	case domain.ChannelEmail:
		return p.EmailEnabled
	case domain.ChannelSMS:
		return p.SMSEnabled
	}
	return false
}

type Breaker struct {
	MaxFailures uint32        `env:"MAX_FAILURES" envDefault:"5"`
	OpenTimeout time.Duration `env:"OPEN_TIMEOUT" envDefault:"30s"`
}

type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Prefix   string `env:"CHANNEL_PREFIX" envDefault:"notify:"`
}

type Kafka struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"notification-events"`
	GroupID string   `env:"GROUP_ID" envDefault:"notify-engine"`
}

type SMTP struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"1025"`
	From     string `env:"FROM" envDefault:"noreply@example.com"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	Enabled  bool   `env:"ENABLED" envDefault:"true"`
}

type SNS struct {
	Region  string `env:"REGION" envDefault:"us-east-1"`
	Enabled bool   `env:"ENABLED" envDefault:"true"`
}

type Firebase struct {
	CredentialsFile string `env:"CREDENTIALS_FILE"`
	ProjectID       string `env:"PROJECT_ID"`
}

// Load reads all configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.StoreDriver {
	case "dynamo", "sqlite":
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be dynamo or sqlite, got %q", cfg.StoreDriver)
	}
	if cfg.Poller.BatchSize <= 0 {
		return nil, fmt.Errorf("POLLER_BATCH_SIZE must be positive, got %d", cfg.Poller.BatchSize)
	}
	if cfg.Poller.MaxRetries < 0 {
		return nil, fmt.Errorf("POLLER_MAX_RETRIES must not be negative, got %d", cfg.Poller.MaxRetries)
	}
	return cfg, nil
}

// IsDevelopment reports whether the app runs with development defaults.
func (c *Config) IsDevelopment() bool { return c.AppEnv == "development" }
