package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL" envDefault:"sqlite://interviews.db"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Finalized documents are archived here unless S3 is configured.
	ExportDir    string `env:"EXPORT_DIR" envDefault:"./exports"`
	SiteName     string `env:"SITE_NAME"`
	Organization string `env:"ORGANIZATION"`
	CaptureLang  string `env:"CAPTURE_LANG" envDefault:"de-CH"`

	MQTT MQTTConfig
	S3   S3Config

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// MQTTConfig configures optional lifecycle notifications. Empty BrokerURL
// disables them.
type MQTTConfig struct {
	BrokerURL   string `env:"MQTT_BROKER_URL"`
	ClientID    string `env:"MQTT_CLIENT_ID" envDefault:"interview-desk"`
	TopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"interview-desk"`
	Username    string `env:"MQTT_USERNAME"`
	Password    string `env:"MQTT_PASSWORD"`
}

func (c MQTTConfig) Enabled() bool { return c.BrokerURL != "" }

// S3Config configures the S3-compatible document archive. Empty Bucket
// keeps documents on the local filesystem.
type S3Config struct {
	Bucket        string        `env:"S3_BUCKET"`
	Endpoint      string        `env:"S3_ENDPOINT"`
	Region        string        `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKey     string        `env:"S3_ACCESS_KEY"`
	SecretKey     string        `env:"S3_SECRET_KEY"`
	Prefix        string        `env:"S3_PREFIX"`
	PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"1h"`
}

func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	DatabaseURL   string
	MQTTBrokerURL string
	ExportDir     string
	CaptureLang   string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Non-empty values win
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.MQTTBrokerURL != "" {
		cfg.MQTT.BrokerURL = overrides.MQTTBrokerURL
	}
	if overrides.ExportDir != "" {
		cfg.ExportDir = overrides.ExportDir
	}
	if overrides.CaptureLang != "" {
		cfg.CaptureLang = overrides.CaptureLang
	}

	return cfg, nil
}
