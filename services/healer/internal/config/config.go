package config

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds runtime configuration for the auto-healing service.
type Config struct {
	Enabled              bool   `env:"AUTO_HEALING_ENABLED,default=true"`
	ActionTimeoutSeconds int    `env:"HEALING_ACTION_TIMEOUT,default=300"`
	MaxAttempts          int    `env:"MAX_HEALING_ATTEMPTS,default=3"`
	LogLevel             string `env:"LOG_LEVEL,default=INFO"`

	SNSTopicARN    string `env:"SNS_TOPIC_ARN"`
	NATSURL        string `env:"NATS_URL"`
	ResultsSubject string `env:"NATS_RESULTS_SUBJECT,default=autoheal.results"`
	AlertsSubject  string `env:"NATS_ALERTS_SUBJECT,default=autoheal.alerts"`

	DBDSN       string `env:"AUTOHEAL_DB_DSN"`
	AuditBucket string `env:"AUTOHEAL_AUDIT_BUCKET"`
	AuditPrefix string `env:"AUTOHEAL_AUDIT_PREFIX,default=audit"`

	AWSRegion    string `env:"AWS_REGION"`
	AWSEndpoint  string `env:"AWS_ENDPOINT_URL"`
	AWSAccessKey string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey string `env:"AWS_SECRET_ACCESS_KEY"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	HTTPAddr     string `env:"AUTOHEAL_HTTP_ADDR,default=:8080"`
	ScriptsFile  string `env:"AUTOHEAL_SCRIPTS_FILE"`
}

// ActionTimeout returns HEALING_ACTION_TIMEOUT as a duration.
func (c Config) ActionTimeout() time.Duration {
	return time.Duration(c.ActionTimeoutSeconds) * time.Second
}

// Validate reports configuration values that cannot be used.
func (c Config) Validate() error {
	if c.ActionTimeoutSeconds <= 0 {
		return errors.New("HEALING_ACTION_TIMEOUT must be positive")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("MAX_HEALING_ATTEMPTS must be positive")
	}
	if (c.AWSAccessKey == "") != (c.AWSSecretKey == "") {
		return errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
	}
	return nil
}

// Load returns a Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith returns a Config populated from l.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
