// Package config loads service configuration from the environment and an
// optional operator policy file.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the tunables shared by the locker, certgate and tokens
// services. Every value has a usable default so local runs need no env.
type Config struct {
	// Service bind addresses.
	LockerAddr   string `env:"TRUSTGATE_LOCKER_ADDR" envDefault:":8091"`
	CertgateAddr string `env:"TRUSTGATE_CERTGATE_ADDR" envDefault:":8092"`
	TokensAddr   string `env:"TRUSTGATE_TOKENS_ADDR" envDefault:":8093"`

	// DatabaseURL selects the Postgres store when set; the in-memory
	// store is used otherwise.
	DatabaseURL string `env:"DATABASE_URL"`

	// LockerURL is where certgate reaches the locker to store
	// attestation artifacts.
	LockerURL string `env:"TRUSTGATE_LOCKER_URL" envDefault:"http://localhost:8091"`

	// ExportSigningKey enables JWT-signed export manifests when set.
	ExportSigningKey string `env:"TRUSTGATE_EXPORT_SIGNING_KEY"`

	// WebhookSigningKey signs partner webhook pushes. Pushes are skipped
	// when it is unset.
	WebhookSigningKey string `env:"TRUSTGATE_WEBHOOK_SIGNING_KEY"`

	// PolicyFile points at the optional yaml policy document.
	PolicyFile string `env:"TRUSTGATE_POLICY_FILE"`

	DefaultSDTTTLSeconds        int    `env:"TRUSTGATE_DEFAULT_SDT_TTL_SECONDS" envDefault:"3600"`
	MaxSDTTTLSeconds            int    `env:"TRUSTGATE_MAX_SDT_TTL_SECONDS" envDefault:"86400"`
	SDTRateLimitPerMinute       int    `env:"TRUSTGATE_SDT_RATE_LIMIT_PER_MINUTE" envDefault:"10"`
	SDTAccessRateLimitPerMinute int    `env:"TRUSTGATE_SDT_ACCESS_RATE_LIMIT_PER_MINUTE" envDefault:"60"`
	MaxArtifactSizeBytes        int64  `env:"TRUSTGATE_MAX_ARTIFACT_SIZE_BYTES" envDefault:"10485760"`
	DefaultRetentionPeriod      string `env:"TRUSTGATE_DEFAULT_RETENTION_PERIOD" envDefault:"90d"`
	ManagedInstallsEnabled      bool   `env:"TRUSTGATE_MANAGED_INSTALLS_ENABLED" envDefault:"true"`
	PartnerWebhooksEnabled      bool   `env:"TRUSTGATE_PARTNER_WEBHOOKS_ENABLED" envDefault:"true"`
	MaxWebhookPayloadBytes      int    `env:"TRUSTGATE_MAX_WEBHOOK_PAYLOAD_BYTES" envDefault:"65536"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no environment is set.
// Tests construct from here and override fields directly.
func Default() Config {
	return Config{
		LockerAddr:                  ":8091",
		CertgateAddr:                ":8092",
		TokensAddr:                  ":8093",
		LockerURL:                   "http://localhost:8091",
		DefaultSDTTTLSeconds:        3600,
		MaxSDTTTLSeconds:            86400,
		SDTRateLimitPerMinute:       10,
		SDTAccessRateLimitPerMinute: 60,
		MaxArtifactSizeBytes:        10 << 20,
		DefaultRetentionPeriod:      "90d",
		ManagedInstallsEnabled:      true,
		PartnerWebhooksEnabled:      true,
		MaxWebhookPayloadBytes:      64 << 10,
	}
}

// Validate rejects configurations that would misbehave at runtime.
func (c Config) Validate() error {
	if c.DefaultSDTTTLSeconds <= 0 {
		return fmt.Errorf("default_sdt_ttl_seconds must be positive, got %d", c.DefaultSDTTTLSeconds)
	}
	if c.MaxSDTTTLSeconds < c.DefaultSDTTTLSeconds {
		return fmt.Errorf("max_sdt_ttl_seconds %d is below default_sdt_ttl_seconds %d", c.MaxSDTTTLSeconds, c.DefaultSDTTTLSeconds)
	}
	if c.MaxArtifactSizeBytes <= 0 {
		return fmt.Errorf("max_artifact_size_bytes must be positive, got %d", c.MaxArtifactSizeBytes)
	}
	if c.MaxWebhookPayloadBytes <= 0 {
		return fmt.Errorf("max_webhook_payload_bytes must be positive, got %d", c.MaxWebhookPayloadBytes)
	}
	return nil
}

// DefaultSDTTTL is DefaultSDTTTLSeconds as a duration.
func (c Config) DefaultSDTTTL() time.Duration {
	return time.Duration(c.DefaultSDTTTLSeconds) * time.Second
}

// MaxSDTTTL is MaxSDTTTLSeconds as a duration.
func (c Config) MaxSDTTTL() time.Duration {
	return time.Duration(c.MaxSDTTTLSeconds) * time.Second
}
