package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  Duration{Duration: 15 * time.Second},
			WriteTimeout: Duration{Duration: 150 * time.Second},
			IdleTimeout:  Duration{Duration: 60 * time.Second},
		},
		Hedera: HederaConfig{
			Network:       "mainnet",
			MirrorBaseURL: "https://mainnet.mirrornode.hedera.com",
			MirrorTimeout: Duration{Duration: 10 * time.Second},
		},
		Protocol: ProtocolConfig{
			SourceToken:      TokenConfig{Code: "MUSD", Decimals: 6},
			DestinationToken: TokenConfig{Code: "USDC", Decimals: 6},
			FeeBasisPoints:   100,
			MinWithdrawal:    "1",
			MaxWithdrawal:    "50000",
			AuditTimeout:     Duration{Duration: 10 * time.Second},
		},
		Oracle: OracleConfig{
			RequestTimeout: Duration{Duration: 10 * time.Second},
		},
		Verification: VerificationConfig{
			MaxAttempts:     5,
			InitialBackoff:  Duration{Duration: 500 * time.Millisecond},
			MaxBackoff:      Duration{Duration: 8 * time.Second},
			LookbackWindow:  Duration{Duration: 10 * time.Minute},
			ClockSkewBuffer: Duration{Duration: 60 * time.Second},
		},
		Journal: JournalConfig{
			Backend:           "memory",
			MongoDBDatabase:   "meridian",
			MongoDBCollection: "settlements",
		},
		Notifications: NotificationsConfig{
			Headers: make(map[string]string),
			Timeout: Duration{Duration: 3 * time.Second},
			Retry: RetryConfig{
				Enabled:         true,
				MaxAttempts:     5,
				InitialInterval: Duration{Duration: 1 * time.Second},
				MaxInterval:     Duration{Duration: 5 * time.Minute},
				Multiplier:      2.0,
			},
		},
		Monitoring: MonitoringConfig{
			LowBalanceThreshold: "1000",
			CheckInterval:       Duration{Duration: 15 * time.Minute},
			Timeout:             Duration{Duration: 5 * time.Second},
			Headers:             make(map[string]string),
			AlertCooldown:       Duration{Duration: 24 * time.Hour},
		},
		RateLimit: RateLimitConfig{
			// Generous limits - designed to prevent spam, not restrict legitimate use
			GlobalEnabled: true,
			GlobalLimit:   1000,
			GlobalWindow:  Duration{Duration: 1 * time.Minute},
			PerIPEnabled:  true,
			PerIPLimit:    120,
			PerIPWindow:   Duration{Duration: 1 * time.Minute},
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled: true,
			MirrorAPI: BreakerServiceConfig{
				MaxRequests:         3,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 30 * time.Second},
				ConsecutiveFailures: 5,
				FailureRatio:        0.5,
				MinRequests:         10,
			},
			HederaNetwork: BreakerServiceConfig{
				MaxRequests:         3,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 30 * time.Second},
				ConsecutiveFailures: 5,
				FailureRatio:        0.5,
				MinRequests:         10,
			},
			Webhook: BreakerServiceConfig{
				MaxRequests:         5,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 60 * time.Second}, // Longer timeout for webhooks
				ConsecutiveFailures: 10,                                   // More tolerant for webhooks
				FailureRatio:        0.7,
				MinRequests:         20,
			},
		},
	}
}

// parseFile reads and unmarshals a YAML configuration file.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}
