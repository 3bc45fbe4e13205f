package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Hedera         HederaConfig         `yaml:"hedera"`
	Protocol       ProtocolConfig       `yaml:"protocol"`
	Oracle         OracleConfig         `yaml:"oracle"`
	Verification   VerificationConfig   `yaml:"verification"`
	Journal        JournalConfig        `yaml:"journal"`
	Notifications  NotificationsConfig  `yaml:"notifications"`
	Monitoring     MonitoringConfig     `yaml:"monitoring"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	RoutePrefix        string   `yaml:"route_prefix"`          // Optional prefix for all routes (e.g., "/api")
	AdminMetricsAPIKey string   `yaml:"admin_metrics_api_key"` // Optional API key to protect /metrics (leave empty to disable protection)
}

// LoggingConfig controls the zerolog output.
type LoggingConfig struct {
	Level       string `yaml:"level"`  // debug, info, warn, error
	Format      string `yaml:"format"` // json, console
	Environment string `yaml:"environment"`
}

// HederaConfig holds the ledger connection settings.
type HederaConfig struct {
	Network            string   `yaml:"network"`         // mainnet | testnet | previewnet
	MirrorBaseURL      string   `yaml:"mirror_base_url"` // mirror node REST endpoint
	MirrorTimeout      Duration `yaml:"mirror_timeout"`  // per-request timeout for mirror calls
	OperatorAccountID  string   `yaml:"operator_account_id"`
	OperatorPrivateKey string   `yaml:"-"` // env only, never in YAML
}

// TokenConfig identifies one protocol token on the ledger.
type TokenConfig struct {
	Code     string `yaml:"code"`
	TokenID  string `yaml:"token_id"`
	Decimals uint8  `yaml:"decimals"`
}

// ProtocolConfig holds the instant-withdrawal protocol parameters.
type ProtocolConfig struct {
	SourceToken       TokenConfig `yaml:"source_token"`      // yield token the user redeems (MUSD)
	DestinationToken  TokenConfig `yaml:"destination_token"` // collateral token the user receives (USDC)
	CollectionAccount string      `yaml:"collection_account"`
	LiquidityAccount  string      `yaml:"liquidity_account"`
	FeeBasisPoints    int64       `yaml:"fee_basis_points"`
	MinWithdrawal     string      `yaml:"min_withdrawal"` // decimal, source token units
	MaxWithdrawal     string      `yaml:"max_withdrawal"` // decimal, source token units
	AuditTopicID      string      `yaml:"audit_topic_id"`
	AuditTimeout      Duration    `yaml:"audit_timeout"` // budget for the post-settlement audit publish
}

// OracleConfig locates the exchange-rate consensus topic.
type OracleConfig struct {
	TopicID        string   `yaml:"topic_id"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// VerificationConfig tunes the inbound transfer verification loop.
type VerificationConfig struct {
	MaxAttempts     int      `yaml:"max_attempts"`
	InitialBackoff  Duration `yaml:"initial_backoff"`
	MaxBackoff      Duration `yaml:"max_backoff"`
	LookbackWindow  Duration `yaml:"lookback_window"`   // how far back an inbound payment counts
	ClockSkewBuffer Duration `yaml:"clock_skew_buffer"` // subtracted from the window start
}

// JournalConfig selects the settlement journal backend.
type JournalConfig struct {
	Backend           string `yaml:"backend"` // memory | postgres | mongodb
	PostgresURL       string `yaml:"postgres_url"`
	MongoDBURL        string `yaml:"mongodb_url"`
	MongoDBDatabase   string `yaml:"mongodb_database"`
	MongoDBCollection string `yaml:"mongodb_collection"`
}

// RetryConfig controls webhook delivery retries.
type RetryConfig struct {
	Enabled         bool     `yaml:"enabled"`
	MaxAttempts     int      `yaml:"max_attempts"`
	InitialInterval Duration `yaml:"initial_interval"`
	MaxInterval     Duration `yaml:"max_interval"`
	Multiplier      float64  `yaml:"multiplier"`
}

// NotificationsConfig holds the fire-and-forget settlement webhook settings.
type NotificationsConfig struct {
	WithdrawalURL string            `yaml:"withdrawal_url"`
	Headers       map[string]string `yaml:"headers"`
	Timeout       Duration          `yaml:"timeout"`
	Retry         RetryConfig       `yaml:"retry"`
}

// MonitoringConfig holds liquidity wallet monitoring settings.
type MonitoringConfig struct {
	LowBalanceAlertURL   string            `yaml:"low_balance_alert_url"`
	LowBalanceThreshold  string            `yaml:"low_balance_threshold"` // decimal, destination token units
	CheckInterval        Duration          `yaml:"check_interval"`
	Timeout              Duration          `yaml:"timeout"`
	Headers              map[string]string `yaml:"headers"`
	AlertCooldown        Duration          `yaml:"alert_cooldown"`
}

// RateLimitConfig holds HTTP rate limiting configuration.
type RateLimitConfig struct {
	GlobalEnabled bool     `yaml:"global_enabled"`
	GlobalLimit   int      `yaml:"global_limit"`
	GlobalWindow  Duration `yaml:"global_window"`
	PerIPEnabled  bool     `yaml:"per_ip_enabled"`
	PerIPLimit    int      `yaml:"per_ip_limit"`
	PerIPWindow   Duration `yaml:"per_ip_window"`
}

// BreakerServiceConfig configures a single circuit breaker.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`
	Interval            Duration `yaml:"interval"`
	Timeout             Duration `yaml:"timeout"`
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"`
	FailureRatio        float64  `yaml:"failure_ratio"`
	MinRequests         uint32   `yaml:"min_requests"`
}

// CircuitBreakerConfig holds per-service breaker settings.
type CircuitBreakerConfig struct {
	Enabled       bool                 `yaml:"enabled"`
	MirrorAPI     BreakerServiceConfig `yaml:"mirror_api"`
	HederaNetwork BreakerServiceConfig `yaml:"hedera_network"`
	Webhook       BreakerServiceConfig `yaml:"webhook"`
}
